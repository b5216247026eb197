package mirrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/temirov/subpkg/internal/repos/shared"
)

const (
	tcpNetworkConstant                    = "tcp"
	httpSchemePrefixConstant              = "http"
	missingProbeAddressMessageConstant    = "candidate has no probe address"
	probeFailedErrorTemplateConstant      = "probe %s: %w"
	probeCacheCreateErrorTemplateConstant = "unable to create probe cache: %w"
)

// DefaultProbeCacheSize bounds the number of distinct probe addresses remembered per build.
const DefaultProbeCacheSize = 256

// ErrMissingProbeAddress indicates a candidate whose URL names no reachable host.
var ErrMissingProbeAddress = errors.New(missingProbeAddressMessageConstant)

// Prober measures how long a candidate takes to answer a lightweight reachability check.
type Prober interface {
	Probe(probeContext context.Context, candidate Candidate) (time.Duration, error)
}

// NetworkProber issues an HTTP HEAD for http(s) candidates and a TCP dial for ssh candidates.
type NetworkProber struct {
	HTTPClient *http.Client
	Dialer     *net.Dialer
	Clock      shared.Clock
}

// NewNetworkProber constructs a NetworkProber with redirects disabled.
func NewNetworkProber() *NetworkProber {
	return &NetworkProber{
		HTTPClient: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Dialer: &net.Dialer{},
		Clock:  shared.SystemClock{},
	}
}

// Probe measures the latency of the candidate's probe address. Any HTTP response counts as reachable.
func (prober *NetworkProber) Probe(probeContext context.Context, candidate Candidate) (time.Duration, error) {
	if len(candidate.ProbeAddress) == 0 {
		return 0, ErrMissingProbeAddress
	}

	startedAt := prober.Clock.Now()
	if strings.HasPrefix(candidate.ProbeAddress, httpSchemePrefixConstant) {
		request, requestError := http.NewRequestWithContext(probeContext, http.MethodHead, candidate.ProbeAddress, nil)
		if requestError != nil {
			return 0, fmt.Errorf(probeFailedErrorTemplateConstant, candidate.ProbeAddress, requestError)
		}
		response, responseError := prober.HTTPClient.Do(request)
		if responseError != nil {
			return 0, fmt.Errorf(probeFailedErrorTemplateConstant, candidate.ProbeAddress, responseError)
		}
		response.Body.Close()
		return prober.Clock.Now().Sub(startedAt), nil
	}

	connection, dialError := prober.Dialer.DialContext(probeContext, tcpNetworkConstant, candidate.ProbeAddress)
	if dialError != nil {
		return 0, fmt.Errorf(probeFailedErrorTemplateConstant, candidate.ProbeAddress, dialError)
	}
	connection.Close()
	return prober.Clock.Now().Sub(startedAt), nil
}

type probeOutcome struct {
	latency time.Duration
	err     error
}

// CachingProber remembers probe outcomes by probe address so a host is probed once per build.
// Concurrent probes of the same address share a single network check.
type CachingProber struct {
	delegate Prober
	cache    *lru.Cache[string, probeOutcome]
	inflight singleflight.Group
}

// NewCachingProber wraps the prober with an LRU cache of the given size.
func NewCachingProber(delegate Prober, size int) (*CachingProber, error) {
	if size <= 0 {
		size = DefaultProbeCacheSize
	}
	cache, cacheError := lru.New[string, probeOutcome](size)
	if cacheError != nil {
		return nil, fmt.Errorf(probeCacheCreateErrorTemplateConstant, cacheError)
	}
	return &CachingProber{delegate: delegate, cache: cache}, nil
}

// Probe returns the cached outcome for the candidate's address or probes it.
// Outcomes caused by caller cancellation are not cached.
func (prober *CachingProber) Probe(probeContext context.Context, candidate Candidate) (time.Duration, error) {
	if cached, found := prober.cache.Get(candidate.ProbeAddress); found {
		return cached.latency, cached.err
	}

	sharedOutcome, _, _ := prober.inflight.Do(candidate.ProbeAddress, func() (any, error) {
		if cached, found := prober.cache.Get(candidate.ProbeAddress); found {
			return cached, nil
		}
		latency, probeError := prober.delegate.Probe(probeContext, candidate)
		outcome := probeOutcome{latency: latency, err: probeError}
		if !errors.Is(probeError, context.Canceled) {
			prober.cache.Add(candidate.ProbeAddress, outcome)
		}
		return outcome, nil
	})
	outcome := sharedOutcome.(probeOutcome)
	return outcome.latency, outcome.err
}
