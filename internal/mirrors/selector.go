package mirrors

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultProbeTimeout bounds each probe when no timeout is configured.
	DefaultProbeTimeout = 3 * time.Second

	hostUnreachableMessageConstant = "All mirror probes failed; using the first declared host"
	probeFailedMessageConstant     = "Mirror probe failed"
	mirrorSelectedMessageConstant  = "Selected mirror"
	hostsFieldConstant             = "hosts"
	hostFieldConstant              = "host"
	mirrorFieldConstant            = "mirror"
	urlFieldConstant               = "url"
	latencyFieldConstant           = "latency"
	noCandidatesSelectionMessage   = "selection requires at least one candidate"
)

// ErrNoCandidates indicates a selection was requested for an empty candidate list.
var ErrNoCandidates = errors.New(noCandidatesSelectionMessage)

// ProbeObserver receives every probe outcome.
type ProbeObserver interface {
	ObserveProbe(candidate Candidate, latency time.Duration, probeError error)
}

// Selection is the outcome of choosing a clone candidate.
type Selection struct {
	Candidate Candidate
	Latency   time.Duration
	Probed    bool
	Fallback  bool
}

// Selector chooses one candidate to clone from.
type Selector interface {
	SelectHost(selectionContext context.Context, candidates []Candidate, probeTimeout time.Duration) (Selection, error)
}

type probeResult struct {
	latency time.Duration
	err     error
}

// ParallelSelector probes all candidates concurrently and picks the lowest latency.
type ParallelSelector struct {
	Prober              Prober
	Logger              *zap.Logger
	Observer            ProbeObserver
	MaxConcurrentProbes int
}

// SelectHost probes every candidate, each bounded by the probe timeout. Ties go to the
// earlier candidate; when every probe fails the first candidate is returned with Fallback set.
func (selector *ParallelSelector) SelectHost(selectionContext context.Context, candidates []Candidate, probeTimeout time.Duration) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoCandidates
	}
	if len(candidates) == 1 {
		return Selection{Candidate: candidates[0]}, nil
	}

	results := make([]probeResult, len(candidates))
	probeGroup, groupContext := errgroup.WithContext(selectionContext)
	if selector.MaxConcurrentProbes > 0 {
		probeGroup.SetLimit(selector.MaxConcurrentProbes)
	}
	for candidateIndex, candidate := range candidates {
		probeGroup.Go(func() error {
			results[candidateIndex] = runProbe(groupContext, selector.Prober, candidate, probeTimeout)
			return nil
		})
	}
	_ = probeGroup.Wait()

	if contextError := selectionContext.Err(); contextError != nil {
		return Selection{}, contextError
	}
	return choose(candidates, results, selector.Logger, selector.Observer), nil
}

// SequentialSelector probes candidates one after another and applies the same rule as ParallelSelector.
type SequentialSelector struct {
	Prober   Prober
	Logger   *zap.Logger
	Observer ProbeObserver
}

// SelectHost probes each candidate in declaration order.
func (selector *SequentialSelector) SelectHost(selectionContext context.Context, candidates []Candidate, probeTimeout time.Duration) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoCandidates
	}
	if len(candidates) == 1 {
		return Selection{Candidate: candidates[0]}, nil
	}

	results := make([]probeResult, len(candidates))
	for candidateIndex, candidate := range candidates {
		if contextError := selectionContext.Err(); contextError != nil {
			return Selection{}, contextError
		}
		results[candidateIndex] = runProbe(selectionContext, selector.Prober, candidate, probeTimeout)
	}
	if contextError := selectionContext.Err(); contextError != nil {
		return Selection{}, contextError
	}
	return choose(candidates, results, selector.Logger, selector.Observer), nil
}

// DirectSelector always returns the first candidate without probing.
type DirectSelector struct{}

// SelectHost returns the first declared candidate.
func (DirectSelector) SelectHost(_ context.Context, candidates []Candidate, _ time.Duration) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoCandidates
	}
	return Selection{Candidate: candidates[0]}, nil
}

func runProbe(parentContext context.Context, prober Prober, candidate Candidate, probeTimeout time.Duration) probeResult {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	probeContext, cancelProbe := context.WithTimeout(parentContext, probeTimeout)
	defer cancelProbe()

	latency, probeError := prober.Probe(probeContext, candidate)
	if probeError == nil && probeContext.Err() != nil {
		probeError = probeContext.Err()
	}
	return probeResult{latency: latency, err: probeError}
}

func choose(candidates []Candidate, results []probeResult, logger *zap.Logger, observer ProbeObserver) Selection {
	if logger == nil {
		logger = zap.NewNop()
	}

	selectedIndex := -1
	for candidateIndex, result := range results {
		if observer != nil {
			observer.ObserveProbe(candidates[candidateIndex], result.latency, result.err)
		}
		if result.err != nil {
			logger.Debug(probeFailedMessageConstant,
				zap.String(hostFieldConstant, candidates[candidateIndex].Host),
				zap.String(mirrorFieldConstant, candidates[candidateIndex].Mirror),
				zap.Error(result.err),
			)
			continue
		}
		if selectedIndex == -1 || result.latency < results[selectedIndex].latency {
			selectedIndex = candidateIndex
		}
	}

	if selectedIndex == -1 {
		hosts := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			hosts = append(hosts, candidate.URL)
		}
		logger.Debug(hostUnreachableMessageConstant, zap.Strings(hostsFieldConstant, hosts))
		return Selection{Candidate: candidates[0], Probed: true, Fallback: true}
	}

	selected := candidates[selectedIndex]
	logger.Debug(mirrorSelectedMessageConstant,
		zap.String(hostFieldConstant, selected.Host),
		zap.String(mirrorFieldConstant, selected.Mirror),
		zap.String(urlFieldConstant, selected.URL),
		zap.Duration(latencyFieldConstant, results[selectedIndex].latency),
	)
	return Selection{Candidate: selected, Latency: results[selectedIndex].latency, Probed: true}
}
