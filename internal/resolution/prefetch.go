package resolution

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/subpkg/internal/fetch"
	"github.com/temirov/subpkg/internal/gitrepo"
	"github.com/temirov/subpkg/internal/manifest"
)

const (
	fetchKeyTemplateConstant         = "%s#%s@%s"
	prefetchStartedMessageConstant   = "Cloning sibling ahead of the tree walk"
	prefetchDiscardedMessageConstant = "Discarding unused staged clone"
	stagingPathFieldConstant         = "staging_path"
)

// Stager splits a fetch into a clone that can run ahead of the tree walk and a commit onto the
// target once the walk reaches the subpackage.
type Stager interface {
	Stage(executionContext context.Context, request fetch.Request) (fetch.Staged, error)
	Commit(executionContext context.Context, staged fetch.Staged, targetPath string) (fetch.Result, error)
	Discard(staged fetch.Staged)
}

type selectedSource struct {
	cloneURL    string
	officialURL string
	host        string
	mirror      string
	fallback    bool
}

func (source selectedSource) applyTo(node *Node) {
	node.ResolvedHost = source.host
	node.ResolvedMirror = source.mirror
	node.HostFallback = source.fallback
}

type sourceFailure struct {
	kind    string
	message string
}

type prefetch struct {
	done          chan struct{}
	consumed      bool
	source        selectedSource
	sourceFailure *sourceFailure
	staged        fetch.Staged
	stageError    error
}

// prefetcher stages sibling clones in parallel. The tree walk still claims and commits them one
// at a time in declaration order, so the tree does not depend on the number of jobs.
type prefetcher struct {
	mutex   sync.Mutex
	stager  Stager
	group   *errgroup.Group
	pending map[string]*prefetch
}

func newPrefetcher(stager Stager, jobs int) *prefetcher {
	group := new(errgroup.Group)
	group.SetLimit(jobs)
	return &prefetcher{stager: stager, group: group, pending: make(map[string]*prefetch)}
}

func (prefetcher *prefetcher) register(key string) (*prefetch, bool) {
	prefetcher.mutex.Lock()
	defer prefetcher.mutex.Unlock()

	if _, exists := prefetcher.pending[key]; exists {
		return nil, false
	}
	pending := &prefetch{done: make(chan struct{})}
	prefetcher.pending[key] = pending
	return pending, true
}

// take hands a staged clone to the tree walk. Each clone is handed out once.
func (prefetcher *prefetcher) take(key string) *prefetch {
	if prefetcher == nil {
		return nil
	}
	prefetcher.mutex.Lock()
	defer prefetcher.mutex.Unlock()

	pending, found := prefetcher.pending[key]
	if !found || pending.consumed {
		return nil
	}
	pending.consumed = true
	return pending
}

// finish waits for outstanding clones and discards the ones the walk never committed.
func (prefetcher *prefetcher) finish(logger *zap.Logger) {
	if prefetcher == nil {
		return
	}
	_ = prefetcher.group.Wait()

	prefetcher.mutex.Lock()
	defer prefetcher.mutex.Unlock()
	for _, pending := range prefetcher.pending {
		if pending.consumed || len(pending.staged.StagingPath) == 0 {
			continue
		}
		logger.Debug(prefetchDiscardedMessageConstant, zap.String(stagingPathFieldConstant, pending.staged.StagingPath))
		prefetcher.stager.Discard(pending.staged)
	}
}

// prefetchSiblings starts staging clones for the absent subpackages of a manifest.
func (builder *Builder) prefetchSiblings(executionContext context.Context, state *buildState, parentManifest manifest.Manifest) {
	if state.prefetcher == nil {
		return
	}
	parentDirectory := parentManifest.Directory
	for _, spec := range parentManifest.Subpackages {
		if executionContext.Err() != nil {
			return
		}
		if _, found := builder.pathResolver.Resolve(parentDirectory, spec.CandidatePaths); found {
			continue
		}
		if _, claimed := state.cache.Lookup(spec.Identity()); claimed {
			continue
		}
		protocol := builder.protocolFor(state, spec)
		pending, registered := state.prefetcher.register(builder.fetchKey(parentDirectory, spec, protocol))
		if !registered {
			continue
		}
		targetPath := builder.pathResolver.Absolute(parentDirectory, spec.CandidatePaths[0])
		state.prefetcher.group.Go(func() error {
			defer close(pending.done)
			builder.stageSubpackage(executionContext, state, parentDirectory, spec, protocol, targetPath, pending)
			return nil
		})
	}
}

func (builder *Builder) stageSubpackage(executionContext context.Context, state *buildState, parentDirectory string, spec manifest.SubpackageSpec, protocol gitrepo.TransportProtocol, targetPath string, pending *prefetch) {
	source, failure := builder.selectSource(executionContext, state, parentDirectory, spec, protocol)
	if failure != nil {
		pending.sourceFailure = failure
		return
	}
	pending.source = source
	state.logger.Debug(prefetchStartedMessageConstant,
		zap.String(subpackageFieldConstant, spec.Name),
		zap.String(urlFieldConstant, source.cloneURL),
	)
	pending.staged, pending.stageError = state.prefetcher.stager.Stage(executionContext, fetch.Request{
		TargetPath:  targetPath,
		URL:         source.cloneURL,
		OfficialURL: source.officialURL,
		Branch:      spec.Branch,
		Protocol:    protocol,
		Shallow:     state.options.Shallow,
	})
}

// commitPrefetched finishes a fetch whose clone was staged ahead of the walk.
func (builder *Builder) commitPrefetched(executionContext context.Context, state *buildState, pending *prefetch, node *Node) {
	<-pending.done
	if pending.sourceFailure != nil {
		builder.markFailed(state, node, pending.sourceFailure.kind, pending.sourceFailure.message)
		return
	}
	pending.source.applyTo(node)
	if pending.stageError != nil {
		failedResult := fetch.Result{Outcome: fetch.OutcomeFailed, TargetPath: node.ChosenPath, URL: pending.source.cloneURL}
		builder.applyFetchResult(state, node, pending.source.cloneURL, failedResult, pending.stageError)
		return
	}
	fetchResult, commitError := state.prefetcher.stager.Commit(executionContext, pending.staged, node.ChosenPath)
	builder.applyFetchResult(state, node, pending.source.cloneURL, fetchResult, commitError)
}

// fetchKey identifies what a fetch would clone: the source, branch and transport.
func (builder *Builder) fetchKey(parentDirectory string, spec manifest.SubpackageSpec, protocol gitrepo.TransportProtocol) string {
	source := spec.DeclaredURL()
	if !spec.Host.IsTemplate() {
		source = literalCloneURL(parentDirectory, spec.Host.Literal)
	}
	return fmt.Sprintf(fetchKeyTemplateConstant, source, spec.Branch, protocol)
}
