package resolution

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/subpkg/internal/fetch"
	"github.com/temirov/subpkg/internal/gitrepo"
	"github.com/temirov/subpkg/internal/manifest"
	"github.com/temirov/subpkg/internal/mirrors"
	"github.com/temirov/subpkg/internal/paths"
)

const (
	pathKeyPrefixConstant                = "path:"
	schemeSeparatorConstant              = "://"
	scpSeparatorConstant                 = ":"
	pathSeparatorConstant                = "/"
	rootManifestErrorTemplateConstant    = "unable to load root manifest: %w"
	candidateExpansionErrorTemplate      = "unable to expand hosts: %v"
	selectionErrorTemplateConstant       = "mirror selection failed: %v"
	manifestLoaderMissingMessageConstant = "resolution builder requires a manifest loader"
	pathResolverMissingMessageConstant   = "resolution builder requires a path resolver"
	buildStartedMessageConstant          = "Building subpackage tree"
	buildCompletedMessageConstant        = "Built subpackage tree"
	pathAmbiguousMessageConstant         = "Several candidate paths exist; using the first"
	hostUnreachableMessageConstant       = "No mirror answered the probe; using the first declared host"
	fetchFailedMessageConstant           = "Subpackage fetch failed"
	childManifestFailedMessageConstant   = "Unable to load subpackage manifest"
	nodeResolvedMessageConstant          = "Resolved subpackage"
	alternativePathMessageConstant       = "Subpackage already resolved elsewhere in the tree"
	buildIDFieldConstant                 = "build_id"
	rootFieldConstant                    = "root"
	subpackageFieldConstant              = "subpackage"
	candidatesFieldConstant              = "candidates"
	hostsFieldConstant                   = "hosts"
	statusFieldConstant                  = "status"
	pathFieldConstant                    = "path"
	referenceFieldConstant               = "reference"
	targetPathFieldConstant              = "target_path"
	urlFieldConstant                     = "url"
	failureKindFieldConstant             = "failure_kind"
	fetchRequestedFieldConstant          = "fetch"
	recursiveFieldConstant               = "recursive"
	jobsFieldConstant                    = "jobs"
	nodesFieldConstant                   = "nodes"
	failuresFieldConstant                = "failures"
	failureFieldConstant                 = "failure"
	selectionFailureKindConstant         = "network"
)

// ErrManifestLoaderNotConfigured indicates a builder constructed without a manifest loader.
var ErrManifestLoaderNotConfigured = errors.New(manifestLoaderMissingMessageConstant)

// ErrPathResolverNotConfigured indicates a builder constructed without a path resolver.
var ErrPathResolverNotConfigured = errors.New(pathResolverMissingMessageConstant)

// ManifestLoader reads manifests from directories.
type ManifestLoader interface {
	Exists(directory string) bool
	Load(directory string) (manifest.Manifest, error)
}

// Fetcher clones subpackages.
type Fetcher interface {
	Fetch(executionContext context.Context, request fetch.Request) (fetch.Result, error)
}

// MetricsRecorder counts resolution and fetch outcomes.
type MetricsRecorder interface {
	RecordResolution(status string)
	RecordFetch(outcome string)
}

// Options controls one tree build.
type Options struct {
	FetchRequested bool
	Recursive      bool
	Protocol       gitrepo.TransportProtocol
	Shallow        bool
	ProbeTimeout   time.Duration
	Jobs           int
}

// Dependencies enumerates the builder's collaborators. Selector, Fetcher and Metrics are only
// required when fetching.
type Dependencies struct {
	ManifestLoader ManifestLoader
	PathResolver   *paths.Resolver
	Mirrors        mirrors.List
	Selector       mirrors.Selector
	Fetcher        Fetcher
	Metrics        MetricsRecorder
	Logger         *zap.Logger
}

// Builder resolves subpackage trees.
type Builder struct {
	manifestLoader ManifestLoader
	pathResolver   *paths.Resolver
	mirrorList     mirrors.List
	selector       mirrors.Selector
	fetcher        Fetcher
	metrics        MetricsRecorder
	logger         *zap.Logger
}

type buildState struct {
	cache      *Cache
	options    Options
	logger     *zap.Logger
	prefetcher *prefetcher
}

// NewBuilder validates dependencies and constructs a Builder.
func NewBuilder(builderDependencies Dependencies) (*Builder, error) {
	if builderDependencies.ManifestLoader == nil {
		return nil, ErrManifestLoaderNotConfigured
	}
	if builderDependencies.PathResolver == nil {
		return nil, ErrPathResolverNotConfigured
	}
	selector := builderDependencies.Selector
	if selector == nil {
		selector = mirrors.DirectSelector{}
	}
	logger := builderDependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		manifestLoader: builderDependencies.ManifestLoader,
		pathResolver:   builderDependencies.PathResolver,
		mirrorList:     builderDependencies.Mirrors,
		selector:       selector,
		fetcher:        builderDependencies.Fetcher,
		metrics:        builderDependencies.Metrics,
		logger:         logger,
	}, nil
}

// Build resolves the subpackages declared by the manifest in rootDirectory. Only a root manifest
// failure is returned as an error without a tree; per-node failures are recorded on the nodes.
// When the context ends the partial tree is returned together with the context error.
func (builder *Builder) Build(executionContext context.Context, rootDirectory string, options Options) (*Node, error) {
	rootManifest, loadError := builder.manifestLoader.Load(rootDirectory)
	if loadError != nil {
		return nil, fmt.Errorf(rootManifestErrorTemplateConstant, loadError)
	}
	return builder.BuildManifest(executionContext, rootManifest, options)
}

// BuildManifest resolves the subpackages of a root manifest the caller already loaded.
func (builder *Builder) BuildManifest(executionContext context.Context, rootManifest manifest.Manifest, options Options) (*Node, error) {
	if len(options.Protocol) == 0 {
		options.Protocol = gitrepo.TransportProtocolHTTP
	}

	state := &buildState{
		cache:   NewCache(),
		options: options,
		logger:  builder.logger.With(zap.String(buildIDFieldConstant, uuid.NewString())),
	}
	if stager, staging := builder.fetcher.(Stager); staging && options.FetchRequested && options.Jobs > 1 {
		state.prefetcher = newPrefetcher(stager, options.Jobs)
	}
	state.logger.Info(buildStartedMessageConstant,
		zap.String(rootFieldConstant, rootManifest.Directory),
		zap.Bool(fetchRequestedFieldConstant, options.FetchRequested),
		zap.Bool(recursiveFieldConstant, options.Recursive),
		zap.Int(jobsFieldConstant, options.Jobs),
	)

	rootNode := &Node{
		Name:       rootManifest.Project.Name,
		Status:     StatusAlreadyPresent,
		ChosenPath: rootManifest.Directory,
	}
	rootEntry, _ := state.cache.Claim([]string{pathKeyPrefixConstant + builder.pathResolver.Canonical(rootManifest.Directory)})
	state.cache.Complete(rootEntry, rootNode)

	builder.resolveChildren(executionContext, state, rootNode, rootManifest)
	state.prefetcher.finish(state.logger)

	summary := Summarize(rootNode)
	state.logger.Info(buildCompletedMessageConstant,
		zap.Int(nodesFieldConstant, summary.Total),
		zap.Int(failuresFieldConstant, summary.Failures()),
	)
	return rootNode, executionContext.Err()
}

func (builder *Builder) resolveChildren(executionContext context.Context, state *buildState, parentNode *Node, parentManifest manifest.Manifest) {
	builder.prefetchSiblings(executionContext, state, parentManifest)

	for _, spec := range parentManifest.Subpackages {
		if executionContext.Err() != nil {
			return
		}
		entry, claimed := state.cache.Claim(builder.identityKeys(parentManifest.Directory, spec))
		if !claimed {
			parentNode.Children = append(parentNode.Children, builder.reference(executionContext, state, parentManifest.Directory, spec, entry))
			continue
		}
		childNode := builder.resolve(executionContext, state, parentManifest.Directory, spec, entry)
		parentNode.Children = append(parentNode.Children, childNode)
		builder.descend(executionContext, state, childNode)
	}
}

// resolve determines the path and status of a claimed subpackage and completes its cache entry.
func (builder *Builder) resolve(executionContext context.Context, state *buildState, parentDirectory string, spec manifest.SubpackageSpec, entry *Entry) *Node {
	node := &Node{
		Name:        spec.Name,
		Branch:      spec.Branch,
		DeclaredURL: spec.DeclaredURL(),
	}
	defer func() {
		state.cache.Alias(entry, pathKeyPrefixConstant+builder.pathResolver.Canonical(node.ChosenPath))
		state.cache.Complete(entry, node)
		builder.recordResolution(node.Status)
		state.logger.Debug(nodeResolvedMessageConstant,
			zap.String(subpackageFieldConstant, node.Name),
			zap.String(statusFieldConstant, string(node.Status)),
			zap.String(pathFieldConstant, node.ChosenPath),
		)
	}()

	existingPaths := builder.pathResolver.Existing(parentDirectory, spec.CandidatePaths)
	if len(existingPaths) > 1 {
		node.AmbiguousPaths = existingPaths
		state.logger.Warn(pathAmbiguousMessageConstant,
			zap.String(subpackageFieldConstant, spec.Name),
			zap.Strings(candidatesFieldConstant, existingPaths),
		)
	}
	protocol := builder.protocolFor(state, spec)
	if len(existingPaths) > 0 {
		node.ChosenPath = existingPaths[0]
		node.Status = StatusAlreadyPresent
		node.ResolvedURL = builder.declaredCloneURL(parentDirectory, spec, protocol)
		return node
	}

	node.ChosenPath = builder.pathResolver.Absolute(parentDirectory, spec.CandidatePaths[0])
	if !state.options.FetchRequested || builder.fetcher == nil {
		node.Status = StatusPendingFetch
		node.ResolvedURL = builder.declaredCloneURL(parentDirectory, spec, protocol)
		return node
	}

	builder.fetchInto(executionContext, state, parentDirectory, spec, protocol, node)
	return node
}

func (builder *Builder) fetchInto(executionContext context.Context, state *buildState, parentDirectory string, spec manifest.SubpackageSpec, protocol gitrepo.TransportProtocol, node *Node) {
	if pending := state.prefetcher.take(builder.fetchKey(parentDirectory, spec, protocol)); pending != nil {
		builder.commitPrefetched(executionContext, state, pending, node)
		return
	}

	source, failure := builder.selectSource(executionContext, state, parentDirectory, spec, protocol)
	if failure != nil {
		builder.markFailed(state, node, failure.kind, failure.message)
		return
	}
	source.applyTo(node)

	fetchResult, fetchError := builder.fetcher.Fetch(executionContext, fetch.Request{
		TargetPath:  node.ChosenPath,
		URL:         source.cloneURL,
		OfficialURL: source.officialURL,
		Branch:      spec.Branch,
		Protocol:    protocol,
		Shallow:     state.options.Shallow,
	})
	builder.applyFetchResult(state, node, source.cloneURL, fetchResult, fetchError)
}

// selectSource picks the clone URL for a subpackage, probing mirrors for host templates.
func (builder *Builder) selectSource(executionContext context.Context, state *buildState, parentDirectory string, spec manifest.SubpackageSpec, protocol gitrepo.TransportProtocol) (selectedSource, *sourceFailure) {
	cloneURL := literalCloneURL(parentDirectory, spec.Host.Literal)
	if !spec.Host.IsTemplate() {
		return selectedSource{cloneURL: cloneURL, officialURL: cloneURL}, nil
	}

	candidates, candidatesError := builder.mirrorList.Candidates(spec.Host, protocol)
	if candidatesError != nil {
		return selectedSource{}, &sourceFailure{kind: selectionFailureKindConstant, message: fmt.Sprintf(candidateExpansionErrorTemplate, candidatesError)}
	}
	selection, selectionError := builder.selector.SelectHost(executionContext, candidates, state.options.ProbeTimeout)
	if selectionError != nil {
		kind := selectionFailureKindConstant
		if errors.Is(selectionError, context.Canceled) || errors.Is(selectionError, context.DeadlineExceeded) {
			kind = string(fetch.FailureKindCanceled)
		}
		return selectedSource{}, &sourceFailure{kind: kind, message: fmt.Sprintf(selectionErrorTemplateConstant, selectionError)}
	}
	if selection.Fallback {
		state.logger.Warn(hostUnreachableMessageConstant,
			zap.String(subpackageFieldConstant, spec.Name),
			zap.Strings(hostsFieldConstant, spec.Host.Hosts),
		)
	}
	return selectedSource{
		cloneURL:    selection.Candidate.URL,
		officialURL: candidates[0].URL,
		host:        selection.Candidate.Host,
		mirror:      selection.Candidate.Mirror,
		fallback:    selection.Fallback,
	}, nil
}

func (builder *Builder) applyFetchResult(state *buildState, node *Node, cloneURL string, fetchResult fetch.Result, fetchError error) {
	node.ResolvedURL = fetchResult.URL
	if len(node.ResolvedURL) == 0 {
		node.ResolvedURL = cloneURL
	}
	builder.recordFetch(fetchResult.Outcome)

	switch {
	case fetchError != nil:
		kind := selectionFailureKindConstant
		var typedError fetch.Error
		if errors.As(fetchError, &typedError) {
			kind = string(typedError.Kind)
		}
		builder.markFailed(state, node, kind, fetchError.Error())
	case fetchResult.Outcome == fetch.OutcomeAlreadyPresent:
		node.Status = StatusAlreadyPresent
	default:
		node.Status = StatusFetched
	}
}

func (builder *Builder) markFailed(state *buildState, node *Node, kind string, message string) {
	node.Status = StatusFetchFailed
	node.FailureKind = kind
	node.Failure = message
	state.logger.Error(fetchFailedMessageConstant,
		zap.String(subpackageFieldConstant, node.Name),
		zap.String(targetPathFieldConstant, node.ChosenPath),
		zap.String(urlFieldConstant, node.DeclaredURL),
		zap.String(failureKindFieldConstant, kind),
		zap.String(failureFieldConstant, message),
	)
}

// reference builds the alternative-path node for a subpackage already claimed elsewhere.
func (builder *Builder) reference(executionContext context.Context, state *buildState, parentDirectory string, spec manifest.SubpackageSpec, entry *Entry) *Node {
	node := &Node{
		Name:        spec.Name,
		Branch:      spec.Branch,
		DeclaredURL: spec.DeclaredURL(),
		Status:      StatusAlternativePath,
	}
	if existingPath, found := builder.pathResolver.Resolve(parentDirectory, spec.CandidatePaths); found {
		node.ChosenPath = existingPath
	} else {
		node.ChosenPath = builder.pathResolver.Absolute(parentDirectory, spec.CandidatePaths[0])
	}

	referencedNode, waitError := state.cache.Wait(executionContext, entry)
	if waitError == nil && referencedNode != nil {
		node.ReferencePath = referencedNode.ChosenPath
		node.ResolvedURL = referencedNode.ResolvedURL
		node.ResolvedHost = referencedNode.ResolvedHost
		node.ResolvedMirror = referencedNode.ResolvedMirror
	}
	builder.recordResolution(node.Status)
	state.logger.Debug(alternativePathMessageConstant,
		zap.String(subpackageFieldConstant, spec.Name),
		zap.String(pathFieldConstant, node.ChosenPath),
		zap.String(referenceFieldConstant, node.ReferencePath),
	)
	return node
}

// descend resolves the subpackages of a present node when recursion is enabled and it has a manifest.
func (builder *Builder) descend(executionContext context.Context, state *buildState, node *Node) {
	if !state.options.Recursive || node == nil {
		return
	}
	if node.Status != StatusAlreadyPresent && node.Status != StatusFetched {
		return
	}
	if !builder.manifestLoader.Exists(node.ChosenPath) {
		return
	}
	childManifest, loadError := builder.manifestLoader.Load(node.ChosenPath)
	if loadError != nil {
		node.ManifestFailure = loadError.Error()
		state.logger.Warn(childManifestFailedMessageConstant,
			zap.String(subpackageFieldConstant, node.Name),
			zap.String(pathFieldConstant, node.ChosenPath),
			zap.Error(loadError),
		)
		return
	}
	builder.resolveChildren(executionContext, state, node, childManifest)
}

// identityKeys returns the key of the first existing candidate path, or the declared URL key when
// no candidate exists yet. Distinct checkouts of the same URL stay distinct subpackages.
func (builder *Builder) identityKeys(parentDirectory string, spec manifest.SubpackageSpec) []string {
	if existingPath, found := builder.pathResolver.Resolve(parentDirectory, spec.CandidatePaths); found {
		return []string{pathKeyPrefixConstant + builder.pathResolver.Canonical(existingPath)}
	}
	return []string{spec.Identity()}
}

func (builder *Builder) protocolFor(state *buildState, spec manifest.SubpackageSpec) gitrepo.TransportProtocol {
	if len(spec.Protocol) > 0 {
		return spec.Protocol
	}
	return state.options.Protocol
}

// declaredCloneURL returns the URL a fetch would start from without probing any host.
func (builder *Builder) declaredCloneURL(parentDirectory string, spec manifest.SubpackageSpec, protocol gitrepo.TransportProtocol) string {
	if !spec.Host.IsTemplate() {
		return gitrepo.TranslateProtocol(literalCloneURL(parentDirectory, spec.Host.Literal), protocol)
	}
	officialURL, officialError := builder.mirrorList.OfficialURL(spec.Host, protocol)
	if officialError != nil {
		return spec.DeclaredURL()
	}
	return officialURL
}

func (builder *Builder) recordResolution(status Status) {
	if builder.metrics != nil {
		builder.metrics.RecordResolution(string(status))
	}
}

func (builder *Builder) recordFetch(outcome fetch.Outcome) {
	if builder.metrics != nil && len(outcome) > 0 {
		builder.metrics.RecordFetch(string(outcome))
	}
}

// literalCloneURL anchors relative filesystem remotes at the declaring manifest's directory.
func literalCloneURL(parentDirectory string, literal string) string {
	if len(literal) == 0 || strings.Contains(literal, schemeSeparatorConstant) || filepath.IsAbs(literal) {
		return literal
	}
	colonIndex := strings.Index(literal, scpSeparatorConstant)
	slashIndex := strings.Index(literal, pathSeparatorConstant)
	if colonIndex > 0 && (slashIndex == -1 || colonIndex < slashIndex) {
		return literal
	}
	return filepath.Join(parentDirectory, literal)
}
