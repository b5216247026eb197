package resolution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/subpkg/internal/fetch"
	"github.com/temirov/subpkg/internal/manifest"
	"github.com/temirov/subpkg/internal/mirrors"
	"github.com/temirov/subpkg/internal/paths"
	"github.com/temirov/subpkg/internal/repos/filesystem"
)

const testManifestNameConstant = "repo.json"

type stubFetcher struct {
	mutex     sync.Mutex
	requests  []fetch.Request
	manifests map[string]string
	failing   map[string]bool
	discarded []string
}

func (fetcher *stubFetcher) Stage(_ context.Context, request fetch.Request) (fetch.Staged, error) {
	fetcher.mutex.Lock()
	fetcher.requests = append(fetcher.requests, request)
	fetcher.mutex.Unlock()

	baseName := filepath.Base(request.TargetPath)
	if fetcher.failing[baseName] {
		return fetch.Staged{Request: request}, fetch.Error{Kind: fetch.FailureKindInvalidRef, TargetPath: request.TargetPath, URL: request.URL, Cause: errors.New("remote branch missing")}
	}
	stagingPath := fetch.StagingPath(request.TargetPath)
	if mkdirError := os.MkdirAll(stagingPath, 0o755); mkdirError != nil {
		return fetch.Staged{Request: request}, mkdirError
	}
	if content, hasManifest := fetcher.manifests[baseName]; hasManifest {
		if writeError := os.WriteFile(filepath.Join(stagingPath, testManifestNameConstant), []byte(content), 0o600); writeError != nil {
			return fetch.Staged{Request: request}, writeError
		}
	}
	return fetch.Staged{Request: request, StagingPath: stagingPath}, nil
}

func (fetcher *stubFetcher) Commit(_ context.Context, staged fetch.Staged, targetPath string) (fetch.Result, error) {
	if _, statError := os.Stat(targetPath); statError == nil {
		fetcher.Discard(staged)
		return fetch.Result{Outcome: fetch.OutcomeAlreadyPresent, TargetPath: targetPath, URL: staged.Request.URL}, nil
	}
	if mkdirError := os.MkdirAll(filepath.Dir(targetPath), 0o755); mkdirError != nil {
		return fetch.Result{}, mkdirError
	}
	if renameError := os.Rename(staged.StagingPath, targetPath); renameError != nil {
		return fetch.Result{}, renameError
	}
	return fetch.Result{Outcome: fetch.OutcomeCloned, TargetPath: targetPath, URL: staged.Request.URL}, nil
}

func (fetcher *stubFetcher) Discard(staged fetch.Staged) {
	fetcher.mutex.Lock()
	fetcher.discarded = append(fetcher.discarded, staged.StagingPath)
	fetcher.mutex.Unlock()
	_ = os.RemoveAll(staged.StagingPath)
}

func (fetcher *stubFetcher) Fetch(executionContext context.Context, request fetch.Request) (fetch.Result, error) {
	staged, stageError := fetcher.Stage(executionContext, request)
	if stageError != nil {
		return fetch.Result{Outcome: fetch.OutcomeFailed, TargetPath: request.TargetPath, URL: request.URL}, stageError
	}
	return fetcher.Commit(executionContext, staged, request.TargetPath)
}

func (fetcher *stubFetcher) requestsFor(baseName string) []fetch.Request {
	fetcher.mutex.Lock()
	defer fetcher.mutex.Unlock()
	matching := make([]fetch.Request, 0)
	for _, request := range fetcher.requests {
		if filepath.Base(request.TargetPath) == baseName {
			matching = append(matching, request)
		}
	}
	return matching
}

type latencyProber struct {
	latencies map[string]time.Duration
}

func (prober latencyProber) Probe(probeContext context.Context, candidate mirrors.Candidate) (time.Duration, error) {
	latency, reachable := prober.latencies[candidate.Host]
	if !reachable {
		<-probeContext.Done()
		return 0, probeContext.Err()
	}
	return latency, nil
}

type countingMetrics struct {
	mutex       sync.Mutex
	resolutions map[string]int
	fetches     map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{resolutions: map[string]int{}, fetches: map[string]int{}}
}

func (recorder *countingMetrics) RecordResolution(status string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.resolutions[status]++
}

func (recorder *countingMetrics) RecordFetch(outcome string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.fetches[outcome]++
}

func writeProjectManifest(t *testing.T, directory string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(directory, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(directory, testManifestNameConstant), []byte(content), 0o600))
}

func newTestBuilder(t *testing.T, fetcher Fetcher, selector mirrors.Selector, logger *zap.Logger, metrics MetricsRecorder) *Builder {
	t.Helper()
	fileSystem := filesystem.OSFileSystem{}
	builder, creationError := NewBuilder(Dependencies{
		ManifestLoader: manifest.NewLoader(fileSystem, nil),
		PathResolver:   paths.NewResolver(fileSystem),
		Selector:       selector,
		Fetcher:        fetcher,
		Metrics:        metrics,
		Logger:         logger,
	})
	require.NoError(t, creationError)
	return builder
}

func canonicalTempDir(t *testing.T) string {
	t.Helper()
	directory, evaluationError := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, evaluationError)
	return directory
}

func TestNewBuilderValidatesDependencies(t *testing.T) {
	_, loaderError := NewBuilder(Dependencies{PathResolver: paths.NewResolver(filesystem.OSFileSystem{})})
	require.ErrorIs(t, loaderError, ErrManifestLoaderNotConfigured)

	_, resolverError := NewBuilder(Dependencies{ManifestLoader: manifest.NewLoader(filesystem.OSFileSystem{}, nil)})
	require.ErrorIs(t, resolverError, ErrPathResolverNotConfigured)
}

func TestBuildPrefersExistingAlternativeCandidate(t *testing.T) {
	workspace := canonicalTempDir(t)
	projectDirectory := filepath.Join(workspace, "project")
	writeProjectManifest(t, projectDirectory, `{"name": "project", "subpackages": {"build-aux": {"path": ["build-aux", "../build-aux"], "url": "cppp-project/build-aux@github"}}}`)
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, "build-aux"), 0o755))

	fetcher := &stubFetcher{}
	root, buildError := newTestBuilder(t, fetcher, nil, nil, nil).Build(context.Background(), projectDirectory, Options{Recursive: true})
	require.NoError(t, buildError)
	require.Equal(t, "project", root.Name)
	require.Len(t, root.Children, 1)
	require.Equal(t, StatusAlreadyPresent, root.Children[0].Status)
	require.Equal(t, filepath.Join(workspace, "build-aux"), root.Children[0].ChosenPath)
	require.Empty(t, fetcher.requests)
}

func TestBuildDefaultsAbsentSubpackageToFirstCandidate(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"subpackages": {"lib": {"path": ["vendor/lib", "../lib"], "url": "https://example.com/acme/lib.git", "branch": "stable"}}}`)

	fetcher := &stubFetcher{}
	root, buildError := newTestBuilder(t, fetcher, nil, nil, nil).Build(context.Background(), projectDirectory, Options{Recursive: true, Protocol: "ssh"})
	require.NoError(t, buildError)

	node := root.Children[0]
	require.Equal(t, StatusPendingFetch, node.Status)
	require.Equal(t, filepath.Join(projectDirectory, "vendor", "lib"), node.ChosenPath)
	require.Equal(t, "git@example.com:acme/lib.git", node.ResolvedURL)
	require.Equal(t, "stable", node.Branch)
	require.Empty(t, fetcher.requests)
}

func TestBuildFetchesFromFastestMirror(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"subpackages": {"cppp-reiconv": {"path": "cppp-reiconv", "url": "cppp-project/cppp-reiconv@gh.example,mirror.example"}}}`)

	fetcher := &stubFetcher{}
	selector := &mirrors.ParallelSelector{Prober: latencyProber{latencies: map[string]time.Duration{"gh.example": 80 * time.Millisecond, "mirror.example": 5 * time.Millisecond}}}
	metrics := newCountingMetrics()
	root, buildError := newTestBuilder(t, fetcher, selector, nil, metrics).Build(context.Background(), projectDirectory, Options{FetchRequested: true, Recursive: true, Shallow: true, ProbeTimeout: time.Second})
	require.NoError(t, buildError)

	node := root.Children[0]
	require.Equal(t, StatusFetched, node.Status)
	require.Equal(t, "mirror.example", node.ResolvedHost)
	require.Equal(t, "https://mirror.example/cppp-project/cppp-reiconv.git", node.ResolvedURL)

	requests := fetcher.requestsFor("cppp-reiconv")
	require.Len(t, requests, 1)
	require.Equal(t, "https://mirror.example/cppp-project/cppp-reiconv.git", requests[0].URL)
	require.Equal(t, "https://gh.example/cppp-project/cppp-reiconv.git", requests[0].OfficialURL)
	require.Equal(t, "main", requests[0].Branch)
	require.True(t, requests[0].Shallow)
	require.Equal(t, 1, metrics.fetches["cloned"])
	require.Equal(t, 1, metrics.resolutions["fetched"])
}

func TestBuildFallsBackWhenNoMirrorAnswers(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"subpackages": {"widget": {"path": "widget", "url": "acme/widget@h1.example,h2.example"}}}`)

	observerCore, observedLogs := observer.New(zapcore.WarnLevel)
	fetcher := &stubFetcher{}
	selector := &mirrors.ParallelSelector{Prober: latencyProber{latencies: map[string]time.Duration{}}}
	root, buildError := newTestBuilder(t, fetcher, selector, zap.New(observerCore), nil).Build(context.Background(), projectDirectory, Options{FetchRequested: true, ProbeTimeout: 10 * time.Millisecond})
	require.NoError(t, buildError)

	node := root.Children[0]
	require.Equal(t, StatusFetched, node.Status)
	require.True(t, node.HostFallback)
	require.Equal(t, "https://h1.example/acme/widget.git", node.ResolvedURL)

	warnings := observedLogs.FilterField(zap.String("subpackage", "widget")).All()
	require.Len(t, warnings, 1)
	require.Equal(t, []interface{}{"h1.example", "h2.example"}, warnings[0].ContextMap()["hosts"])
}

func sharedDependencyManifests(t *testing.T, projectDirectory string) map[string]string {
	t.Helper()
	writeProjectManifest(t, projectDirectory, `{"name": "root", "subpackages": {
		"alpha":  {"path": "alpha", "url": "acme/alpha@github.com"},
		"shared": {"path": "shared", "url": "acme/shared@github.com"},
		"beta": {"path": "beta", "url": "acme/beta@github.com"}
	}}`)
	return map[string]string{
		"alpha": `{"name": "alpha", "subpackages": {"shared": {"path": ["../shared"], "url": "acme/shared@github.com"}}}`,
		"beta":  `{"name": "beta", "subpackages": {"shared-copy": {"path": ["vendor/shared", "../shared"], "url": "https://mirror.example/acme/shared.git"}}}`,
	}
}

func TestBuildFetchesSharedSubpackageOnce(t *testing.T) {
	testCases := []struct {
		name string
		jobs int
	}{
		{name: "sequential", jobs: 1},
		{name: "parallel_siblings", jobs: 4},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			projectDirectory := canonicalTempDir(t)
			fetcher := &stubFetcher{manifests: sharedDependencyManifests(t, projectDirectory)}

			root, buildError := newTestBuilder(t, fetcher, nil, nil, nil).Build(context.Background(), projectDirectory, Options{FetchRequested: true, Recursive: true, Jobs: testCase.jobs})
			require.NoError(t, buildError)
			require.Len(t, fetcher.requestsFor("shared"), 1)

			owners := 0
			references := make([]*Node, 0)
			Walk(root, func(node *Node, depth int) {
				if depth == 0 || (node.Name != "shared" && node.Name != "shared-copy") {
					return
				}
				switch node.Status {
				case StatusFetched, StatusAlreadyPresent:
					owners++
				case StatusAlternativePath:
					references = append(references, node)
				}
			})
			require.Equal(t, 1, owners)
			require.Len(t, references, 2)
			for _, reference := range references {
				require.Equal(t, filepath.Join(projectDirectory, "shared"), reference.ReferencePath)
				require.Empty(t, reference.Children)
			}

			require.Equal(t, []string{"alpha", "shared", "beta"}, []string{root.Children[0].Name, root.Children[1].Name, root.Children[2].Name})
		})
	}
}

func TestBuildDepthFirstOrderDecidesOwner(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	fetcher := &stubFetcher{manifests: sharedDependencyManifests(t, projectDirectory)}

	root, buildError := newTestBuilder(t, fetcher, nil, nil, nil).Build(context.Background(), projectDirectory, Options{FetchRequested: true, Recursive: true})
	require.NoError(t, buildError)

	alphaShared := root.Children[0].Children[0]
	require.Equal(t, StatusFetched, alphaShared.Status)
	require.Equal(t, filepath.Join(projectDirectory, "shared"), alphaShared.ChosenPath)
	require.Equal(t, StatusAlternativePath, root.Children[1].Status)
	require.Equal(t, filepath.Join(projectDirectory, "shared"), root.Children[2].Children[0].ChosenPath)
}

func treeOutline(t *testing.T, projectDirectory string, root *Node) []string {
	t.Helper()
	outline := make([]string, 0)
	Walk(root, func(node *Node, depth int) {
		chosenPath, relativeError := filepath.Rel(projectDirectory, node.ChosenPath)
		require.NoError(t, relativeError)
		outline = append(outline, fmt.Sprintf("%d %s %s %s %s", depth, node.Name, node.Status, chosenPath, node.ReferencePath != ""))
	})
	return outline
}

func TestBuildTreeDoesNotDependOnJobs(t *testing.T) {
	outlines := make(map[int][]string)
	for _, jobs := range []int{1, 4} {
		projectDirectory := canonicalTempDir(t)
		fetcher := &stubFetcher{manifests: sharedDependencyManifests(t, projectDirectory)}

		root, buildError := newTestBuilder(t, fetcher, nil, nil, nil).Build(context.Background(), projectDirectory, Options{FetchRequested: true, Recursive: true, Jobs: jobs})
		require.NoError(t, buildError)
		outlines[jobs] = treeOutline(t, projectDirectory, root)
	}

	require.Equal(t, []string{
		"0 root already-present . false",
		"1 alpha fetched alpha false",
		"2 shared fetched shared false",
		"1 shared alternative-path shared true",
		"1 beta fetched beta false",
		"2 shared-copy alternative-path shared true",
	}, outlines[1])
	require.Equal(t, outlines[1], outlines[4])
}

func TestBuildCommitsStagedCloneWhereTheWalkNeedsIt(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"name": "root", "subpackages": {
		"alpha": {"path": "alpha", "url": "acme/alpha@github.com"},
		"lib":   {"path": "lib", "url": "acme/lib@github.com"}
	}}`)
	fetcher := &stubFetcher{manifests: map[string]string{
		"alpha": `{"name": "alpha", "subpackages": {"lib": {"path": "vendor/lib", "url": "acme/lib@github.com"}}}`,
	}}

	root, buildError := newTestBuilder(t, fetcher, nil, nil, nil).Build(context.Background(), projectDirectory, Options{FetchRequested: true, Recursive: true, Jobs: 4})
	require.NoError(t, buildError)

	alphaLib := root.Children[0].Children[0]
	require.Equal(t, StatusFetched, alphaLib.Status)
	require.Equal(t, filepath.Join(projectDirectory, "alpha", "vendor", "lib"), alphaLib.ChosenPath)
	require.Equal(t, StatusAlternativePath, root.Children[1].Status)
	require.Equal(t, alphaLib.ChosenPath, root.Children[1].ReferencePath)

	require.NoDirExists(t, filepath.Join(projectDirectory, "lib"))
	require.Empty(t, fetcher.discarded)
	entries, readError := os.ReadDir(projectDirectory)
	require.NoError(t, readError)
	for _, entry := range entries {
		require.False(t, fetch.IsStagingPath(entry.Name()), entry.Name())
	}
}

func TestBuildDiscardsStagedClonesTheWalkNeverUses(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"name": "root", "subpackages": {
		"alpha": {"path": "alpha", "url": "acme/alpha@github.com"},
		"lib":   {"path": "lib", "url": "acme/lib@github.com"}
	}}`)
	fetcher := &stubFetcher{manifests: map[string]string{
		"alpha": `{"name": "alpha", "subpackages": {"lib-fork": {"path": "../lib", "url": "forks/lib@github.com"}}}`,
	}}

	root, buildError := newTestBuilder(t, fetcher, nil, nil, nil).Build(context.Background(), projectDirectory, Options{FetchRequested: true, Recursive: true, Jobs: 4})
	require.NoError(t, buildError)

	fork := root.Children[0].Children[0]
	require.Equal(t, StatusFetched, fork.Status)
	require.Equal(t, filepath.Join(projectDirectory, "lib"), fork.ChosenPath)
	require.Equal(t, StatusAlternativePath, root.Children[1].Status)

	require.Len(t, fetcher.discarded, 1)
	require.NoDirExists(t, fetcher.discarded[0])
}

func TestBuildKeepsDistinctCheckoutsOfOneURL(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"name": "root", "subpackages": {
		"lib": {"path": "lib", "url": "acme/lib@github.com"},
		"tool": {"path": "tool", "url": "acme/tool@github.com"}
	}}`)
	require.NoError(t, os.MkdirAll(filepath.Join(projectDirectory, "lib"), 0o755))
	writeProjectManifest(t, filepath.Join(projectDirectory, "tool"), `{"name": "tool", "subpackages": {"lib": {"path": "vendor/lib", "url": "acme/lib@github.com"}}}`)
	writeProjectManifest(t, filepath.Join(projectDirectory, "tool", "vendor", "lib"), `{"name": "lib", "subpackages": {"zlib": {"path": "zlib", "url": "acme/zlib@github.com"}}}`)

	root, buildError := newTestBuilder(t, &stubFetcher{}, nil, nil, nil).Build(context.Background(), projectDirectory, Options{Recursive: true})
	require.NoError(t, buildError)

	require.Equal(t, StatusAlreadyPresent, root.Children[0].Status)
	vendoredLib := root.Children[1].Children[0]
	require.Equal(t, StatusAlreadyPresent, vendoredLib.Status)
	require.Equal(t, filepath.Join(projectDirectory, "tool", "vendor", "lib"), vendoredLib.ChosenPath)
	require.Empty(t, vendoredLib.ReferencePath)
	require.Len(t, vendoredLib.Children, 1)
	require.Equal(t, StatusPendingFetch, vendoredLib.Children[0].Status)
}

func TestBuildTreatsAbsentCopiesOfOneURLAsOneSubpackage(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"name": "root", "subpackages": {
		"lib": {"path": "lib", "url": "acme/lib@github.com"},
		"lib-copy": {"path": "third_party/lib", "url": "acme/lib@github.com"}
	}}`)

	root, buildError := newTestBuilder(t, &stubFetcher{}, nil, nil, nil).Build(context.Background(), projectDirectory, Options{})
	require.NoError(t, buildError)

	require.Equal(t, StatusPendingFetch, root.Children[0].Status)
	require.Equal(t, StatusAlternativePath, root.Children[1].Status)
	require.Equal(t, filepath.Join(projectDirectory, "lib"), root.Children[1].ReferencePath)
}

func TestBuildTerminatesOnCycles(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"name": "root", "subpackages": {"a": {"path": "a", "url": "acme/a@github.com"}}}`)
	writeProjectManifest(t, filepath.Join(projectDirectory, "a"), `{"name": "a", "subpackages": {"b": {"path": "../b", "url": "acme/b@github.com"}, "root": {"path": "..", "url": "acme/root@github.com"}}}`)
	writeProjectManifest(t, filepath.Join(projectDirectory, "b"), `{"name": "b", "subpackages": {"a": {"path": "../a", "url": "acme/a@github.com"}}}`)

	root, buildError := newTestBuilder(t, &stubFetcher{}, nil, nil, nil).Build(context.Background(), projectDirectory, Options{Recursive: true})
	require.NoError(t, buildError)

	nodeA := root.Children[0]
	require.Equal(t, StatusAlreadyPresent, nodeA.Status)
	require.Len(t, nodeA.Children, 2)

	nodeB := nodeA.Children[0]
	require.Equal(t, StatusAlreadyPresent, nodeB.Status)
	require.Len(t, nodeB.Children, 1)
	require.Equal(t, StatusAlternativePath, nodeB.Children[0].Status)
	require.Equal(t, filepath.Join(projectDirectory, "a"), nodeB.Children[0].ReferencePath)

	backToRoot := nodeA.Children[1]
	require.Equal(t, StatusAlternativePath, backToRoot.Status)
	require.Equal(t, projectDirectory, backToRoot.ReferencePath)

	require.Equal(t, 4, Summarize(root).Total)
}

func TestBuildContainsFailuresToTheirNode(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"subpackages": {
		"broken": {"path": "broken", "url": "https://example.com/broken.git", "branch": "missing"},
		"healthy": {"path": "healthy", "url": "https://example.com/healthy.git"}
	}}`)

	observerCore, observedLogs := observer.New(zapcore.ErrorLevel)
	fetcher := &stubFetcher{failing: map[string]bool{"broken": true}}
	root, buildError := newTestBuilder(t, fetcher, nil, zap.New(observerCore), nil).Build(context.Background(), projectDirectory, Options{FetchRequested: true, Recursive: true})
	require.NoError(t, buildError)

	require.Equal(t, StatusFetchFailed, root.Children[0].Status)
	require.Equal(t, "invalid-ref", root.Children[0].FailureKind)
	require.Contains(t, root.Children[0].Failure, "remote branch missing")
	require.Equal(t, StatusFetched, root.Children[1].Status)
	require.Equal(t, 1, Summarize(root).Failures())

	require.Equal(t, 1, observedLogs.Len())
	require.Equal(t, "broken", observedLogs.All()[0].ContextMap()["subpackage"])
}

func TestBuildRecordsChildManifestFailures(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"subpackages": {"odd": {"path": "odd", "url": "https://example.com/odd.git"}, "fine": {"path": "fine", "url": "https://example.com/fine.git"}}}`)
	writeProjectManifest(t, filepath.Join(projectDirectory, "odd"), `{"subpackages": {"nourl": {"path": "x"}}}`)
	require.NoError(t, os.MkdirAll(filepath.Join(projectDirectory, "fine"), 0o755))

	root, buildError := newTestBuilder(t, &stubFetcher{}, nil, nil, nil).Build(context.Background(), projectDirectory, Options{Recursive: true})
	require.NoError(t, buildError)
	require.NotEmpty(t, root.Children[0].ManifestFailure)
	require.Equal(t, StatusAlreadyPresent, root.Children[1].Status)
	require.Empty(t, root.Children[1].Children)
}

func TestBuildWarnsAboutAmbiguousPaths(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	writeProjectManifest(t, projectDirectory, `{"subpackages": {"dup": {"path": ["first", "second"], "url": "https://example.com/dup.git"}}}`)
	require.NoError(t, os.MkdirAll(filepath.Join(projectDirectory, "first"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(projectDirectory, "second"), 0o755))

	observerCore, observedLogs := observer.New(zapcore.WarnLevel)
	root, buildError := newTestBuilder(t, &stubFetcher{}, nil, zap.New(observerCore), nil).Build(context.Background(), projectDirectory, Options{})
	require.NoError(t, buildError)

	node := root.Children[0]
	require.Equal(t, filepath.Join(projectDirectory, "first"), node.ChosenPath)
	require.Equal(t, []string{filepath.Join(projectDirectory, "first"), filepath.Join(projectDirectory, "second")}, node.AmbiguousPaths)
	require.Equal(t, 1, observedLogs.FilterField(zap.String("subpackage", "dup")).Len())
}

func TestBuildWithoutRecursionStopsAtFirstLevel(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	fetcher := &stubFetcher{manifests: sharedDependencyManifests(t, projectDirectory)}

	root, buildError := newTestBuilder(t, fetcher, nil, nil, nil).Build(context.Background(), projectDirectory, Options{FetchRequested: true})
	require.NoError(t, buildError)
	require.Len(t, root.Children, 3)
	for _, child := range root.Children {
		require.Equal(t, StatusFetched, child.Status)
		require.Empty(t, child.Children)
	}
}

func TestBuildReportsRootManifestFailure(t *testing.T) {
	root, buildError := newTestBuilder(t, &stubFetcher{}, nil, nil, nil).Build(context.Background(), t.TempDir(), Options{})
	require.Nil(t, root)
	require.ErrorIs(t, buildError, manifest.ErrManifestNotFound)
}

func TestBuildReturnsPartialTreeOnCancellation(t *testing.T) {
	projectDirectory := canonicalTempDir(t)
	fetcher := &stubFetcher{manifests: sharedDependencyManifests(t, projectDirectory)}
	canceledContext, cancel := context.WithCancel(context.Background())
	cancel()

	root, buildError := newTestBuilder(t, fetcher, nil, nil, nil).Build(canceledContext, projectDirectory, Options{FetchRequested: true, Recursive: true})
	require.ErrorIs(t, buildError, context.Canceled)
	require.NotNil(t, root)
	require.Empty(t, root.Children)
	require.Empty(t, fetcher.requests)
}
