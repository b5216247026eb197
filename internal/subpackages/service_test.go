package subpackages_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/subpkg/internal/manifest"
	"github.com/temirov/subpkg/internal/paths"
	"github.com/temirov/subpkg/internal/repos/filesystem"
	"github.com/temirov/subpkg/internal/resolution"
	"github.com/temirov/subpkg/internal/subpackages"
)

type countingManifestLoader struct {
	mutex  sync.Mutex
	loader *manifest.Loader
	loads  map[string]int
}

func (counting *countingManifestLoader) Exists(directory string) bool {
	return counting.loader.Exists(directory)
}

func (counting *countingManifestLoader) Load(directory string) (manifest.Manifest, error) {
	counting.mutex.Lock()
	counting.loads[directory]++
	counting.mutex.Unlock()
	return counting.loader.Load(directory)
}

func TestServiceResolveLoadsRootManifestOnce(t *testing.T) {
	rootDirectory, evalError := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, evalError)
	require.NoError(t, os.WriteFile(filepath.Join(rootDirectory, testManifestFileNameConstant), []byte(testRootManifestConstant), 0o600))

	fileSystem := filesystem.OSFileSystem{}
	loader := &countingManifestLoader{loader: manifest.NewLoader(fileSystem, nil), loads: map[string]int{}}
	treeBuilder, builderError := resolution.NewBuilder(resolution.Dependencies{
		ManifestLoader: loader,
		PathResolver:   paths.NewResolver(fileSystem),
	})
	require.NoError(t, builderError)

	service, serviceError := subpackages.NewService(subpackages.ServiceDependencies{
		ManifestLoader: loader,
		TreeBuilder:    treeBuilder,
		ToolVersion:    "1.0.0",
	})
	require.NoError(t, serviceError)

	rootNode, resolveError := service.Resolve(context.Background(), rootDirectory, resolution.Options{Recursive: true})
	require.NoError(t, resolveError)
	require.Len(t, rootNode.Children, 1)
	require.Equal(t, resolution.StatusPendingFetch, rootNode.Children[0].Status)
	require.Equal(t, map[string]int{rootDirectory: 1}, loader.loads)
}
