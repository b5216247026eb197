// Package paths decides which of a subpackage's candidate directories exists on disk.
package paths

import (
	"path/filepath"

	"github.com/temirov/subpkg/internal/repos/shared"
)

// Resolver tests candidate paths for existence. It never reads manifests and has no side effects.
type Resolver struct {
	FileSystem shared.FileSystem
}

// NewResolver constructs a Resolver.
func NewResolver(fileSystem shared.FileSystem) *Resolver {
	return &Resolver{FileSystem: fileSystem}
}

// Absolute normalizes a candidate against the base directory without touching disk.
func (resolver *Resolver) Absolute(baseDirectory string, candidate string) string {
	if filepath.IsAbs(candidate) {
		return filepath.Clean(candidate)
	}
	return filepath.Join(baseDirectory, candidate)
}

// Resolve returns the first candidate, in declared order, that exists as a directory.
// Later candidates are not consulted once one matches.
func (resolver *Resolver) Resolve(baseDirectory string, candidates []string) (string, bool) {
	for _, candidate := range candidates {
		absolutePath := resolver.Absolute(baseDirectory, candidate)
		if resolver.isDirectory(absolutePath) {
			return absolutePath, true
		}
	}
	return "", false
}

// Existing returns every candidate that exists as a directory, in declared order.
func (resolver *Resolver) Existing(baseDirectory string, candidates []string) []string {
	existingPaths := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		absolutePath := resolver.Absolute(baseDirectory, candidate)
		if resolver.isDirectory(absolutePath) {
			existingPaths = append(existingPaths, absolutePath)
		}
	}
	return existingPaths
}

// Canonical resolves symbolic links when the path exists and returns it unchanged otherwise.
func (resolver *Resolver) Canonical(path string) string {
	evaluatedPath, evaluationError := resolver.FileSystem.EvalSymlinks(path)
	if evaluationError != nil {
		return filepath.Clean(path)
	}
	return evaluatedPath
}

func (resolver *Resolver) isDirectory(path string) bool {
	fileInfo, statError := resolver.FileSystem.Stat(path)
	return statError == nil && fileInfo.IsDir()
}
