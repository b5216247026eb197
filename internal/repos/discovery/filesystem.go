package discovery

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/temirov/subpkg/internal/fetch"
)

const gitMetadataDirectoryNameConstant = ".git"

// PartialCloneDiscoverer locates staging directories left behind by interrupted clones.
type PartialCloneDiscoverer struct{}

// NewPartialCloneDiscoverer constructs a discoverer backed by filepath.WalkDir.
func NewPartialCloneDiscoverer() *PartialCloneDiscoverer {
	return &PartialCloneDiscoverer{}
}

// DiscoverPartialClones walks the provided roots and returns staging directories in lexical order.
// Git metadata and the contents of staging directories are not descended into.
func (discoverer *PartialCloneDiscoverer) DiscoverPartialClones(roots []string) ([]string, error) {
	seen := make(map[string]struct{})
	var stagingDirectories []string

	for _, root := range roots {
		walkError := filepath.WalkDir(root, func(path string, directoryEntry fs.DirEntry, walkError error) error {
			if walkError != nil {
				return nil
			}
			if !directoryEntry.IsDir() {
				return nil
			}
			if directoryEntry.Name() == gitMetadataDirectoryNameConstant {
				return fs.SkipDir
			}
			if !fetch.IsStagingPath(path) {
				return nil
			}

			if _, alreadySeen := seen[path]; !alreadySeen {
				seen[path] = struct{}{}
				stagingDirectories = append(stagingDirectories, path)
			}
			return fs.SkipDir
		})
		if walkError != nil {
			return nil, walkError
		}
	}

	sort.Strings(stagingDirectories)
	return stagingDirectories, nil
}
