package discovery_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/subpkg/internal/repos/discovery"
)

const directoryPermissions = 0o755

func TestDiscoverPartialClones(testInstance *testing.T) {
	rootDirectory := testInstance.TempDir()
	directories := []string{
		filepath.Join("deps", ".lib.subpkg-partial-0b5c"),
		filepath.Join("deps", ".lib.subpkg-partial-0b5c", "nested", ".inner.subpkg-partial-ffff"),
		filepath.Join("deps", "util", "vendor", ".zlib.subpkg-partial-1a2b"),
		filepath.Join("deps", "util", ".git", ".ignored.subpkg-partial-9999"),
		filepath.Join("deps", "complete"),
	}
	for _, directory := range directories {
		require.NoError(testInstance, os.MkdirAll(filepath.Join(rootDirectory, directory), directoryPermissions))
	}
	require.NoError(testInstance, os.WriteFile(filepath.Join(rootDirectory, "deps", ".file.subpkg-partial-file"), []byte("x"), 0o600))

	testCases := []struct {
		name     string
		roots    []string
		expected []string
	}{
		{
			name:  "single root",
			roots: []string{rootDirectory},
			expected: []string{
				filepath.Join(rootDirectory, "deps", ".lib.subpkg-partial-0b5c"),
				filepath.Join(rootDirectory, "deps", "util", "vendor", ".zlib.subpkg-partial-1a2b"),
			},
		},
		{
			name:  "overlapping roots",
			roots: []string{rootDirectory, filepath.Join(rootDirectory, "deps", "util")},
			expected: []string{
				filepath.Join(rootDirectory, "deps", ".lib.subpkg-partial-0b5c"),
				filepath.Join(rootDirectory, "deps", "util", "vendor", ".zlib.subpkg-partial-1a2b"),
			},
		},
		{
			name:     "missing root",
			roots:    []string{filepath.Join(rootDirectory, "absent")},
			expected: nil,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			discovered, discoveryError := discovery.NewPartialCloneDiscoverer().DiscoverPartialClones(testCase.roots)
			require.NoError(subtest, discoveryError)
			require.Equal(subtest, testCase.expected, discovered)
		})
	}
}
