package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/subpkg/internal/repos/filesystem"
)

func TestResolverPrefersFirstExistingCandidate(t *testing.T) {
	workspace := t.TempDir()
	projectDirectory := filepath.Join(workspace, "project")
	require.NoError(t, os.MkdirAll(projectDirectory, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, "build-aux"), 0o755))

	resolver := NewResolver(filesystem.OSFileSystem{})

	resolvedPath, found := resolver.Resolve(projectDirectory, []string{"build-aux", "../build-aux"})
	require.True(t, found)
	require.Equal(t, filepath.Join(workspace, "build-aux"), resolvedPath)

	require.NoError(t, os.MkdirAll(filepath.Join(projectDirectory, "build-aux"), 0o755))
	resolvedPath, found = resolver.Resolve(projectDirectory, []string{"build-aux", "../build-aux"})
	require.True(t, found)
	require.Equal(t, filepath.Join(projectDirectory, "build-aux"), resolvedPath)
	require.Equal(t,
		[]string{filepath.Join(projectDirectory, "build-aux"), filepath.Join(workspace, "build-aux")},
		resolver.Existing(projectDirectory, []string{"build-aux", "../build-aux"}),
	)
}

func TestResolverIgnoresMissingAndNonDirectoryCandidates(t *testing.T) {
	projectDirectory := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDirectory, "notes"), []byte("x"), 0o600))

	resolver := NewResolver(filesystem.OSFileSystem{})
	resolvedPath, found := resolver.Resolve(projectDirectory, []string{"missing", "notes"})
	require.False(t, found)
	require.Empty(t, resolvedPath)
	require.Empty(t, resolver.Existing(projectDirectory, []string{"missing", "notes"}))
}

func TestResolverAbsoluteAndCanonical(t *testing.T) {
	resolver := NewResolver(filesystem.OSFileSystem{})
	require.Equal(t, "/srv/project/vendor/lib", resolver.Absolute("/srv/project", "vendor/../vendor/lib"))
	require.Equal(t, "/opt/lib", resolver.Absolute("/srv/project", "/opt//lib"))

	workspace := t.TempDir()
	targetDirectory := filepath.Join(workspace, "target")
	linkPath := filepath.Join(workspace, "link")
	require.NoError(t, os.MkdirAll(targetDirectory, 0o755))
	require.NoError(t, os.Symlink(targetDirectory, linkPath))

	canonicalTarget, evaluationError := filepath.EvalSymlinks(targetDirectory)
	require.NoError(t, evaluationError)
	require.Equal(t, canonicalTarget, resolver.Canonical(linkPath))
	require.Equal(t, filepath.Join(workspace, "absent"), resolver.Canonical(filepath.Join(workspace, "absent")))
}
