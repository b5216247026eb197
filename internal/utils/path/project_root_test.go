package pathutils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHomeExpanderExpand(t *testing.T) {
	expander := NewHomeExpanderWithProvider(func() (string, error) { return "/home/tester", nil })

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "tilde_only", input: "~", expected: "/home/tester"},
		{name: "tilde_prefix", input: "~/projects/app", expected: filepath.Join("/home/tester", "projects/app")},
		{name: "absolute_path", input: "/srv/app", expected: "/srv/app"},
		{name: "other_user", input: "~other/app", expected: "~other/app"},
		{name: "empty", input: "", expected: ""},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.expected, expander.Expand(testCase.input))
		})
	}
}

func TestHomeExpanderLeavesPathWhenHomeUnavailable(t *testing.T) {
	expander := NewHomeExpanderWithProvider(func() (string, error) { return "", errors.New("no home") })
	require.Equal(t, "~/app", expander.Expand("~/app"))
}

func TestProjectRootResolverResolve(t *testing.T) {
	homeDirectory := t.TempDir()
	workingDirectory := t.TempDir()
	projectDirectory := filepath.Join(homeDirectory, "project")
	require.NoError(t, os.MkdirAll(projectDirectory, 0o755))
	regularFile := filepath.Join(workingDirectory, "file.txt")
	require.NoError(t, os.WriteFile(regularFile, []byte("x"), 0o600))

	resolver := NewProjectRootResolverWithProviders(
		func() (string, error) { return homeDirectory, nil },
		func() (string, error) { return workingDirectory, nil },
	)

	resolvedHomeRoot, homeError := resolver.Resolve("~/project")
	require.NoError(t, homeError)
	require.Equal(t, projectDirectory, resolvedHomeRoot)

	resolvedDefaultRoot, defaultError := resolver.Resolve("  ")
	require.NoError(t, defaultError)
	require.Equal(t, workingDirectory, resolvedDefaultRoot)

	_, fileError := resolver.Resolve(regularFile)
	require.ErrorIs(t, fileError, ErrProjectRootNotDirectory)

	_, missingError := resolver.Resolve(filepath.Join(workingDirectory, "missing"))
	require.Error(t, missingError)
}
