package subpackages

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/subpkg/internal/resolution"
)

func sampleTree() *resolution.Node {
	return &resolution.Node{
		Name:       "app",
		Status:     resolution.StatusAlreadyPresent,
		ChosenPath: "/work/app",
		Children: []*resolution.Node{
			{
				Name:           "lib",
				Status:         resolution.StatusFetched,
				Branch:         "main",
				DeclaredURL:    "acme/lib@github",
				ResolvedURL:    "https://kkgithub.com/acme/lib.git",
				ChosenPath:     "/work/app/deps/lib",
				AmbiguousPaths: []string{"/work/app/deps/lib", "/work/lib"},
				Children: []*resolution.Node{
					{
						Name:          "util",
						Status:        resolution.StatusAlternativePath,
						Branch:        "main",
						DeclaredURL:   "https://example.com/acme/util.git",
						ChosenPath:    "/work/app/deps/lib/util",
						ReferencePath: "/work/app/deps/util",
					},
				},
			},
			{
				Name:         "util",
				Status:       resolution.StatusPendingFetch,
				Branch:       "stable",
				DeclaredURL:  "https://example.com/acme/util.git",
				ChosenPath:   "/work/app/deps/util",
				HostFallback: true,
			},
			{
				Name:        "broken",
				Status:      resolution.StatusFetchFailed,
				Branch:      "main",
				DeclaredURL: "https://example.com/acme/broken.git",
				ChosenPath:  "/work/app/deps/broken",
				FailureKind: "network",
				Failure:     "connection refused",
			},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	testCases := []struct {
		name           string
		value          string
		expectedFormat OutputFormat
		expectError    bool
	}{
		{name: "empty defaults to tree", value: "", expectedFormat: OutputFormatTree},
		{name: "json", value: "JSON", expectedFormat: OutputFormatJSON},
		{name: "yaml", value: " yaml ", expectedFormat: OutputFormatYAML},
		{name: "unknown", value: "dot", expectError: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			format, parseError := ParseOutputFormat(testCase.value)
			if testCase.expectError {
				require.Error(t, parseError)
				return
			}
			require.NoError(t, parseError)
			require.Equal(t, testCase.expectedFormat, format)
		})
	}
}

func TestRenderTreeShowsEveryStatus(t *testing.T) {
	output := &bytes.Buffer{}
	require.NoError(t, Renderer{Writer: output}.Render(sampleTree(), OutputFormatTree))

	rendered := output.String()
	lines := strings.Split(strings.TrimSpace(rendered), "\n")
	require.Contains(t, lines[0], "app")
	require.Contains(t, lines[0], "/work/app")
	require.Contains(t, rendered, "✓ lib https://kkgithub.com/acme/lib.git (main) => /work/app/deps/lib")
	require.Contains(t, rendered, "also present: /work/app/deps/lib, /work/lib")
	require.Contains(t, rendered, "↺ util https://example.com/acme/util.git (main) => /work/app/deps/lib/util -> /work/app/deps/util")
	require.Contains(t, rendered, "○ util https://example.com/acme/util.git (stable) => /work/app/deps/util")
	require.Contains(t, rendered, "no mirror answered")
	require.Contains(t, rendered, "✗ broken")
	require.Contains(t, rendered, "network: connection refused")
	require.Equal(t, "4 subpackages: 1 fetched, 1 alternative-path, 1 pending-fetch, 1 fetch-failed", lines[len(lines)-1])
}

func TestRenderTreeWithoutSubpackages(t *testing.T) {
	output := &bytes.Buffer{}
	root := &resolution.Node{Name: "solo", Status: resolution.StatusAlreadyPresent, ChosenPath: "/work/solo"}
	require.NoError(t, Renderer{Writer: output}.Render(root, OutputFormatTree))
	require.Contains(t, output.String(), "0 subpackages: none")
}

func TestRenderRequiresWriter(t *testing.T) {
	require.ErrorIs(t, Renderer{}.Render(sampleTree(), OutputFormatJSON), ErrRendererWriterNotConfigured)
	require.ErrorIs(t, Renderer{}.RenderUpdates(nil), ErrRendererWriterNotConfigured)
}

func TestRenderUpdates(t *testing.T) {
	output := &bytes.Buffer{}
	results := []UpdateResult{
		{Name: "lib", Path: "/work/app/deps/lib", Remote: "mirror"},
		{Name: "util", Path: "/work/app/deps/util", Err: errors.New("not possible to fast-forward")},
	}
	require.NoError(t, Renderer{Writer: output}.RenderUpdates(results))

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "✓ lib mirror /work/app/deps/lib", lines[0])
	require.Equal(t, "✗ util not possible to fast-forward", lines[1])
}
