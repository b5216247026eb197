package subpackages_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/subpkg/internal/subpackages"
)

func TestConfigurationSanitizeRestoresDefaults(t *testing.T) {
	configuration := subpackages.Configuration{
		Fetch: subpackages.FetchConfiguration{
			Protocol:      " SSH ",
			ProbeTimeout:  -time.Second,
			Jobs:          0,
			ProbeStrategy: "",
		},
		List:          subpackages.ListConfiguration{Format: ""},
		ManifestNames: []string{" repo.yaml ", "", "repo.yaml", "repo.json"},
		MetricsFile:   "  ",
	}

	sanitized := configuration.Sanitize()

	require.Equal(t, "ssh", sanitized.Fetch.Protocol)
	require.Equal(t, 3*time.Second, sanitized.Fetch.ProbeTimeout)
	require.Equal(t, 1, sanitized.Fetch.Jobs)
	require.Equal(t, "parallel", sanitized.Fetch.ProbeStrategy)
	require.Equal(t, "tree", sanitized.List.Format)
	require.Equal(t, []string{"repo.yaml", "repo.json"}, sanitized.ManifestNames)
	require.Empty(t, sanitized.MetricsFile)
}

func TestDefaultConfiguration(t *testing.T) {
	configuration := subpackages.DefaultConfiguration()

	require.Equal(t, "http", configuration.Fetch.Protocol)
	require.True(t, configuration.Fetch.Shallow)
	require.True(t, configuration.Fetch.UseMirror)
	require.True(t, configuration.Fetch.Recursive)
	require.True(t, configuration.List.Recursive)
	require.Equal(t, []string{"repo.json", "repo.yaml", "repo.yml", "repo.toml"}, configuration.ManifestNames)
}
