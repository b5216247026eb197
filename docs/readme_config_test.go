package docs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/temirov/subpkg/internal/mirrors"
	"github.com/temirov/subpkg/internal/subpackages"
)

const (
	readmeFileNameConstant           = "README.md"
	yamlFenceStartConstant           = "```yaml"
	yamlFenceEndConstant             = "```"
	configHeaderMarkerConstant       = "# config.yaml"
	readmeSnippetTemporaryPattern    = "readme-config-*.yaml"
	subpackagesConfigurationKey      = "tools.subpackages"
	parentDirectoryReferenceConstant = ".."
	missingHeaderMessageConstant     = "README example missing config header marker"
	missingStartFenceMessageConstant = "README example missing yaml fence start"
	missingEndFenceMessageConstant   = "README example missing yaml fence end"
	missingCommandMessageTemplate    = "README does not document the %s command"
)

var documentedCommands = []string{"fetch", "list", "update", "prune"}

func readReadme(testInstance *testing.T) string {
	testInstance.Helper()
	workingDirectory, workingDirectoryError := os.Getwd()
	require.NoError(testInstance, workingDirectoryError)

	contentBytes, readError := os.ReadFile(filepath.Join(workingDirectory, parentDirectoryReferenceConstant, readmeFileNameConstant))
	require.NoError(testInstance, readError)
	return string(contentBytes)
}

func extractConfigurationSnippet(testInstance *testing.T, contentText string) string {
	testInstance.Helper()
	headerIndex := strings.Index(contentText, configHeaderMarkerConstant)
	require.NotEqual(testInstance, -1, headerIndex, missingHeaderMessageConstant)

	fenceStartIndex := strings.LastIndex(contentText[:headerIndex], yamlFenceStartConstant)
	require.NotEqual(testInstance, -1, fenceStartIndex, missingStartFenceMessageConstant)

	fenceEndRelativeIndex := strings.Index(contentText[headerIndex:], yamlFenceEndConstant)
	require.NotEqual(testInstance, -1, fenceEndRelativeIndex, missingEndFenceMessageConstant)

	return strings.TrimSpace(contentText[fenceStartIndex+len(yamlFenceStartConstant) : headerIndex+fenceEndRelativeIndex])
}

func TestReadmeConfigurationParses(testInstance *testing.T) {
	snippetContent := extractConfigurationSnippet(testInstance, readReadme(testInstance))

	tempFile, tempFileError := os.CreateTemp(testInstance.TempDir(), readmeSnippetTemporaryPattern)
	require.NoError(testInstance, tempFileError)
	_, writeError := tempFile.WriteString(snippetContent)
	require.NoError(testInstance, writeError)
	require.NoError(testInstance, tempFile.Close())

	configurationReader := viper.New()
	configurationReader.SetConfigFile(tempFile.Name())
	require.NoError(testInstance, configurationReader.ReadInConfig())

	var configuration subpackages.Configuration
	require.NoError(testInstance, configurationReader.UnmarshalKey(subpackagesConfigurationKey, &configuration))
	sanitized := configuration.Sanitize()

	require.Equal(testInstance, "ssh", sanitized.Fetch.Protocol)
	require.Equal(testInstance, "sequential", sanitized.Fetch.ProbeStrategy)
	require.Equal(testInstance, 4, sanitized.Fetch.Jobs)
	require.Equal(testInstance, "yaml", sanitized.List.Format)
	require.NotContains(testInstance, sanitized.MetricsFile, "~")
	require.Len(testInstance, sanitized.Mirrors, 2)
	require.NoError(testInstance, mirrors.NewList(sanitized.Mirrors).Validate())
}

func TestReadmeDocumentsEveryCommand(testInstance *testing.T) {
	contentText := readReadme(testInstance)
	for _, commandName := range documentedCommands {
		require.Containsf(testInstance, contentText, "subpkg "+commandName, missingCommandMessageTemplate, commandName)
	}
}
