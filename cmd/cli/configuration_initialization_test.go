package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigurationInitializerWritesDefaults(t *testing.T) {
	testCases := []struct {
		name         string
		scope        string
		expectedPath func(workingDirectory string, homeDirectory string) string
	}{
		{
			name:  "local_scope",
			scope: "local",
			expectedPath: func(workingDirectory string, _ string) string {
				return filepath.Join(workingDirectory, "config.yaml")
			},
		},
		{
			name:  "user_scope",
			scope: "USER",
			expectedPath: func(_ string, homeDirectory string) string {
				return filepath.Join(homeDirectory, ".subpkg", "config.yaml")
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			workingDirectory := t.TempDir()
			homeDirectory := t.TempDir()
			initializer := newConfigurationInitializer(workingDirectory)
			initializer.homeDirectory = func() (string, error) {
				return homeDirectory, nil
			}

			configurationPath, initializationError := initializer.Initialize(testCase.scope, false)
			require.NoError(t, initializationError)
			require.Equal(t, testCase.expectedPath(workingDirectory, homeDirectory), configurationPath)

			writtenContent, readError := os.ReadFile(configurationPath)
			require.NoError(t, readError)
			embeddedContent, _ := EmbeddedDefaultConfiguration()
			require.Equal(t, embeddedContent, writtenContent)
		})
	}
}

func TestConfigurationInitializerOverwriteProtection(t *testing.T) {
	workingDirectory := t.TempDir()
	configurationPath := filepath.Join(workingDirectory, "config.yaml")
	require.NoError(t, os.WriteFile(configurationPath, []byte("common:\n  log_level: debug\n"), 0o600))
	initializer := newConfigurationInitializer(workingDirectory)

	_, initializationError := initializer.Initialize("local", false)
	require.ErrorIs(t, initializationError, ErrConfigurationExists)
	require.ErrorContains(t, initializationError, "--force")

	_, initializationError = initializer.Initialize("local", true)
	require.NoError(t, initializationError)
	writtenContent, readError := os.ReadFile(configurationPath)
	require.NoError(t, readError)
	require.Contains(t, string(writtenContent), "kkgithub")
}

func TestConfigurationInitializerRejectsUnknownScopes(t *testing.T) {
	initializer := newConfigurationInitializer(t.TempDir())
	initializer.homeDirectory = func() (string, error) {
		return "", errors.New("no home")
	}

	_, scopeError := initializer.Initialize("global", false)
	require.ErrorContains(t, scopeError, "expected local or user")

	_, homeError := initializer.Initialize("user", false)
	require.ErrorContains(t, homeError, "no home")
}

func TestApplicationInitFlagWritesConfigurationAndExits(t *testing.T) {
	projectDirectory := t.TempDir()
	application := NewApplication()
	exitCode := -1
	sentinel := "init-exit"
	application.exitFunction = func(code int) {
		exitCode = code
		panic(sentinel)
	}

	capture := startStdoutCapture(t)
	defer func() {
		if capture.reader != nil {
			_ = capture.Stop(t)
		}
	}()

	withArguments(t, "--init", "--root", projectDirectory)

	require.PanicsWithValue(t, sentinel, func() {
		_ = application.Execute()
	})

	output := capture.Stop(t)
	expectedPath := filepath.Join(projectDirectory, "config.yaml")
	require.Equal(t, "configuration written to "+expectedPath+"\n", output)
	require.Equal(t, 0, exitCode)
	require.FileExists(t, expectedPath)
}
