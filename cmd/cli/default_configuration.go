package cli

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	initializationScopeLocalConstant           = "local"
	initializationScopeUserConstant            = "user"
	userConfigurationDirectoryNameConstant     = ".subpkg"
	userConfigurationSearchPathConstant        = "$HOME/" + userConfigurationDirectoryNameConstant
	configurationFileNameConstant              = configurationNameConstant + "." + configurationTypeConstant
	configurationDirectoryPermissionsConstant  = 0o755
	configurationFilePermissionsConstant       = 0o644
	configurationExistsMessageConstant         = "configuration file already exists"
	configurationExistsTemplateConstant        = "%w: %s (use --force to overwrite)"
	unknownInitializationScopeTemplateConstant = "unsupported --init scope %q: expected local or user"
	configurationWriteErrorTemplateConstant    = "unable to write configuration %s: %w"
	homeDirectoryErrorTemplateConstant         = "unable to resolve home directory: %w"
)

//go:embed default_config.yaml
var embeddedDefaultConfigurationContent []byte

// ErrConfigurationExists indicates that --init would overwrite an existing file without --force.
var ErrConfigurationExists = errors.New(configurationExistsMessageConstant)

// EmbeddedDefaultConfiguration returns a copy of the embedded default configuration and its type identifier.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return bytes.Clone(embeddedDefaultConfigurationContent), configurationTypeConstant
}

// configurationInitializer writes the embedded defaults to a local or per-user configuration file.
type configurationInitializer struct {
	workingDirectory string
	homeDirectory    func() (string, error)
}

func newConfigurationInitializer(workingDirectory string) configurationInitializer {
	return configurationInitializer{workingDirectory: workingDirectory, homeDirectory: os.UserHomeDir}
}

func (initializer configurationInitializer) targetPath(scope string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case initializationScopeLocalConstant, "":
		return filepath.Join(initializer.workingDirectory, configurationFileNameConstant), nil
	case initializationScopeUserConstant:
		homeDirectory, homeError := initializer.homeDirectory()
		if homeError != nil {
			return "", fmt.Errorf(homeDirectoryErrorTemplateConstant, homeError)
		}
		return filepath.Join(homeDirectory, userConfigurationDirectoryNameConstant, configurationFileNameConstant), nil
	default:
		return "", fmt.Errorf(unknownInitializationScopeTemplateConstant, scope)
	}
}

// Initialize writes the defaults for the scope and returns the written path.
func (initializer configurationInitializer) Initialize(scope string, force bool) (string, error) {
	configurationPath, pathError := initializer.targetPath(scope)
	if pathError != nil {
		return "", pathError
	}

	if _, statError := os.Stat(configurationPath); statError == nil && !force {
		return "", fmt.Errorf(configurationExistsTemplateConstant, ErrConfigurationExists, configurationPath)
	} else if statError != nil && !errors.Is(statError, fs.ErrNotExist) {
		return "", fmt.Errorf(configurationWriteErrorTemplateConstant, configurationPath, statError)
	}

	if mkdirError := os.MkdirAll(filepath.Dir(configurationPath), configurationDirectoryPermissionsConstant); mkdirError != nil {
		return "", fmt.Errorf(configurationWriteErrorTemplateConstant, configurationPath, mkdirError)
	}
	content, _ := EmbeddedDefaultConfiguration()
	if writeError := os.WriteFile(configurationPath, content, configurationFilePermissionsConstant); writeError != nil {
		return "", fmt.Errorf(configurationWriteErrorTemplateConstant, configurationPath, writeError)
	}
	return configurationPath, nil
}
