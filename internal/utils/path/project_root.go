package pathutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	tildeSymbolConstant                     = "~"
	tildeForwardSlashPrefixConstant         = "~/"
	projectRootNotDirectoryTemplateConstant = "%w: %s"
	projectRootResolveErrorTemplateConstant = "unable to resolve project root %s: %w"
	workingDirectoryErrorTemplateConstant   = "unable to determine working directory: %w"
)

// ErrProjectRootNotDirectory indicates the project root exists but is not a directory.
var ErrProjectRootNotDirectory = errors.New("project root is not a directory")

var tildeWithPathSeparatorPrefix = tildeSymbolConstant + string(os.PathSeparator)

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// HomeExpander converts user home shortcuts to absolute paths.
type HomeExpander struct {
	homeDirectoryProvider HomeDirectoryProvider
	homeDirectory         string
	homeDirectoryError    error
	initializationGuard   sync.Once
}

// NewHomeExpander constructs a HomeExpander using the operating system lookup.
func NewHomeExpander() *HomeExpander {
	return NewHomeExpanderWithProvider(os.UserHomeDir)
}

// NewHomeExpanderWithProvider constructs a HomeExpander with a custom provider.
func NewHomeExpanderWithProvider(provider HomeDirectoryProvider) *HomeExpander {
	if provider == nil {
		provider = os.UserHomeDir
	}
	return &HomeExpander{homeDirectoryProvider: provider}
}

// Expand resolves leading tilde prefixes to the user's home directory.
func (expander *HomeExpander) Expand(candidatePath string) string {
	if expander == nil {
		return candidatePath
	}
	if len(candidatePath) == 0 {
		return candidatePath
	}
	if !strings.HasPrefix(candidatePath, tildeSymbolConstant) {
		return candidatePath
	}

	resolvedHomeDirectory := expander.resolveHomeDirectory()
	if len(resolvedHomeDirectory) == 0 {
		return candidatePath
	}

	if candidatePath == tildeSymbolConstant {
		return resolvedHomeDirectory
	}

	if strings.HasPrefix(candidatePath, tildeForwardSlashPrefixConstant) {
		relativePath := strings.TrimPrefix(candidatePath, tildeForwardSlashPrefixConstant)
		return filepath.Join(resolvedHomeDirectory, relativePath)
	}

	if tildeWithPathSeparatorPrefix != tildeForwardSlashPrefixConstant && strings.HasPrefix(candidatePath, tildeWithPathSeparatorPrefix) {
		relativePath := strings.TrimPrefix(candidatePath, tildeWithPathSeparatorPrefix)
		return filepath.Join(resolvedHomeDirectory, relativePath)
	}

	return candidatePath
}

func (expander *HomeExpander) resolveHomeDirectory() string {
	expander.initializationGuard.Do(func() {
		expander.homeDirectory, expander.homeDirectoryError = expander.homeDirectoryProvider()
	})
	if expander.homeDirectoryError != nil {
		return ""
	}
	return expander.homeDirectory
}

// ProjectRootResolver turns a user supplied project root into an absolute directory path.
type ProjectRootResolver struct {
	homeExpander             *HomeExpander
	workingDirectoryProvider func() (string, error)
}

// NewProjectRootResolver constructs a resolver backed by the operating system.
func NewProjectRootResolver() *ProjectRootResolver {
	return &ProjectRootResolver{homeExpander: NewHomeExpander(), workingDirectoryProvider: os.Getwd}
}

// NewProjectRootResolverWithProviders constructs a resolver with custom home and working directory lookups.
func NewProjectRootResolverWithProviders(homeDirectoryProvider HomeDirectoryProvider, workingDirectoryProvider func() (string, error)) *ProjectRootResolver {
	if workingDirectoryProvider == nil {
		workingDirectoryProvider = os.Getwd
	}
	return &ProjectRootResolver{homeExpander: NewHomeExpanderWithProvider(homeDirectoryProvider), workingDirectoryProvider: workingDirectoryProvider}
}

// Resolve expands the home shortcut, defaults to the working directory, and verifies the result is a directory.
func (resolver *ProjectRootResolver) Resolve(candidateRoot string) (string, error) {
	trimmedRoot := strings.TrimSpace(candidateRoot)
	if len(trimmedRoot) == 0 {
		workingDirectory, workingDirectoryError := resolver.workingDirectoryProvider()
		if workingDirectoryError != nil {
			return "", fmt.Errorf(workingDirectoryErrorTemplateConstant, workingDirectoryError)
		}
		trimmedRoot = workingDirectory
	}

	absoluteRoot, absoluteError := filepath.Abs(resolver.homeExpander.Expand(trimmedRoot))
	if absoluteError != nil {
		return "", fmt.Errorf(projectRootResolveErrorTemplateConstant, trimmedRoot, absoluteError)
	}

	rootInfo, statError := os.Stat(absoluteRoot)
	if statError != nil {
		return "", fmt.Errorf(projectRootResolveErrorTemplateConstant, absoluteRoot, statError)
	}
	if !rootInfo.IsDir() {
		return "", fmt.Errorf(projectRootNotDirectoryTemplateConstant, ErrProjectRootNotDirectory, absoluteRoot)
	}

	return filepath.Clean(absoluteRoot), nil
}
