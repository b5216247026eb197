package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/subpkg/internal/execshell"
)

const (
	requiredValueMessageConstant              = "value required"
	gitExecutorNotConfiguredMessageConstant   = "git executor not configured"
	repositoryPathRequiredMessageConstant     = "repository path required"
	remoteNameRequiredMessageConstant         = "remote name required"
	remoteURLRequiredMessageConstant          = "remote url required"
	revParseSubcommandConstant                = "rev-parse"
	isInsideWorkTreeFlagConstant              = "--is-inside-work-tree"
	remoteSubcommandConstant                  = "remote"
	getURLSubcommandConstant                  = "get-url"
	setURLSubcommandConstant                  = "set-url"
	addSubcommandConstant                     = "add"
	pullSubcommandConstant                    = "pull"
	fastForwardOnlyFlagConstant               = "--ff-only"
	trueOutputConstant                        = "true"
	terminalPromptEnvironmentVariableConstant = "GIT_TERMINAL_PROMPT"
	terminalPromptDisabledValueConstant       = "0"
	repositoryOperationErrorTemplateConstant  = "%s: %w"
	isRepositoryOperationNameConstant         = "git rev-parse"
	listRemotesOperationNameConstant          = "git remote"
	getRemoteURLOperationNameConstant         = "git remote get-url"
	setRemoteURLOperationNameConstant         = "git remote set-url"
	addRemoteOperationNameConstant            = "git remote add"
	pullOperationNameConstant                 = "git pull"
)

// ErrGitExecutorNotConfigured indicates the repository manager was constructed without an executor.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorNotConfiguredMessageConstant)

// GitCommandExecutor runs git commands on behalf of the repository manager.
type GitCommandExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager performs repository-level git operations through a command executor.
type RepositoryManager struct {
	executor GitCommandExecutor
}

// NewRepositoryManager constructs a RepositoryManager.
func NewRepositoryManager(executor GitCommandExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// IsRepository reports whether the path is inside a git work tree.
func (manager *RepositoryManager) IsRepository(executionContext context.Context, repositoryPath string) (bool, error) {
	if len(strings.TrimSpace(repositoryPath)) == 0 {
		return false, errors.New(repositoryPathRequiredMessageConstant)
	}
	result, executionError := manager.executor.ExecuteGit(executionContext, manager.details(repositoryPath, revParseSubcommandConstant, isInsideWorkTreeFlagConstant))
	if executionError != nil {
		var failedError execshell.CommandFailedError
		if errors.As(executionError, &failedError) {
			return false, nil
		}
		return false, fmt.Errorf(repositoryOperationErrorTemplateConstant, isRepositoryOperationNameConstant, executionError)
	}
	return strings.TrimSpace(result.StandardOutput) == trueOutputConstant, nil
}

// ListRemotes returns the configured remote names in git's order.
func (manager *RepositoryManager) ListRemotes(executionContext context.Context, repositoryPath string) ([]string, error) {
	result, executionError := manager.executor.ExecuteGit(executionContext, manager.details(repositoryPath, remoteSubcommandConstant))
	if executionError != nil {
		return nil, fmt.Errorf(repositoryOperationErrorTemplateConstant, listRemotesOperationNameConstant, executionError)
	}
	remoteNames := make([]string, 0)
	for _, line := range strings.Split(result.StandardOutput, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) == 0 {
			continue
		}
		remoteNames = append(remoteNames, trimmedLine)
	}
	return remoteNames, nil
}

// GetRemoteURL returns the fetch URL configured for the remote.
func (manager *RepositoryManager) GetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string) (string, error) {
	if len(strings.TrimSpace(remoteName)) == 0 {
		return "", errors.New(remoteNameRequiredMessageConstant)
	}
	result, executionError := manager.executor.ExecuteGit(executionContext, manager.details(repositoryPath, remoteSubcommandConstant, getURLSubcommandConstant, remoteName))
	if executionError != nil {
		return "", fmt.Errorf(repositoryOperationErrorTemplateConstant, getRemoteURLOperationNameConstant, executionError)
	}
	return strings.TrimSpace(result.StandardOutput), nil
}

// SetRemoteURL replaces the URL of an existing remote.
func (manager *RepositoryManager) SetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error {
	if validationError := validateRemote(remoteName, remoteURL); validationError != nil {
		return validationError
	}
	_, executionError := manager.executor.ExecuteGit(executionContext, manager.details(repositoryPath, remoteSubcommandConstant, setURLSubcommandConstant, remoteName, remoteURL))
	if executionError != nil {
		return fmt.Errorf(repositoryOperationErrorTemplateConstant, setRemoteURLOperationNameConstant, executionError)
	}
	return nil
}

// AddRemote registers a new remote.
func (manager *RepositoryManager) AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error {
	if validationError := validateRemote(remoteName, remoteURL); validationError != nil {
		return validationError
	}
	_, executionError := manager.executor.ExecuteGit(executionContext, manager.details(repositoryPath, remoteSubcommandConstant, addSubcommandConstant, remoteName, remoteURL))
	if executionError != nil {
		return fmt.Errorf(repositoryOperationErrorTemplateConstant, addRemoteOperationNameConstant, executionError)
	}
	return nil
}

// Pull fast-forwards the branch from the remote.
func (manager *RepositoryManager) Pull(executionContext context.Context, repositoryPath string, remoteName string, branchName string) error {
	if len(strings.TrimSpace(remoteName)) == 0 {
		return errors.New(remoteNameRequiredMessageConstant)
	}
	arguments := []string{pullSubcommandConstant, fastForwardOnlyFlagConstant, remoteName}
	if trimmedBranch := strings.TrimSpace(branchName); len(trimmedBranch) > 0 {
		arguments = append(arguments, trimmedBranch)
	}
	_, executionError := manager.executor.ExecuteGit(executionContext, manager.details(repositoryPath, arguments...))
	if executionError != nil {
		return fmt.Errorf(repositoryOperationErrorTemplateConstant, pullOperationNameConstant, executionError)
	}
	return nil
}

func (manager *RepositoryManager) details(repositoryPath string, arguments ...string) execshell.CommandDetails {
	return execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     repositoryPath,
		EnvironmentVariables: map[string]string{terminalPromptEnvironmentVariableConstant: terminalPromptDisabledValueConstant},
	}
}

func validateRemote(remoteName string, remoteURL string) error {
	if len(strings.TrimSpace(remoteName)) == 0 {
		return errors.New(remoteNameRequiredMessageConstant)
	}
	if len(strings.TrimSpace(remoteURL)) == 0 {
		return errors.New(remoteURLRequiredMessageConstant)
	}
	return nil
}
