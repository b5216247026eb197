package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/subpkg/internal/execshell"
	"github.com/temirov/subpkg/internal/gitrepo"
	"github.com/temirov/subpkg/internal/repos/dependencies"
	"github.com/temirov/subpkg/internal/repos/shared"
)

const (
	stagingNameTemplateConstant             = ".%s.subpkg-partial-%s"
	stagingMarkerConstant                   = ".subpkg-partial-"
	cloneSubcommandConstant                 = "clone"
	branchFlagConstant                      = "--branch"
	depthFlagConstant                       = "--depth"
	shallowDepthConstant                    = "1"
	terminalPromptEnvironmentConstant       = "GIT_TERMINAL_PROMPT"
	terminalPromptDisabledConstant          = "0"
	parentDirectoryPermissionsConstant      = fs.FileMode(0o755)
	targetPathRequiredMessageConstant       = "target path required"
	urlRequiredMessageConstant              = "url required"
	gitExecutorMissingMessageConstant       = "fetch orchestrator requires a git executor"
	repositoryManagerMissingMessageConstant = "fetch orchestrator requires a repository manager"
	notRepositoryTemplateConstant           = "%s is not a git repository"
	updateFailedTemplateConstant            = "update %s: %w"
	targetPresentMessageConstant            = "Subpackage target already present"
	cloneStartedMessageConstant             = "Cloning subpackage"
	cloneCompletedMessageConstant           = "Cloned subpackage"
	stagingCleanupFailedMessageConstant     = "Unable to remove partial clone"
	remoteBookkeepingFailedMessageConstant  = "Unable to record mirror remote"
	targetPathFieldConstant                 = "target_path"
	stagingPathFieldConstant                = "staging_path"
	urlFieldConstant                        = "url"
	officialURLFieldConstant                = "official_url"
	branchFieldConstant                     = "branch"
	shallowFieldConstant                    = "shallow"
)

// ErrGitExecutorNotConfigured indicates a missing git executor.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)

// ErrRepositoryManagerNotConfigured indicates a missing repository manager.
var ErrRepositoryManagerNotConfigured = errors.New(repositoryManagerMissingMessageConstant)

// Outcome enumerates fetch results.
type Outcome string

// Supported outcomes.
const (
	OutcomeCloned         Outcome = Outcome("cloned")
	OutcomeAlreadyPresent Outcome = Outcome("already-present")
	OutcomeFailed         Outcome = Outcome("failed")
)

// Request describes one clone.
type Request struct {
	TargetPath  string
	URL         string
	OfficialURL string
	Branch      string
	Protocol    gitrepo.TransportProtocol
	Shallow     bool
}

// Result reports what a fetch did.
type Result struct {
	Outcome    Outcome
	TargetPath string
	URL        string
	Failure    *Error
}

// Dependencies enumerates collaborators required by the orchestrator.
type Dependencies struct {
	GitExecutor       shared.GitExecutor
	RepositoryManager shared.GitRepositoryManager
	FileSystem        shared.FileSystem
	Logger            *zap.Logger
}

// Orchestrator clones subpackages through git.
type Orchestrator struct {
	gitExecutor       shared.GitExecutor
	repositoryManager shared.GitRepositoryManager
	fileSystem        shared.FileSystem
	logger            *zap.Logger
}

// NewOrchestrator validates dependencies and constructs an Orchestrator.
func NewOrchestrator(orchestratorDependencies Dependencies) (*Orchestrator, error) {
	if orchestratorDependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if orchestratorDependencies.RepositoryManager == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	logger := orchestratorDependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gitExecutor:       orchestratorDependencies.GitExecutor,
		repositoryManager: orchestratorDependencies.RepositoryManager,
		fileSystem:        dependencies.ResolveFileSystem(orchestratorDependencies.FileSystem),
		logger:            logger,
	}, nil
}

// Staged is a clone waiting in its staging directory for Commit or Discard.
type Staged struct {
	Request     Request
	StagingPath string
}

// Fetch clones the request URL into the target path unless the target already exists.
// An existing target is reported as already present without running git.
func (orchestrator *Orchestrator) Fetch(executionContext context.Context, request Request) (Result, error) {
	request, failureKind, prepareError := prepareRequest(request)
	if prepareError != nil {
		return orchestrator.fail(request, failureKind, prepareError)
	}

	present, statError := orchestrator.targetPresent(request.TargetPath)
	if statError != nil {
		return orchestrator.fail(request, FailureKindFilesystem, statError)
	}
	if present {
		orchestrator.logger.Debug(targetPresentMessageConstant, zap.String(targetPathFieldConstant, request.TargetPath))
		return Result{Outcome: OutcomeAlreadyPresent, TargetPath: request.TargetPath, URL: request.URL}, nil
	}

	staged, stageError := orchestrator.stage(executionContext, request)
	if stageError != nil {
		return Result{Outcome: OutcomeFailed, TargetPath: request.TargetPath, URL: request.URL, Failure: stageError}, *stageError
	}
	return orchestrator.Commit(executionContext, staged, request.TargetPath)
}

// Stage clones the request URL into a fresh staging directory beside the request target. The
// target itself is not inspected or touched until Commit.
func (orchestrator *Orchestrator) Stage(executionContext context.Context, request Request) (Staged, error) {
	request, failureKind, prepareError := prepareRequest(request)
	if prepareError != nil {
		_, failure := orchestrator.fail(request, failureKind, prepareError)
		return Staged{Request: request}, failure
	}
	staged, stageError := orchestrator.stage(executionContext, request)
	if stageError != nil {
		return staged, *stageError
	}
	return staged, nil
}

// Commit moves a staged clone onto targetPath and records the mirror remote. When the target
// already exists the staged clone is discarded and the target reported as already present.
func (orchestrator *Orchestrator) Commit(executionContext context.Context, staged Staged, targetPath string) (Result, error) {
	request := staged.Request
	if trimmedTarget := strings.TrimSpace(targetPath); len(trimmedTarget) > 0 {
		request.TargetPath = filepath.Clean(trimmedTarget)
	}

	present, statError := orchestrator.targetPresent(request.TargetPath)
	if statError != nil {
		orchestrator.Discard(staged)
		return orchestrator.fail(request, FailureKindFilesystem, statError)
	}
	if present {
		orchestrator.Discard(staged)
		orchestrator.logger.Debug(targetPresentMessageConstant, zap.String(targetPathFieldConstant, request.TargetPath))
		return Result{Outcome: OutcomeAlreadyPresent, TargetPath: request.TargetPath, URL: request.URL}, nil
	}

	if mkdirError := orchestrator.fileSystem.MkdirAll(filepath.Dir(request.TargetPath), parentDirectoryPermissionsConstant); mkdirError != nil {
		orchestrator.Discard(staged)
		return orchestrator.fail(request, FailureKindFilesystem, mkdirError)
	}
	if renameError := orchestrator.fileSystem.Rename(staged.StagingPath, request.TargetPath); renameError != nil {
		orchestrator.Discard(staged)
		return orchestrator.fail(request, FailureKindFilesystem, renameError)
	}

	orchestrator.recordMirrorRemote(executionContext, request)
	orchestrator.logger.Info(cloneCompletedMessageConstant,
		zap.String(urlFieldConstant, request.URL),
		zap.String(targetPathFieldConstant, request.TargetPath),
	)
	return Result{Outcome: OutcomeCloned, TargetPath: request.TargetPath, URL: request.URL}, nil
}

// Discard removes a staged clone that will not be committed.
func (orchestrator *Orchestrator) Discard(staged Staged) {
	if len(staged.StagingPath) > 0 {
		orchestrator.removeStaging(staged.StagingPath)
	}
}

func (orchestrator *Orchestrator) stage(executionContext context.Context, request Request) (Staged, *Error) {
	staged := Staged{Request: request}
	if contextError := executionContext.Err(); contextError != nil {
		return staged, orchestrator.failure(request, FailureKindCanceled, contextError)
	}

	parentDirectory := filepath.Dir(request.TargetPath)
	if mkdirError := orchestrator.fileSystem.MkdirAll(parentDirectory, parentDirectoryPermissionsConstant); mkdirError != nil {
		return staged, orchestrator.failure(request, FailureKindFilesystem, mkdirError)
	}

	stagingPath := StagingPath(request.TargetPath)
	orchestrator.logger.Info(cloneStartedMessageConstant,
		zap.String(urlFieldConstant, request.URL),
		zap.String(branchFieldConstant, request.Branch),
		zap.Bool(shallowFieldConstant, request.Shallow),
		zap.String(stagingPathFieldConstant, stagingPath),
	)

	_, cloneError := orchestrator.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            cloneArguments(request, stagingPath),
		WorkingDirectory:     parentDirectory,
		EnvironmentVariables: map[string]string{terminalPromptEnvironmentConstant: terminalPromptDisabledConstant},
	})
	if cloneError != nil {
		orchestrator.removeStaging(stagingPath)
		return staged, orchestrator.failure(request, classifyCloneFailure(executionContext, cloneError), cloneError)
	}

	staged.StagingPath = stagingPath
	return staged, nil
}

func (orchestrator *Orchestrator) targetPresent(targetPath string) (bool, error) {
	_, statError := orchestrator.fileSystem.Stat(targetPath)
	if statError == nil {
		return true, nil
	}
	if errors.Is(statError, fs.ErrNotExist) {
		return false, nil
	}
	return false, statError
}

func prepareRequest(request Request) (Request, FailureKind, error) {
	trimmedTarget := strings.TrimSpace(request.TargetPath)
	if len(trimmedTarget) == 0 {
		return request, FailureKindFilesystem, errors.New(targetPathRequiredMessageConstant)
	}
	if len(strings.TrimSpace(request.URL)) == 0 {
		return request, FailureKindNetwork, errors.New(urlRequiredMessageConstant)
	}
	request.TargetPath = filepath.Clean(trimmedTarget)
	if len(request.Protocol) > 0 {
		request.URL = gitrepo.TranslateProtocol(request.URL, request.Protocol)
	}
	return request, "", nil
}

// Update pulls an existing checkout, preferring the mirror remote recorded at clone time.
// It returns the remote that was pulled.
func (orchestrator *Orchestrator) Update(executionContext context.Context, targetPath string, branch string) (string, error) {
	isRepository, checkError := orchestrator.repositoryManager.IsRepository(executionContext, targetPath)
	if checkError != nil {
		return "", fmt.Errorf(updateFailedTemplateConstant, targetPath, checkError)
	}
	if !isRepository {
		return "", fmt.Errorf(updateFailedTemplateConstant, targetPath, fmt.Errorf(notRepositoryTemplateConstant, targetPath))
	}

	remoteNames, listError := orchestrator.repositoryManager.ListRemotes(executionContext, targetPath)
	if listError != nil {
		return "", fmt.Errorf(updateFailedTemplateConstant, targetPath, listError)
	}
	remoteName := shared.OriginRemoteNameConstant
	for _, candidateRemote := range remoteNames {
		if candidateRemote == shared.MirrorRemoteNameConstant {
			remoteName = shared.MirrorRemoteNameConstant
			break
		}
	}

	if pullError := orchestrator.repositoryManager.Pull(executionContext, targetPath, remoteName, branch); pullError != nil {
		return "", fmt.Errorf(updateFailedTemplateConstant, targetPath, pullError)
	}
	return remoteName, nil
}

// StagingPath returns a fresh hidden sibling of the target used while cloning.
func StagingPath(targetPath string) string {
	return filepath.Join(filepath.Dir(targetPath), fmt.Sprintf(stagingNameTemplateConstant, filepath.Base(targetPath), uuid.NewString()))
}

// IsStagingPath reports whether the path names a staging directory left by an interrupted clone.
func IsStagingPath(path string) bool {
	return strings.Contains(filepath.Base(path), stagingMarkerConstant)
}

func cloneArguments(request Request, stagingPath string) []string {
	arguments := []string{cloneSubcommandConstant}
	if branch := strings.TrimSpace(request.Branch); len(branch) > 0 {
		arguments = append(arguments, branchFlagConstant, branch)
	}
	if request.Shallow {
		arguments = append(arguments, depthFlagConstant, shallowDepthConstant)
	}
	return append(arguments, request.URL, stagingPath)
}

func (orchestrator *Orchestrator) recordMirrorRemote(executionContext context.Context, request Request) {
	officialURL := strings.TrimSpace(request.OfficialURL)
	if len(officialURL) == 0 {
		return
	}
	if len(request.Protocol) > 0 {
		officialURL = gitrepo.TranslateProtocol(officialURL, request.Protocol)
	}
	if officialURL == request.URL {
		return
	}

	if setError := orchestrator.repositoryManager.SetRemoteURL(executionContext, request.TargetPath, shared.OriginRemoteNameConstant, officialURL); setError != nil {
		orchestrator.logger.Warn(remoteBookkeepingFailedMessageConstant, zap.String(targetPathFieldConstant, request.TargetPath), zap.Error(setError))
		return
	}
	if addError := orchestrator.repositoryManager.AddRemote(executionContext, request.TargetPath, shared.MirrorRemoteNameConstant, request.URL); addError != nil {
		orchestrator.logger.Warn(remoteBookkeepingFailedMessageConstant, zap.String(targetPathFieldConstant, request.TargetPath), zap.Error(addError))
	}
}

func (orchestrator *Orchestrator) removeStaging(stagingPath string) {
	if removeError := orchestrator.fileSystem.RemoveAll(stagingPath); removeError != nil {
		orchestrator.logger.Warn(stagingCleanupFailedMessageConstant, zap.String(stagingPathFieldConstant, stagingPath), zap.Error(removeError))
	}
}

func (orchestrator *Orchestrator) fail(request Request, kind FailureKind, cause error) (Result, error) {
	failure := orchestrator.failure(request, kind, cause)
	return Result{Outcome: OutcomeFailed, TargetPath: request.TargetPath, URL: request.URL, Failure: failure}, *failure
}

func (orchestrator *Orchestrator) failure(request Request, kind FailureKind, cause error) *Error {
	return &Error{Kind: kind, TargetPath: request.TargetPath, URL: request.URL, Cause: cause}
}
