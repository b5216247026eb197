package shared

import (
	"context"
	"io/fs"
	"time"

	"github.com/temirov/subpkg/internal/execshell"
)

const (
	// OriginRemoteNameConstant identifies the remote that always points at the official repository URL.
	OriginRemoteNameConstant = "origin"
	// MirrorRemoteNameConstant identifies the remote recording the mirror a checkout was cloned from.
	MirrorRemoteNameConstant = "mirror"
)

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FileSystem exposes filesystem operations required by subpackage services.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	Rename(oldPath string, newPath string) error
	Abs(path string) (string, error)
	EvalSymlinks(path string) (string, error)
	MkdirAll(path string, permissions fs.FileMode) error
	RemoveAll(path string) error
	ReadFile(path string) ([]byte, error)
}

// GitExecutor exposes the subset of shell execution used by repository services.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// GitRepositoryManager exposes repository-level git operations.
type GitRepositoryManager interface {
	IsRepository(executionContext context.Context, repositoryPath string) (bool, error)
	ListRemotes(executionContext context.Context, repositoryPath string) ([]string, error)
	GetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string) (string, error)
	SetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error
	AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error
	Pull(executionContext context.Context, repositoryPath string, remoteName string, branchName string) error
}
