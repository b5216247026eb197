package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/subpkg/internal/execshell"
)

const (
	fetchErrorTemplateConstant = "fetch %s into %s failed (%s): %v"
)

// FailureKind classifies why a fetch failed.
type FailureKind string

// Supported failure kinds.
const (
	FailureKindNetwork    FailureKind = FailureKind("network")
	FailureKindInvalidRef FailureKind = FailureKind("invalid-ref")
	FailureKindFilesystem FailureKind = FailureKind("filesystem")
	FailureKindCanceled   FailureKind = FailureKind("canceled")
)

var (
	invalidReferenceMarkers  = []string{
		"remote branch",
		"not found in upstream",
		"couldn't find remote ref",
		"invalid reference",
		"did not match any file",
	}
	networkMarkersOverridingFilesystem  = []string{
		"permission denied (publickey",
	}
	filesystemMarkers  = []string{
		"permission denied",
		"could not create",
		"no space left on device",
		"read-only file system",
		"already exists and is not an empty directory",
		"unable to create",
	}
)

// Error describes a failed fetch.
type Error struct {
	Kind       FailureKind
	TargetPath string
	URL        string
	Cause      error
}

// Error describes the failure.
func (fetchError Error) Error() string {
	return fmt.Sprintf(fetchErrorTemplateConstant, fetchError.URL, fetchError.TargetPath, fetchError.Kind, fetchError.Cause)
}

// Unwrap exposes the underlying cause.
func (fetchError Error) Unwrap() error {
	return fetchError.Cause
}

// classifyCloneFailure maps a git clone failure onto a FailureKind using git's stderr.
func classifyCloneFailure(executionContext context.Context, cloneError error) FailureKind {
	if errors.Is(cloneError, context.Canceled) || errors.Is(executionContext.Err(), context.Canceled) {
		return FailureKindCanceled
	}

	var failedError execshell.CommandFailedError
	if !errors.As(cloneError, &failedError) {
		var executionError execshell.CommandExecutionError
		if errors.As(cloneError, &executionError) {
			return FailureKindFilesystem
		}
		return FailureKindNetwork
	}

	standardError := strings.ToLower(failedError.Result.StandardError)
	for _, marker := range invalidReferenceMarkers {
		if strings.Contains(standardError, marker) {
			return FailureKindInvalidRef
		}
	}
	for _, marker := range networkMarkersOverridingFilesystem {
		if strings.Contains(standardError, marker) {
			return FailureKindNetwork
		}
	}
	for _, marker := range filesystemMarkers {
		if strings.Contains(standardError, marker) {
			return FailureKindFilesystem
		}
	}
	return FailureKindNetwork
}
