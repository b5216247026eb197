package subpackages

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/subpkg/internal/repos/dependencies"
	"github.com/temirov/subpkg/internal/repos/discovery"
	"github.com/temirov/subpkg/internal/repos/shared"
	flagutils "github.com/temirov/subpkg/internal/utils/flags"
)

const (
	pruneCommandUseConstant              = "prune"
	pruneCommandShortDescriptionConstant = "Remove staging directories left by interrupted clones"
	pruneCommandLongDescriptionConstant  = "prune walks the project tree and deletes hidden staging directories that an interrupted fetch could not clean up."
	dryRunFlagNameConstant               = "dry-run"
	dryRunFlagDescriptionConstant        = "Report staging directories without removing them"
	pruneRemovedTemplateConstant         = "removed %s\n"
	prunePlannedTemplateConstant         = "would remove %s\n"
	pruneFailedTemplateConstant          = "failed to remove %s: %v\n"
	pruneNothingMessageConstant          = "no partial clones found\n"
	pruneDiscoveryErrorTemplateConstant  = "unable to scan %s: %w"
	pruneRemovalErrorTemplateConstant    = "%d staging directories could not be removed: %w"
	pruneLogMessageConstant              = "Removing partial clone"
	pruneLogFailureMessageConstant       = "Partial clone removal failed"
	pruneLogPathFieldConstant            = "path"
)

// ErrPruneFailed indicates that at least one staging directory survived prune.
var ErrPruneFailed = errors.New("prune failed")

// PartialCloneDiscoverer locates staging directories beneath a set of roots.
type PartialCloneDiscoverer interface {
	DiscoverPartialClones(roots []string) ([]string, error)
}

// BuildPrune constructs the prune command.
func (builder *CommandBuilder) BuildPrune() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   pruneCommandUseConstant,
		Short: pruneCommandShortDescriptionConstant,
		Long:  pruneCommandLongDescriptionConstant,
		RunE:  builder.runPrune,
	}

	flagutils.AddToggleFlag(command.Flags(), dryRunFlagNameConstant, false, dryRunFlagDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) runPrune(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, pruneCommandUseConstant)
	}

	rootDirectory, rootError := builder.resolveRootDirectory(command)
	if rootError != nil {
		return rootError
	}
	dryRun, dryRunError := toggleValue(command, dryRunFlagNameConstant, false)
	if dryRunError != nil {
		return dryRunError
	}

	discoverer := builder.Discoverer
	if discoverer == nil {
		discoverer = discovery.NewPartialCloneDiscoverer()
	}
	stagingDirectories, discoveryError := discoverer.DiscoverPartialClones([]string{rootDirectory})
	if discoveryError != nil {
		return fmt.Errorf(pruneDiscoveryErrorTemplateConstant, rootDirectory, discoveryError)
	}

	renderer := builder.resolveRenderer(command)
	if len(stagingDirectories) == 0 {
		if _, writeError := io.WriteString(renderer.Writer, pruneNothingMessageConstant); writeError != nil {
			return writeError
		}
		return renderer.flush()
	}

	pruner := partialClonePruner{
		fileSystem:    dependencies.ResolveFileSystem(builder.FileSystem),
		logger:        builder.resolveLogger(),
		writer:        renderer.Writer,
		rootDirectory: rootDirectory,
	}
	pruneError := pruner.prune(stagingDirectories, dryRun)
	if flushError := renderer.flush(); flushError != nil && pruneError == nil {
		return flushError
	}
	return pruneError
}

type partialClonePruner struct {
	fileSystem    shared.FileSystem
	logger        *zap.Logger
	writer        io.Writer
	rootDirectory string
}

func (pruner partialClonePruner) prune(stagingDirectories []string, dryRun bool) error {
	failures := 0
	for _, stagingDirectory := range stagingDirectories {
		displayPath := pruner.displayPath(stagingDirectory)
		if dryRun {
			if _, writeError := fmt.Fprintf(pruner.writer, prunePlannedTemplateConstant, displayPath); writeError != nil {
				return writeError
			}
			continue
		}

		pruner.logger.Info(pruneLogMessageConstant, zap.String(pruneLogPathFieldConstant, stagingDirectory))
		if removeError := pruner.fileSystem.RemoveAll(stagingDirectory); removeError != nil {
			failures++
			pruner.logger.Warn(pruneLogFailureMessageConstant, zap.String(pruneLogPathFieldConstant, stagingDirectory), zap.Error(removeError))
			if _, writeError := fmt.Fprintf(pruner.writer, pruneFailedTemplateConstant, displayPath, removeError); writeError != nil {
				return writeError
			}
			continue
		}
		if _, writeError := fmt.Fprintf(pruner.writer, pruneRemovedTemplateConstant, displayPath); writeError != nil {
			return writeError
		}
	}

	if failures > 0 {
		return fmt.Errorf(pruneRemovalErrorTemplateConstant, failures, ErrPruneFailed)
	}
	return nil
}

func (pruner partialClonePruner) displayPath(stagingDirectory string) string {
	relativePath, relativeError := filepath.Rel(pruner.rootDirectory, stagingDirectory)
	if relativeError != nil {
		return stagingDirectory
	}
	return relativePath
}
