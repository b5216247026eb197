package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/subpkg/internal/execshell"
)

const (
	gitCloneSubcommandConstant     = "clone"
	gitPullSubcommandConstant      = "pull"
	commandKeySeparatorConstant    = "\x00"
	elapsedMessageTemplateConstant = "%s in %s"
	elapsedFieldNameConstant       = "elapsed"
	elapsedPrecisionConstant       = 10 * time.Millisecond
)

// ProgressReporter renders git activity for console users. Clones and pulls are reported at
// info level with their duration; repository bookkeeping is only visible at debug level.
type ProgressReporter struct {
	logger     *zap.Logger
	formatter  execshell.CommandMessageFormatter
	now        func() time.Time
	mutex      sync.Mutex
	startTimes map[string]time.Time
}

// NewProgressReporter constructs a reporter backed by the provided console logger.
func NewProgressReporter(logger *zap.Logger) *ProgressReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressReporter{
		logger:     logger,
		formatter:  execshell.CommandMessageFormatter{},
		now:        time.Now,
		startTimes: make(map[string]time.Time),
	}
}

// CommandStarted implements execshell.CommandEventObserver.
func (reporter *ProgressReporter) CommandStarted(command execshell.ShellCommand) {
	if reporter == nil {
		return
	}
	reporter.mutex.Lock()
	reporter.startTimes[commandKey(command)] = reporter.now()
	reporter.mutex.Unlock()

	message := reporter.formatter.BuildStartedMessage(command)
	if isTransfer(command) {
		reporter.logger.Info(message)
		return
	}
	reporter.logger.Debug(message)
}

// CommandCompleted implements execshell.CommandEventObserver.
func (reporter *ProgressReporter) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if reporter == nil {
		return
	}
	elapsed := reporter.elapsed(command)
	if result.ExitCode != 0 {
		reporter.logger.Warn(reporter.formatter.BuildFailureMessage(command, result), zap.Duration(elapsedFieldNameConstant, elapsed))
		return
	}

	message := reporter.formatter.BuildSuccessMessage(command, result)
	if isTransfer(command) {
		reporter.logger.Info(fmt.Sprintf(elapsedMessageTemplateConstant, message, elapsed.Round(elapsedPrecisionConstant)), zap.Duration(elapsedFieldNameConstant, elapsed))
		return
	}
	reporter.logger.Debug(message)
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (reporter *ProgressReporter) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	if reporter == nil {
		return
	}
	elapsed := reporter.elapsed(command)
	reporter.logger.Error(reporter.formatter.BuildExecutionFailureMessage(command, failure), zap.Duration(elapsedFieldNameConstant, elapsed))
}

func (reporter *ProgressReporter) elapsed(command execshell.ShellCommand) time.Duration {
	key := commandKey(command)
	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()
	startTime, started := reporter.startTimes[key]
	if !started {
		return 0
	}
	delete(reporter.startTimes, key)
	return reporter.now().Sub(startTime)
}

func isTransfer(command execshell.ShellCommand) bool {
	if command.Name != execshell.CommandGit || len(command.Details.Arguments) == 0 {
		return false
	}
	subcommand := command.Details.Arguments[0]
	return subcommand == gitCloneSubcommandConstant || subcommand == gitPullSubcommandConstant
}

func commandKey(command execshell.ShellCommand) string {
	return string(command.Name) + commandKeySeparatorConstant + command.Details.WorkingDirectory + commandKeySeparatorConstant + strings.Join(command.Details.Arguments, commandKeySeparatorConstant)
}
