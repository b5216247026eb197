package subpackages

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/subpkg/internal/fetch"
	"github.com/temirov/subpkg/internal/gitrepo"
	"github.com/temirov/subpkg/internal/manifest"
	"github.com/temirov/subpkg/internal/metrics"
	"github.com/temirov/subpkg/internal/mirrors"
	"github.com/temirov/subpkg/internal/paths"
	"github.com/temirov/subpkg/internal/repos/dependencies"
	"github.com/temirov/subpkg/internal/repos/shared"
	"github.com/temirov/subpkg/internal/resolution"
	"github.com/temirov/subpkg/internal/utils"
	flagutils "github.com/temirov/subpkg/internal/utils/flags"
	pathutils "github.com/temirov/subpkg/internal/utils/path"
)

const (
	fetchCommandUseConstant               = "fetch"
	fetchCommandShortDescriptionConstant  = "Fetch the subpackages declared by the project manifest"
	fetchCommandLongDescriptionConstant   = "fetch clones every declared subpackage that is missing on disk, choosing the fastest mirror, and descends into fetched subpackages."
	listCommandUseConstant                = "list"
	listCommandShortDescriptionConstant   = "Show the subpackage tree without fetching"
	listCommandLongDescriptionConstant    = "list resolves the subpackage tree from what is on disk and reports missing subpackages as pending."
	updateCommandUseConstant              = "update"
	updateCommandShortDescriptionConstant = "Pull subpackages that are already present"
	updateCommandLongDescriptionConstant  = "update pulls every present subpackage, preferring the mirror remote recorded when it was cloned."
	unexpectedArgumentsTemplateConstant   = "%s does not accept positional arguments"
	commandExecutionErrorTemplateConstant = "%s failed: %w"
	protocolFlagNameConstant              = "protocol"
	protocolFlagDescriptionConstant       = "Transport used for template hosts and literal GitHub-style URLs"
	shallowFlagNameConstant               = "shallow"
	shallowFlagDescriptionConstant        = "Clone with --depth 1"
	mirrorFlagNameConstant                = "mirror"
	mirrorFlagDescriptionConstant         = "Probe mirrors and clone from the fastest one"
	jobsFlagNameConstant                  = "jobs"
	jobsFlagDescriptionConstant           = "Number of sibling subpackages resolved concurrently"
	recursiveFlagNameConstant             = "recursive"
	recursiveFlagDescriptionConstant      = "Descend into subpackage manifests"
	probeTimeoutFlagNameConstant          = "probe-timeout"
	probeTimeoutFlagDescriptionConstant   = "Time limit for each mirror probe"
	probeStrategyFlagNameConstant         = "probe-strategy"
	probeStrategyFlagDescriptionConstant  = "Probe mirrors concurrently or one after another"
	metricsFileFlagNameConstant           = "metrics-file"
	metricsFileFlagDescriptionConstant    = "Write Prometheus metrics for the run to this file"
	formatFlagNameConstant                = "format"
	formatFlagDescriptionConstant         = "Output format"
	invalidProtocolTemplateConstant       = "invalid protocol %q: expected http or ssh"
	invalidProbeStrategyTemplateConstant  = "invalid probe strategy %q"
	invalidMirrorListTemplateConstant     = "invalid mirror configuration: %w"
	invalidJobsTemplateConstant           = "invalid --jobs %d: must be positive"
	probeStrategyParallelConstant         = "parallel"
	probeStrategySequentialConstant       = "sequential"
)

var protocolChoices = []string{string(gitrepo.TransportProtocolHTTP), string(gitrepo.TransportProtocolSSH)}

var probeStrategyChoices = []string{probeStrategyParallelConstant, probeStrategySequentialConstant}

var formatChoices = []string{string(OutputFormatTree), string(OutputFormatJSON), string(OutputFormatYAML)}

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current subpackage configuration.
type ConfigurationProvider func() Configuration

// HumanReadableLoggingProvider reports whether console logging is active.
type HumanReadableLoggingProvider func() bool

// CommandBuilder assembles the fetch, list, update and prune commands.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	HumanReadableLoggingProvider HumanReadableLoggingProvider
	GitExecutor                  shared.GitExecutor
	RepositoryManager            shared.GitRepositoryManager
	FileSystem                   shared.FileSystem
	Prober                       mirrors.Prober
	Discoverer                   PartialCloneDiscoverer
	OutputWriter                 io.Writer
	ToolVersion                  string
}

type commandOptions struct {
	rootDirectory string
	resolution    resolution.Options
	useMirror     bool
	probeStrategy string
	metricsFile   string
	format        OutputFormat
}

// BuildFetch constructs the fetch command.
func (builder *CommandBuilder) BuildFetch() (*cobra.Command, error) {
	defaults := DefaultConfiguration()
	command := &cobra.Command{
		Use:   fetchCommandUseConstant,
		Short: fetchCommandShortDescriptionConstant,
		Long:  fetchCommandLongDescriptionConstant,
		RunE:  builder.runFetch,
	}

	flagutils.AddChoiceFlag(command.Flags(), nil, protocolFlagNameConstant, defaults.Fetch.Protocol, protocolChoices, protocolFlagDescriptionConstant)
	flagutils.AddToggleFlag(command.Flags(), shallowFlagNameConstant, defaults.Fetch.Shallow, shallowFlagDescriptionConstant)
	flagutils.AddToggleFlag(command.Flags(), mirrorFlagNameConstant, defaults.Fetch.UseMirror, mirrorFlagDescriptionConstant)
	flagutils.AddToggleFlag(command.Flags(), recursiveFlagNameConstant, defaults.Fetch.Recursive, recursiveFlagDescriptionConstant)
	flagutils.AddChoiceFlag(command.Flags(), nil, probeStrategyFlagNameConstant, defaults.Fetch.ProbeStrategy, probeStrategyChoices, probeStrategyFlagDescriptionConstant)
	command.Flags().Int(jobsFlagNameConstant, defaults.Fetch.Jobs, jobsFlagDescriptionConstant)
	command.Flags().Duration(probeTimeoutFlagNameConstant, defaults.Fetch.ProbeTimeout, probeTimeoutFlagDescriptionConstant)
	command.Flags().String(metricsFileFlagNameConstant, "", metricsFileFlagDescriptionConstant)

	return command, nil
}

// BuildList constructs the list command.
func (builder *CommandBuilder) BuildList() (*cobra.Command, error) {
	defaults := DefaultConfiguration()
	command := &cobra.Command{
		Use:   listCommandUseConstant,
		Short: listCommandShortDescriptionConstant,
		Long:  listCommandLongDescriptionConstant,
		RunE:  builder.runList,
	}

	flagutils.AddToggleFlag(command.Flags(), recursiveFlagNameConstant, defaults.List.Recursive, recursiveFlagDescriptionConstant)
	flagutils.AddChoiceFlag(command.Flags(), nil, formatFlagNameConstant, defaults.List.Format, formatChoices, formatFlagDescriptionConstant)

	return command, nil
}

// BuildUpdate constructs the update command.
func (builder *CommandBuilder) BuildUpdate() (*cobra.Command, error) {
	defaults := DefaultConfiguration()
	command := &cobra.Command{
		Use:   updateCommandUseConstant,
		Short: updateCommandShortDescriptionConstant,
		Long:  updateCommandLongDescriptionConstant,
		RunE:  builder.runUpdate,
	}

	flagutils.AddToggleFlag(command.Flags(), recursiveFlagNameConstant, defaults.Fetch.Recursive, recursiveFlagDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) runFetch(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, fetchCommandUseConstant)
	}

	configuration := builder.resolveConfiguration()
	options, optionsError := builder.parseFetchOptions(command, configuration)
	if optionsError != nil {
		return optionsError
	}
	options.resolution.FetchRequested = true

	logger := builder.resolveLogger()
	service, serviceError := builder.resolveService(logger, configuration, options)
	if serviceError != nil {
		return serviceError
	}

	rootNode, resolveError := service.Resolve(command.Context(), options.rootDirectory, options.resolution)
	service.WriteMetrics(options.metricsFile)
	if rootNode != nil {
		if renderError := builder.resolveRenderer(command).Render(rootNode, OutputFormatTree); renderError != nil {
			return renderError
		}
	}
	if resolveError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, fetchCommandUseConstant, resolveError)
	}
	return FailureError(rootNode)
}

func (builder *CommandBuilder) runList(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, listCommandUseConstant)
	}

	configuration := builder.resolveConfiguration()
	options, optionsError := builder.parseListOptions(command, configuration)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger()
	service, serviceError := builder.resolveService(logger, configuration, options)
	if serviceError != nil {
		return serviceError
	}

	rootNode, resolveError := service.Resolve(command.Context(), options.rootDirectory, options.resolution)
	if rootNode != nil {
		if renderError := builder.resolveRenderer(command).Render(rootNode, options.format); renderError != nil {
			return renderError
		}
	}
	if resolveError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, listCommandUseConstant, resolveError)
	}
	return nil
}

func (builder *CommandBuilder) runUpdate(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, updateCommandUseConstant)
	}

	configuration := builder.resolveConfiguration()
	rootDirectory, rootError := builder.resolveRootDirectory(command)
	if rootError != nil {
		return rootError
	}
	recursive, recursiveError := toggleValue(command, recursiveFlagNameConstant, configuration.Fetch.Recursive)
	if recursiveError != nil {
		return recursiveError
	}
	options := commandOptions{
		rootDirectory: rootDirectory,
		resolution:    resolution.Options{Recursive: recursive, Jobs: 1},
	}

	logger := builder.resolveLogger()
	service, serviceError := builder.resolveService(logger, configuration, options)
	if serviceError != nil {
		return serviceError
	}

	rootNode, resolveError := service.Resolve(command.Context(), options.rootDirectory, options.resolution)
	if resolveError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, updateCommandUseConstant, resolveError)
	}

	results, updateError := service.Update(command.Context(), rootNode)
	if renderError := builder.resolveRenderer(command).RenderUpdates(results); renderError != nil {
		return renderError
	}
	if updateError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, updateCommandUseConstant, updateError)
	}
	return UpdateFailureError(results)
}

func (builder *CommandBuilder) parseFetchOptions(command *cobra.Command, configuration Configuration) (commandOptions, error) {
	rootDirectory, rootError := builder.resolveRootDirectory(command)
	if rootError != nil {
		return commandOptions{}, rootError
	}

	protocolValue := configuration.Fetch.Protocol
	if command.Flags().Changed(protocolFlagNameConstant) {
		protocolValue, _ = command.Flags().GetString(protocolFlagNameConstant)
	}
	protocol, protocolValid := gitrepo.ParseTransportProtocol(protocolValue)
	if !protocolValid {
		return commandOptions{}, fmt.Errorf(invalidProtocolTemplateConstant, protocolValue)
	}

	shallow, shallowError := toggleValue(command, shallowFlagNameConstant, configuration.Fetch.Shallow)
	if shallowError != nil {
		return commandOptions{}, shallowError
	}
	useMirror, mirrorError := toggleValue(command, mirrorFlagNameConstant, configuration.Fetch.UseMirror)
	if mirrorError != nil {
		return commandOptions{}, mirrorError
	}
	recursive, recursiveError := toggleValue(command, recursiveFlagNameConstant, configuration.Fetch.Recursive)
	if recursiveError != nil {
		return commandOptions{}, recursiveError
	}

	jobs := configuration.Fetch.Jobs
	if command.Flags().Changed(jobsFlagNameConstant) {
		jobs, _ = command.Flags().GetInt(jobsFlagNameConstant)
	}
	if jobs <= 0 {
		return commandOptions{}, fmt.Errorf(invalidJobsTemplateConstant, jobs)
	}

	probeTimeout := configuration.Fetch.ProbeTimeout
	if command.Flags().Changed(probeTimeoutFlagNameConstant) {
		probeTimeout, _ = command.Flags().GetDuration(probeTimeoutFlagNameConstant)
	}
	if probeTimeout <= 0 {
		probeTimeout = mirrors.DefaultProbeTimeout
	}

	probeStrategy := configuration.Fetch.ProbeStrategy
	if command.Flags().Changed(probeStrategyFlagNameConstant) {
		probeStrategy, _ = command.Flags().GetString(probeStrategyFlagNameConstant)
	}

	metricsFile := configuration.MetricsFile
	if command.Flags().Changed(metricsFileFlagNameConstant) {
		metricsFileValue, _ := command.Flags().GetString(metricsFileFlagNameConstant)
		metricsFile = pathutils.NewHomeExpander().Expand(strings.TrimSpace(metricsFileValue))
	}

	return commandOptions{
		rootDirectory: rootDirectory,
		resolution: resolution.Options{
			Recursive:    recursive,
			Protocol:     protocol,
			Shallow:      shallow,
			ProbeTimeout: probeTimeout,
			Jobs:         jobs,
		},
		useMirror:     useMirror,
		probeStrategy: probeStrategy,
		metricsFile:   metricsFile,
		format:        OutputFormatTree,
	}, nil
}

func (builder *CommandBuilder) parseListOptions(command *cobra.Command, configuration Configuration) (commandOptions, error) {
	rootDirectory, rootError := builder.resolveRootDirectory(command)
	if rootError != nil {
		return commandOptions{}, rootError
	}

	recursive, recursiveError := toggleValue(command, recursiveFlagNameConstant, configuration.List.Recursive)
	if recursiveError != nil {
		return commandOptions{}, recursiveError
	}

	formatValue := configuration.List.Format
	if command.Flags().Changed(formatFlagNameConstant) {
		formatValue, _ = command.Flags().GetString(formatFlagNameConstant)
	}
	format, formatError := ParseOutputFormat(formatValue)
	if formatError != nil {
		return commandOptions{}, formatError
	}

	return commandOptions{
		rootDirectory: rootDirectory,
		resolution:    resolution.Options{Recursive: recursive, Jobs: 1},
		format:        format,
	}, nil
}

func (builder *CommandBuilder) resolveService(logger *zap.Logger, configuration Configuration, options commandOptions) (*Service, error) {
	fileSystem := dependencies.ResolveFileSystem(builder.FileSystem)
	gitExecutor, executorError := dependencies.ResolveGitExecutor(builder.GitExecutor, logger, builder.humanReadableLogging())
	if executorError != nil {
		return nil, executorError
	}
	repositoryManager, managerError := dependencies.ResolveGitRepositoryManager(builder.RepositoryManager, gitExecutor)
	if managerError != nil {
		return nil, managerError
	}
	orchestrator, orchestratorError := fetch.NewOrchestrator(fetch.Dependencies{
		GitExecutor:       gitExecutor,
		RepositoryManager: repositoryManager,
		FileSystem:        fileSystem,
		Logger:            logger,
	})
	if orchestratorError != nil {
		return nil, orchestratorError
	}

	mirrorList := mirrors.NewList(configuration.Mirrors)
	if validationError := mirrorList.Validate(); validationError != nil {
		return nil, fmt.Errorf(invalidMirrorListTemplateConstant, validationError)
	}

	recorder := metrics.NewRecorder()
	selector, selectorError := builder.resolveSelector(logger, recorder, options)
	if selectorError != nil {
		return nil, selectorError
	}

	manifestLoader := manifest.NewLoader(fileSystem, configuration.ManifestNames)
	treeBuilder, builderError := resolution.NewBuilder(resolution.Dependencies{
		ManifestLoader: manifestLoader,
		PathResolver:   paths.NewResolver(fileSystem),
		Mirrors:        mirrorList,
		Selector:       selector,
		Fetcher:        orchestrator,
		Metrics:        recorder,
		Logger:         logger,
	})
	if builderError != nil {
		return nil, builderError
	}

	return NewService(ServiceDependencies{
		ManifestLoader: manifestLoader,
		TreeBuilder:    treeBuilder,
		Updater:        orchestrator,
		Metrics:        recorder,
		Logger:         logger,
		ToolVersion:    builder.ToolVersion,
	})
}

func (builder *CommandBuilder) resolveSelector(logger *zap.Logger, recorder *metrics.Recorder, options commandOptions) (mirrors.Selector, error) {
	if !options.useMirror {
		return mirrors.DirectSelector{}, nil
	}

	var prober mirrors.Prober = mirrors.NewNetworkProber()
	if builder.Prober != nil {
		prober = builder.Prober
	}
	cachingProber, cacheError := mirrors.NewCachingProber(prober, mirrors.DefaultProbeCacheSize)
	if cacheError != nil {
		return nil, cacheError
	}

	switch strings.ToLower(strings.TrimSpace(options.probeStrategy)) {
	case probeStrategyParallelConstant, "":
		return &mirrors.ParallelSelector{Prober: cachingProber, Logger: logger, Observer: recorder}, nil
	case probeStrategySequentialConstant:
		return &mirrors.SequentialSelector{Prober: cachingProber, Logger: logger, Observer: recorder}, nil
	default:
		return nil, fmt.Errorf(invalidProbeStrategyTemplateConstant, options.probeStrategy)
	}
}

func (builder *CommandBuilder) resolveRootDirectory(command *cobra.Command) (string, error) {
	if projectRoot, available := utils.NewCommandContextAccessor().ProjectRoot(command.Context()); available {
		return projectRoot, nil
	}
	return pathutils.NewProjectRootResolver().Resolve("")
}

func (builder *CommandBuilder) resolveRenderer(command *cobra.Command) Renderer {
	writer := builder.OutputWriter
	if writer == nil {
		writer = command.OutOrStdout()
	}
	return Renderer{Writer: utils.NewLineWriter(writer)}
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	configuration := DefaultConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	return configuration.Sanitize()
}

func (builder *CommandBuilder) humanReadableLogging() bool {
	if builder.HumanReadableLoggingProvider == nil {
		return false
	}
	return builder.HumanReadableLoggingProvider()
}

func toggleValue(command *cobra.Command, flagName string, configurationValue bool) (bool, error) {
	if !command.Flags().Changed(flagName) {
		return configurationValue, nil
	}
	flagValue, flagError := command.Flags().GetBool(flagName)
	if flagError != nil {
		return false, flagError
	}
	return flagValue, nil
}
