package subpackages

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/subpkg/internal/manifest"
	"github.com/temirov/subpkg/internal/resolution"
)

const (
	manifestLoaderMissingMessageConstant = "subpackage service requires a manifest loader"
	treeBuilderMissingMessageConstant    = "subpackage service requires a tree builder"
	updaterMissingMessageConstant        = "subpackage service requires an updater"
	failedSubpackagesMessageConstant     = "subpackages failed"
	failedSubpackagesTemplateConstant    = "%d %w"
	versionCheckErrorTemplateConstant    = "unable to use %s: %w"
	buildErrorTemplateConstant           = "subpackage resolution interrupted: %w"
	metricsWriteFailedMessageConstant    = "Unable to write metrics file"
	updateStartedMessageConstant         = "Updating subpackage"
	updateFailedMessageConstant          = "Subpackage update failed"
	subpackageFieldConstant              = "subpackage"
	pathFieldConstant                    = "path"
	remoteFieldConstant                  = "remote"
	metricsFileFieldConstant             = "metrics_file"
)

// ErrManifestLoaderNotConfigured indicates a service without a manifest loader.
var ErrManifestLoaderNotConfigured = errors.New(manifestLoaderMissingMessageConstant)

// ErrTreeBuilderNotConfigured indicates a service without a tree builder.
var ErrTreeBuilderNotConfigured = errors.New(treeBuilderMissingMessageConstant)

// ErrUpdaterNotConfigured indicates an update was requested without an updater.
var ErrUpdaterNotConfigured = errors.New(updaterMissingMessageConstant)

// ErrSubpackagesFailed reports that at least one subpackage could not be fetched, loaded or updated.
var ErrSubpackagesFailed = errors.New(failedSubpackagesMessageConstant)

// RootManifestLoader reads the manifest of the project root.
type RootManifestLoader interface {
	Load(directory string) (manifest.Manifest, error)
}

// TreeBuilder resolves the subpackage tree of a loaded root manifest.
type TreeBuilder interface {
	BuildManifest(executionContext context.Context, rootManifest manifest.Manifest, options resolution.Options) (*resolution.Node, error)
}

// Updater pulls an existing checkout and reports the remote it pulled from.
type Updater interface {
	Update(executionContext context.Context, targetPath string, branch string) (string, error)
}

// MetricsWriter persists collected metrics.
type MetricsWriter interface {
	WriteTextfile(path string) error
}

// ServiceDependencies enumerates collaborators required by the service.
type ServiceDependencies struct {
	ManifestLoader RootManifestLoader
	TreeBuilder    TreeBuilder
	Updater        Updater
	Metrics        MetricsWriter
	Logger         *zap.Logger
	ToolVersion    string
}

// UpdateResult reports the outcome of pulling one subpackage.
type UpdateResult struct {
	Name   string
	Path   string
	Remote string
	Err    error
}

// Service runs the subpackage operations.
type Service struct {
	manifestLoader RootManifestLoader
	treeBuilder    TreeBuilder
	updater        Updater
	metrics        MetricsWriter
	logger         *zap.Logger
	toolVersion    string
}

// NewService validates dependencies and constructs a Service.
func NewService(serviceDependencies ServiceDependencies) (*Service, error) {
	if serviceDependencies.ManifestLoader == nil {
		return nil, ErrManifestLoaderNotConfigured
	}
	if serviceDependencies.TreeBuilder == nil {
		return nil, ErrTreeBuilderNotConfigured
	}
	logger := serviceDependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		manifestLoader: serviceDependencies.ManifestLoader,
		treeBuilder:    serviceDependencies.TreeBuilder,
		updater:        serviceDependencies.Updater,
		metrics:        serviceDependencies.Metrics,
		logger:         logger,
		toolVersion:    serviceDependencies.ToolVersion,
	}, nil
}

// Resolve loads the root manifest once, verifies it accepts this tool version and builds the tree.
// A partial tree is returned together with an error when the build was interrupted.
func (service *Service) Resolve(executionContext context.Context, rootDirectory string, options resolution.Options) (*resolution.Node, error) {
	rootManifest, loadError := service.manifestLoader.Load(rootDirectory)
	if loadError != nil {
		return nil, loadError
	}
	if versionError := rootManifest.CheckToolVersion(service.toolVersion); versionError != nil {
		return nil, fmt.Errorf(versionCheckErrorTemplateConstant, rootManifest.Path, versionError)
	}

	rootNode, buildError := service.treeBuilder.BuildManifest(executionContext, rootManifest, options)
	if buildError != nil {
		if rootNode == nil {
			return nil, buildError
		}
		return rootNode, fmt.Errorf(buildErrorTemplateConstant, buildError)
	}
	return rootNode, nil
}

// Update pulls every subpackage that was already present on disk, in tree order.
// References to subpackages resolved elsewhere are skipped so each checkout is pulled once.
func (service *Service) Update(executionContext context.Context, rootNode *resolution.Node) ([]UpdateResult, error) {
	if service.updater == nil {
		return nil, ErrUpdaterNotConfigured
	}

	results := make([]UpdateResult, 0)
	var contextError error
	resolution.Walk(rootNode, func(node *resolution.Node, depth int) {
		if depth == 0 || node.Status != resolution.StatusAlreadyPresent || contextError != nil {
			return
		}
		if contextError = executionContext.Err(); contextError != nil {
			return
		}

		service.logger.Info(updateStartedMessageConstant,
			zap.String(subpackageFieldConstant, node.Name),
			zap.String(pathFieldConstant, node.ChosenPath),
		)
		remoteName, updateError := service.updater.Update(executionContext, node.ChosenPath, node.Branch)
		if updateError != nil {
			service.logger.Error(updateFailedMessageConstant,
				zap.String(subpackageFieldConstant, node.Name),
				zap.String(pathFieldConstant, node.ChosenPath),
				zap.Error(updateError),
			)
		}
		results = append(results, UpdateResult{Name: node.Name, Path: node.ChosenPath, Remote: remoteName, Err: updateError})
	})
	return results, contextError
}

// WriteMetrics dumps collected metrics to the path when one is configured.
// Failures are logged and never fail the command.
func (service *Service) WriteMetrics(path string) {
	if service.metrics == nil || len(path) == 0 {
		return
	}
	if writeError := service.metrics.WriteTextfile(path); writeError != nil {
		service.logger.Warn(metricsWriteFailedMessageConstant,
			zap.String(metricsFileFieldConstant, path),
			zap.Error(writeError),
		)
	}
}

// FailureError returns ErrSubpackagesFailed annotated with the count when any node failed.
func FailureError(rootNode *resolution.Node) error {
	failures := resolution.Summarize(rootNode).Failures()
	if failures == 0 {
		return nil
	}
	return fmt.Errorf(failedSubpackagesTemplateConstant, failures, ErrSubpackagesFailed)
}

// UpdateFailureError returns ErrSubpackagesFailed annotated with the number of failed updates.
func UpdateFailureError(results []UpdateResult) error {
	failures := 0
	for _, result := range results {
		if result.Err != nil {
			failures++
		}
	}
	if failures == 0 {
		return nil
	}
	return fmt.Errorf(failedSubpackagesTemplateConstant, failures, ErrSubpackagesFailed)
}
