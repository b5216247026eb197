package utils

import "context"

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
	projectRootContextKeyConstant           = commandContextKey("projectRoot")
)

type commandContextKey string

// CommandContextAccessor manages values stored in command execution contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath attaches the configuration file path to the provided context.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	return accessor.withString(parentContext, configurationFilePathContextKeyConstant, configurationFilePath)
}

// ConfigurationFilePath extracts the configuration file path from the provided context.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	return accessor.lookupString(executionContext, configurationFilePathContextKeyConstant)
}

// WithProjectRoot attaches the resolved project root directory to the provided context.
func (accessor CommandContextAccessor) WithProjectRoot(parentContext context.Context, projectRoot string) context.Context {
	return accessor.withString(parentContext, projectRootContextKeyConstant, projectRoot)
}

// ProjectRoot extracts the project root directory from the provided context.
func (accessor CommandContextAccessor) ProjectRoot(executionContext context.Context) (string, bool) {
	projectRoot, available := accessor.lookupString(executionContext, projectRootContextKeyConstant)
	if !available || len(projectRoot) == 0 {
		return "", false
	}
	return projectRoot, true
}

func (accessor CommandContextAccessor) withString(parentContext context.Context, key commandContextKey, value string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, key, value)
}

func (accessor CommandContextAccessor) lookupString(executionContext context.Context, key commandContextKey) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	value, available := executionContext.Value(key).(string)
	return value, available
}
