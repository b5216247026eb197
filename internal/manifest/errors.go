package manifest

import (
	"errors"
	"fmt"
)

const (
	manifestNotFoundMessageConstant          = "manifest not found"
	unsupportedManifestFormatMessageConstant = "unsupported manifest format"
	parseErrorTemplateConstant               = "manifest %s: %v"
	validationErrorTemplateConstant          = "manifest %s: subpackage %q: %s"
	projectValidationErrorTemplateConstant   = "manifest %s: %s"
	versionRequirementErrorTemplateConstant  = "project %q requires tool version %s or newer, running %s"
)

// ErrManifestNotFound indicates that none of the manifest names exist in a directory.
var ErrManifestNotFound = errors.New(manifestNotFoundMessageConstant)

// ErrUnsupportedManifestFormat indicates a manifest name with an unknown extension.
var ErrUnsupportedManifestFormat = errors.New(unsupportedManifestFormatMessageConstant)

// ParseError reports a manifest that could not be decoded.
type ParseError struct {
	Path  string
	Cause error
}

// Error describes the parse failure.
func (parseError ParseError) Error() string {
	return fmt.Sprintf(parseErrorTemplateConstant, parseError.Path, parseError.Cause)
}

// Unwrap exposes the decoder error.
func (parseError ParseError) Unwrap() error {
	return parseError.Cause
}

// ValidationError reports a manifest value that violates the schema.
type ValidationError struct {
	Path       string
	Subpackage string
	Message    string
}

// Error describes the validation failure.
func (validationError ValidationError) Error() string {
	if len(validationError.Subpackage) == 0 {
		return fmt.Sprintf(projectValidationErrorTemplateConstant, validationError.Path, validationError.Message)
	}
	return fmt.Sprintf(validationErrorTemplateConstant, validationError.Path, validationError.Subpackage, validationError.Message)
}

// VersionRequirementError reports a running tool older than the project requires.
type VersionRequirementError struct {
	Project  string
	Required string
	Actual   string
}

// Error describes the unmet requirement.
func (requirementError VersionRequirementError) Error() string {
	return fmt.Sprintf(versionRequirementErrorTemplateConstant, requirementError.Project, requirementError.Required, requirementError.Actual)
}
