package manifest

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

const minimumVersionConstraintTemplateConstant = ">= "

// CheckToolVersion verifies that the running tool satisfies the project's min-version.
// Tool versions that are not semantic versions, such as development builds, always pass.
func (manifest Manifest) CheckToolVersion(toolVersion string) error {
	if manifest.Project.MinimumToolVersion == nil {
		return nil
	}
	runningVersion, parseError := semver.NewVersion(strings.TrimSpace(toolVersion))
	if parseError != nil {
		return nil
	}
	constraint, constraintError := semver.NewConstraint(minimumVersionConstraintTemplateConstant + manifest.Project.MinimumToolVersion.String())
	if constraintError != nil {
		return constraintError
	}
	if constraint.Check(runningVersion) {
		return nil
	}
	return VersionRequirementError{
		Project:  manifest.Project.Name,
		Required: manifest.Project.MinimumToolVersion.String(),
		Actual:   runningVersion.String(),
	}
}
