// Package shared declares the narrow collaborator interfaces used by the
// subpackage services so that filesystem, git, and clock access can be
// replaced in tests.
package shared
