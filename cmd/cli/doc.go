// Package cli constructs the subpkg command-line interface, wiring the Cobra
// command hierarchy, the configuration loader with its embedded defaults, and
// structured logging. Execute runs the fetch, list and update commands.
package cli
