// Package discovery finds leftovers of interrupted subpackage clones on disk.
package discovery
