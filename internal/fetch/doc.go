// Package fetch clones subpackages into their target directories.
//
// Clones land in a hidden staging sibling of the target and are renamed into
// place only after git succeeds, so a failed or interrupted clone never leaves
// a directory that a later run would mistake for an existing checkout.
package fetch
