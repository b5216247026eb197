// Package resolution builds the tree of subpackage resolution outcomes for a project.
//
// Builder walks the manifest graph depth-first in declaration order. Every
// subpackage is claimed in a Cache under its identity keys before it is
// resolved, so a subpackage reachable through several manifests is resolved
// and fetched once; later encounters become alternative-path references and
// cycles terminate.
package resolution
