// Package manifest loads project manifests and exposes a read-only view of the
// subpackages they declare.
//
// A manifest is the first of the configured file names found in a directory
// (repo.json, repo.yaml, repo.yml, repo.toml by default). Subpackages keep the
// order in which the manifest declares them, because resolution and rendering
// depend on that order.
package manifest
