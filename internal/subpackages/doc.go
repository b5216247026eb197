// Package subpackages exposes the fetch, list and update commands. It wires the manifest loader,
// mirror selection, fetch orchestrator and tree builder together and renders the resulting tree.
package subpackages
