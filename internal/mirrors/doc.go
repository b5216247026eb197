// Package mirrors expands templated subpackage URLs into candidate clone URLs and
// selects the fastest reachable one.
//
// A List maps host group names (such as "github") to ordered mirrors carrying
// per-protocol URL templates. Selector implementations decide which candidate
// to clone from; ParallelSelector races lightweight probes, SequentialSelector
// probes one host at a time, and DirectSelector never probes.
package mirrors
