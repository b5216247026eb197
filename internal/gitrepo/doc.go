// Package gitrepo contains helpers for interrogating and manipulating Git repositories.
//
// It exposes RepositoryManager for remote bookkeeping and explicit pulls, and
// remote URL parsing used to translate subpackage URLs between the http and
// ssh transports.
package gitrepo
