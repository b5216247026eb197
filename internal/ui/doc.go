// Package ui reports git activity to console users.
//
// ProgressReporter observes shell commands and keeps clone and pull feedback
// readable while repository bookkeeping stays at debug level.
package ui
