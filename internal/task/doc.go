// Package task defines what the scheduler dispatches: task descriptors,
// the per-task handle threaded to every callable, and the static table that
// maps a (module, function) reference to a callable.
package task
