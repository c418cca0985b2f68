// Package scheduler dispatches the active tasks of a run, one at a time and
// in registry order, and journals the catalog after each of them.
//
// Periodic re-runs a whole import on a cron expression or a fixed interval.
package scheduler
