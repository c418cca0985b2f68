package scheduler

import "fmt"

// OrderingViolation is returned, before dispatch, when a task would run
// earlier in the declared order than the task dispatched before it.
type OrderingViolation struct {
	Task         string
	Priority     int
	PrevTask     string
	PrevPriority int
}

func (e *OrderingViolation) Error() string {
	return fmt.Sprintf("ordering violation: task %s (priority %d) after %s (priority %d)",
		e.Task, e.Priority, e.PrevTask, e.PrevPriority)
}

// ConfigurationError reports an active task whose callable cannot be resolved.
type ConfigurationError struct {
	Task string
	Ref  string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: task %s: cannot resolve %s: %v", e.Task, e.Ref, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TaskError wraps a failure returned by a task callable.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %s: %v", e.Task, e.Err) }

func (e *TaskError) Unwrap() error { return e.Err }
