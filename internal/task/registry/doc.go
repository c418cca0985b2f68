// Package registry loads the declarative task list and resolves which tasks
// are active for a run and in which order they run.
//
// Order: tasks with priority >= 0 first, ascending by priority then name;
// then tasks with negative priority, also ascending. A chain 0..N expresses
// forward dependencies; negative priorities form a late cleanup phase.
package registry
