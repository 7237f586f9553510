// Package job defines the vocabulary shared by the scheduler and its
// collaborators: hierarchical job keys, schedules, the Job capability,
// status snapshots, lifecycle listeners, task decorators and futures.
//
// Execution lives in job/engine and ticking in job/scheduler.
package job
