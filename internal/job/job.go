package job

import (
	"context"
	"fmt"
	"sync/atomic"
)

// RunListener receives free-form progress messages from a running task.
// Messages are informational only.
type RunListener interface {
	Message(format string, args ...any)
}

// RunListenerFunc adapts a function to RunListener.
type RunListenerFunc func(msg string)

func (f RunListenerFunc) Message(format string, args ...any) {
	if f == nil {
		return
	}
	if len(args) == 0 {
		f(format)
		return
	}
	f(fmt.Sprintf(format, args...))
}

// NopRunListener discards messages.
var NopRunListener RunListener = RunListenerFunc(nil)

// Task is one execution of a job. A returned error (or a panic) marks the run
// as failed. Tasks should honor ctx: the scheduler never interrupts a run on
// its own, but a decorator or shutdown may cancel it.
type Task func(ctx context.Context, l RunListener) error

// Job is supplied by collaborators.
//
// Disabled is the job's own on/off switch and is read on every tick and
// forced run.
type Job interface {
	Key() Key
	Task() Task
	Description() string
	Disabled() bool
}

// Validator is implemented by jobs that can become obsolete. Once Valid
// returns false the scheduler removes the job.
type Validator interface {
	Valid() bool
}

// ParameterizedJob is implemented by jobs that accept per-run parameters
// on forced runs.
type ParameterizedJob interface {
	Job
	ParameterizedTask(params map[string]string) Task
}

// IsValid reports j's validity; jobs without a Validator are always valid.
func IsValid(j Job) bool {
	if v, ok := j.(Validator); ok {
		return v.Valid()
	}
	return true
}

// TaskFor returns the task to run for the given parameters. Parameters are
// ignored unless j is a ParameterizedJob.
func TaskFor(j Job, params map[string]string) Task {
	if len(params) > 0 {
		if pj, ok := j.(ParameterizedJob); ok {
			return pj.ParameterizedTask(params)
		}
	}
	return j.Task()
}

// Basic is a ready-made Job with runtime-switchable disabled and valid
// flags.
type Basic struct {
	key      Key
	desc     string
	task     Task
	disabled atomic.Bool
	invalid  atomic.Bool
}

var _ Validator = (*Basic)(nil)

// New returns a Basic job running task.
func New(key Key, description string, task Task) *Basic {
	return &Basic{key: key, desc: description, task: task}
}

func (b *Basic) Key() Key            { return b.key }
func (b *Basic) Task() Task          { return b.task }
func (b *Basic) Description() string { return b.desc }
func (b *Basic) Disabled() bool      { return b.disabled.Load() }
func (b *Basic) Valid() bool         { return !b.invalid.Load() }

func (b *Basic) SetDisabled(v bool) { b.disabled.Store(v) }

// Invalidate marks the job obsolete; it cannot be undone.
func (b *Basic) Invalidate() { b.invalid.Store(true) }
