package eventbus

import (
	"time"

	"jobsched/internal/job"
)

const (
	TypeJobStarted   = "job.started"
	TypeJobProgress  = "job.progress"
	TypeJobCompleted = "job.completed"
	TypeJobFailed    = "job.failed"
	TypeJobPaused    = "job.paused"
	TypeJobResumed   = "job.resumed"

	TypeConfigReloaded = "config.reloaded"
)

// JobEvent is the Data of every job.* event.
type JobEvent struct {
	RunID    string        `json:"run_id,omitempty"`
	Key      job.Key       `json:"key"`
	Forced   bool          `json:"forced,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Listener publishes scheduler lifecycle callbacks onto a Bus.
type Listener struct {
	Bus Bus
}

var _ job.Listener = Listener{}

func (l Listener) publish(typ string, ev JobEvent) {
	if l.Bus == nil {
		return
	}
	l.Bus.Publish(Event{Type: typ, Data: ev})
}

func runEvent(r job.Run) JobEvent {
	return JobEvent{RunID: r.ID, Key: r.Key, Forced: r.Forced}
}

func (l Listener) OnJobStart(r job.Run) { l.publish(TypeJobStarted, runEvent(r)) }

func (l Listener) OnJobProgress(r job.Run, message string) {
	ev := runEvent(r)
	ev.Message = message
	l.publish(TypeJobProgress, ev)
}

func (l Listener) OnJobComplete(r job.Run, took time.Duration) {
	ev := runEvent(r)
	ev.Duration = took
	l.publish(TypeJobCompleted, ev)
}

func (l Listener) OnJobError(r job.Run, err error, took time.Duration) {
	ev := runEvent(r)
	ev.Duration = took
	ev.Error = job.FailureMessage(err)
	l.publish(TypeJobFailed, ev)
}

func (l Listener) OnJobPaused(key job.Key)  { l.publish(TypeJobPaused, JobEvent{Key: key}) }
func (l Listener) OnJobResumed(key job.Key) { l.publish(TypeJobResumed, JobEvent{Key: key}) }
