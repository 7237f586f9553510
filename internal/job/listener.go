package job

import "time"

// Run identifies one execution of a job.
type Run struct {
	ID        string
	Key       Key
	Forced    bool
	StartedAt time.Time
}

// Listener observes job lifecycle events. Implementations must not block:
// callbacks run on the executing worker or on the caller of Pause/Resume.
type Listener interface {
	OnJobStart(r Run)
	OnJobProgress(r Run, message string)
	OnJobComplete(r Run, took time.Duration)
	OnJobError(r Run, err error, took time.Duration)
	OnJobPaused(key Key)
	OnJobResumed(key Key)
}

// NopListener ignores every event. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnJobStart(Run)                       {}
func (NopListener) OnJobProgress(Run, string)            {}
func (NopListener) OnJobComplete(Run, time.Duration)     {}
func (NopListener) OnJobError(Run, error, time.Duration) {}
func (NopListener) OnJobPaused(Key)                      {}
func (NopListener) OnJobResumed(Key)                     {}

type multiListener []Listener

// Listeners fans events out to ls in order. Nil entries are skipped.
func Listeners(ls ...Listener) Listener {
	out := make(multiListener, 0, len(ls))
	for _, l := range ls {
		if l == nil {
			continue
		}
		if m, ok := l.(multiListener); ok {
			out = append(out, m...)
			continue
		}
		out = append(out, l)
	}
	switch len(out) {
	case 0:
		return NopListener{}
	case 1:
		return out[0]
	}
	return out
}

func (m multiListener) OnJobStart(r Run) {
	for _, l := range m {
		l.OnJobStart(r)
	}
}

func (m multiListener) OnJobProgress(r Run, msg string) {
	for _, l := range m {
		l.OnJobProgress(r, msg)
	}
}

func (m multiListener) OnJobComplete(r Run, took time.Duration) {
	for _, l := range m {
		l.OnJobComplete(r, took)
	}
}

func (m multiListener) OnJobError(r Run, err error, took time.Duration) {
	for _, l := range m {
		l.OnJobError(r, err, took)
	}
}

func (m multiListener) OnJobPaused(key Key) {
	for _, l := range m {
		l.OnJobPaused(key)
	}
}

func (m multiListener) OnJobResumed(key Key) {
	for _, l := range m {
		l.OnJobResumed(key)
	}
}
