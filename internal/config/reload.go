package config

import (
	"slices"

	logx "jobsched/pkg/logx"
)

// Sections that only take effect when the process restarts.
var restartOnly = []string{"engine", "storage"}

// Reload is one committed config change, as delivered to subscribers.
type Reload struct {
	Prev *Config
	Next *Config

	// Sections lists the changed top-level sections, sorted.
	Sections []string
	// Fields are safe log attrs describing the change (no secrets).
	Fields []logx.Field
	// Jobs lists the keys of job blocks that were added, removed or changed.
	Jobs []string
}

// NewReload diffs prev against next.
func NewReload(prev, next *Config) Reload {
	sections, fields, jobs := SummarizeConfigChange(prev, next)
	return Reload{Prev: prev, Next: next, Sections: sections, Fields: fields, Jobs: jobs}
}

// Since rebases r onto the config the caller last applied. Deliveries can be
// coalesced or dropped, so r.Prev is not always what the subscriber has.
func (r Reload) Since(applied *Config) Reload {
	if applied == r.Prev {
		return r
	}
	return NewReload(applied, r.Next)
}

func (r Reload) Empty() bool { return len(r.Sections) == 0 }

func (r Reload) Changed(section string) bool { return slices.Contains(r.Sections, section) }

// PauseRequest returns the global pause state the new config asks for. ok is
// false unless scheduler.paused is set and the scheduler section changed, so
// a pause or resume done at runtime survives unrelated edits.
func (r Reload) PauseRequest() (paused, ok bool) {
	if r.Next == nil || r.Next.Scheduler.Paused == nil || !r.Changed("scheduler") {
		return false, false
	}
	return *r.Next.Scheduler.Paused, true
}

// RestartRequired lists the changed sections that a running process ignores.
func (r Reload) RestartRequired() []string {
	var out []string
	for _, s := range restartOnly {
		if r.Changed(s) {
			out = append(out, s)
		}
	}
	return out
}
