package job

import (
	"encoding/json"
	"time"
)

// Status is a point-in-time snapshot of a registered job.
//
// Paused is true when the job is paused at any level (job-disabled, key or
// scheduler-wide). NextRun is zero when the job is paused, invalid or has no
// schedule.
type Status struct {
	Key             Key
	Description     string
	Schedule        Schedule
	Running         bool
	Paused          bool
	Disabled        bool
	Valid           bool
	NextRun         time.Time
	LastError       string
	LastErrorCount  int
	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// HasError reports whether the last run failed.
func (s Status) HasError() bool { return s.LastErrorCount > 0 }

type statusJSON struct {
	Key             string     `json:"key"`
	Category        string     `json:"category"`
	Type            string     `json:"type"`
	ID              string     `json:"id"`
	Description     string     `json:"description"`
	Schedule        Schedule   `json:"schedule"`
	Running         bool       `json:"running"`
	Paused          bool       `json:"paused"`
	Disabled        bool       `json:"disabled"`
	Valid           bool       `json:"valid"`
	NextRun         *time.Time `json:"nextRun"`
	LastError       *string    `json:"lastError"`
	LastErrorCount  int        `json:"lastErrorCount"`
	LastRunAt       *time.Time `json:"lastRunAt"`
	LastRunDuration string     `json:"lastRunDuration,omitempty"`
}

func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{
		Key:            s.Key.String(),
		Category:       s.Key.Category,
		Type:           s.Key.Type,
		ID:             s.Key.ID,
		Description:    s.Description,
		Schedule:       s.Schedule,
		Running:        s.Running,
		Paused:         s.Paused,
		Disabled:       s.Disabled,
		Valid:          s.Valid,
		LastErrorCount: s.LastErrorCount,
	}
	if !s.NextRun.IsZero() {
		t := s.NextRun
		out.NextRun = &t
	}
	if s.LastErrorCount > 0 {
		msg := s.LastError
		out.LastError = &msg
	}
	if !s.LastRunAt.IsZero() {
		t := s.LastRunAt
		out.LastRunAt = &t
		out.LastRunDuration = s.LastRunDuration.String()
	}
	return json.Marshal(out)
}
