package scheduler

import (
	"sort"
	"time"

	"jobsched/internal/job"
)

// JobStatus returns a snapshot of the job. An invalid job is reported once
// (Valid=false) and removed by the same call.
func (s *Service) JobStatus(key job.Key) (job.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rj := s.jobs[key]
	if rj == nil {
		return job.Status{}, false
	}
	st := s.statusLocked(rj, time.Now())
	if !st.Valid {
		s.removeLocked(rj, "invalid")
	}
	return st, true
}

// JobStatuses snapshots every registered job, sorted by key.
func (s *Service) JobStatuses() []job.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make([]job.Status, 0, len(s.jobs))
	for _, rj := range s.jobs {
		st := s.statusLocked(rj, now)
		if !st.Valid {
			s.removeLocked(rj, "invalid")
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// AllJobKeys returns every registered key, sorted.
func (s *Service) AllJobKeys() []job.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysLocked(nil)
}

// JobKeysOfCategory returns the registered keys of one category, sorted.
func (s *Service) JobKeysOfCategory(category job.Category) []job.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysLocked(func(k job.Key) bool { return k.Category == category.Name })
}

// JobKeysOfType returns the registered keys of one type, sorted.
func (s *Service) JobKeysOfType(t job.Type) []job.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysLocked(func(k job.Key) bool { return k.JobType() == t })
}

func (s *Service) keysLocked(keep func(job.Key) bool) []job.Key {
	out := make([]job.Key, 0, len(s.jobs))
	for k := range s.jobs {
		if keep == nil || keep(k) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (s *Service) statusLocked(rj *registeredJob, now time.Time) job.Status {
	disabled := rj.job.Disabled()
	st := job.Status{
		Key:             rj.key(),
		Description:     rj.job.Description(),
		Schedule:        rj.schedule,
		Running:         rj.running.Load() != nil,
		Paused:          disabled || rj.paused || s.paused,
		Disabled:        disabled,
		Valid:           job.IsValid(rj.job),
		LastError:       rj.lastError,
		LastErrorCount:  rj.errorCount,
		LastRunAt:       rj.lastRunAt,
		LastRunDuration: rj.lastRunTook,
	}
	if st.Valid && !st.Paused && rj.timer != nil {
		st.NextRun = rj.timer.peek(now)
	}
	return st
}
