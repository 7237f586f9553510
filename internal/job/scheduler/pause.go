package scheduler

import (
	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

// Pause suspends ticks for every job. Forced runs still execute.
func (s *Service) Pause() {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = true
	keys := s.keysLocked(nil)
	s.mu.Unlock()

	s.log.Info("scheduler paused", logx.Int("jobs", len(keys)))
	for _, k := range keys {
		s.listener.OnJobPaused(k)
	}
}

// Resume clears the global pause. Per-key pauses stay in place.
func (s *Service) Resume() {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	keys := s.keysLocked(nil)
	s.mu.Unlock()

	s.log.Info("scheduler resumed", logx.Int("jobs", len(keys)))
	for _, k := range keys {
		s.listener.OnJobResumed(k)
	}
}

// Paused reports the global pause flag.
func (s *Service) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// PauseJob suspends ticks for one job. It fails with job.ErrNotScheduled for
// an unknown key.
func (s *Service) PauseJob(key job.Key) error {
	return s.setJobPaused(key, true)
}

// ResumeJob clears a PauseJob. It fails with job.ErrNotScheduled for an
// unknown key.
func (s *Service) ResumeJob(key job.Key) error {
	return s.setJobPaused(key, false)
}

func (s *Service) setJobPaused(key job.Key, paused bool) error {
	s.mu.Lock()
	rj := s.jobs[key]
	if rj == nil {
		s.mu.Unlock()
		return job.NotScheduled(key)
	}
	changed := rj.paused != paused
	rj.paused = paused
	s.mu.Unlock()

	if !changed {
		return nil
	}
	if paused {
		s.log.Info("job paused", logx.Stringer("job", key))
		s.listener.OnJobPaused(key)
	} else {
		s.log.Info("job resumed", logx.Stringer("job", key))
		s.listener.OnJobResumed(key)
	}
	return nil
}
