package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"jobsched/internal/config"
	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

// Scheduler is the part of the scheduler the syncer drives.
type Scheduler interface {
	Schedule(j job.Job, s job.Schedule) error
	Unschedule(key job.Key) bool
}

// SyncResult lists what a Sync call changed, by key.
type SyncResult struct {
	Added       []job.Key
	Rescheduled []job.Key
	Replaced    []job.Key
	Toggled     []job.Key
	Removed     []job.Key
}

func (r SyncResult) Empty() bool {
	return len(r.Added)+len(r.Rescheduled)+len(r.Replaced)+len(r.Toggled)+len(r.Removed) == 0
}

// Syncer keeps the scheduler's config-declared jobs equal to the latest config.
// Jobs scheduled by other collaborators are never touched.
type Syncer struct {
	reg   *Registry
	sched Scheduler
	log   logx.Logger

	mu     sync.Mutex
	active map[job.Key]*ConfigJob
}

func NewSyncer(reg *Registry, sched Scheduler, log logx.Logger) *Syncer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Syncer{reg: reg, sched: sched, log: log, active: map[job.Key]*ConfigJob{}}
}

// Get returns the active config job for key.
func (s *Syncer) Get(key job.Key) (*ConfigJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.active[key]
	return j, ok
}

// Sync applies cfgs:
//   - new keys are built and scheduled
//   - a changed schedule re-arms the existing job
//   - a changed disabled flag is flipped in place
//   - any other change rebuilds the job and replaces it
//   - keys no longer present are invalidated and unscheduled
//
// A block that fails to build is skipped (the previous version, if any, keeps
// running) and reported in the returned error.
func (s *Syncer) Sync(cfgs []config.JobConfig) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res  SyncResult
		errs []error
	)
	seen := make(map[job.Key]struct{}, len(cfgs))

	for _, jc := range cfgs {
		key := jc.Key()
		seen[key] = struct{}{}

		next, err := s.reg.Build(jc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		cur := s.active[key]

		switch {
		case cur == nil:
			if err := s.sched.Schedule(next, next.Schedule()); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			s.active[key] = next
			res.Added = append(res.Added, key)

		case !cur.sameTask(next):
			cur.Invalidate()
			if err := s.sched.Schedule(next, next.Schedule()); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			s.active[key] = next
			res.Replaced = append(res.Replaced, key)

		default:
			if !cur.Schedule().Equal(next.Schedule()) {
				cur.schedule = next.Schedule()
				cur.spec.Schedule = jc.Schedule
				if err := s.sched.Schedule(cur, cur.Schedule()); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", key, err))
					continue
				}
				res.Rescheduled = append(res.Rescheduled, key)
			}
			if cur.Disabled() != jc.Disabled {
				cur.SetDisabled(jc.Disabled)
				cur.spec.Disabled = jc.Disabled
				res.Toggled = append(res.Toggled, key)
			}
		}
	}

	for key, cur := range s.active {
		if _, ok := seen[key]; ok {
			continue
		}
		cur.Invalidate()
		s.sched.Unschedule(key)
		delete(s.active, key)
		res.Removed = append(res.Removed, key)
	}
	sortKeys(res.Removed)

	if !res.Empty() {
		s.log.Info("jobs synced",
			logx.Int("added", len(res.Added)),
			logx.Int("rescheduled", len(res.Rescheduled)),
			logx.Int("replaced", len(res.Replaced)),
			logx.Int("toggled", len(res.Toggled)),
			logx.Int("removed", len(res.Removed)),
		)
	}
	return res, errors.Join(errs...)
}

func sortKeys(keys []job.Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
