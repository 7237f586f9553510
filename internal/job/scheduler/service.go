package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"jobsched/internal/job"
	"jobsched/internal/job/engine"
	logx "jobsched/pkg/logx"
)

func New(cfg Config, eng *engine.Service, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:       cfg,
		log:       log,
		engine:    eng,
		listener:  job.NopListener{},
		decorator: job.ChainDecorators(),
		paused:    cfg.PausedAtStartup,
		jobs:      map[job.Key]*registeredJob{},
		warns:     map[job.Key]*rate.Limiter{},
	}
	for _, o := range opts {
		o(s)
	}
	cl := cronLogger{log: log.With(logx.String("comp", "cron"))}
	s.c = cron.New(
		cron.WithLocation(loadLocation(cfg.Timezone, log)),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	return s
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Start starts cron triggering. Jobs registered before Start whose first
// slot already passed run immediately.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.c.Start()
	s.log.Info("service started", logx.Int("jobs", len(s.jobs)), logx.Bool("paused", s.paused))
}

// Stop stops cron triggering and waits (bounded by ctx) for cron to settle.
// In-flight runs are owned by the engine and are not interrupted here.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	c := s.c
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Schedule registers j, or re-arms it with sched if its key is already
// registered. A run in flight is left alone and completes under the old
// cadence.
func (s *Service) Schedule(j job.Job, sched job.Schedule) error {
	if err := checkJob(j); err != nil {
		return err
	}
	key := j.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	rj := s.jobs[key]
	if rj == nil {
		rj = &registeredJob{job: j}
		s.jobs[key] = rj
		s.log.Info("job scheduled", logx.Stringer("job", key), logx.Stringer("schedule", sched))
	} else {
		rj.job = j
		rj.once = false
		s.log.Info("job rescheduled", logx.Stringer("job", key), logx.Stringer("from", rj.schedule), logx.Stringer("to", sched))
	}
	rj.schedule = sched
	s.armLocked(rj)
	return nil
}

// Unschedule removes the job. It reports whether the key was registered.
// A run in flight finishes; no further ticks occur.
func (s *Service) Unschedule(key job.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rj := s.jobs[key]
	if rj == nil {
		return false
	}
	s.removeLocked(rj, "unscheduled")
	return true
}

// RunOnce executes j a single time outside of any cadence. The job is
// visible (and reported running) only until the run completes.
func (s *Service) RunOnce(j job.Job) (*job.Future, error) {
	if err := checkJob(j); err != nil {
		return nil, err
	}
	key := j.Key()

	s.mu.Lock()
	if _, exists := s.jobs[key]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", job.ErrAlreadyScheduled, key)
	}
	if !job.IsValid(j) || j.Disabled() {
		s.mu.Unlock()
		return job.CompletedFuture(nil), nil
	}
	rj := &registeredJob{job: j, schedule: job.None, once: true}
	s.jobs[key] = rj
	r, _ := rj.acquire(func() *run { return newRun(key, true) })
	task := job.TaskFor(j, nil)
	s.mu.Unlock()

	s.log.Debug("job run once", logx.Stringer("job", key), logx.String("run", r.info.ID))
	s.dispatch(rj, j, r, task)
	return r.future, nil
}

func checkJob(j job.Job) error {
	if j == nil {
		return fmt.Errorf("%w: nil job", job.ErrInvalidJob)
	}
	k := j.Key()
	if strings.TrimSpace(k.Category) == "" || strings.TrimSpace(k.Type) == "" || strings.TrimSpace(k.ID) == "" {
		return fmt.Errorf("%w: incomplete key %q", job.ErrInvalidJob, k)
	}
	return nil
}

// armLocked (re)creates the cron entry for rj's schedule.
func (s *Service) armLocked(rj *registeredJob) {
	s.disarmLocked(rj)
	rj.gen++
	if rj.schedule.IsNone() {
		return
	}
	key, gen := rj.key(), rj.gen
	rj.timer = newFixedRate(time.Now(), rj.schedule.InitialDelay(), rj.schedule.Period())
	rj.entryID = s.c.Schedule(rj.timer, cron.FuncJob(func() { s.tick(key, gen) }))
}

func (s *Service) disarmLocked(rj *registeredJob) {
	if rj.entryID != 0 {
		s.c.Remove(rj.entryID)
	}
	rj.entryID = 0
	rj.timer = nil
}

func (s *Service) removeLocked(rj *registeredJob, reason string) {
	key := rj.key()
	s.disarmLocked(rj)
	rj.gen++
	if s.jobs[key] == rj {
		delete(s.jobs, key)
	}
	s.warnMu.Lock()
	delete(s.warns, key)
	s.warnMu.Unlock()
	s.log.Info("job removed", logx.Stringer("job", key), logx.String("reason", reason))
}
