package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"jobsched/internal/job"
	"jobsched/internal/job/engine"
	logx "jobsched/pkg/logx"
)

const enqueueWarnEvery = 30 * time.Second

func newRun(key job.Key, forced bool) *run {
	f, complete := job.NewPromise()
	return &run{
		info:     job.Run{ID: uuid.NewString(), Key: key, Forced: forced, StartedAt: time.Now()},
		future:   f,
		complete: complete,
	}
}

// FireImmediately runs the job now, bypassing scheduler pause. If a run is
// already in flight the returned future follows that run instead.
func (s *Service) FireImmediately(key job.Key) (*job.Future, error) {
	return s.FireImmediatelyWith(key, nil)
}

// FireImmediatelyWith is FireImmediately with run parameters. Parameters
// reach the task only for a job.ParameterizedJob starting a new run; they are
// ignored when attaching to an in-flight run.
func (s *Service) FireImmediatelyWith(key job.Key, params map[string]string) (*job.Future, error) {
	s.mu.Lock()
	rj := s.jobs[key]
	if rj == nil {
		s.mu.Unlock()
		return nil, job.NotScheduled(key)
	}
	if !job.IsValid(rj.job) {
		s.removeLocked(rj, "invalid")
		s.mu.Unlock()
		return job.CompletedFuture(nil), nil
	}
	if rj.job.Disabled() {
		s.mu.Unlock()
		s.log.Debug("fire skipped: job disabled", logx.Stringer("job", key))
		return job.CompletedFuture(nil), nil
	}
	j := rj.job
	r, owner := rj.acquire(func() *run { return newRun(key, true) })
	var task job.Task
	if owner {
		task = job.TaskFor(j, params)
	}
	s.mu.Unlock()

	if !owner {
		s.log.Debug("fire attached to running job", logx.Stringer("job", key), logx.String("run", r.info.ID))
		return r.future, nil
	}
	s.dispatch(rj, j, r, task)
	return r.future, nil
}

// tick is the cron callback. gen identifies the arming that produced it.
func (s *Service) tick(key job.Key, gen uint64) {
	s.mu.Lock()
	rj := s.jobs[key]
	if rj == nil || rj.gen != gen {
		// Unscheduled or re-armed since cron fired.
		s.mu.Unlock()
		return
	}
	if !job.IsValid(rj.job) {
		s.removeLocked(rj, "invalid")
		s.mu.Unlock()
		return
	}
	if rj.job.Disabled() || s.paused || rj.paused {
		s.mu.Unlock()
		return
	}
	r, owner := rj.acquire(func() *run { return newRun(key, false) })
	if !owner {
		s.mu.Unlock()
		s.log.Trace("tick skipped: still running", logx.Stringer("job", key), logx.String("run", r.info.ID))
		return
	}
	j := rj.job
	task := j.Task()
	s.mu.Unlock()

	s.dispatch(rj, j, r, task)
}

// dispatch hands an acquired run to the engine. j is the job instance the
// run was acquired for; rj.job may be swapped by Schedule once s.mu is
// released.
func (s *Service) dispatch(rj *registeredJob, j job.Job, r *run, task job.Task) {
	key := r.info.Key
	if task == nil {
		s.finish(rj, r, engine.Result{ID: r.info.ID, Started: time.Now(), Err: errors.New("job has no task")})
		return
	}
	task = s.decorator.Decorate(j, task)
	rl := runListener{s: s, run: r.info}

	err := s.engine.Enqueue(engine.Task{
		ID:   r.info.ID,
		Name: key.String(),
		Run: func(ctx context.Context) error {
			s.listener.OnJobStart(r.info)
			s.log.Debug("job.started", logx.Stringer("job", key), logx.String("run", r.info.ID), logx.Bool("forced", r.info.Forced))
			return task(ctx, rl)
		},
		OnDone: func(res engine.Result) { s.finish(rj, r, res) },
	})
	if err != nil {
		s.abort(rj, r, err)
	}
}

// abort releases a run that never reached a worker or was cut short by an
// engine stop. The job's error state is left untouched.
func (s *Service) abort(rj *registeredJob, r *run, err error) {
	key := r.info.Key
	s.mu.Lock()
	rj.running.CompareAndSwap(r, nil)
	if rj.once && s.jobs[key] == rj {
		s.removeLocked(rj, "run once aborted")
	}
	s.mu.Unlock()

	if s.warnLimiter(key).Allow() {
		s.log.Warn("job run aborted", logx.Stringer("job", key), logx.Err(err))
	}
	r.complete(err)
}

func (s *Service) finish(rj *registeredJob, r *run, res engine.Result) {
	if errors.Is(res.Err, engine.ErrStopped) {
		s.abort(rj, r, res.Err)
		return
	}
	key := r.info.Key

	s.mu.Lock()
	rj.lastRunAt = res.Started
	rj.lastRunTook = res.Duration
	if res.Err != nil {
		rj.errorCount++
		rj.lastError = job.FailureMessage(res.Err)
	} else {
		rj.errorCount = 0
		rj.lastError = ""
	}
	count := rj.errorCount
	rj.running.CompareAndSwap(r, nil)
	if rj.once && s.jobs[key] == rj {
		s.removeLocked(rj, "run once completed")
	}
	s.mu.Unlock()

	if res.Err != nil {
		s.log.Warn("job.failed", logx.Stringer("job", key), logx.String("run", r.info.ID), logx.Err(res.Err), logx.Int("error_count", count), logx.Duration("dur", res.Duration))
		s.listener.OnJobError(r.info, res.Err, res.Duration)
		r.complete(&job.TaskError{Key: key, Err: res.Err})
		return
	}
	s.log.Debug("job.completed", logx.Stringer("job", key), logx.String("run", r.info.ID), logx.Duration("dur", res.Duration))
	s.listener.OnJobComplete(r.info, res.Duration)
	r.complete(nil)
}

func (s *Service) warnLimiter(key job.Key) *rate.Limiter {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	l := s.warns[key]
	if l == nil {
		l = rate.NewLimiter(rate.Every(enqueueWarnEvery), 1)
		s.warns[key] = l
	}
	return l
}

type runListener struct {
	s   *Service
	run job.Run
}

func (l runListener) Message(format string, args ...any) {
	job.RunListenerFunc(func(msg string) {
		l.s.log.Debug("job.progress", logx.Stringer("job", l.run.Key), logx.String("run", l.run.ID), logx.String("msg", msg))
		l.s.listener.OnJobProgress(l.run, msg)
	}).Message(format, args...)
}
