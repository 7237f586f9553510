package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"jobsched/internal/job"
	"jobsched/internal/job/engine"
	logx "jobsched/pkg/logx"
)

// Config controls the scheduler (trigger) service.
type Config struct {
	// PausedAtStartup starts the scheduler globally paused; forced runs still work.
	PausedAtStartup bool
	// Timezone is the IANA zone used by cron's clock, e.g. "Asia/Jakarta".
	Timezone string
}

type Option func(*Service)

// WithListener installs the lifecycle listener. Use job.Listeners to combine several.
func WithListener(l job.Listener) Option {
	return func(s *Service) {
		if l != nil {
			s.listener = l
		}
	}
}

// WithDecorator wraps every task before it is handed to the engine.
func WithDecorator(d job.Decorator) Option {
	return func(s *Service) {
		if d != nil {
			s.decorator = d
		}
	}
}

type Service struct {
	mu sync.Mutex

	log       logx.Logger
	cfg       Config
	engine    *engine.Service
	listener  job.Listener
	decorator job.Decorator

	c       *cron.Cron
	started bool
	paused  bool

	jobs map[job.Key]*registeredJob

	// Enqueue error throttling, per job key.
	warnMu sync.Mutex
	warns  map[job.Key]*rate.Limiter
}

// registeredJob is the scheduler-owned wrapper of a Job. Fields other than
// running are guarded by Service.mu.
type registeredJob struct {
	job      job.Job
	schedule job.Schedule
	timer    *fixedRateSchedule // nil when unarmed
	entryID  cron.EntryID
	gen      uint64 // bumped on every (re)arm; stale cron ticks compare it
	paused   bool
	once     bool

	running atomic.Pointer[run]

	lastError   string
	errorCount  int
	lastRunAt   time.Time
	lastRunTook time.Duration
}

// run is one execution. Forced runs that find a run in flight share its future.
type run struct {
	info     job.Run
	future   *job.Future
	complete func(error)
}

// acquire starts a new run unless one is in flight. It returns the run the
// caller should observe and whether the caller owns it.
func (rj *registeredJob) acquire(newRun func() *run) (*run, bool) {
	var fresh *run
	for {
		if cur := rj.running.Load(); cur != nil {
			return cur, false
		}
		if fresh == nil {
			fresh = newRun()
		}
		if rj.running.CompareAndSwap(nil, fresh) {
			return fresh, true
		}
	}
}

func (rj *registeredJob) key() job.Key { return rj.job.Key() }
