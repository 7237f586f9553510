package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

const appendTimeout = 2 * time.Second

// Recorder is a job.Listener appending every finished run to a Store.
type Recorder struct {
	job.NopListener

	store Store
	log   logx.Logger
	warn  *rate.Limiter
}

func NewRecorder(store Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, log: log, warn: rate.NewLimiter(rate.Every(time.Minute), 1)}
}

func (r *Recorder) OnJobComplete(run job.Run, took time.Duration) {
	r.append(run, took, nil)
}

func (r *Recorder) OnJobError(run job.Run, err error, took time.Duration) {
	r.append(run, took, err)
}

func (r *Recorder) append(run job.Run, took time.Duration, err error) {
	if r == nil || r.store == nil {
		return
	}
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}
	at := run.StartedAt
	if at.IsZero() {
		at = time.Now().Add(-took)
	}
	rec := RunRecord{
		ID:     id,
		Key:    run.Key.String(),
		At:     at,
		OK:     err == nil,
		Forced: run.Forced,
		Error:  job.FailureMessage(err),
		TookMS: took.Milliseconds(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if aerr := r.store.AppendRun(ctx, rec); aerr != nil && r.warn.Allow() {
		r.log.Warn("run history append failed", logx.Stringer("job", run.Key), logx.Err(aerr))
	}
}
