package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt := <-queue:
			atomic.AddInt32(&s.inFlight, 1)
			s.execOne(ctx, qt)
			atomic.AddInt32(&s.inFlight, -1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	start := time.Now()
	queueDelay := start.Sub(qt.enqueuedAt)
	if queueDelay < 0 {
		queueDelay = 0
	}

	s.log.Trace("task.started", logx.String("task", qt.task.Name), logx.Duration("queue_delay", queueDelay))

	var err error
	// Guard against task panics: convert to error so one bad task can't kill a worker.
	func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				atomic.AddUint64(&s.panics, 1)
				err = &job.PanicError{Value: r, Stack: stack}
				s.log.Error("task.panic", logx.String("task", qt.task.Name), logx.Any("panic", r), logx.String("stack", string(stack)))
			}
		}()
		err = qt.task.Run(ctx)
	}()

	// Canceled by Stop: report the run as stopped, not failed.
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %w", ErrStopped, err)
	}

	atomic.AddUint64(&s.executed, 1)
	if err != nil && !errors.Is(err, ErrStopped) {
		atomic.AddUint64(&s.failed, 1)
	}
	s.finish(qt, Result{
		ID:         qt.task.ID,
		Name:       qt.task.Name,
		Started:    start,
		QueueDelay: queueDelay,
		Duration:   time.Since(start),
		Err:        err,
	})
}

func (s *Service) finish(qt queuedTask, res Result) {
	item := HistoryItem{ID: res.ID, Name: res.Name, Started: res.Started, QueueDelay: res.QueueDelay, Duration: res.Duration}
	if res.Err != nil {
		item.Error = job.FailureMessage(res.Err)
	}
	s.record(item)

	if qt.task.OnDone == nil {
		return
	}
	// A panicking callback must not take the worker down with it.
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task.on_done_panic", logx.String("task", res.Name), logx.Any("panic", r))
		}
	}()
	qt.task.OnDone(res)
}
