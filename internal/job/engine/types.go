package engine

import (
	"context"
	"time"
)

// Config controls the task execution engine.
//
// The scheduler is trigger-only; every run it decides to start is handed to
// this engine, which owns the worker goroutines.
type Config struct {
	Workers   int
	QueueSize int

	// HistorySize bounds the ring of recent results kept for diagnostics.
	HistorySize int
}

const (
	defaultWorkers     = 16
	defaultQueueSize   = 256
	defaultHistorySize = 200
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	return c
}

// Task is a unit of work executed by the engine.
//
// OnDone is called exactly once per accepted task, after Run returns (or
// panics), or when the engine stops before the task was picked up.
type Task struct {
	ID     string
	Name   string
	Run    func(ctx context.Context) error
	OnDone func(Result)
}

// Result describes how a task ended.
type Result struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Err        error
}

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Running  bool
	Workers  int
	InFlight int
	QueueLen int
	QueueCap int

	Executed         uint64
	Failed           uint64
	Panics           uint64
	DroppedQueueFull uint64

	History []HistoryItem
}
