package scheduler

import (
	"sync/atomic"
	"time"
)

// fixedRateSchedule is a cron.Schedule firing at first, first+period,
// first+2*period, ... Missed slots are skipped rather than caught up.
//
// cron asks for Next once when the entry is armed; that first answer is
// always first, even if first is already (slightly) in the past, so a job
// without initial delay runs right away.
type fixedRateSchedule struct {
	first  time.Time
	period time.Duration
	armed  atomic.Bool
}

func newFixedRate(now time.Time, initial, period time.Duration) *fixedRateSchedule {
	return &fixedRateSchedule{first: now.Add(initial), period: period}
}

func (s *fixedRateSchedule) Next(t time.Time) time.Time {
	if !s.armed.Swap(true) {
		return s.first
	}
	return s.peek(t)
}

// A zero time tells cron the entry never fires again.
var never time.Time

// peek is Next without consuming the first slot. Used for status reporting.
func (s *fixedRateSchedule) peek(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	if !s.armed.Load() {
		// Not handed to a running cron yet: it fires as soon as cron starts.
		return t
	}
	if s.period <= 0 {
		return never
	}
	k := t.Sub(s.first)/s.period + 1
	return s.first.Add(k * s.period)
}
