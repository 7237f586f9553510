package job

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestScheduleValues(t *testing.T) {
	t.Parallel()
	if !None.IsNone() || None.Period() != 0 {
		t.Fatal("None must have no period")
	}
	if EverySecond.Period() != time.Second || EverySecond.InitialDelay() != 0 {
		t.Fatalf("EverySecond = %v", EverySecond)
	}
	if EveryMinute.Period() != time.Minute {
		t.Fatalf("EveryMinute = %v", EveryMinute)
	}
	s := EverySeconds(5).After(2)
	if s.InitialDelay() != 2*time.Second || s.Period() != 5*time.Second {
		t.Fatalf("After: %v", s)
	}
	// value semantics
	if EverySeconds(5).InitialDelay() != 0 {
		t.Fatal("After must not mutate the receiver")
	}
	if !None.After(3).IsNone() {
		t.Fatal("None.After must stay None")
	}
	if !NewSchedule(1, 0, time.Second).IsNone() {
		t.Fatal("zero period must be None")
	}
	if !Every(time.Minute).Equal(EveryMinutes(1)) || Every(time.Minute) != EveryMinutes(1) {
		t.Fatal("Every(1m) should equal EveryMinutes(1)")
	}
	if got := EverySeconds(90).AfterDuration(2500 * time.Millisecond).InitialDelay(); got != 2*time.Second {
		t.Fatalf("AfterDuration rounding: %v", got)
	}
}

func TestScheduleDurationLimits(t *testing.T) {
	t.Parallel()
	const maxDur = time.Duration(math.MaxInt64)
	tests := []struct {
		name        string
		s           Schedule
		none        bool
		wantInitial time.Duration
	}{
		{name: "huge seconds period", s: EverySeconds(1 << 62), none: true},
		{name: "huge minutes period", s: EveryMinutes(math.MaxInt64 / 60), none: true},
		{name: "largest second period", s: EverySeconds(int64(maxDur / time.Second))},
		{name: "huge initial clamped", s: NewSchedule(1<<62, 1, time.Second), wantInitial: maxDur / time.Second * time.Second},
		{name: "After saturates", s: EverySeconds(1).After(1 << 62).After(1 << 62), wantInitial: maxDur / time.Second * time.Second},
		{name: "After adds", s: EveryMinutes(1).After(2), wantInitial: 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.IsNone(); got != tt.none {
				t.Fatalf("IsNone = %v, want %v (%v)", got, tt.none, tt.s)
			}
			if tt.none {
				return
			}
			if tt.s.Period() <= 0 {
				t.Fatalf("period = %s, want positive", tt.s.Period())
			}
			if tt.s.InitialDelay() != tt.wantInitial {
				t.Fatalf("initial = %s, want %s", tt.s.InitialDelay(), tt.wantInitial)
			}
		})
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in            string
		period, delay time.Duration
		none          bool
		wantErr       bool
	}{
		{in: "none", none: true},
		{in: "-", none: true},
		{in: "30s", period: 30 * time.Second},
		{in: "2h30m", period: 150 * time.Minute},
		{in: "00:50", period: 50 * time.Minute},
		{in: "02:30", period: 150 * time.Minute},
		{in: "every:1m after:10s", period: time.Minute, delay: 10 * time.Second},
		{in: "EVERY:00:05", period: 5 * time.Minute},
		{in: "", wantErr: true},
		{in: "0s", wantErr: true},
		{in: "00:61", wantErr: true},
		{in: "every:1m later:2s", wantErr: true},
		{in: "every:1m after:-2s", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSchedule(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.IsNone() != tc.none {
				t.Fatalf("IsNone = %v", got.IsNone())
			}
			if got.Period() != tc.period || got.InitialDelay() != tc.delay {
				t.Fatalf("got period=%v delay=%v", got.Period(), got.InitialDelay())
			}
		})
	}
}

func TestScheduleStringRoundTrip(t *testing.T) {
	t.Parallel()
	for _, s := range []Schedule{None, EverySecond, EveryMinutes(5).After(1)} {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var back Schedule
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if !back.Equal(s) {
			t.Fatalf("round trip %v -> %s -> %v", s, b, back)
		}
	}
	if got := EveryMinutes(1).After(1).String(); got != "every:1m0s after:1m0s" {
		t.Fatalf("String() = %q", got)
	}
}
