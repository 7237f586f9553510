package job

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Schedule describes when a job runs: an initial delay followed by a fixed
// period, both counted in Unit. The zero value is None: the job is
// registered but never runs on its own.
//
// Schedules are values. After returns a modified copy.
type Schedule struct {
	initial int64
	period  int64
	unit    time.Duration
}

// None registers a job without arming a timer; it only runs when fired.
var None = Schedule{}

var (
	EverySecond = EverySeconds(1)
	EveryMinute = EveryMinutes(1)
)

// NewSchedule builds a schedule of period units, started after initial units.
// A non-positive period or unit yields None, as does a period too long to
// express as a time.Duration. An initial delay past that limit is clamped.
func NewSchedule(initial, period int64, unit time.Duration) Schedule {
	if period <= 0 || unit <= 0 {
		return None
	}
	limit := maxUnits(unit)
	if period > limit {
		return None
	}
	initial = min(max(initial, 0), limit)
	return Schedule{initial: initial, period: period, unit: unit}
}

// maxUnits is the largest count of unit that fits in a time.Duration.
func maxUnits(unit time.Duration) int64 { return math.MaxInt64 / int64(unit) }

func EverySeconds(n int64) Schedule { return NewSchedule(0, n, time.Second) }
func EveryMinutes(n int64) Schedule { return NewSchedule(0, n, time.Minute) }

// Every builds a schedule from a plain duration.
func Every(d time.Duration) Schedule { return NewSchedule(0, int64(d), time.Nanosecond).normalize() }

// After returns a copy with n more units of initial delay. None stays None.
func (s Schedule) After(n int64) Schedule {
	if s.IsNone() || n <= 0 {
		return s
	}
	if limit := maxUnits(s.unit); n > limit-s.initial {
		s.initial = limit
	} else {
		s.initial += n
	}
	return s
}

// AfterDuration is After expressed as a duration; it is rounded down to the
// schedule's unit.
func (s Schedule) AfterDuration(d time.Duration) Schedule {
	if s.IsNone() || d <= 0 {
		return s
	}
	return s.After(int64(d / s.unit))
}

func (s Schedule) IsNone() bool { return s.period <= 0 }

func (s Schedule) InitialDelay() time.Duration { return time.Duration(s.initial) * s.unit }

func (s Schedule) Period() time.Duration { return time.Duration(s.period) * s.unit }

func (s Schedule) Unit() time.Duration { return s.unit }

// normalize picks the coarsest unit that represents both delays exactly, so
// Every(time.Minute) and EveryMinutes(1) compare equal.
func (s Schedule) normalize() Schedule {
	if s.IsNone() {
		return None
	}
	initial, period := s.InitialDelay(), s.Period()
	for _, u := range []time.Duration{time.Hour, time.Minute, time.Second, time.Millisecond, time.Microsecond} {
		if initial%u == 0 && period%u == 0 {
			return Schedule{initial: int64(initial / u), period: int64(period / u), unit: u}
		}
	}
	return Schedule{initial: int64(initial), period: int64(period), unit: time.Nanosecond}
}

// Equal reports whether both schedules fire at the same offsets.
func (s Schedule) Equal(o Schedule) bool {
	if s.IsNone() || o.IsNone() {
		return s.IsNone() && o.IsNone()
	}
	return s.InitialDelay() == o.InitialDelay() && s.Period() == o.Period()
}

func (s Schedule) String() string {
	if s.IsNone() {
		return "none"
	}
	out := "every:" + s.Period().String()
	if s.initial > 0 {
		out += " after:" + s.InitialDelay().String()
	}
	return out
}

func (s Schedule) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Schedule) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p, err := ParseSchedule(raw)
	if err != nil {
		return err
	}
	*s = p
	return nil
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses the textual schedule forms used in config files:
//
//   - "none" (or "-"): never runs on its own
//   - Go duration: "30s", "2h30m"
//   - HH:MM interval: "00:50" (50 minutes), "02:30"
//   - "every:<interval>" optionally followed by "after:<delay>",
//     e.g. "every:1m after:10s"
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return None, fmt.Errorf("schedule required")
	}
	low := strings.ToLower(s)
	if low == "none" || low == "-" {
		return None, nil
	}

	var every, after string
	if strings.HasPrefix(low, "every:") {
		for _, f := range strings.Fields(s) {
			lf := strings.ToLower(f)
			switch {
			case strings.HasPrefix(lf, "every:"):
				every = f[len("every:"):]
			case strings.HasPrefix(lf, "after:"):
				after = f[len("after:"):]
			default:
				return None, fmt.Errorf("invalid schedule %q: unexpected %q", raw, f)
			}
		}
	} else {
		every = s
	}

	period, err := parseInterval(every)
	if err != nil {
		return None, err
	}
	var delay time.Duration
	if after != "" {
		delay, err = time.ParseDuration(after)
		if err != nil || delay < 0 {
			return None, fmt.Errorf("invalid initial delay %q (use a Go duration like '10s')", after)
		}
	}
	return Schedule{initial: int64(delay), period: int64(period), unit: time.Nanosecond}.normalize(), nil
}

func parseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid HH:MM %q: minutes must be < 60", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, fmt.Errorf("interval must be > 0")
		}
		return d, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
