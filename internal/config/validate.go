package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"jobsched/internal/job"
	"jobsched/internal/storage"
	logx "jobsched/pkg/logx"
)

// Validate checks everything that can be checked without knowing the job kinds.
// All problems are reported at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	if e := cfg.Engine; e != nil {
		if e.Workers < 0 {
			add(errors.New("engine.workers: must be >= 0"))
		}
		if e.QueueSize < 0 {
			add(errors.New("engine.queue_size: must be >= 0"))
		}
		if e.HistorySize < 0 {
			add(errors.New("engine.history_size: must be >= 0"))
		}
	}

	if st := cfg.Storage; st != nil {
		if !storage.ValidDriver(st.Driver) {
			add(fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
	}

	for _, f := range cfg.durationFields() {
		_, err := ParseDurationField(f.path, f.raw)
		add(err)
	}

	add(validateOps(cfg.Ops))

	seen := make(map[string]int, len(cfg.Jobs))
	for i, jc := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		if err := validateJob(path, jc); err != nil {
			add(err)
			continue
		}
		k := jc.Key().String()
		if prev, dup := seen[k]; dup {
			add(fmt.Errorf("%s: duplicate job key %q (also jobs[%d])", path, k, prev))
			continue
		}
		seen[k] = i
	}

	return errors.Join(errs...)
}

func validateOps(o OpsConfig) error {
	if !o.Enabled {
		return nil
	}
	var errs []error
	addr := strings.TrimSpace(o.Addr)
	if addr == "" {
		addr = DefaultOpsAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		errs = append(errs, fmt.Errorf("ops.addr: %w", err))
	} else if !isLoopbackHost(host) && strings.TrimSpace(o.Token) == "" && !o.AllowInsecure {
		errs = append(errs, fmt.Errorf("ops.addr: %q is not loopback; set ops.token or ops.allow_insecure", addr))
	}
	return errors.Join(errs...)
}

func validateJob(path string, jc JobConfig) error {
	var errs []error
	if strings.TrimSpace(jc.ID) == "" {
		errs = append(errs, fmt.Errorf("%s.id: required", path))
	}
	if strings.TrimSpace(jc.Kind) == "" {
		errs = append(errs, fmt.Errorf("%s.kind: required", path))
	}
	for _, part := range []string{jc.ID, jc.Kind, jc.Category} {
		if strings.Contains(part, "/") {
			errs = append(errs, fmt.Errorf("%s: %q must not contain '/'", path, part))
		}
	}
	if _, err := job.ParseSchedule(jc.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("%s.schedule: %w", path, err))
	}
	if u := strings.TrimSpace(jc.URL); u != "" {
		pu, err := url.Parse(u)
		if err != nil || pu.Scheme == "" || pu.Host == "" {
			errs = append(errs, fmt.Errorf("%s.url: invalid url %q", path, jc.URL))
		}
	}
	if jc.ExpectStatus != 0 && (jc.ExpectStatus < 100 || jc.ExpectStatus > 599) {
		errs = append(errs, fmt.Errorf("%s.expect_status: %d out of range", path, jc.ExpectStatus))
	}
	return errors.Join(errs...)
}

// Key returns the job key declared by this block.
func (j JobConfig) Key() job.Key {
	return job.CategoryOf(j.CategoryName()).Type(strings.TrimSpace(j.Kind)).Key(strings.TrimSpace(j.ID))
}

const DefaultOpsAddr = "127.0.0.1:6060"

func isLoopbackHost(host string) bool {
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
