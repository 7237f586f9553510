package config

import (
	"bytes"
	"encoding/json"
	"strings"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Engine controls the worker pool that executes job tasks.
	// If omitted, runtime defaults are used.
	Engine *EngineConfig `json:"engine,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Ops     OpsConfig      `json:"ops,omitempty"`
	Jobs    []JobConfig    `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the job scheduler.
type SchedulerConfig struct {
	// PausedAtStartup starts the scheduler globally paused. Only read once.
	PausedAtStartup bool `json:"paused_at_startup,omitempty"`

	// Paused is the hot-reloadable global pause switch.
	// A nil value leaves the current pause state alone.
	Paused *bool `json:"paused,omitempty"`

	// Timezone used for next-run reporting (IANA name, default Local).
	Timezone string `json:"timezone,omitempty"`
}

// EngineConfig controls the task execution engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 16
//   - queue_size: 256
//   - history_size: 200
type EngineConfig struct {
	Workers     int `json:"workers,omitempty"`
	QueueSize   int `json:"queue_size,omitempty"`
	HistorySize int `json:"history_size,omitempty"`
}

// StorageConfig controls the optional run-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/jobsched.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retention   string `json:"retention,omitempty"`    // Go duration string (sqlite)
}

// OpsConfig controls the optional operations HTTP server
// (pprof, metrics, job status).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /debug/pprof/profile works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// JobConfig declares one built-in job.
//
// The job key is category/kind/id; category defaults to DefaultCategory.
type JobConfig struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Category    string `json:"category,omitempty"`
	Schedule    string `json:"schedule"`
	Description string `json:"description,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`

	// Timeout bounds a single run (Go duration string). Empty means no bound.
	Timeout string `json:"timeout,omitempty"`

	// Kind specific settings.
	Message      string `json:"message,omitempty"`       // log
	URL          string `json:"url,omitempty"`           // http
	Method       string `json:"method,omitempty"`        // http, default GET
	ExpectStatus int    `json:"expect_status,omitempty"` // http, default any 2xx

	// Params are default parameters merged under forced-run parameters.
	Params map[string]string `json:"params,omitempty"`
}

const DefaultCategory = "config"

// CategoryName returns the effective category.
func (j JobConfig) CategoryName() string {
	if c := strings.TrimSpace(j.Category); c != "" {
		return c
	}
	return DefaultCategory
}

// UnmarshalJSON disallows unknown fields so typos inside a job block
// are caught during reload.
func (j *JobConfig) UnmarshalJSON(b []byte) error {
	type plain JobConfig
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t plain
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*j = JobConfig(t)
	return nil
}
