package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jobsched/internal/config"
	"jobsched/internal/job"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

const appConfig = `
logging:
  level: error
  console: false
engine:
  workers: 2
storage:
  driver: sqlite
  path: %DIR%/runs.db
jobs:
  - id: beat
    kind: log
    schedule: none
    message: hello
`

func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestAppLifecycleAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobsched.yaml")
	writeConfig(t, path, strings.ReplaceAll(appConfig, "%DIR%", dir))

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = a.Stop(stopCtx, StopAppStop)
	}()

	beat := job.CategoryOf(config.DefaultCategory).Type("log").Key("beat")
	f, err := a.Scheduler().FireImmediately(beat)
	if err != nil {
		t.Fatalf("FireImmediately: %v", err)
	}
	if err := f.WaitTimeout(2 * time.Second); err != nil {
		t.Fatalf("run: %v", err)
	}

	// the recorder persisted the run
	if !waitFor(t, 2*time.Second, func() bool {
		runs, err := a.store.RecentRuns(context.Background(), beat.String(), 10)
		return err == nil && len(runs) == 1 && runs[0].OK
	}) {
		t.Fatalf("run not recorded")
	}

	if err := a.health(); err != nil {
		t.Fatalf("health: %v", err)
	}

	// hot reload: pause globally, swap the job set
	next := strings.ReplaceAll(appConfig, "%DIR%", dir)
	next = strings.Replace(next, "jobs:\n", "scheduler:\n  paused: true\njobs:\n", 1)
	next = strings.Replace(next, "id: beat", "id: pulse", 1)
	time.Sleep(300 * time.Millisecond)
	writeConfig(t, path, next)

	pulse := job.CategoryOf(config.DefaultCategory).Type("log").Key("pulse")
	if !waitFor(t, 5*time.Second, func() bool {
		_, hasPulse := a.Scheduler().JobStatus(pulse)
		_, hasBeat := a.Scheduler().JobStatus(beat)
		return hasPulse && !hasBeat && a.Scheduler().Paused()
	}) {
		t.Fatalf("reload not applied: keys=%v paused=%v", a.Scheduler().AllJobKeys(), a.Scheduler().Paused())
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobsched.json")
	writeConfig(t, path, `{"logging": {"level": "error"}, "scheduler": {}, "jobs": [{"id": "x", "kind": "shell", "schedule": "1m"}]}`)

	if _, err := New(path); err == nil || !strings.Contains(err.Error(), "unknown job kind") {
		t.Fatalf("err=%v", err)
	}
}

func TestMapOpsConfig(t *testing.T) {
	t.Parallel()

	oc, err := mapOpsConfig(&config.Config{Ops: config.OpsConfig{Enabled: true, ReadTimeout: "2s"}})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if oc.Addr != config.DefaultOpsAddr || oc.ReadTimeout != 2*time.Second || oc.WriteTimeout != 0 || oc.IdleTimeout != time.Minute {
		t.Fatalf("ops=%+v", oc)
	}
	if _, err := mapOpsConfig(&config.Config{Ops: config.OpsConfig{IdleTimeout: "soon"}}); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      *config.StorageConfig
		enabled bool
		wantErr bool
	}{
		{name: "nil", in: nil},
		{name: "none", in: &config.StorageConfig{Driver: "none"}},
		{name: "file", in: &config.StorageConfig{Driver: "file", Path: "x"}, enabled: true},
		{name: "sqlite", in: &config.StorageConfig{Driver: "SQLite", Path: "x.db", Retention: "72h"}, enabled: true},
		{name: "sqlite no path", in: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "unknown", in: &config.StorageConfig{Driver: "etcd"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, enabled, err := mapStorageConfig(&config.Config{Storage: tt.in})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v", err)
			}
			if enabled != tt.enabled {
				t.Fatalf("enabled=%v", enabled)
			}
			if tt.name == "sqlite" && (sc.Driver != "sqlite" || sc.Retention != 72*time.Hour || sc.BusyTimeout != time.Second) {
				t.Fatalf("sc=%+v", sc)
			}
		})
	}
}

func TestMapSchedulerConfig(t *testing.T) {
	t.Parallel()

	yes := true
	if !mapSchedulerConfig(&config.Config{Scheduler: config.SchedulerConfig{Paused: &yes}}).PausedAtStartup {
		t.Fatal("paused should start paused")
	}
	if mapSchedulerConfig(&config.Config{}).PausedAtStartup {
		t.Fatal("default should not be paused")
	}
}
