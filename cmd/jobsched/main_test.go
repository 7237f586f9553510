package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfig = `
logging:
  level: error
jobs:
  - id: beat
    kind: log
    schedule: 1m
    description: heartbeat
  - id: site
    kind: http
    category: checks
    schedule: none
    url: http://127.0.0.1:1/
    disabled: true
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { jobsMatch = "" })
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestValidateCommand(t *testing.T) {
	p := writeTestConfig(t, testConfig)
	out, err := execute(t, "validate", "--config", p)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "ok (2 jobs)") {
		t.Fatalf("out=%q", out)
	}

	bad := writeTestConfig(t, strings.Replace(testConfig, "kind: log", "kind: shell", 1))
	if _, err := execute(t, "validate", "--config", bad); err == nil || !strings.Contains(err.Error(), "unknown job kind") {
		t.Fatalf("err=%v", err)
	}
}

func TestJobsCommand(t *testing.T) {
	p := writeTestConfig(t, testConfig)

	out, err := execute(t, "jobs", "--config", p)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "config/log/beat") || !strings.Contains(out, "checks/http/site") || !strings.Contains(out, "disabled") {
		t.Fatalf("out=%q", out)
	}

	out, err = execute(t, "jobs", "--config", p, "--match", "checks/**")
	if err != nil {
		t.Fatalf("jobs --match: %v", err)
	}
	if strings.Contains(out, "config/log/beat") || !strings.Contains(out, "checks/http/site") {
		t.Fatalf("out=%q", out)
	}
}
