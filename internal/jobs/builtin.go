package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jobsched/internal/config"
	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

const (
	KindLog  = "log"
	KindHTTP = "http"
)

// Parameter names understood by the built-in kinds on forced runs.
const (
	ParamMessage = "message"
	ParamURL     = "url"
	ParamFail    = "fail"
)

const defaultHeartbeat = "heartbeat"

// newLogJob writes a heartbeat line. Setting the "fail" parameter makes the
// run fail with that message, which is handy for checking alerting paths.
func newLogJob(jc config.JobConfig, deps Deps) (RunFunc, error) {
	msg := strings.TrimSpace(jc.Message)
	if msg == "" {
		msg = defaultHeartbeat
	}
	log := deps.Log
	return func(ctx context.Context, l job.RunListener, params map[string]string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := msg
		if v := strings.TrimSpace(params[ParamMessage]); v != "" {
			m = v
		}
		if reason, ok := params[ParamFail]; ok {
			return errors.New(reason)
		}
		log.Info("job.heartbeat", logx.String("message", m))
		l.Message("%s", m)
		return nil
	}, nil
}

const maxProbeBody = 4 << 10

// newHTTPJob requests a URL and fails on transport errors or an unexpected
// status code.
func newHTTPJob(jc config.JobConfig, deps Deps) (RunFunc, error) {
	target := strings.TrimSpace(jc.URL)
	if target == "" {
		return nil, fmt.Errorf("url required for kind %q", KindHTTP)
	}
	method := strings.ToUpper(strings.TrimSpace(jc.Method))
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions:
	default:
		return nil, fmt.Errorf("unsupported method %q", jc.Method)
	}
	expect := jc.ExpectStatus
	client := deps.HTTP
	log := deps.Log

	return func(ctx context.Context, l job.RunListener, params map[string]string) error {
		u := target
		if v := strings.TrimSpace(params[ParamURL]); v != "" {
			u = v
		}
		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", "jobsched-check")

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, u, err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProbeBody))
		took := time.Since(start)

		l.Message("%s %s -> %d in %s", method, u, resp.StatusCode, took.Round(time.Millisecond))
		log.Debug("job.http",
			logx.String("url", u),
			logx.Int("status", resp.StatusCode),
			logx.Duration("took", took),
		)
		if !statusOK(resp.StatusCode, expect) {
			if expect != 0 {
				return fmt.Errorf("%s %s: status %d, want %d", method, u, resp.StatusCode, expect)
			}
			return fmt.Errorf("%s %s: status %d", method, u, resp.StatusCode)
		}
		return nil
	}, nil
}

func statusOK(code, expect int) bool {
	if expect != 0 {
		return code == expect
	}
	return code >= 200 && code < 300
}
