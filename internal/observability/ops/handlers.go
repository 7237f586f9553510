package ops

import (
	"encoding/json"
	"errors"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobsched/internal/config"
	"jobsched/internal/job"
	"jobsched/internal/jobs"
	logx "jobsched/pkg/logx"
)

const (
	defaultRunsLimit = 50
	maxFireWait      = 30 * time.Second
)

// Handler returns the HTTP handler with auth applied (token may be empty).
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	tok := s.cfg.Token
	s.mu.Unlock()
	return s.handler(tok)
}

func (s *Service) handler(token string) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }

	mux.HandleFunc("GET /healthz", wrap(s.handleHealth))

	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", wrap(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}).ServeHTTP))
	}

	if s.deps.Scheduler != nil {
		mux.HandleFunc("GET /jobs", wrap(s.handleJobs))
		mux.HandleFunc("GET /jobs/{key...}", wrap(s.handleJob))
		mux.HandleFunc("POST /jobs/fire/{key...}", wrap(s.handleFire))
		mux.HandleFunc("POST /jobs/pause", wrap(s.handlePause(true)))
		mux.HandleFunc("POST /jobs/resume", wrap(s.handlePause(false)))
		mux.HandleFunc("POST /jobs/pause/{key...}", wrap(s.handlePause(true)))
		mux.HandleFunc("POST /jobs/resume/{key...}", wrap(s.handlePause(false)))
	}
	if s.deps.Runs != nil {
		mux.HandleFunc("GET /runs/{key...}", wrap(s.handleRuns))
	}
	if s.deps.Reloader != nil {
		mux.HandleFunc("GET /config", wrap(s.handleConfigStatus))
		mux.HandleFunc("POST /config/reload", wrap(s.handleConfigReload))
	}

	mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))
	return mux
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type jobsResponse struct {
	Paused bool         `json:"paused"`
	Jobs   []job.Status `json:"jobs"`
}

// handleJobs lists job statuses; ?match=<glob> filters by key.
func (s *Service) handleJobs(w http.ResponseWriter, r *http.Request) {
	m, err := jobs.CompileKeyPattern(r.URL.Query().Get("match"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sts := jobs.FilterStatuses(m, s.deps.Scheduler.JobStatuses())
	if sts == nil {
		sts = []job.Status{}
	}
	s.writeJSON(w, http.StatusOK, jobsResponse{Paused: s.deps.Scheduler.Paused(), Jobs: sts})
}

func (s *Service) handleJob(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	st, found := s.deps.Scheduler.JobStatus(key)
	if !found {
		http.Error(w, job.NotScheduled(key).Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

type fireResponse struct {
	Key   string `json:"key"`
	Done  bool   `json:"done"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleFire forces a run. Query parameters other than "wait" are passed to
// the job as run parameters; ?wait=<duration> waits for the result.
func (s *Service) handleFire(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var wait time.Duration
	if raw := q.Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			http.Error(w, "invalid wait duration", http.StatusBadRequest)
			return
		}
		wait = min(d, maxFireWait)
	}
	params := map[string]string{}
	for k, vs := range q {
		if k == "wait" || k == "token" || len(vs) == 0 {
			continue
		}
		params[k] = vs[0]
	}

	f, err := s.deps.Scheduler.FireImmediatelyWith(key, params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, job.ErrNotScheduled) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.log.Info("job fired via ops", logx.Stringer("job", key), logx.Int("params", len(params)))

	resp := fireResponse{Key: key.String()}
	if wait > 0 {
		if werr := f.WaitTimeout(wait); !errors.Is(werr, job.ErrWaitTimeout) {
			resp.Done = true
			resp.OK = werr == nil
			var te *job.TaskError
			if errors.As(werr, &te) {
				werr = te.Err
			}
			if werr != nil {
				resp.Error = job.FailureMessage(werr)
			}
		}
	} else if f.IsDone() {
		resp.Done = true
		resp.OK = f.Err() == nil
	}
	status := http.StatusAccepted
	if resp.Done {
		status = http.StatusOK
	}
	s.writeJSON(w, status, resp)
}

func (s *Service) handlePause(pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("key") == "" {
			if pause {
				s.deps.Scheduler.Pause()
			} else {
				s.deps.Scheduler.Resume()
			}
			s.writeJSON(w, http.StatusOK, map[string]bool{"paused": s.deps.Scheduler.Paused()})
			return
		}
		key, ok := pathKey(w, r)
		if !ok {
			return
		}
		var err error
		if pause {
			err = s.deps.Scheduler.PauseJob(key)
		} else {
			err = s.deps.Scheduler.ResumeJob(key)
		}
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, job.ErrNotScheduled) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		st, _ := s.deps.Scheduler.JobStatus(key)
		s.writeJSON(w, http.StatusOK, st)
	}
}

// handleRuns returns persisted run history for a key, newest first.
func (s *Service) handleRuns(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.deps.Runs.RecentRuns(r.Context(), key.String(), limit)
	if err != nil {
		s.log.Warn("read runs failed", logx.Stringer("job", key), logx.Err(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Service) handleConfigStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Reloader.Status())
}

type reloadResponse struct {
	Changed []string `json:"changed"`
	Jobs    []string `json:"jobs,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// handleConfigReload re-reads the config file now instead of waiting for the
// watcher. A rejected file answers 422 and leaves the running config alone.
func (s *Service) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	rl, err := s.deps.Reloader.ReloadNow(r.Context())
	switch {
	case errors.Is(err, config.ErrUnchanged):
		s.writeJSON(w, http.StatusOK, reloadResponse{Changed: []string{}})
	case err != nil:
		s.writeJSON(w, http.StatusUnprocessableEntity, reloadResponse{Changed: []string{}, Error: err.Error()})
	default:
		s.log.Info("config reloaded via ops", logx.Any("changed", rl.Sections))
		s.writeJSON(w, http.StatusOK, reloadResponse{Changed: rl.Sections, Jobs: rl.Jobs})
	}
}

func pathKey(w http.ResponseWriter, r *http.Request) (job.Key, bool) {
	key, err := job.ParseKey(strings.Trim(r.PathValue("key"), "/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return job.Key{}, false
	}
	return key, true
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Debug("write response failed", logx.Err(err))
	}
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Accept either:
		//   Authorization: Bearer <token>
		// or query param: ?token=<token>
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		if ah := r.Header.Get("Authorization"); ah != "" {
			const p = "Bearer "
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				h(w, r)
				return
			}
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
