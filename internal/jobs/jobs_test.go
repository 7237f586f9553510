package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"jobsched/internal/config"
	"jobsched/internal/job"
	"jobsched/internal/job/engine"
	"jobsched/internal/job/scheduler"
	logx "jobsched/pkg/logx"
)

type fakeScheduler struct {
	mu          sync.Mutex
	jobs        map[job.Key]job.Job
	schedules   map[job.Key]job.Schedule
	scheduled   int
	unscheduled []job.Key
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: map[job.Key]job.Job{}, schedules: map[job.Key]job.Schedule{}}
}

func (f *fakeScheduler) Schedule(j job.Job, s job.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.Key()] = j
	f.schedules[j.Key()] = s
	f.scheduled++
	return nil
}

func (f *fakeScheduler) Unschedule(key job.Key) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jobs[key]
	delete(f.jobs, key)
	delete(f.schedules, key)
	f.unscheduled = append(f.unscheduled, key)
	return ok
}

type messages struct {
	mu  sync.Mutex
	all []string
}

func (m *messages) listener() job.RunListener {
	return job.RunListenerFunc(func(msg string) {
		m.mu.Lock()
		m.all = append(m.all, msg)
		m.mu.Unlock()
	})
}

func (m *messages) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.all) == 0 {
		return ""
	}
	return m.all[len(m.all)-1]
}

func TestRegistryBuild(t *testing.T) {
	t.Parallel()

	reg := NewBuiltinRegistry(Deps{})
	if got := strings.Join(reg.Kinds(), ","); got != "http,log" {
		t.Fatalf("kinds=%q", got)
	}
	if err := reg.Register("log", newLogJob); err == nil {
		t.Fatalf("duplicate register should fail")
	}

	_, err := reg.Build(config.JobConfig{ID: "x", Kind: "shell", Schedule: "1s"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err=%v, want ErrUnknownKind", err)
	}
	if _, err := reg.Build(config.JobConfig{ID: "x", Kind: "http", Schedule: "1s"}); err == nil {
		t.Fatalf("http without url should fail")
	}
	if _, err := reg.Build(config.JobConfig{ID: "x", Kind: "log", Schedule: "sometimes"}); err == nil {
		t.Fatalf("bad schedule should fail")
	}

	j, err := reg.Build(config.JobConfig{ID: "beat", Kind: "LOG", Schedule: "every:1m after:5s", Disabled: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !j.Disabled() || !j.Valid() {
		t.Fatalf("disabled=%v valid=%v", j.Disabled(), j.Valid())
	}
	if j.Schedule().Period() != time.Minute || j.Schedule().InitialDelay() != 5*time.Second {
		t.Fatalf("schedule=%s", j.Schedule())
	}
	if j.Description() != "LOG job beat" {
		t.Fatalf("description=%q", j.Description())
	}
}

func TestRegistryValidate(t *testing.T) {
	t.Parallel()

	reg := NewBuiltinRegistry(Deps{})
	cfg := &config.Config{Jobs: []config.JobConfig{
		{ID: "a", Kind: "log", Schedule: "1s"},
		{ID: "b", Kind: "cron", Schedule: "1s"},
	}}
	err := reg.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "config/cron/b") {
		t.Fatalf("err=%v", err)
	}
}

func TestLogJobParams(t *testing.T) {
	t.Parallel()

	reg := NewBuiltinRegistry(Deps{})
	j, err := reg.Build(config.JobConfig{
		ID: "beat", Kind: "log", Schedule: "none", Message: "alive",
		Params: map[string]string{"extra": "1"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var m messages
	if err := j.Task()(context.Background(), m.listener()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.last() != "alive" {
		t.Fatalf("message=%q", m.last())
	}

	task := job.TaskFor(j, map[string]string{ParamMessage: "custom"})
	if err := task(context.Background(), m.listener()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.last() != "custom" {
		t.Fatalf("message=%q", m.last())
	}

	task = job.TaskFor(j, map[string]string{ParamFail: "boom"})
	if err := task(context.Background(), m.listener()); err == nil || err.Error() != "boom" {
		t.Fatalf("err=%v, want boom", err)
	}

	// plain task again after a parameterized one
	if err := j.Task()(context.Background(), m.listener()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.last() != "alive" {
		t.Fatalf("message=%q", m.last())
	}
}

func TestHTTPJob(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("ok"))
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
		case "/slow":
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	reg := NewBuiltinRegistry(Deps{HTTP: srv.Client()})

	tests := []struct {
		name    string
		jc      config.JobConfig
		params  map[string]string
		wantErr string
	}{
		{name: "ok", jc: config.JobConfig{URL: srv.URL + "/ok"}},
		{name: "not found", jc: config.JobConfig{URL: srv.URL + "/missing"}, wantErr: "status 404"},
		{name: "expected status", jc: config.JobConfig{URL: srv.URL + "/teapot", ExpectStatus: http.StatusTeapot}},
		{name: "unexpected status", jc: config.JobConfig{URL: srv.URL + "/ok", ExpectStatus: 204}, wantErr: "want 204"},
		{name: "param override", jc: config.JobConfig{URL: srv.URL + "/ok"}, params: map[string]string{ParamURL: srv.URL + "/missing"}, wantErr: "status 404"},
		{name: "timeout", jc: config.JobConfig{URL: srv.URL + "/slow", Timeout: "100ms"}, wantErr: "deadline exceeded"},
		{name: "head", jc: config.JobConfig{URL: srv.URL + "/ok", Method: "head"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.jc.ID, tt.jc.Kind, tt.jc.Schedule = "ping", KindHTTP, "none"
			j, err := reg.Build(tt.jc)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			var m messages
			err = job.TaskFor(j, tt.params)(context.Background(), m.listener())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !strings.Contains(m.last(), " -> ") {
					t.Fatalf("message=%q", m.last())
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := reg.Build(config.JobConfig{ID: "p", Kind: KindHTTP, Schedule: "none", URL: srv.URL, Method: "DELETE"}); err == nil {
		t.Fatalf("DELETE should be rejected")
	}
}

func TestSyncDiff(t *testing.T) {
	t.Parallel()

	fs := newFakeScheduler()
	s := NewSyncer(NewBuiltinRegistry(Deps{}), fs, logx.Nop())

	a := config.JobConfig{ID: "a", Kind: "log", Schedule: "1m", Message: "a"}
	b := config.JobConfig{ID: "b", Kind: "log", Schedule: "1m"}
	res, err := s.Sync([]config.JobConfig{a, b})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(res.Added) != 2 || fs.scheduled != 2 {
		t.Fatalf("res=%+v scheduled=%d", res, fs.scheduled)
	}
	first, _ := s.Get(a.Key())

	// identical config: nothing happens
	res, err = s.Sync([]config.JobConfig{a, b})
	if err != nil || !res.Empty() || fs.scheduled != 2 {
		t.Fatalf("res=%+v err=%v scheduled=%d", res, err, fs.scheduled)
	}

	// schedule change re-arms the same job
	a.Schedule = "2m"
	res, _ = s.Sync([]config.JobConfig{a, b})
	if len(res.Rescheduled) != 1 || res.Rescheduled[0] != a.Key() {
		t.Fatalf("res=%+v", res)
	}
	if got, _ := s.Get(a.Key()); got != first {
		t.Fatalf("reschedule must keep the job instance")
	}
	if fs.schedules[a.Key()].Period() != 2*time.Minute {
		t.Fatalf("period=%s", fs.schedules[a.Key()].Period())
	}

	// disabled flips in place
	a.Disabled = true
	res, _ = s.Sync([]config.JobConfig{a, b})
	if len(res.Toggled) != 1 || !first.Disabled() {
		t.Fatalf("res=%+v disabled=%v", res, first.Disabled())
	}

	// task change replaces and invalidates the old job
	a.Message = "changed"
	res, _ = s.Sync([]config.JobConfig{a, b})
	if len(res.Replaced) != 1 || first.Valid() {
		t.Fatalf("res=%+v valid=%v", res, first.Valid())
	}
	second, _ := s.Get(a.Key())
	if second == first || !second.Disabled() {
		t.Fatalf("replacement not installed correctly")
	}

	// removed keys are invalidated and unscheduled
	bj, _ := s.Get(b.Key())
	res, _ = s.Sync([]config.JobConfig{a})
	if len(res.Removed) != 1 || res.Removed[0] != b.Key() || bj.Valid() {
		t.Fatalf("res=%+v", res)
	}
	if len(fs.unscheduled) != 1 {
		t.Fatalf("unscheduled=%v", fs.unscheduled)
	}

	// broken block keeps the previous version
	broken := a
	broken.Kind = "log"
	broken.Schedule = "bogus"
	_, err = s.Sync([]config.JobConfig{broken})
	if err == nil {
		t.Fatalf("expected build error")
	}
	if got, ok := s.Get(a.Key()); !ok || got != second {
		t.Fatalf("previous job should survive a broken update")
	}
}

func TestSyncWithScheduler(t *testing.T) {
	eng := engine.New(engine.Config{Workers: 2}, logx.Nop())
	eng.Start(context.Background())
	sched := scheduler.New(scheduler.Config{}, eng, logx.Nop())
	sched.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		sched.Stop(ctx)
		eng.Stop(ctx)
	})

	s := NewSyncer(NewBuiltinRegistry(Deps{}), sched, logx.Nop())
	jc := config.JobConfig{ID: "beat", Kind: "log", Schedule: "none"}
	if _, err := s.Sync([]config.JobConfig{jc}); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	f, err := sched.FireImmediatelyWith(jc.Key(), map[string]string{ParamFail: "nope"})
	if err != nil {
		t.Fatalf("FireImmediately: %v", err)
	}
	var te *job.TaskError
	if err := f.WaitTimeout(2 * time.Second); !errors.As(err, &te) {
		t.Fatalf("err=%v, want TaskError", err)
	}
	st, ok := sched.JobStatus(jc.Key())
	if !ok || st.LastErrorCount != 1 || st.LastError != "nope" {
		t.Fatalf("status=%+v", st)
	}

	if _, err := s.Sync(nil); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, ok := sched.JobStatus(jc.Key()); ok {
		t.Fatalf("removed job still registered")
	}
}

func TestKeyMatcher(t *testing.T) {
	t.Parallel()

	k := job.CategoryOf("checks").Type("http").Key("home")
	tests := []struct {
		pattern string
		want    bool
	}{
		{"", true},
		{"checks/*/*", true},
		{"checks/*", false},
		{"checks/**", true},
		{"*/http/home", true},
		{"config/**", false},
		{"checks/{http,log}/h*", true},
	}
	for _, tt := range tests {
		m, err := CompileKeyPattern(tt.pattern)
		if err != nil {
			t.Fatalf("%q: %v", tt.pattern, err)
		}
		if got := m.Match(k); got != tt.want {
			t.Fatalf("%q match=%v, want %v", tt.pattern, got, tt.want)
		}
	}
	if _, err := CompileKeyPattern("checks/[a"); err == nil {
		t.Fatalf("expected compile error")
	}
}
