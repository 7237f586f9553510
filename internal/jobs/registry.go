package jobs

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"jobsched/internal/config"
	logx "jobsched/pkg/logx"
)

var ErrUnknownKind = errors.New("unknown job kind")

// Deps are the shared collaborators handed to every factory.
type Deps struct {
	Log  logx.Logger
	HTTP *http.Client
}

// Factory builds the runnable part of a config-declared job.
// It must not start anything; the scheduler owns execution.
type Factory func(jc config.JobConfig, deps Deps) (RunFunc, error)

// Registry maps job kinds to factories. Registration is explicit: there is
// no init-time self registration.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	deps      Deps
}

func NewRegistry(deps Deps) *Registry {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.HTTP == nil {
		deps.HTTP = http.DefaultClient
	}
	return &Registry{factories: map[string]Factory{}, deps: deps}
}

// NewBuiltinRegistry returns a registry with the "log" and "http" kinds.
func NewBuiltinRegistry(deps Deps) *Registry {
	r := NewRegistry(deps)
	_ = r.Register(KindLog, newLogJob)
	_ = r.Register(KindHTTP, newHTTPJob)
	return r
}

func (r *Registry) Register(kind string, f Factory) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" || f == nil {
		return fmt.Errorf("register: kind and factory required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("register: kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build turns one job block into a schedulable job.
func (r *Registry) Build(jc config.JobConfig) (*ConfigJob, error) {
	kind := strings.ToLower(strings.TrimSpace(jc.Kind))
	r.mu.RLock()
	f := r.factories[kind]
	r.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownKind, jc.Kind, strings.Join(r.Kinds(), ", "))
	}
	return newConfigJob(jc, f, r.deps)
}

// Validate builds every job of cfg once and reports all failures.
// It complements config.Validate with kind specific checks.
func (r *Registry) Validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	var errs []error
	for i, jc := range cfg.Jobs {
		if _, err := r.Build(jc); err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d] (%s): %w", i, jc.Key(), err))
		}
	}
	return errors.Join(errs...)
}
