package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "jobsched/pkg/logx"
)

const (
	debounceDelay   = 250 * time.Millisecond
	validateTimeout = 5 * time.Second

	watchBackoffBase = 250 * time.Millisecond
	watchBackoffMax  = 5 * time.Second
)

// ErrUnchanged is returned by ReloadNow when the file content matches the
// committed config.
var ErrUnchanged = errors.New("config unchanged")

// ReloadStatus reports how hot reload has gone so far.
type ReloadStatus struct {
	Path        string    `json:"path"`
	Hash        string    `json:"hash"`
	CommittedAt time.Time `json:"committedAt"`
	Reloads     uint64    `json:"reloads"`
	Rejected    uint64    `json:"rejected"`
	LastError   string    `json:"lastError,omitempty"`
	LastErrorAt time.Time `json:"lastErrorAt,omitzero"`
}

// ConfigManager owns the committed config and hot reload. A reload is
// transactional: parse, validate, then commit and publish a Reload to every
// subscriber.
type ConfigManager struct {
	path string

	mu     sync.RWMutex
	cfg    *Config
	hash   uint64
	status ReloadStatus

	// reloadMu serializes ReloadNow (watch debounce vs. explicit calls).
	reloadMu sync.Mutex

	// subsMu also guards sends, so Unsubscribe never closes a channel mid-send.
	subsMu sync.Mutex
	subs   []chan Reload

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, log: logx.Nop(), status: ReloadStatus{Path: path}}
}

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs the check a reloaded config must pass before commit.
// Load does not run it; callers validate the startup config themselves.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(m.path, b)
}

// Load parses and commits the file without publishing.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

// Commit makes cfg current and returns the change against the previous one.
func (m *ConfigManager) Commit(cfg *Config) Reload {
	h := hashConfig(cfg)
	m.mu.Lock()
	prev := m.cfg
	m.cfg = cfg
	m.hash = h
	m.status.Hash = fmt.Sprintf("%016x", h)
	m.status.CommittedAt = time.Now()
	m.mu.Unlock()
	return NewReload(prev, cfg)
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *ConfigManager) Status() ReloadStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// ReloadNow re-reads the file and, if it changed and passes validation,
// commits and publishes it. It returns ErrUnchanged for identical content.
func (m *ConfigManager) ReloadNow(ctx context.Context) (Reload, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	cfg, err := m.Parse()
	if err != nil {
		return Reload{}, m.reject(fmt.Errorf("parse: %w", err))
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.hash
	m.mu.RUnlock()
	if unchanged {
		return Reload{}, ErrUnchanged
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			return Reload{}, m.reject(err)
		}
	}

	rl := m.Commit(cfg)
	m.mu.Lock()
	m.status.Reloads++
	m.mu.Unlock()
	m.publish(rl)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("changed", strings.Join(rl.Sections, ",")))
	return rl, nil
}

func (m *ConfigManager) reject(err error) error {
	m.mu.Lock()
	m.status.Rejected++
	m.status.LastError = err.Error()
	m.status.LastErrorAt = time.Now()
	m.mu.Unlock()
	return err
}

// Subscribe returns a channel of committed reloads. A slow subscriber loses
// the oldest pending reload; Reload.Since rebases what it does receive.
func (m *ConfigManager) Subscribe(buffer int) chan Reload {
	ch := make(chan Reload, max(buffer, 1))
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan Reload) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if i := indexOf(m.subs, ch); i >= 0 {
		m.subs = append(m.subs[:i], m.subs[i+1:]...)
		close(ch)
	}
}

func indexOf(subs []chan Reload, ch chan Reload) int {
	for i, s := range subs {
		if s == ch {
			return i
		}
	}
	return -1
}

func (m *ConfigManager) publish(rl Reload) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- rl:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- rl:
		default:
			m.log.Debug("config reload dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// Watch reloads the file on change until ctx is done. Rejected reloads are
// logged and counted; the committed config stays in place.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	d := &debouncer{delay: debounceDelay}
	defer d.stop()
	trigger := func() {
		d.trigger(func() {
			if ctx.Err() != nil {
				return
			}
			m.reloadFromWatch(ctx)
		})
	}

	bo := newBackoff(watchBackoffBase, watchBackoffMax)
	for ctx.Err() == nil {
		err := m.watchDir(ctx, dir, file, bo.reset, trigger)
		if ctx.Err() != nil {
			break
		}
		// The watcher broke or never came up; recreate it after a jittered wait.
		wait := bo.next()
		m.log.Warn("config watcher stopped; restarting",
			logx.String("dir", dir),
			logx.Err(err),
			logx.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	return nil
}

func (m *ConfigManager) reloadFromWatch(ctx context.Context) {
	rl, err := m.ReloadNow(ctx)
	switch {
	case errors.Is(err, ErrUnchanged):
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
	case err != nil:
		m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
	default:
		m.log.Debug("config reloaded from watch", logx.Int("jobs_changed", len(rl.Jobs)))
	}
}

// watchDir runs one fsnotify watcher on dir until it breaks or ctx is done.
// Watching the directory survives editors that replace the file.
func (m *ConfigManager) watchDir(ctx context.Context, dir, file string, started, trigger func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch add: %w", err)
	}
	started()
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watch events closed")
			}
			if ev.Op&relevant != 0 && strings.EqualFold(filepath.Base(ev.Name), file) {
				m.log.Debug("config change detected", logx.String("path", m.path), logx.String("op", ev.Op.String()))
				trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watch errors closed")
			}
			if err == nil {
				continue
			}
			msg := strings.ToLower(err.Error())
			switch {
			case errors.Is(err, fsnotify.ErrEventOverflow) || strings.Contains(msg, "overflow"):
				// Events were lost; one reload covers them.
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				trigger()
			case strings.Contains(msg, "closed"):
				return err
			default:
				m.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
			}
		}
	}
}

// debouncer runs the last triggered fn once delay has passed without a new
// trigger. Editors often write a file in several steps.
type debouncer struct {
	delay time.Duration

	mu sync.Mutex
	t  *time.Timer
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
	d.t = time.AfterFunc(d.delay, fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
}

// backoff is a doubling wait with up to 50% jitter.
type backoff struct {
	base, limit, cur time.Duration
	rng              *rand.Rand
}

func newBackoff(base, limit time.Duration) *backoff {
	return &backoff{base: base, limit: limit, cur: base, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (b *backoff) next() time.Duration {
	wait := b.cur + time.Duration(b.rng.Int63n(int64(b.cur/2)+1))
	b.cur = min(b.cur*2, b.limit)
	return wait
}

func (b *backoff) reset() { b.cur = b.base }
