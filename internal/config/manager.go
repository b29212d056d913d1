package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	logx "nudged/pkg/logx"
)

const (
	// Editors fire several fsnotify events per save; coalesce them.
	reloadDebounce = 250 * time.Millisecond

	// Watcher restart backoff bounds.
	watchRetryMin = 250 * time.Millisecond
	watchRetryMax = 5 * time.Second

	validateTimeout = 5 * time.Second
)

// Manager loads nudged's configuration file and watches it for edits.
//
// JSON is the native format. Files named *.yaml or *.yml are converted to
// JSON before decoding, so both formats get the same strict field checking.
// Reloads are transactional: a file revision that fails to parse or is
// rejected by the validator leaves the committed config untouched.
type Manager struct {
	path string

	mu   sync.RWMutex
	cur  *Config
	hash uint64

	subMu sync.Mutex
	subs  []chan *Config

	log      logx.Logger
	validate func(ctx context.Context, cfg *Config) error

	timerMu sync.Mutex
	timer   *time.Timer
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// SetValidator installs the hook Watch consults before committing a reload.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validate = fn
}

// Parse reads and strictly decodes the config file without committing it.
func (m *Manager) Parse() (*Config, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return decodeConfig(m.path, raw)
}

// Load parses the file and commits the result.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cur = cfg
	m.hash = fingerprint(cfg)
	m.mu.Unlock()
}

// Get returns the last committed config, nil before the first Load.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Subscribe registers a channel that receives committed reloads.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	m.subMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i := range m.subs {
		if m.subs[i] == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// publish hands cfg to every subscriber. A full buffer loses its stale head
// so the newest config wins; publish never blocks.
func (m *Manager) publish(cfg *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped, subscriber stalled", logx.Int("buffer", cap(ch)))
		}
	}
}

// Watch follows the config file until ctx is canceled. The directory is
// watched rather than the file itself so atomic-rename saves keep working,
// and a broken watcher is recreated with jittered backoff.
func (m *Manager) Watch(ctx context.Context) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	retry := watchRetryMin

	for {
		if ctx.Err() != nil {
			return nil
		}
		healthy, err := m.runWatcher(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if healthy {
			retry = watchRetryMin
		}
		wait := retry + time.Duration(rng.Int63n(int64(retry/2)+1))
		m.log.Warn("config watcher restarting",
			logx.String("path", m.path),
			logx.Duration("in", wait),
			logx.Any("err", err))
		if retry *= 2; retry > watchRetryMax {
			retry = watchRetryMax
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// runWatcher runs one watcher lifetime. healthy reports whether the watcher
// started successfully, so the caller can reset its backoff.
func (m *Manager) runWatcher(ctx context.Context) (healthy bool, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return false, err
	}
	base := filepath.Base(m.path)
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", base))

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case ev, ok := <-w.Events:
			if !ok {
				return true, errors.New("event channel closed")
			}
			// Match on basename: editors and atomic saves report the
			// temp name, the final name, or both.
			if strings.EqualFold(filepath.Base(ev.Name), base) {
				m.scheduleReload(ctx)
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return true, errors.New("error channel closed")
			}
			if errors.Is(werr, fsnotify.ErrEventOverflow) {
				// Events were lost; the file may have changed unseen.
				m.log.Warn("config watch overflow, forcing reload", logx.String("path", m.path))
				m.scheduleReload(ctx)
				continue
			}
			if werr != nil {
				return true, werr
			}
		}
	}
}

// scheduleReload arms (or re-arms) the debounce timer.
func (m *Manager) scheduleReload(ctx context.Context) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.timer != nil {
		m.timer.Reset(reloadDebounce)
		return
	}
	m.log.Debug("config change detected", logx.String("path", m.path))
	m.timer = time.AfterFunc(reloadDebounce, func() { m.reload(ctx) })
}

// reload re-parses the file and, when the content actually changed and the
// validator accepts it, commits and publishes the new config.
func (m *Manager) reload(ctx context.Context) {
	m.timerMu.Lock()
	m.timer = nil
	m.timerMu.Unlock()

	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload failed", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := fingerprint(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.hash
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged, skipping reload", logx.String("path", m.path))
		return
	}

	if m.validate != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validate(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected, keeping previous", logx.String("path", m.path), logx.Err(err))
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	m.log.Info("config reloaded", logx.String("path", m.path))
}

// decodeConfig strictly decodes raw into a Config. YAML input is first
// converted to JSON so DisallowUnknownFields applies to both formats.
func decodeConfig(path string, raw []byte) (*Config, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		j, err := json.Marshal(stringifyKeys(doc))
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		raw = j
	}

	cfg := new(Config)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	switch err := dec.Decode(new(json.RawMessage)); err {
	case io.EOF:
		return cfg, nil
	case nil:
		return nil, errors.New("config: trailing data after document")
	default:
		return nil, err
	}
}

// stringifyKeys rewrites non-string YAML map keys so the document can be
// marshaled as JSON.
func stringifyKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = stringifyKeys(e)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = stringifyKeys(e)
		}
		return out
	case []any:
		for i := range x {
			x[i] = stringifyKeys(x[i])
		}
		return x
	default:
		return v
	}
}

// fingerprint hashes the committed form of cfg, used to suppress reloads
// when the file was rewritten without content changes.
func fingerprint(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
