package settings

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/volumectl/internal/metrics"
	"github.com/obsidianstack/volumectl/internal/store"
	"github.com/obsidianstack/volumectl/internal/volume"
	"github.com/obsidianstack/volumectl/internal/watcher"
)

// State is the lifecycle state of a Manager.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateDegraded
	StateReloading
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateReloading:
		return "reloading"
	default:
		return "unknown"
	}
}

// FileState describes the persisted file as seen by the Manager.
type FileState struct {
	Path        string
	LastLoad    time.Time
	LastAttempt time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithWatch enables or disables the file watcher. Enabled by default.
func WithWatch(enabled bool) Option {
	return func(m *Manager) { m.watch = enabled }
}

// WithSettleDelay sets the watcher settle delay.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Manager) { m.settle = d }
}

// WithDebounce sets the window over which watcher triggers are merged into
// one reload.
func WithDebounce(d time.Duration) Option {
	return func(m *Manager) { m.debouncer = watcher.NewDebouncer(d) }
}

// WithMetrics records loads, saves and resolves into mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// Manager holds the current volume table and serializes changes to it.
type Manager struct {
	store     *store.Store
	metrics   *metrics.Metrics
	watch     bool
	settle    time.Duration
	debouncer *watcher.Debouncer
	watcher   *watcher.Watcher

	current atomic.Pointer[volume.Table]
	state   atomic.Int32
	writeMu sync.Mutex // held by SetVolume and reloads

	listenMu  sync.RWMutex
	listeners []func(*volume.Table)
}

// New returns a Manager backed by st. Call Start before use; until then
// every lookup yields volume.Default.
func New(st *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		metrics:   metrics.New(),
		watch:     true,
		settle:    watcher.DefaultSettleDelay,
		debouncer: watcher.NewDebouncer(watcher.DefaultDebounce),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.watch {
		m.watcher = watcher.New(st.Path(), m.onFileChange, watcher.WithSettleDelay(m.settle))
	}
	return m
}

// Start loads the table and starts watching the file. A watcher that
// cannot start leaves the Manager Degraded; Start itself never fails.
func (m *Manager) Start(ctx context.Context) {
	if m.watcher != nil && m.watcher.Running() {
		slog.Warn("settings: Start called while already watching, ignoring", "path", m.store.Path())
		return
	}
	m.state.Store(int32(StateLoading))

	m.writeMu.Lock()
	tbl := m.loadLocked()
	m.writeMu.Unlock()
	m.notify(tbl)

	if m.watcher == nil {
		slog.Info("settings: file watching disabled, external edits need a reload", "path", m.store.Path())
		m.state.Store(int32(StateDegraded))
		return
	}

	if err := m.watcher.Start(ctx); err != nil {
		slog.Warn("settings: file watcher unavailable, falling back to load-once",
			"path", m.store.Path(), "err", err)
		m.state.Store(int32(StateDegraded))
		return
	}
	m.state.Store(int32(StateReady))
}

// Close stops the file watcher, releases its OS handle and cancels any
// reload still waiting for its debounce window.
func (m *Manager) Close() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
	m.debouncer.Stop()
}

// State returns the current lifecycle state. A Manager whose watcher has
// stopped on its own reports StateDegraded.
func (m *Manager) State() State {
	s := State(m.state.Load())
	if s == StateReady && (m.watcher == nil || !m.watcher.Running()) {
		return StateDegraded
	}
	return s
}

// Volume returns the override for id, or volume.Default.
func (m *Manager) Volume(id volume.Identifier) float32 {
	tbl := m.current.Load()
	if tbl == nil {
		return volume.Default
	}
	return tbl.Get(id)
}

// SetVolume clamps v, stores it for id and persists the table. It reports
// whether the stored value changed; unchanged writes skip the save.
func (m *Manager) SetVolume(id volume.Identifier, v float32) bool {
	if id == "" {
		slog.Warn("settings: ignoring SetVolume with empty identifier")
		return false
	}

	m.writeMu.Lock()
	cur := m.current.Load()
	if cur == nil {
		m.writeMu.Unlock()
		slog.Error("settings: SetVolume before Start, ignoring", "id", string(id))
		return false
	}
	next := cur.Clone()
	if !next.Set(id, v) {
		m.writeMu.Unlock()
		return false
	}
	m.current.Store(next)
	if err := m.store.Save(next); err != nil {
		m.metrics.SaveFailures.Inc()
	} else {
		m.metrics.Saves.Inc()
	}
	m.writeMu.Unlock()

	m.notify(next)
	return true
}

// Snapshot returns the current table. Callers must not modify it.
func (m *Manager) Snapshot() *volume.Table {
	if tbl := m.current.Load(); tbl != nil {
		return tbl
	}
	return volume.NewTable()
}

// Reload re-reads the file immediately, bypassing the debounce window.
// A reload already waiting for its window still runs.
func (m *Manager) Reload() {
	m.writeMu.Lock()
	m.state.Store(int32(StateReloading))
	tbl := m.loadLocked()
	m.state.Store(int32(m.restingState()))
	m.writeMu.Unlock()

	m.notify(tbl)
}

// FileState returns the path and load timestamps of the persisted file.
func (m *Manager) FileState() FileState {
	return FileState{
		Path:        m.store.Path(),
		LastLoad:    m.store.LastLoad(),
		LastAttempt: m.debouncer.LastAttempt(),
	}
}

// OnChange registers fn to be called with every newly published table.
// fn runs on the publishing goroutine and must not block.
func (m *Manager) OnChange(fn func(*volume.Table)) {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Metrics returns the counters the Manager records into.
func (m *Manager) Metrics() *metrics.Metrics { return m.metrics }

// onFileChange is the watcher trigger. The reload runs once the debounce
// window closes and reads the file as it is then.
func (m *Manager) onFileChange() {
	if !m.debouncer.Trigger(m.Reload) {
		m.metrics.ReloadsMerged.Inc()
		slog.Debug("settings: reload already pending, merging trigger", "path", m.store.Path())
	}
}

func (m *Manager) restingState() State {
	if m.watcher != nil && m.watcher.Running() {
		return StateReady
	}
	return StateDegraded
}

// loadLocked loads the table and publishes it. Callers hold writeMu.
func (m *Manager) loadLocked() *volume.Table {
	tbl, rep := m.store.Load()
	m.metrics.Loads.Inc()
	if rep.Recovered {
		m.metrics.Recoveries.Inc()
	}
	if rep.Saved {
		m.metrics.Saves.Inc()
	}
	if rep.SaveErr != nil {
		m.metrics.SaveFailures.Inc()
	}
	m.current.Store(tbl)

	slog.Info("settings: volume table loaded",
		"path", m.store.Path(),
		"entries", tbl.Len(),
		"created", rep.Created,
		"recovered", rep.Recovered,
		"reconciled", rep.Reconciled,
	)
	return tbl
}

func (m *Manager) notify(tbl *volume.Table) {
	m.listenMu.RLock()
	listeners := append([]func(*volume.Table){}, m.listeners...)
	m.listenMu.RUnlock()

	for _, fn := range listeners {
		fn(tbl)
	}
}
