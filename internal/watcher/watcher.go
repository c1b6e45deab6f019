package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettleDelay lets an in-progress external write finish before the
// queued events are inspected.
const DefaultSettleDelay = 50 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.settle = d
		}
	}
}

// Watcher calls a trigger function whenever the watched file changes.
type Watcher struct {
	dir     string
	name    string
	settle  time.Duration
	trigger func()

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Watcher for the file at path. trigger runs on the watcher
// goroutine; it is expected to debounce on its own.
func New(path string, trigger func(), opts ...Option) *Watcher {
	w := &Watcher{
		dir:     filepath.Dir(path),
		name:    filepath.Base(path),
		settle:  DefaultSettleDelay,
		trigger: trigger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the OS watch and launches the watch loop. An error means
// no loop was started and the caller should fall back to load-once.
// The loop ends when ctx is cancelled, Stop is called, the OS watch
// handle is closed, or the watched directory is removed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running.Load() {
		return errors.New("watcher: already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: init: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close() //nolint:errcheck
		return fmt.Errorf("watcher: add %q: %w", w.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running.Store(true)

	go w.run(ctx, fsw, w.done)
	return nil
}

// Stop ends the watch loop and waits for it to release the OS handle.
// It is safe to call more than once and before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the watch loop is active.
func (w *Watcher) Running() bool { return w.running.Load() }

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	defer w.running.Store(false)
	defer fsw.Close() //nolint:errcheck

	slog.Info("watcher: watching for changes", "dir", w.dir, "file", w.name)

	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				slog.Warn("watcher: watch handle closed, stopping", "dir", w.dir)
				return
			}
			if w.dirGone(event) {
				slog.Warn("watcher: watched directory removed, stopping", "dir", w.dir)
				return
			}
			if !w.wake(ctx, fsw, w.relevant(event)) {
				return
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				slog.Warn("watcher: watch handle closed, stopping", "dir", w.dir)
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("watcher: event overflow, reloading anyway", "dir", w.dir)
				if !w.wake(ctx, fsw, true) {
					return
				}
				continue
			}
			slog.Error("watcher: watch error", "dir", w.dir, "err", err)
		}
	}
}

// wake waits out the settle delay, folds every queued event into relevant
// and fires the trigger if needed. It returns false when the loop must end.
func (w *Watcher) wake(ctx context.Context, fsw *fsnotify.Watcher, relevant bool) bool {
	if w.settle > 0 {
		t := time.NewTimer(w.settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}

	open := true
drain:
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				open = false
				break drain
			}
			if w.dirGone(event) {
				slog.Warn("watcher: watched directory removed, stopping", "dir", w.dir)
				return false
			}
			relevant = relevant || w.relevant(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				open = false
				break drain
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				relevant = true
			}
		default:
			break drain
		}
	}

	if relevant && ctx.Err() == nil {
		w.trigger()
	}
	return open
}

// relevant reports whether event is a write or create of the watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != w.name {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

// dirGone reports whether event removed or renamed the watched directory.
// The OS drops the watch with it, so no further events will arrive.
func (w *Watcher) dirGone(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.dir {
		return false
	}
	return event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
