package watcher

import (
	"sync"
	"time"
)

// DefaultDebounce is the window over which reload triggers are merged.
const DefaultDebounce = 500 * time.Millisecond

// stopper is the part of *time.Timer the Debouncer needs.
type stopper interface {
	Stop() bool
}

// Debouncer merges triggers into one call at the end of a fixed window.
// The first trigger arms the window; triggers that arrive while it is
// armed are merged into the pending call. The call runs when the window
// closes, so it observes everything that happened inside it.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	pending  bool
	timer    stopper
	last     time.Time

	run sync.Mutex // held while fn runs; calls never overlap

	now       func() time.Time // injectable for deterministic tests
	afterFunc func(time.Duration, func()) stopper
}

// NewDebouncer returns a Debouncer with the given window. A window of zero
// or less runs every trigger immediately.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Trigger schedules fn to run when the current window closes. It reports
// false when a call was already pending and this trigger was merged into it.
func (d *Debouncer) Trigger(fn func()) bool {
	d.mu.Lock()
	if d.pending {
		d.mu.Unlock()
		return false
	}
	if d.interval <= 0 {
		d.mu.Unlock()
		d.fire(fn)
		return true
	}
	d.pending = true
	d.timer = d.afterFunc(d.interval, func() { d.fire(fn) })
	d.mu.Unlock()
	return true
}

// Stop cancels a pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// LastAttempt returns when fn last started, or the zero time.
func (d *Debouncer) LastAttempt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// fire clears the pending flag before fn runs: a trigger that arrives while
// fn reads the file arms a new window instead of being lost.
func (d *Debouncer) fire(fn func()) {
	d.run.Lock()
	defer d.run.Unlock()

	d.mu.Lock()
	d.pending = false
	d.timer = nil
	d.last = d.now()
	d.mu.Unlock()

	fn()
}
