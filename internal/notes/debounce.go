package notes

import (
	"sync"
	"time"
)

type stopper interface {
	Stop() bool
}

// afterFunc matches time.AfterFunc; tests substitute a manual clock.
type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// debouncer is a single-slot deferred task: scheduling always cancels and
// replaces the pending task, so at most one is outstanding.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	after   afterFunc
	timer   stopper
	pending func()
	gen     uint64
}

func newDebouncer(delay time.Duration, after afterFunc) *debouncer {
	if after == nil {
		after = realAfterFunc
	}
	return &debouncer{delay: delay, after: after}
}

// Schedule replaces any pending task with fn. It reports whether a pending
// task was discarded.
func (d *debouncer) Schedule(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	replaced := d.pending != nil
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = d.after(d.delay, func() { d.fire(gen) })
	return replaced
}

// fire runs the pending task if it is still the one scheduled as gen; a
// timer that raced with a replacement finds a newer generation and exits.
func (d *debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

// Cancel drops the pending task without running it.
func (d *debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked() != nil
}

// Flush runs the pending task now, if any.
func (d *debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.cancelLocked()
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (d *debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *debouncer) cancelLocked() func() {
	fn := d.pending
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.pending = nil
	d.timer = nil
	return fn
}
