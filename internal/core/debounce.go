package core

import (
	"sync"
	"time"
)

// Debouncer coalesces calls per key: only the most recent function scheduled
// for a key runs, once the key has been quiet for the wait period.
type Debouncer struct {
	wait time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	funcs  map[string]func()
}

// NewDebouncer returns a debouncer.  A non-positive wait runs every scheduled
// function immediately.
func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{
		wait:   wait,
		timers: make(map[string]*time.Timer),
		funcs:  make(map[string]func()),
	}
}

// Schedule replaces any pending function for key and restarts its timer.
func (d *Debouncer) Schedule(key string, fn func()) {
	if d.wait <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funcs[key] = fn
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.wait, func() { d.fire(key) })
}

func (d *Debouncer) fire(key string) {
	d.mu.Lock()
	fn := d.funcs[key]
	delete(d.funcs, key)
	delete(d.timers, key)
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Flush runs every pending function now.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := make([]func(), 0, len(d.funcs))
	for key, fn := range d.funcs {
		pending = append(pending, fn)
		if t, ok := d.timers[key]; ok {
			t.Stop()
		}
	}
	d.funcs = make(map[string]func())
	d.timers = make(map[string]*time.Timer)
	d.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Pending reports how many keys are waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.funcs)
}
