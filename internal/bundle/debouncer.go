package bundle

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events into a single callback invocation that
// receives every distinct path seen during the quiet period, in the order
// they first arrived. Callbacks never overlap.
type Debouncer struct {
	interval time.Duration
	callback func(paths []string)

	mu      sync.Mutex
	timer   *time.Timer
	pending []string
	seen    map[string]struct{}
	stopped bool

	run sync.Mutex
}

// NewDebouncer creates a debouncer that waits for interval of quiet before
// firing callback with the accumulated batch.
func NewDebouncer(interval time.Duration, callback func(paths []string)) *Debouncer {
	return &Debouncer{
		interval: interval,
		callback: callback,
		seen:     make(map[string]struct{}),
	}
}

// Trigger records an event for path and restarts the quiet period.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if _, ok := d.seen[path]; !ok {
		d.seen[path] = struct{}{}
		d.pending = append(d.pending, path)
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.run.Lock()
	defer d.run.Unlock()

	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.seen = make(map[string]struct{})
	stopped := d.stopped
	d.mu.Unlock()

	if stopped || len(batch) == 0 {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("debouncer callback panicked", slog.Any("error", r))
		}
	}()

	d.callback(batch)
}

// Stop cancels any pending batch and waits for a running callback to
// return. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.pending = nil

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.run.Lock()
	d.run.Unlock() //nolint:staticcheck
}
