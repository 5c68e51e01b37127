package httpapi

import (
	"sync"
	"time"
)

// UpdateDebouncer collapses rapid metadata events into batched pushes. A new
// track arrives as a burst of bus messages (clear, title, artist, album,
// cover); triggers within the debounce window result in a single callback.
type UpdateDebouncer struct {
	window   time.Duration
	callback func()

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	stopped bool
}

// NewUpdateDebouncer creates a debouncer with the given window duration.
// The callback fires once per quiet period with pending triggers.
func NewUpdateDebouncer(window time.Duration, callback func()) *UpdateDebouncer {
	return &UpdateDebouncer{
		window:   window,
		callback: callback,
	}
}

// Trigger records that state has changed. The callback is deferred until
// the debounce window elapses without further triggers.
func (d *UpdateDebouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending = true

	// Reset the timer
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush fires the callback if a trigger is pending and resets the flag.
func (d *UpdateDebouncer) flush() {
	d.mu.Lock()
	fire := d.pending && !d.stopped
	d.pending = false
	d.mu.Unlock()

	if fire && d.callback != nil {
		d.callback()
	}
}

// Stop prevents any further callbacks from firing.
func (d *UpdateDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = false
}
