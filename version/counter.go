// Package version provides the monotonic counters producers bump after
// changing backend-visible state and consumers poll to detect change.
package version

import "sync/atomic"

// A Counter only ever moves forward. The zero value is ready to use.
type Counter struct {
	v atomic.Uint64
}

// Load returns the current value.
func (c *Counter) Load() uint64 {
	return c.v.Load()
}

// Increment advances the counter by one and returns the new value.
func (c *Counter) Increment() uint64 {
	return c.v.Add(1)
}
