package soft

import (
	"sync/atomic"
	"time"
)

type future struct {
	done      chan struct{}
	cancelled atomic.Bool

	// Written by the worker before done is closed.
	duration time.Duration
	err      error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *future) Wait() {
	<-f.done
}

func (f *future) Cancel() {
	f.cancelled.Store(true)
}

func (f *future) Duration() time.Duration {
	if !f.IsReady() {
		return 0
	}
	return f.duration
}

func (f *future) Err() error {
	if !f.IsReady() {
		return nil
	}
	return f.err
}

func (f *future) complete(duration time.Duration, err error) {
	f.duration = duration
	f.err = err
	close(f.done)
}
