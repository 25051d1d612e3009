// Package dispatch provides the single goroutine that owns display state.
// Preference updates, status reporting and change notifications are posted to a
// Loop so they never run concurrently with each other.
package dispatch

import (
	"context"
	"errors"
	"sync"
)

var ErrStopped = errors.New("dispatch loop stopped")

type Loop struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
	startMu  sync.Mutex
	started  bool
	stopped  chan struct{}
}

func NewLoop(buffer int) *Loop {
	return &Loop{
		tasks:   make(chan func(), buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs the loop in its own goroutine. Calling it twice is a no-op.
func (l *Loop) Start() {
	l.startMu.Lock()
	defer l.startMu.Unlock()
	if l.started {
		return
	}
	l.started = true

	go func() {
		defer close(l.stopped)
		for {
			select {
			case fn := <-l.tasks:
				fn()
			case <-l.done:
				return
			}
		}
	}()
}

// Post queues fn for execution on the loop. It reports false if the loop is stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Stop ends the loop. Tasks still queued are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})

	l.startMu.Lock()
	started := l.started
	l.startMu.Unlock()
	if started {
		<-l.stopped
	}
}
