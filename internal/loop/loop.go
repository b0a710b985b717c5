// Package loop provides the cooperative scheduler the engine runs on.
//
// All engine callbacks (timer ticks, idle polls, maintenance sweeps, host
// signal handlers) execute one at a time on a single goroutine. Blocking work
// is pushed off the loop with Go and its result comes back as another
// callback, so engine state never needs a lock.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Do when the loop is no longer running.
var ErrStopped = errors.New("event loop stopped")

// CancelFunc cancels a pending callback. Once it returns, the callback will
// not run. Calling it more than once is harmless.
type CancelFunc func()

// Scheduler is the capability engine components are built on.
type Scheduler interface {
	// Now returns the current time as seen by the scheduler.
	Now() time.Time
	// After runs fn on the loop once d has elapsed.
	After(d time.Duration, fn func()) CancelFunc
	// Post queues fn to run on the loop.
	Post(fn func())
	// Go runs work off the loop and delivers its error to done on the loop.
	Go(work func(ctx context.Context) error, done func(error))
}

// Loop is a Scheduler backed by one goroutine and the wall clock.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	work   sync.WaitGroup
}

// New returns a loop that is ready to accept callbacks. Callbacks queue
// until Run is called.
func New() *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Now implements Scheduler.
func (l *Loop) Now() time.Time { return time.Now() }

// Post implements Scheduler. Callbacks posted after the loop stopped are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// After implements Scheduler. The cancelled flag is checked on the loop, so a
// timer that already fired but has not run yet is still suppressed.
func (l *Loop) After(d time.Duration, fn func()) CancelFunc {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Go implements Scheduler. work receives a context that is cancelled when
// the loop stops.
func (l *Loop) Go(work func(ctx context.Context) error, done func(error)) {
	l.work.Add(1)
	go func() {
		defer l.work.Done()
		err := work(l.ctx)
		if done != nil {
			l.Post(func() { done(err) })
		}
	}()
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-l.stopped:
		return ErrStopped
	}
}

// Run processes callbacks until ctx is cancelled. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		l.cancel()
		close(l.stopped)
	}()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn()
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Wait blocks until all work started with Go has returned. Call it only
// after Run has returned; while the loop runs, callbacks may start new work.
func (l *Loop) Wait() {
	l.work.Wait()
}
