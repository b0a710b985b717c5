package loop

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler driven by a virtual clock. Nothing
// runs until the test calls Drain or Advance, and Go executes its work
// inline. It is meant for tests.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
	queue  []func()
}

type manualTimer struct {
	when      time.Time
	seq       int
	fn        func()
	cancelled bool
}

// NewManual returns a Manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{when: m.now.Add(d), seq: m.seq, fn: fn}
	m.seq++
	m.timers = append(m.timers, t)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		t.cancelled = true
	}
}

// Post implements Scheduler.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, fn)
}

// Go implements Scheduler. work runs immediately; done is queued.
func (m *Manual) Go(work func(ctx context.Context) error, done func(error)) {
	err := work(context.Background())
	if done != nil {
		m.Post(func() { done(err) })
	}
}

// Drain runs queued callbacks, including ones they queue, until none are left.
func (m *Manual) Drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in order. The
// clock is set to each timer's deadline before it runs.
func (m *Manual) Advance(d time.Duration) {
	m.Drain()
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.fn()
		m.Drain()
	}

	m.mu.Lock()
	if m.now.Before(target) {
		m.now = target
	}
	m.mu.Unlock()
	m.Drain()
}

// Skew moves the clock forward by d without firing any timer. Timers that
// become overdue fire late on the next Advance, which is how tests simulate
// a stalled or suspended process.
func (m *Manual) Skew(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Pending returns the number of armed, uncancelled timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

func (m *Manual) popDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.timers = live
	if len(m.timers) == 0 {
		return nil
	}

	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].when.Equal(m.timers[j].when) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].when.Before(m.timers[j].when)
	})
	t := m.timers[0]
	if t.when.After(target) {
		return nil
	}
	m.timers = m.timers[1:]
	if t.when.After(m.now) {
		m.now = t.when
	}
	return t
}
