// Package notify implements an observer list whose delivery survives
// misbehaving listeners.
package notify

import (
	"fmt"
	"log/slog"
)

// Listeners is an ordered set of callbacks. It is not safe for concurrent
// use; owners call it from their event loop.
type Listeners[T any] struct {
	next  int
	order []int
	fns   map[int]func(T)
}

// Add registers fn and returns a function that removes it again.
// Calling the returned function more than once is harmless.
func (l *Listeners[T]) Add(fn func(T)) func() {
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.order = append(l.order, id)
	return func() {
		if _, ok := l.fns[id]; !ok {
			return
		}
		delete(l.fns, id)
		for i, v := range l.order {
			if v == id {
				l.order = append(l.order[:i:i], l.order[i+1:]...)
				break
			}
		}
	}
}

// Len returns the number of registered listeners.
func (l *Listeners[T]) Len() int { return len(l.order) }

// Emit delivers v to every listener in registration order. A panicking
// listener is logged and skipped. Emit returns the number of failed deliveries.
func (l *Listeners[T]) Emit(logger *slog.Logger, v T) int {
	ids := append([]int(nil), l.order...)
	failed := 0
	for _, id := range ids {
		fn, ok := l.fns[id]
		if !ok {
			continue // removed by an earlier listener
		}
		if err := call(fn, v); err != nil {
			failed++
			if logger != nil {
				logger.Error("listener failed", "error", err)
			}
		}
	}
	return failed
}

func call[T any](fn func(T), v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	fn(v)
	return nil
}
