package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tiliavir/precise-time-tracker/internal/notify"
)

func TestEmitIsolatesPanics(t *testing.T) {
	var l notify.Listeners[int]
	var got []int
	l.Add(func(v int) { got = append(got, v) })
	l.Add(func(int) { panic("boom") })
	l.Add(func(v int) { got = append(got, v*10) })

	failed := l.Emit(nil, 7)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []int{7, 70}, got)
}

func TestRemove(t *testing.T) {
	var l notify.Listeners[string]
	calls := 0
	remove := l.Add(func(string) { calls++ })
	assert.Equal(t, 1, l.Len())

	remove()
	remove()
	assert.Equal(t, 0, l.Len())

	l.Emit(nil, "x")
	assert.Equal(t, 0, calls)
}

func TestRemoveDuringEmit(t *testing.T) {
	var l notify.Listeners[int]
	calls := 0
	var removeSecond func()
	l.Add(func(int) { removeSecond() })
	removeSecond = l.Add(func(int) { calls++ })

	l.Emit(nil, 1)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, l.Len())
}
