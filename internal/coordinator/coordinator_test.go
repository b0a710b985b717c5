package coordinator_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/precise-time-tracker/internal/coordinator"
	"github.com/Tiliavir/precise-time-tracker/internal/idle"
	"github.com/Tiliavir/precise-time-tracker/internal/loop"
	"github.com/Tiliavir/precise-time-tracker/internal/model"
	"github.com/Tiliavir/precise-time-tracker/internal/notify"
	"github.com/Tiliavir/precise-time-tracker/internal/power"
	"github.com/Tiliavir/precise-time-tracker/internal/timer"
)

var epoch = time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)

type fakeDetector struct {
	listeners notify.Listeners[idle.Change]
	locks     []bool
}

func (f *fakeDetector) Subscribe(fn func(idle.Change)) func() { return f.listeners.Add(fn) }
func (f *fakeDetector) SetLocked(locked bool)                  { f.locks = append(f.locks, locked) }

func (f *fakeDetector) change(isIdle bool, conf float64) {
	f.listeners.Emit(slog.New(slog.DiscardHandler), idle.Change{Idle: isIdle, Confidence: conf})
}

type fakeStore struct{ f model.TaskFile }

func (s fakeStore) Snapshot(context.Context) (model.TaskFile, error) { return s.f, nil }

type harness struct {
	m      *loop.Manual
	timer  *timer.Timer
	det    *fakeDetector
	coord  *coordinator.Coordinator
	events []coordinator.Event
}

func newHarness(t *testing.T, opts ...coordinator.Option) *harness {
	t.Helper()
	h := &harness{m: loop.NewManual(epoch), det: &fakeDetector{}}
	h.timer = timer.New(h.m, timer.DefaultConfig())
	h.coord = coordinator.New(h.m, h.timer, h.det, coordinator.DefaultConfig(), opts...)
	h.coord.Subscribe(func(ev coordinator.Event) { h.events = append(h.events, ev) })
	h.coord.Start()
	t.Cleanup(h.coord.Stop)
	return h
}

func (h *harness) kinds() []coordinator.EventKind {
	var out []coordinator.EventKind
	for _, ev := range h.events {
		out = append(out, ev.Kind)
	}
	return out
}

// track starts the timer on taskID and registers it.
func (h *harness) track(t *testing.T, taskID string) {
	t.Helper()
	require.NoError(t, h.timer.Start(taskID, 0))
	h.coord.RegisterActivity(taskID)
}

func TestIdlePausesRegisteredTask(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")
	h.m.Advance(10 * time.Second)

	h.det.change(true, 0.75)
	assert.False(t, h.timer.IsRunning())
	assert.Equal(t, int64(10), h.timer.TotalSeconds())

	sus := h.coord.Suspended()
	require.Len(t, sus, 1)
	assert.Equal(t, "1", sus[0].TaskID)
	assert.Equal(t, coordinator.ReasonIdle, sus[0].Reason)
	assert.NotEmpty(t, sus[0].ID)

	require.Len(t, h.events, 1)
	assert.Equal(t, coordinator.EventIdlePause, h.events[0].Kind)
	assert.Equal(t, []string{"1"}, h.events[0].TaskIDs)
	assert.Equal(t, 0.75, h.events[0].Confidence)
}

func TestIdleBelowPauseFloorIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")

	h.det.change(true, 0.65)
	assert.True(t, h.timer.IsRunning())
	assert.Empty(t, h.events)
	assert.Equal(t, 0, h.coord.Stats().Suspended)
}

func TestUnregisteredTaskIsNotPaused(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.timer.Start("1", 0))

	h.det.change(true, 0.99)
	assert.True(t, h.timer.IsRunning())
	assert.Empty(t, h.events)
}

func TestConfidentActivityAutoResumes(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")
	h.det.change(true, 0.9)
	require.False(t, h.timer.IsRunning())

	h.det.change(false, 0.85)
	assert.True(t, h.timer.IsRunning())
	assert.Equal(t, coordinator.Stats{Active: 1}, h.coord.Stats())
	assert.Equal(t, []coordinator.EventKind{coordinator.EventIdlePause, coordinator.EventAutoResume}, h.kinds())
}

func TestUncertainActivityAsksForConfirmation(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")

	// 0.75 clears the pause floor but not the resume floor.
	h.det.change(true, 0.75)
	h.det.change(false, 0.75)
	assert.False(t, h.timer.IsRunning())
	assert.Equal(t, []coordinator.EventKind{coordinator.EventIdlePause, coordinator.EventConfirmResume}, h.kinds())
	assert.Equal(t, 1, h.coord.Stats().Suspended)

	require.NoError(t, h.coord.ConfirmResume("1"))
	assert.True(t, h.timer.IsRunning())
	assert.Equal(t, 0, h.coord.Stats().Suspended)
	assert.Equal(t, coordinator.EventManualResume, h.events[2].Kind)

	assert.ErrorIs(t, h.coord.ConfirmResume("1"), coordinator.ErrNotSuspended)
}

func TestConfirmResumeRejectsOtherTask(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")
	h.coord.RegisterActivity("2")
	h.coord.Suspend()

	assert.ErrorIs(t, h.coord.ConfirmResume("2"), coordinator.ErrOtherTask)
}

func TestSystemSuspendAndResume(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")
	h.coord.RegisterActivity("2")

	h.coord.Suspend()
	assert.False(t, h.timer.IsRunning())
	sus := h.coord.Suspended()
	require.Len(t, sus, 2)
	for _, s := range sus {
		assert.Equal(t, coordinator.ReasonSuspend, s.Reason)
	}
	require.Len(t, h.events, 1)
	assert.Equal(t, coordinator.EventSuspend, h.events[0].Kind)
	assert.Equal(t, []string{"1", "2"}, h.events[0].TaskIDs)

	// Activity does not resume a system suspension.
	h.det.change(false, 1.0)
	assert.False(t, h.timer.IsRunning())

	h.coord.Resume()
	assert.False(t, h.timer.IsRunning(), "wake never resumes on its own")
	assert.Empty(t, h.coord.Suspended())
	last := h.events[len(h.events)-1]
	assert.Equal(t, coordinator.EventResume, last.Kind)
	assert.Equal(t, []string{"1", "2"}, last.TaskIDs)
}

func TestSystemSuspendReplacesIdleSuspension(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")
	h.det.change(true, 0.9)
	idleID := h.coord.Suspended()[0].ID

	h.coord.Suspend()
	sus := h.coord.Suspended()
	require.Len(t, sus, 1)
	assert.Equal(t, coordinator.ReasonSuspend, sus[0].Reason)
	assert.NotEqual(t, idleID, sus[0].ID)

	h.coord.Resume()
	last := h.events[len(h.events)-1]
	assert.Equal(t, coordinator.EventResume, last.Kind)
	assert.Equal(t, []string{"1"}, last.TaskIDs)
	assert.Empty(t, h.coord.Suspended())

	h.det.change(false, 0.9)
	assert.False(t, h.timer.IsRunning())
}

func TestUnregisterActivity(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")
	h.det.change(true, 0.9)
	require.Equal(t, 1, h.coord.Stats().Suspended)

	assert.True(t, h.coord.UnregisterActivity("1"))
	assert.False(t, h.coord.UnregisterActivity("1"))
	assert.Equal(t, coordinator.Stats{}, h.coord.Stats())
}

func TestHandleSignal(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")

	h.coord.HandleSignal(power.Lock)
	h.coord.HandleSignal(power.Unlock)
	assert.Equal(t, []bool{true, false}, h.det.locks)

	h.coord.HandleSignal(power.Suspend)
	h.coord.HandleSignal(power.Resume)
	assert.Equal(t, []coordinator.EventKind{coordinator.EventSuspend, coordinator.EventResume}, h.kinds())
}

func TestTimerRacesAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")
	h.det.change(true, 0.9)

	// The user resumed by hand before activity was detected.
	require.NoError(t, h.timer.Resume())
	h.det.change(false, 0.9)
	assert.True(t, h.timer.IsRunning())
	assert.Equal(t, []coordinator.EventKind{coordinator.EventIdlePause}, h.kinds())
}

func TestResumeSuggestions(t *testing.T) {
	idleTime := 2 * time.Minute
	src := idle.SourceFunc(func(context.Context) (time.Duration, error) { return idleTime, nil })
	h := newHarness(t, coordinator.WithIdleSource(src))
	h.track(t, "1")
	h.det.change(true, 0.9)

	h.m.Advance(time.Minute)
	assert.Empty(t, h.coord.Suggestions(), "user still away")

	idleTime = 10 * time.Second
	h.m.Advance(time.Minute)
	sug := h.coord.Suggestions()
	require.Len(t, sug, 1)
	assert.Equal(t, "1", sug[0].TaskID)
	assert.Equal(t, coordinator.ReasonIdle, sug[0].Reason)
	assert.Equal(t, coordinator.EventResumeSuggested, h.events[len(h.events)-1].Kind)

	n := len(h.events)
	h.m.Advance(time.Minute)
	assert.Len(t, h.coord.Suggestions(), 1, "one suggestion per suspension")
	assert.Len(t, h.events, n)
	assert.Equal(t, 1, h.coord.Stats().PendingSuggestions)

	require.NoError(t, h.coord.ConfirmResume("1"))
	assert.Empty(t, h.coord.Suggestions())
}

func TestMaintenance(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	store := fakeStore{f: model.TaskFile{
		Active:    []model.Task{{ID: "1", Elapsed: "00:01:00"}, {ID: "2", Elapsed: "1:00"}},
		Completed: []model.Task{{ID: "1", Elapsed: "00:01:00"}},
	}}
	h := newHarness(t, coordinator.WithTaskStore(store), coordinator.WithLogger(logger))
	h.coord.RegisterActivity("old")

	h.m.Advance(5 * time.Minute)
	var integrity *coordinator.Event
	for i := range h.events {
		if h.events[i].Kind == coordinator.EventIntegrity {
			integrity = &h.events[i]
		}
	}
	require.NotNil(t, integrity)
	assert.Len(t, integrity.Issues, 2)

	h.m.Advance(30 * time.Minute)
	assert.Contains(t, logs.String(), "activity inactive")
	assert.Equal(t, 1, h.coord.Stats().Active)

	h.m.Advance(24 * time.Hour)
	assert.Equal(t, 0, h.coord.Stats().Active)
	assert.Contains(t, logs.String(), "purging stale activity")
}

func TestRunningTaskCountsAsActive(t *testing.T) {
	h := newHarness(t)
	h.track(t, "1")
	h.m.Advance(25 * time.Hour)
	assert.Equal(t, 1, h.coord.Stats().Active)
}

func TestStopCancelsSchedules(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 2, h.m.Pending())
	assert.Equal(t, 1, h.det.listeners.Len())

	h.coord.Stop()
	assert.Equal(t, 0, h.m.Pending())
	assert.Equal(t, 0, h.det.listeners.Len())
}

func TestCheckIntegrity(t *testing.T) {
	tests := []struct {
		name string
		f    model.TaskFile
		want []coordinator.IssueKind
	}{
		{"clean", model.TaskFile{Active: []model.Task{{ID: "1", Elapsed: "00:00:01"}}}, nil},
		{"both sets", model.TaskFile{
			Active:    []model.Task{{ID: "1", Elapsed: "00:00:01"}},
			Completed: []model.Task{{ID: "1", Elapsed: "00:00:01"}},
		}, []coordinator.IssueKind{coordinator.IssueActiveAndCompleted}},
		{"duplicate", model.TaskFile{
			Active: []model.Task{{ID: "1", Elapsed: "00:00:01"}, {ID: "1", Elapsed: "00:00:02"}},
		}, []coordinator.IssueKind{coordinator.IssueDuplicate}},
		{"malformed", model.TaskFile{
			Completed: []model.Task{{ID: "9", Elapsed: "00:61:00"}},
		}, []coordinator.IssueKind{coordinator.IssueInvalidElapsed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []coordinator.IssueKind
			for _, is := range coordinator.CheckIntegrity(tt.f) {
				got = append(got, is.Kind)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListenerPanicDoesNotStopCoordinator(t *testing.T) {
	h := newHarness(t)
	h.coord.Subscribe(func(coordinator.Event) { panic(errors.New("boom")) })
	h.track(t, "1")

	h.det.change(true, 0.9)
	h.det.change(false, 0.9)
	assert.True(t, h.timer.IsRunning())
	assert.Len(t, h.events, 2)
}

// presenceSource reports a short idle time while the user is at the desk
// and the time since they left otherwise.
type presenceSource struct {
	m         *loop.Manual
	awaySince time.Time
}

func (s *presenceSource) IdleDuration(context.Context) (time.Duration, error) {
	if s.awaySince.IsZero() {
		return 100 * time.Millisecond, nil
	}
	return s.m.Now().Sub(s.awaySince), nil
}

func TestDetectorDrivesPauseAndAutoResume(t *testing.T) {
	m := loop.NewManual(epoch)
	src := &presenceSource{m: m}
	det := idle.New(m, src, idle.DefaultConfig())
	tm := timer.New(m, timer.DefaultConfig())
	coord := coordinator.New(m, tm, det, coordinator.DefaultConfig())
	var kinds []coordinator.EventKind
	coord.Subscribe(func(ev coordinator.Event) { kinds = append(kinds, ev.Kind) })

	require.NoError(t, tm.Start("1", 0))
	coord.RegisterActivity("1")
	det.Start()
	coord.Start()
	t.Cleanup(func() {
		coord.Stop()
		det.Stop()
	})

	m.Advance(10 * time.Minute)
	src.awaySince = m.Now()
	m.Advance(10 * time.Minute)
	require.Equal(t, []coordinator.EventKind{coordinator.EventIdlePause}, kinds)
	assert.False(t, tm.IsRunning())

	src.awaySince = time.Time{}
	m.Advance(10 * time.Second)
	assert.Equal(t, []coordinator.EventKind{coordinator.EventIdlePause, coordinator.EventAutoResume}, kinds)
	assert.True(t, tm.IsRunning())
	assert.Empty(t, coord.Suspended())
	assert.False(t, det.IsIdle())
}
