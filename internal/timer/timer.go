// Package timer implements the precision timer: a single-task elapsed-time
// accumulator that re-arms its own tick at an interval adapted to the
// observed drift.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Tiliavir/precise-time-tracker/internal/loop"
	"github.com/Tiliavir/precise-time-tracker/internal/notify"
	"github.com/Tiliavir/precise-time-tracker/internal/quality"
	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

// Bounds accepted by SetTickInterval.
const (
	MinTickInterval = 100 * time.Millisecond
	MaxTickInterval = 5000 * time.Millisecond
)

var (
	ErrAlreadyRunning     = errors.New("timer already running")
	ErrNotRunning         = errors.New("timer not running")
	ErrNoTask             = errors.New("no task set")
	ErrIntervalOutOfRange = errors.New("tick interval out of range")

	errClockSkew = errors.New("clock went backwards")
)

// Saver persists the elapsed time of a task as HH:MM:SS. It is called off
// the event loop and may block.
type Saver interface {
	SaveElapsed(ctx context.Context, taskID, elapsed string) error
}

// SaveError is the sticky error left behind when every save attempt failed.
type SaveError struct {
	TaskID   string
	Elapsed  string
	Attempts int
	Err      error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("saving %s for task %s failed after %d attempts: %v", e.Elapsed, e.TaskID, e.Attempts, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Tick is delivered to subscribers after every processed tick.
type Tick struct {
	TaskID       string
	TotalSeconds int64
	Drift        time.Duration
	Timestamp    time.Time
	QualityScore float64
}

// State is a copy of the timer's state.
type State struct {
	Running     bool
	TaskID      string
	StartedAt   time.Time
	Accumulated time.Duration
}

// Option configures a Timer.
type Option func(*Timer)

// WithSaver sets the persistence callback used on save triggers.
func WithSaver(s Saver) Option {
	return func(t *Timer) { t.saver = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Timer) { t.logger = l }
}

// Timer times one task at a time. All methods must be called on the
// scheduler's loop.
type Timer struct {
	sched   loop.Scheduler
	cfg     Config
	saver   Saver
	logger  *slog.Logger
	quality *quality.Monitor

	running     bool
	taskID      string
	startedAt   time.Time
	accumulated time.Duration // banked before the current run
	tracked     time.Duration // run time accounted for by ticks so far
	lastSaved   int64

	interval   time.Duration
	armed      time.Duration // interval the pending tick was armed with
	cancelTick loop.CancelFunc
	goodTicks  int
	failures   int

	listeners notify.Listeners[Tick]
	saveErr   error
	saving    int // saves not yet finished, retries included
}

// New returns an idle timer.
func New(sched loop.Scheduler, cfg Config, opts ...Option) *Timer {
	t := &Timer{
		sched:   sched,
		cfg:     cfg.withDefaults(),
		logger:  slog.New(slog.DiscardHandler),
		quality: quality.NewMonitor(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.interval = t.clamp(t.cfg.DefaultInterval)
	return t
}

// Start begins timing taskID from initialSeconds. It is rejected while the
// timer is running. Negative initial values count as zero.
func (t *Timer) Start(taskID string, initialSeconds int64) error {
	if t.running {
		t.logger.Warn("start rejected: timer already running", "task", t.taskID, "requested", taskID)
		return ErrAlreadyRunning
	}
	if taskID == "" {
		t.logger.Warn("start rejected: empty task id")
		return ErrNoTask
	}
	if initialSeconds < 0 {
		initialSeconds = 0
	}

	t.quality.Reset()
	t.taskID = taskID
	t.accumulated = time.Duration(initialSeconds) * time.Second
	t.lastSaved = initialSeconds
	t.interval = t.clamp(t.cfg.DefaultInterval)
	t.goodTicks = 0
	t.failures = 0
	t.begin()

	t.logger.Info("timer started", "task", taskID, "elapsed", timecalc.Format(initialSeconds))
	return nil
}

// StartFrom starts taskID from an HH:MM:SS elapsed value.
func (t *Timer) StartFrom(taskID, elapsed string) error {
	secs, err := timecalc.Parse(elapsed)
	if err != nil {
		return err
	}
	return t.Start(taskID, secs)
}

// Pause stops ticking and returns the elapsed seconds. Pausing a timer that
// is not running changes nothing and returns ErrNotRunning with the current total.
func (t *Timer) Pause() (int64, error) {
	if !t.running {
		secs := roundSeconds(t.accumulated)
		t.logger.Warn("pause ignored: timer not running", "task", t.taskID, "elapsed", timecalc.Format(secs))
		return secs, ErrNotRunning
	}

	t.halt()
	secs := roundSeconds(t.accumulated)
	t.save(t.taskID, secs)
	t.logger.Info("timer paused", "task", t.taskID, "elapsed", timecalc.Format(secs))
	return secs, nil
}

// Resume continues a paused task without touching the accumulated time.
func (t *Timer) Resume() error {
	if t.running {
		t.logger.Warn("resume ignored: timer already running", "task", t.taskID)
		return ErrAlreadyRunning
	}
	if t.taskID == "" {
		t.logger.Warn("cannot resume without task")
		return fmt.Errorf("cannot resume without task: %w", ErrNoTask)
	}
	t.goodTicks = 0
	t.begin()
	t.logger.Info("timer resumed", "task", t.taskID)
	return nil
}

// Stop ends the current task, saves it and returns its final elapsed seconds.
func (t *Timer) Stop() (int64, error) {
	if t.taskID == "" {
		t.logger.Warn("stop ignored: no task")
		return 0, ErrNoTask
	}
	if t.running {
		t.halt()
	}

	secs := roundSeconds(t.accumulated)
	taskID := t.taskID
	t.save(taskID, secs)

	t.taskID = ""
	t.accumulated = 0
	t.tracked = 0
	t.lastSaved = 0
	t.quality.Reset()
	t.interval = t.clamp(t.cfg.DefaultInterval)
	t.goodTicks = 0
	t.failures = 0

	t.logger.Info("timer stopped", "task", taskID, "elapsed", timecalc.Format(secs))
	return secs, nil
}

// SetTickInterval changes the default tick interval. Values outside
// [MinTickInterval, MaxTickInterval] are rejected. The live interval is the
// value clamped to the configured adaptive bounds and applies from the next tick.
func (t *Timer) SetTickInterval(d time.Duration) error {
	if d < MinTickInterval || d > MaxTickInterval {
		t.logger.Warn("tick interval rejected", "interval", d, "min", MinTickInterval, "max", MaxTickInterval)
		return fmt.Errorf("%w: %v", ErrIntervalOutOfRange, d)
	}
	t.cfg.DefaultInterval = d
	t.interval = t.clamp(d)
	t.goodTicks = 0
	return nil
}

// Subscribe registers fn for tick notifications and returns an unsubscribe function.
func (t *Timer) Subscribe(fn func(Tick)) func() {
	return t.listeners.Add(fn)
}

// IsRunning reports whether the timer is ticking.
func (t *Timer) IsRunning() bool { return t.running }

// TaskID returns the current task, or "" when idle.
func (t *Timer) TaskID() string { return t.taskID }

// Interval returns the adaptive interval the next tick will be armed with.
func (t *Timer) Interval() time.Duration { return t.interval }

// Quality returns the drift metrics of the current run.
func (t *Timer) Quality() quality.Metrics { return t.quality.Metrics() }

// SavePending reports whether a save or one of its retries is outstanding.
func (t *Timer) SavePending() bool { return t.saving > 0 }

// Err returns the sticky persistence error, if any.
func (t *Timer) Err() error { return t.saveErr }

// ClearErr clears the sticky persistence error.
func (t *Timer) ClearErr() { t.saveErr = nil }

// State returns a copy of the timer state.
func (t *Timer) State() State {
	return State{
		Running:     t.running,
		TaskID:      t.taskID,
		StartedAt:   t.startedAt,
		Accumulated: t.accumulated,
	}
}

// TotalSeconds returns the elapsed seconds including the current run.
func (t *Timer) TotalSeconds() int64 {
	return t.totalSeconds(t.sched.Now())
}

func (t *Timer) totalSeconds(now time.Time) int64 {
	total := t.accumulated
	if t.running {
		if e := now.Sub(t.startedAt); e > 0 {
			total += e
		}
	}
	return roundSeconds(total)
}

func (t *Timer) begin() {
	t.running = true
	t.startedAt = t.sched.Now()
	t.tracked = 0
	t.arm()
}

// halt cancels the pending tick and banks the current run.
func (t *Timer) halt() {
	t.disarm()
	if e := t.sched.Now().Sub(t.startedAt); e > 0 {
		t.accumulated += e
	}
	t.running = false
	t.startedAt = time.Time{}
	t.tracked = 0
}

func (t *Timer) arm() {
	if t.cancelTick != nil {
		return
	}
	t.armed = t.interval
	t.cancelTick = t.sched.After(t.armed, t.tick)
}

func (t *Timer) disarm() {
	if t.cancelTick != nil {
		t.cancelTick()
		t.cancelTick = nil
	}
}

func (t *Timer) tick() {
	t.cancelTick = nil
	if !t.running {
		return
	}

	if err := t.processTick(); err != nil {
		t.failures++
		t.logger.Warn("tick failed", "task", t.taskID, "error", err, "failures", t.failures)
		if t.failures >= t.cfg.MaxTickFailures {
			t.logger.Warn("resetting timer quality after repeated tick failures", "task", t.taskID)
			t.quality.Reset()
			t.interval = t.clamp(t.cfg.DefaultInterval)
			t.goodTicks = 0
			t.failures = 0
		}
	} else {
		t.failures = 0
	}

	// A listener may have paused or restarted the timer.
	if t.running {
		t.arm()
	}
}

func (t *Timer) processTick() error {
	now := t.sched.Now()
	elapsed := now.Sub(t.startedAt)
	if elapsed < 0 {
		return fmt.Errorf("%w: %v", errClockSkew, elapsed)
	}

	t.tracked += t.armed
	drift := elapsed - t.tracked
	t.quality.RecordDrift(drift)

	if drift.Abs() > t.cfg.DriftThreshold {
		t.quality.RecordCorrection()
		t.goodTicks = 0
		t.interval = t.clamp(t.step(-1))
		t.logger.Debug("drift corrected", "task", t.taskID, "drift", drift, "interval", t.interval)
	} else {
		t.goodTicks++
		if t.goodTicks >= t.cfg.GoodTicksToGrow {
			t.interval = t.clamp(t.step(1))
			t.goodTicks = 0
		}
	}
	t.tracked = elapsed

	taskID := t.taskID
	total := t.totalSeconds(now)
	failed := t.listeners.Emit(t.logger, Tick{
		TaskID:       taskID,
		TotalSeconds: total,
		Drift:        drift,
		Timestamp:    now,
		QualityScore: t.quality.Score(),
	})

	if t.running && t.taskID == taskID && total-t.lastSaved >= int64(t.cfg.SaveEvery/time.Second) {
		t.save(taskID, total)
	}
	if failed > 0 {
		return fmt.Errorf("%d tick listener(s) failed", failed)
	}
	return nil
}

func (t *Timer) step(dir float64) time.Duration {
	return time.Duration(math.Round(float64(t.interval) * (1 + dir*t.cfg.StepRatio)))
}

func (t *Timer) clamp(d time.Duration) time.Duration {
	return min(max(d, t.cfg.MinInterval), t.cfg.MaxInterval)
}

func (t *Timer) save(taskID string, secs int64) {
	t.lastSaved = secs
	if t.saver == nil {
		return
	}
	t.saving++
	t.attemptSave(taskID, timecalc.Format(secs), 1)
}

func (t *Timer) attemptSave(taskID, elapsed string, attempt int) {
	saver := t.saver
	t.sched.Go(func(ctx context.Context) error {
		return saver.SaveElapsed(ctx, taskID, elapsed)
	}, func(err error) {
		if err == nil {
			t.saving--
			return
		}
		if attempt >= t.cfg.SaveAttempts {
			t.saving--
			t.saveErr = &SaveError{TaskID: taskID, Elapsed: elapsed, Attempts: attempt, Err: err}
			t.logger.Error("saving elapsed time failed", "task", taskID, "elapsed", elapsed, "attempts", attempt, "error", err)
			return
		}
		backoff := t.cfg.SaveBackoff << (attempt - 1)
		t.logger.Warn("saving elapsed time failed, retrying", "task", taskID, "attempt", attempt, "backoff", backoff, "error", err)
		t.sched.After(backoff, func() { t.attemptSave(taskID, elapsed, attempt+1) })
	})
}

func roundSeconds(d time.Duration) int64 {
	return int64(math.Round(d.Seconds()))
}
