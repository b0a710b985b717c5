// Package coordinator ties the precision timer to idle detection and host
// power signals: it pauses registered tasks when the user goes idle or the
// host sleeps, and resumes or suggests resuming them afterwards.
package coordinator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Tiliavir/precise-time-tracker/internal/idle"
	"github.com/Tiliavir/precise-time-tracker/internal/loop"
	"github.com/Tiliavir/precise-time-tracker/internal/model"
	"github.com/Tiliavir/precise-time-tracker/internal/notify"
	"github.com/Tiliavir/precise-time-tracker/internal/power"
	"github.com/Tiliavir/precise-time-tracker/internal/timer"
)

// Suspension reasons.
const (
	ReasonIdle    = "idle"
	ReasonSuspend = "system suspend"
)

var (
	ErrNotSuspended = errors.New("task not suspended")
	ErrOtherTask    = errors.New("timer holds another task")
)

// Timer is the part of the precision timer the coordinator drives.
type Timer interface {
	Pause() (int64, error)
	Resume() error
	IsRunning() bool
	TaskID() string
}

// Detector is the part of the idle detector the coordinator listens to.
type Detector interface {
	Subscribe(fn func(idle.Change)) func()
	SetLocked(locked bool)
}

// TaskStore exposes the persisted tasks for integrity checks.
type TaskStore interface {
	Snapshot(ctx context.Context) (model.TaskFile, error)
}

// EventKind names a coordinator event.
type EventKind string

const (
	EventSuspend         EventKind = "suspend"
	EventResume          EventKind = "resume"
	EventIdlePause       EventKind = "idle-pause"
	EventAutoResume      EventKind = "auto-resume"
	EventConfirmResume   EventKind = "confirm-resume"
	EventManualResume    EventKind = "manual-resume"
	EventResumeSuggested EventKind = "resume-suggested"
	EventIntegrity       EventKind = "integrity"
)

// Event is delivered to subscribers.
type Event struct {
	Kind       EventKind
	TaskIDs    []string
	Reason     string
	Confidence float64
	At         time.Time
	Issues     []Issue
}

// Suspension records a task paused by the coordinator.
type Suspension struct {
	ID     string
	TaskID string
	At     time.Time
	Reason string
}

// Suggestion proposes resuming a suspended task.
type Suggestion struct {
	TaskID    string
	Reason    string
	CreatedAt time.Time
}

// Stats counts the coordinator's bookkeeping.
type Stats struct {
	Active             int
	Suspended          int
	PendingSuggestions int
}

type activity struct {
	registeredAt time.Time
	lastActivity time.Time
	warned       bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithTaskStore enables the periodic integrity check.
func WithTaskStore(s TaskStore) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithIdleSource enables resume suggestions based on the system idle time.
func WithIdleSource(s idle.Source) Option {
	return func(c *Coordinator) { c.source = s }
}

// Coordinator reconciles the timer with user activity. All methods must
// be called on the scheduler's loop.
type Coordinator struct {
	sched    loop.Scheduler
	timer    Timer
	detector Detector
	cfg      Config
	logger   *slog.Logger
	store    TaskStore
	source   idle.Source

	activities  map[string]*activity
	suspended   map[string]Suspension
	suggestions map[string]Suggestion
	listeners   notify.Listeners[Event]

	running     bool
	gen         int
	unsubscribe func()
	cancelMaint loop.CancelFunc
	cancelScan  loop.CancelFunc
}

// New returns a stopped coordinator. detector may be nil.
func New(sched loop.Scheduler, t Timer, detector Detector, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		sched:       sched,
		timer:       t,
		detector:    detector,
		cfg:         cfg.withDefaults(),
		logger:      slog.New(slog.DiscardHandler),
		activities:  make(map[string]*activity),
		suspended:   make(map[string]Suspension),
		suggestions: make(map[string]Suggestion),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the detector and schedules maintenance and the
// suggestion scan.
func (c *Coordinator) Start() {
	if c.running {
		return
	}
	c.running = true
	c.gen++
	if c.detector != nil {
		c.unsubscribe = c.detector.Subscribe(c.onIdleChange)
	}
	c.cancelMaint = c.sched.After(c.cfg.MaintenanceInterval, c.maintain)
	c.cancelScan = c.sched.After(c.cfg.SuggestionInterval, c.scan)
	c.logger.Info("coordinator started")
}

// Stop undoes Start. Bookkeeping is kept.
func (c *Coordinator) Stop() {
	if !c.running {
		return
	}
	c.running = false
	c.gen++
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	for _, cancel := range []loop.CancelFunc{c.cancelMaint, c.cancelScan} {
		if cancel != nil {
			cancel()
		}
	}
	c.cancelMaint, c.cancelScan = nil, nil
	c.logger.Info("coordinator stopped")
}

// Subscribe registers fn for events and returns an unsubscribe function.
func (c *Coordinator) Subscribe(fn func(Event)) func() {
	return c.listeners.Add(fn)
}

// RegisterActivity puts taskID under coordination. Registering again
// refreshes its last activity.
func (c *Coordinator) RegisterActivity(taskID string) {
	now := c.sched.Now()
	if a, ok := c.activities[taskID]; ok {
		a.lastActivity = now
		a.warned = false
		return
	}
	c.activities[taskID] = &activity{registeredAt: now, lastActivity: now}
	c.logger.Info("activity registered", "task", taskID)
}

// UnregisterActivity removes taskID with its suspension and suggestion. It
// returns false when the task was not registered.
func (c *Coordinator) UnregisterActivity(taskID string) bool {
	if _, ok := c.activities[taskID]; !ok {
		return false
	}
	delete(c.activities, taskID)
	delete(c.suspended, taskID)
	delete(c.suggestions, taskID)
	c.logger.Info("activity unregistered", "task", taskID)
	return true
}

// Suspend handles the host going to sleep: the timer is paused if it runs a
// registered task and every registered task gets a suspension.
func (c *Coordinator) Suspend() {
	now := c.sched.Now()
	if id := c.timer.TaskID(); c.timer.IsRunning() && c.registered(id) {
		c.pause(id)
	}

	ids := c.registeredIDs()
	for _, id := range ids {
		// Replaces an idle suspension: after a wake the user resumes explicitly.
		c.suspend(id, ReasonSuspend, now)
		delete(c.suggestions, id)
	}
	c.logger.Info("system suspend", "tasks", ids)
	c.emit(Event{Kind: EventSuspend, TaskIDs: ids, Reason: ReasonSuspend, At: now})
}

// Resume handles the host waking up. System-suspend suspensions are dropped
// without resuming anything; the user restarts work explicitly.
func (c *Coordinator) Resume() {
	now := c.sched.Now()
	var ids []string
	for _, s := range c.sortedSuspensions() {
		if s.Reason == ReasonSuspend {
			ids = append(ids, s.TaskID)
			delete(c.suspended, s.TaskID)
			delete(c.suggestions, s.TaskID)
		}
	}
	c.logger.Info("system resume", "tasks", ids)
	c.emit(Event{Kind: EventResume, TaskIDs: ids, Reason: ReasonSuspend, At: now})
}

// ScreenLocked holds the detector idle.
func (c *Coordinator) ScreenLocked() {
	if c.detector != nil {
		c.detector.SetLocked(true)
	}
}

// ScreenUnlocked releases the lock hold.
func (c *Coordinator) ScreenUnlocked() {
	if c.detector != nil {
		c.detector.SetLocked(false)
	}
}

// HandleSignal dispatches a host power signal.
func (c *Coordinator) HandleSignal(sig power.Signal) {
	switch sig {
	case power.Suspend:
		c.Suspend()
	case power.Resume:
		c.Resume()
	case power.Lock:
		c.ScreenLocked()
	case power.Unlock:
		c.ScreenUnlocked()
	default:
		c.logger.Warn("unknown power signal", "signal", sig)
	}
}

// ConfirmResume resumes a suspended task on the user's request and
// consumes its suggestion.
func (c *Coordinator) ConfirmResume(taskID string) error {
	if _, ok := c.suspended[taskID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotSuspended, taskID)
	}
	if current := c.timer.TaskID(); current != taskID {
		return fmt.Errorf("%w: %q", ErrOtherTask, current)
	}
	if err := c.timer.Resume(); err != nil && !errors.Is(err, timer.ErrAlreadyRunning) {
		return err
	}

	delete(c.suspended, taskID)
	delete(c.suggestions, taskID)
	c.touch(taskID)
	c.logger.Info("resume confirmed", "task", taskID)
	c.emit(Event{Kind: EventManualResume, TaskIDs: []string{taskID}, At: c.sched.Now()})
	return nil
}

// Stats returns counts of registered tasks, suspensions and pending suggestions.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Active:             len(c.activities),
		Suspended:          len(c.suspended),
		PendingSuggestions: len(c.suggestions),
	}
}

// Suspended returns the suspensions, oldest first.
func (c *Coordinator) Suspended() []Suspension {
	return c.sortedSuspensions()
}

// Suggestions returns the pending suggestions, oldest first.
func (c *Coordinator) Suggestions() []Suggestion {
	out := slices.Collect(maps.Values(c.suggestions))
	slices.SortFunc(out, func(a, b Suggestion) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.TaskID, b.TaskID))
	})
	return out
}

func (c *Coordinator) onIdleChange(ch idle.Change) {
	if ch.Idle {
		c.onIdle(ch)
	} else {
		c.onActive(ch)
	}
}

func (c *Coordinator) onIdle(ch idle.Change) {
	id := c.timer.TaskID()
	if !c.timer.IsRunning() || !c.registered(id) {
		return
	}
	if ch.Confidence < c.cfg.PauseConfidence {
		c.logger.Debug("idle ignored: confidence below pause floor", "task", id, "confidence", ch.Confidence)
		return
	}
	if !c.pause(id) {
		return
	}

	now := c.sched.Now()
	c.suspend(id, ReasonIdle, now)
	c.logger.Info("task paused for idle", "task", id, "idle_time", ch.IdleTime, "confidence", ch.Confidence)
	c.emit(Event{Kind: EventIdlePause, TaskIDs: []string{id}, Reason: ReasonIdle, Confidence: ch.Confidence, At: now})
}

func (c *Coordinator) onActive(ch idle.Change) {
	id := c.timer.TaskID()
	if !c.registered(id) {
		return
	}
	c.touch(id)

	s, ok := c.suspended[id]
	if !ok || s.Reason != ReasonIdle || c.timer.IsRunning() {
		return
	}

	now := c.sched.Now()
	if ch.Confidence < c.cfg.ResumeConfidence {
		c.logger.Info("activity detected, asking before resuming", "task", id, "confidence", ch.Confidence)
		c.emit(Event{Kind: EventConfirmResume, TaskIDs: []string{id}, Reason: ReasonIdle, Confidence: ch.Confidence, At: now})
		return
	}

	if err := c.timer.Resume(); err != nil && !errors.Is(err, timer.ErrAlreadyRunning) {
		c.logger.Warn("auto-resume failed", "task", id, "error", err)
		return
	}
	delete(c.suspended, id)
	delete(c.suggestions, id)
	c.logger.Info("task resumed after idle", "task", id, "confidence", ch.Confidence)
	c.emit(Event{Kind: EventAutoResume, TaskIDs: []string{id}, Reason: ReasonIdle, Confidence: ch.Confidence, At: now})
}

// pause pauses the timer, treating a concurrent pause as success only when
// the timer really is stopped.
func (c *Coordinator) pause(id string) bool {
	if _, err := c.timer.Pause(); err != nil {
		if errors.Is(err, timer.ErrNotRunning) {
			c.logger.Debug("pause raced with another caller", "task", id)
			return false
		}
		c.logger.Warn("pause failed", "task", id, "error", err)
		return false
	}
	return true
}

func (c *Coordinator) suspend(id, reason string, at time.Time) {
	c.suspended[id] = Suspension{ID: uuid.NewString(), TaskID: id, At: at, Reason: reason}
}

func (c *Coordinator) touch(id string) {
	if a, ok := c.activities[id]; ok {
		a.lastActivity = c.sched.Now()
		a.warned = false
	}
}

func (c *Coordinator) registered(id string) bool {
	_, ok := c.activities[id]
	return id != "" && ok
}

func (c *Coordinator) registeredIDs() []string {
	return slices.Sorted(maps.Keys(c.activities))
}

func (c *Coordinator) sortedSuspensions() []Suspension {
	out := slices.Collect(maps.Values(c.suspended))
	slices.SortFunc(out, func(a, b Suspension) int {
		return cmp.Or(a.At.Compare(b.At), cmp.Compare(a.TaskID, b.TaskID))
	})
	return out
}

func (c *Coordinator) emit(ev Event) {
	c.listeners.Emit(c.logger, ev)
}

// maintain purges stale activities, warns about long inactivity and checks
// the task store.
func (c *Coordinator) maintain() {
	if !c.running {
		return
	}
	c.cancelMaint = c.sched.After(c.cfg.MaintenanceInterval, c.maintain)

	now := c.sched.Now()
	current := c.timer.TaskID()
	for _, id := range c.registeredIDs() {
		a := c.activities[id]
		// A running timer is paused on idle, so it implies activity.
		if c.timer.IsRunning() && id == current {
			a.lastActivity = now
			a.warned = false
			continue
		}
		inactive := now.Sub(a.lastActivity)
		switch {
		case inactive > c.cfg.StaleAfter:
			c.logger.Info("purging stale activity", "task", id, "inactive", inactive)
			c.UnregisterActivity(id)
		case inactive > c.cfg.InactivityWarning && !a.warned:
			a.warned = true
			c.logger.Warn("activity inactive", "task", id, "inactive", inactive)
		}
	}

	if c.store == nil {
		return
	}
	gen := c.gen
	store := c.store
	var snapshot model.TaskFile
	c.sched.Go(func(ctx context.Context) error {
		f, err := store.Snapshot(ctx)
		snapshot = f
		return err
	}, func(err error) {
		if gen != c.gen {
			return
		}
		if err != nil {
			c.logger.Warn("integrity check skipped", "error", err)
			return
		}
		issues := CheckIntegrity(snapshot)
		if len(issues) == 0 {
			return
		}
		for _, is := range issues {
			c.logger.Warn("task store integrity issue", "kind", is.Kind, "task", is.TaskID, "detail", is.Detail)
		}
		c.emit(Event{Kind: EventIntegrity, Issues: issues, At: c.sched.Now()})
	})
}

// scan proposes resuming suspended tasks once the user is back.
func (c *Coordinator) scan() {
	if !c.running {
		return
	}
	c.cancelScan = c.sched.After(c.cfg.SuggestionInterval, c.scan)
	if len(c.suspended) == 0 || c.source == nil {
		return
	}

	gen := c.gen
	source := c.source
	var idleTime time.Duration
	c.sched.Go(func(ctx context.Context) error {
		d, err := source.IdleDuration(ctx)
		idleTime = d
		return err
	}, func(err error) {
		if gen != c.gen {
			return
		}
		if err != nil {
			c.logger.Warn("suggestion scan: reading idle time failed", "error", err)
			return
		}
		if idleTime >= c.cfg.SuggestionThreshold {
			return
		}

		now := c.sched.Now()
		var ids []string
		for _, s := range c.sortedSuspensions() {
			if _, ok := c.suggestions[s.TaskID]; ok {
				continue
			}
			c.suggestions[s.TaskID] = Suggestion{TaskID: s.TaskID, Reason: s.Reason, CreatedAt: now}
			ids = append(ids, s.TaskID)
		}
		if len(ids) > 0 {
			c.logger.Info("resume suggested", "tasks", ids, "idle_time", idleTime)
			c.emit(Event{Kind: EventResumeSuggested, TaskIDs: ids, At: now})
		}
	})
}
