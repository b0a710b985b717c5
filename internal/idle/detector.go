// Package idle infers whether the user is idle from periodic reads of the
// system idle time, weighting each read by how plausible it looks.
package idle

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/Tiliavir/precise-time-tracker/internal/loop"
	"github.com/Tiliavir/precise-time-tracker/internal/notify"
	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

// Origin tells where a history entry came from.
type Origin string

const (
	OriginSystem    Origin = "system"
	OriginUser      Origin = "user"
	OriginEstimated Origin = "estimated"
)

// InputKind names a kind of user input event.
type InputKind string

const (
	InputPointer InputKind = "pointer"
	InputKey     InputKind = "key"
	InputScroll  InputKind = "scroll"
)

// recentEntries is the number of history entries included in Status.
const recentEntries = 10

// HistoryEntry is one recorded idle sample.
type HistoryEntry struct {
	Timestamp  time.Time
	IdleTime   time.Duration
	Confidence float64
	Origin     Origin
}

// Change is delivered to subscribers when the public idle state flips.
type Change struct {
	Idle       bool
	IdleTime   time.Duration
	Confidence float64
}

// Status is a snapshot of the detector.
type Status struct {
	Idle                  bool
	Locked                bool
	Running               bool
	IdleTime              time.Duration
	Threshold             time.Duration
	LastActivity          time.Time
	Confidence            float64
	Mode                  Mode
	Recent                []HistoryEntry
	ConsecutiveIdleChecks int
	PollInterval          time.Duration
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// Detector polls a Source and publishes idle/active transitions. All
// methods must be called on the scheduler's loop.
type Detector struct {
	sched  loop.Scheduler
	source Source
	cfg    Config
	logger *slog.Logger

	running    bool
	gen        int // bumped on Stop so in-flight reads are discarded
	cancelPoll loop.CancelFunc
	interval   time.Duration
	errors     int

	idle         bool
	locked       bool
	confidence   float64
	lastIdle     time.Duration
	lastSampleAt time.Time
	lastActivity time.Time
	lastInput    time.Time
	idleStreak   int
	activeStreak int

	history   []HistoryEntry
	patterns  map[int]time.Duration
	listeners notify.Listeners[Change]
}

// New returns a stopped detector reading from source.
func New(sched loop.Scheduler, source Source, cfg Config, opts ...Option) *Detector {
	d := &Detector{
		sched:      sched,
		source:     source,
		cfg:        cfg.withDefaults(),
		logger:     slog.New(slog.DiscardHandler),
		confidence: ConfidenceMax,
		patterns:   make(map[int]time.Duration),
	}
	for _, opt := range opts {
		opt(d)
	}
	if _, err := ParseMode(string(d.cfg.Mode)); err != nil {
		d.logger.Warn("falling back to multi-level verification", "error", err)
		d.cfg.Mode = ModeMultiLevel
	}
	d.interval = d.cfg.PollInterval
	d.lastActivity = sched.Now()
	return d
}

// Start begins polling. The first read happens right away.
func (d *Detector) Start() {
	if d.running {
		return
	}
	d.running = true
	d.gen++
	d.errors = 0
	d.interval = d.cfg.PollInterval
	d.arm(0)
	d.logger.Info("idle detection started", "threshold", d.cfg.Threshold, "mode", d.cfg.Mode)
}

// Stop ends polling. A read already in flight is discarded.
func (d *Detector) Stop() {
	if !d.running {
		return
	}
	d.running = false
	d.gen++
	d.disarm()
	d.logger.Info("idle detection stopped")
}

// Subscribe registers fn for state changes and returns an unsubscribe function.
func (d *Detector) Subscribe(fn func(Change)) func() {
	return d.listeners.Add(fn)
}

// IsIdle reports the public idle state.
func (d *Detector) IsIdle() bool { return d.idle }

// RecordInput reports a user input event. Events closer than the debounce
// window to the previous one are dropped and false is returned.
func (d *Detector) RecordInput(kind InputKind) bool {
	now := d.sched.Now()
	if !d.lastInput.IsZero() && now.Sub(d.lastInput) < d.cfg.InputDebounce {
		return false
	}
	d.lastInput = now
	d.logger.Debug("user input", "kind", kind)
	d.markActive(now)
	return true
}

// ResetActivity marks the user active at maximum confidence.
func (d *Detector) ResetActivity() {
	d.markActive(d.sched.Now())
}

// SetLocked holds the detector idle while the screen is locked. Unlocking
// counts as user activity.
func (d *Detector) SetLocked(locked bool) {
	if locked == d.locked {
		return
	}
	d.locked = locked
	now := d.sched.Now()
	if !locked {
		d.logger.Info("screen unlocked")
		d.markActive(now)
		return
	}

	d.logger.Info("screen locked")
	d.record(HistoryEntry{Timestamp: now, IdleTime: d.lastIdle, Confidence: ConfidenceMax, Origin: OriginSystem})
	d.confidence = ConfidenceMax
	if !d.idle {
		d.setIdle(true, d.lastIdle)
	}
}

// Status returns a snapshot including the most recent history entries.
func (d *Detector) Status() Status {
	n := min(len(d.history), recentEntries)
	return Status{
		Idle:                  d.idle,
		Locked:                d.locked,
		Running:               d.running,
		IdleTime:              d.lastIdle,
		Threshold:             d.cfg.Threshold,
		LastActivity:          d.lastActivity,
		Confidence:            d.confidence,
		Mode:                  d.cfg.Mode,
		Recent:                append([]HistoryEntry(nil), d.history[len(d.history)-n:]...),
		ConsecutiveIdleChecks: d.idleStreak,
		PollInterval:          d.interval,
	}
}

// History returns a copy of the retained samples, oldest first.
func (d *Detector) History() []HistoryEntry {
	return append([]HistoryEntry(nil), d.history...)
}

// Patterns returns the learned average idle time per two-hour bucket.
func (d *Detector) Patterns() map[int]time.Duration {
	return maps.Clone(d.patterns)
}

func (d *Detector) arm(after time.Duration) {
	d.disarm()
	d.cancelPoll = d.sched.After(after, d.poll)
}

func (d *Detector) disarm() {
	if d.cancelPoll != nil {
		d.cancelPoll()
		d.cancelPoll = nil
	}
}

func (d *Detector) poll() {
	d.cancelPoll = nil
	if !d.running {
		return
	}

	gen := d.gen
	source := d.source
	var idleTime time.Duration
	d.sched.Go(func(ctx context.Context) error {
		v, err := source.IdleDuration(ctx)
		idleTime = v
		return err
	}, func(err error) {
		if !d.running || gen != d.gen {
			return
		}
		if err != nil {
			d.fail(err)
		} else {
			d.sample(idleTime)
		}
		if d.cancelPoll == nil {
			d.arm(d.interval)
		}
	})
}

func (d *Detector) sample(idleTime time.Duration) {
	now := d.sched.Now()
	idle := idleTime >= d.cfg.Threshold
	if idle {
		d.idleStreak++
		d.activeStreak = 0
	} else {
		d.activeStreak++
		d.idleStreak = 0
	}

	conf := d.verify(idleTime, now, idle)
	d.errors = 0
	d.lastIdle = idleTime
	d.lastSampleAt = now
	d.confidence = conf
	if !idle {
		if at := now.Add(-idleTime); at.After(d.lastActivity) {
			d.lastActivity = at
		}
	}
	d.record(HistoryEntry{Timestamp: now, IdleTime: idleTime, Confidence: conf, Origin: OriginSystem})
	d.logger.Debug("idle sample", "idle_time", idleTime, "idle", idle, "confidence", conf)

	d.transition(idle, idleTime, conf, now)
	d.adapt()
}

// transition applies a sampled state when it differs from the public one
// and the sample is trusted enough.
func (d *Detector) transition(idle bool, idleTime time.Duration, conf float64, now time.Time) {
	if d.locked || idle == d.idle {
		return
	}
	if conf < d.cfg.MinConfidence {
		d.logger.Debug("transition held: confidence below floor", "idle", idle, "confidence", conf, "floor", d.cfg.MinConfidence)
		return
	}
	if idle && !d.lastInput.IsZero() && now.Sub(d.lastInput) < d.cfg.InputDebounce {
		return
	}
	d.setIdle(idle, idleTime)
}

func (d *Detector) setIdle(idle bool, idleTime time.Duration) {
	d.idle = idle
	if idle {
		d.logger.Info("user idle", "idle_time", idleTime, "confidence", d.confidence)
	} else {
		d.logger.Info("user active", "confidence", d.confidence)
	}
	d.listeners.Emit(d.logger, Change{Idle: idle, IdleTime: idleTime, Confidence: d.confidence})
}

func (d *Detector) markActive(now time.Time) {
	d.lastActivity = now
	d.lastIdle = 0
	d.lastSampleAt = now
	d.idleStreak = 0
	d.confidence = ConfidenceMax
	d.record(HistoryEntry{Timestamp: now, Confidence: ConfidenceMax, Origin: OriginUser})

	if d.running && d.interval != d.cfg.PollInterval {
		d.interval = d.cfg.PollInterval
		if d.cancelPoll != nil {
			d.arm(d.interval)
		}
	}
	if d.idle && !d.locked {
		d.setIdle(false, 0)
	}
}

// adapt lengthens polling while idle and shortens it back while active.
func (d *Detector) adapt() {
	base := d.cfg.PollInterval
	if d.idle {
		d.interval = min(d.interval+base, base*time.Duration(d.cfg.MaxIdleBackoff))
	} else if d.interval > base {
		d.interval = max(d.interval/2, base)
	}
}

func (d *Detector) fail(err error) {
	d.errors++
	d.logger.Warn("reading idle time failed", "error", err, "consecutive", d.errors)
	d.record(HistoryEntry{Timestamp: d.sched.Now(), IdleTime: d.lastIdle, Confidence: ConfidenceLow, Origin: OriginEstimated})

	if d.errors >= d.cfg.MaxErrors {
		d.interval = min(d.interval*2, d.cfg.MaxErrorInterval)
		d.errors = 0
		d.logger.Warn("backing off idle polling", "interval", d.interval)
	}
}

// record appends e, drops entries outside the window and folds e into the
// pattern for its time bucket.
func (d *Detector) record(e HistoryEntry) {
	cutoff := e.Timestamp.Add(-d.cfg.HistoryWindow)
	i := 0
	for i < len(d.history) && d.history[i].Timestamp.Before(cutoff) {
		i++
	}
	d.history = append(d.history[i:], e)
	if len(d.history) > d.cfg.HistoryLimit {
		d.history = append([]HistoryEntry(nil), d.history[len(d.history)-d.cfg.HistoryTrim:]...)
	}

	b := timecalc.Bucket(e.Timestamp)
	if avg, ok := d.patterns[b]; ok {
		d.patterns[b] = time.Duration(0.8*float64(avg) + 0.2*float64(e.IdleTime))
	} else {
		d.patterns[b] = e.IdleTime
	}
}
