package timer

import "time"

// Config holds the timer's tuning constants.
type Config struct {
	DefaultInterval time.Duration
	MinInterval     time.Duration
	MaxInterval     time.Duration
	// DriftThreshold is the absolute drift above which a tick counts as a correction.
	DriftThreshold time.Duration
	// StepRatio is the fraction by which the interval shrinks or grows.
	StepRatio float64
	// GoodTicksToGrow is the number of consecutive on-time ticks before the interval grows.
	GoodTicksToGrow int

	// SaveEvery is the elapsed time between periodic saves.
	SaveEvery    time.Duration
	SaveAttempts int
	// SaveBackoff is the delay before the first retry; it doubles per attempt.
	SaveBackoff time.Duration

	// MaxTickFailures is the number of consecutive failed ticks that trigger a reset.
	MaxTickFailures int
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		DefaultInterval: 1000 * time.Millisecond,
		MinInterval:     50 * time.Millisecond,
		MaxInterval:     2000 * time.Millisecond,
		DriftThreshold:  30 * time.Millisecond,
		StepRatio:       0.05,
		GoodTicksToGrow: 10,
		SaveEvery:       30 * time.Second,
		SaveAttempts:    3,
		SaveBackoff:     500 * time.Millisecond,
		MaxTickFailures: 5,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = d.DefaultInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = d.MinInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval
	}
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = d.DriftThreshold
	}
	if c.StepRatio <= 0 || c.StepRatio >= 1 {
		c.StepRatio = d.StepRatio
	}
	if c.GoodTicksToGrow <= 0 {
		c.GoodTicksToGrow = d.GoodTicksToGrow
	}
	if c.SaveEvery <= 0 {
		c.SaveEvery = d.SaveEvery
	}
	if c.SaveAttempts <= 0 {
		c.SaveAttempts = d.SaveAttempts
	}
	if c.SaveBackoff <= 0 {
		c.SaveBackoff = d.SaveBackoff
	}
	if c.MaxTickFailures <= 0 {
		c.MaxTickFailures = d.MaxTickFailures
	}
	return c
}
