package idle

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects how samples are verified.
type Mode string

const (
	// ModeMultiLevel fuses magnitude, temporal, pattern and sequence signals.
	ModeMultiLevel Mode = "multi-level"
	// ModeBasic uses the magnitude signal only.
	ModeBasic Mode = "basic"
)

// ErrUnknownMode is returned by ParseMode for an unsupported mode name.
var ErrUnknownMode = errors.New("unknown idle verification mode")

// ParseMode maps a mode name to a Mode. Empty means ModeMultiLevel.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeMultiLevel, nil
	case ModeMultiLevel, ModeBasic:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Config holds the detector's tuning.
type Config struct {
	// Threshold is the idle duration from which the user counts as idle.
	Threshold time.Duration
	// PollInterval is the base delay between idle reads.
	PollInterval time.Duration
	// MaxIdleBackoff caps the poll interval while idle, as a multiple of PollInterval.
	MaxIdleBackoff int
	// MaxErrors is the number of consecutive failed reads before the interval doubles.
	MaxErrors int
	// MaxErrorInterval caps the interval reached through error backoff.
	MaxErrorInterval time.Duration
	// MinConfidence is the floor a sample must reach to change the public state.
	MinConfidence float64
	// HistoryWindow is how long history entries are kept.
	HistoryWindow time.Duration
	HistoryLimit  int
	HistoryTrim   int
	// InputDebounce drops input events closer together than this.
	InputDebounce time.Duration
	Mode          Mode
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		Threshold:        5 * time.Minute,
		PollInterval:     time.Second,
		MaxIdleBackoff:   5,
		MaxErrors:        10,
		MaxErrorInterval: 10 * time.Second,
		MinConfidence:    ConfidenceMedium,
		HistoryWindow:    time.Hour,
		HistoryLimit:     1000,
		HistoryTrim:      500,
		InputDebounce:    time.Second,
		Mode:             ModeMultiLevel,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxIdleBackoff <= 0 {
		c.MaxIdleBackoff = d.MaxIdleBackoff
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = d.MaxErrors
	}
	if c.MaxErrorInterval <= 0 {
		c.MaxErrorInterval = d.MaxErrorInterval
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.HistoryTrim <= 0 || c.HistoryTrim > c.HistoryLimit {
		c.HistoryTrim = min(d.HistoryTrim, c.HistoryLimit)
	}
	if c.InputDebounce <= 0 {
		c.InputDebounce = d.InputDebounce
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	return c
}
