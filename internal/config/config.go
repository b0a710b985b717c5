package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Tiliavir/precise-time-tracker/internal/coordinator"
	"github.com/Tiliavir/precise-time-tracker/internal/idle"
	"github.com/Tiliavir/precise-time-tracker/internal/timer"
)

// Config is the root configuration for ptt, stored in ~/.ptt/config.json.
// The file supports single-line // comments for documentation purposes.
type Config struct {
	Timer       TimerConfig       `json:"timer"`
	Idle        IdleConfig        `json:"idle"`
	Coordinator CoordinatorConfig `json:"coordinator"`
	Log         LogConfig         `json:"log"`
	Power       PowerConfig       `json:"power"`
}

// TimerConfig tunes the precision timer.
type TimerConfig struct {
	// IntervalMS is the default tick interval in milliseconds (100–5000).
	IntervalMS int `json:"interval_ms"`
	// DriftThresholdMS is the drift above which a tick is corrected.
	DriftThresholdMS int `json:"drift_threshold_ms"`
	// SaveEverySeconds is the elapsed time between periodic saves.
	SaveEverySeconds int `json:"save_every_seconds"`
}

// IdleConfig tunes the idle detector.
type IdleConfig struct {
	ThresholdSeconds int     `json:"threshold_seconds"`
	PollIntervalMS   int     `json:"poll_interval_ms"`
	MinConfidence    float64 `json:"min_confidence"`
	// Mode is "multi-level" or "basic".
	Mode                 string `json:"mode"`
	HistoryWindowMinutes int    `json:"history_window_minutes"`
}

// CoordinatorConfig tunes the activity coordinator.
type CoordinatorConfig struct {
	PauseConfidence          float64 `json:"pause_confidence"`
	ResumeConfidence         float64 `json:"resume_confidence"`
	InactivityWarningMinutes int     `json:"inactivity_warning_minutes"`
	StaleAfterHours          int     `json:"stale_after_hours"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// PowerConfig locates the power signal directory. Empty means ~/.ptt/power.
type PowerConfig struct {
	Dir string `json:"dir"`
}

const (
	DefaultIntervalMS = 1000
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
)

// defaultConfig returns a Config pre-filled with the engine defaults.
func defaultConfig() Config {
	ic := idle.DefaultConfig()
	cc := coordinator.DefaultConfig()
	tc := timer.DefaultConfig()
	return Config{
		Timer: TimerConfig{
			IntervalMS:       DefaultIntervalMS,
			DriftThresholdMS: int(tc.DriftThreshold / time.Millisecond),
			SaveEverySeconds: int(tc.SaveEvery / time.Second),
		},
		Idle: IdleConfig{
			ThresholdSeconds:     int(ic.Threshold / time.Second),
			PollIntervalMS:       int(ic.PollInterval / time.Millisecond),
			MinConfidence:        ic.MinConfidence,
			Mode:                 string(ic.Mode),
			HistoryWindowMinutes: int(ic.HistoryWindow / time.Minute),
		},
		Coordinator: CoordinatorConfig{
			PauseConfidence:          cc.PauseConfidence,
			ResumeConfidence:         cc.ResumeConfidence,
			InactivityWarningMinutes: int(cc.InactivityWarning / time.Minute),
			StaleAfterHours:          int(cc.StaleAfter / time.Hour),
		},
		Log: LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// configTemplate is the annotated config written on first run.
// Lines whose trimmed content starts with // are stripped before JSON parsing,
// allowing human-readable documentation inside the file.
const configTemplate = `// ptt configuration – ~/.ptt/config.json
//
// All settings are optional; missing or zero values fall back to the
// built-in defaults shown below.
{
  // ── Precision timer ─────────────────────────────────────────────────────
  "timer": {
    // Default tick interval in milliseconds (100–5000). The timer adapts
    // it between 50 and 2000 ms depending on the observed drift.
    "interval_ms": 1000,

    // Drift in milliseconds above which a tick is corrected.
    "drift_threshold_ms": 30,

    // Seconds of tracked time between periodic saves.
    "save_every_seconds": 30
  },

  // ── Idle detection ──────────────────────────────────────────────────────
  "idle": {
    // Seconds without input after which you count as idle.
    "threshold_seconds": 300,

    // Base delay between idle-time reads in milliseconds.
    "poll_interval_ms": 1000,

    // Minimum confidence (0–1) for a sample to change the idle state.
    "min_confidence": 0.6,

    // "multi-level" cross-checks every sample; "basic" trusts its size only.
    "mode": "multi-level",

    // Minutes of idle history kept for pattern learning.
    "history_window_minutes": 60
  },

  // ── Activity coordination ───────────────────────────────────────────────
  "coordinator": {
    // Confidence needed to pause a task when you go idle.
    "pause_confidence": 0.7,

    // Confidence needed to resume it without asking. Keep it above
    // pause_confidence.
    "resume_confidence": 0.8,

    "inactivity_warning_minutes": 30,
    "stale_after_hours": 24
  },

  // ── Logging ─────────────────────────────────────────────────────────────
  "log": {
    // debug, info, warn or error
    "level": "info",
    // text or json
    "format": "text"
  },

  // ── Power signals ───────────────────────────────────────────────────────
  "power": {
    // Directory watched for suspend/resume/lock/unlock signals.
    // Leave empty for ~/.ptt/power. Hooks write it with: ptt signal <name>
    "dir": ""
  }
}
`

// configFilePath returns the path to ~/.ptt/config.json.
func configFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".ptt", "config.json"), nil
}

// stripLineComments removes lines whose leading non-whitespace content starts
// with //. Only full-line comments are handled; inline comments are not stripped.
func stripLineComments(data []byte) []byte {
	var out []byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte("//")) {
			continue
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out
}

// Load reads ~/.ptt/config.json, creating it with annotated defaults on
// first run.
func Load() (Config, error) {
	path, err := configFilePath()
	if err != nil {
		return defaultConfig(), err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, writing the annotated template there
// if the file does not exist.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// First run: write the annotated template so users can discover options.
		if writeErr := writeDefault(path); writeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config file %s: %v\n", path, writeErr)
		}
		return defaultConfig(), nil
	}
	if err != nil {
		return defaultConfig(), fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(stripLineComments(data), &cfg); err != nil {
		return defaultConfig(), fmt.Errorf("parsing config file %s: %w\nTip: delete the file to regenerate defaults", path, err)
	}
	cfg.backfill()
	return cfg, nil
}

// backfill fills zero-value fields with built-in defaults so callers always
// get a usable Config even if the user only partially fills in the file.
func (c *Config) backfill() {
	d := defaultConfig()
	setInt(&c.Timer.IntervalMS, d.Timer.IntervalMS)
	setInt(&c.Timer.DriftThresholdMS, d.Timer.DriftThresholdMS)
	setInt(&c.Timer.SaveEverySeconds, d.Timer.SaveEverySeconds)
	setInt(&c.Idle.ThresholdSeconds, d.Idle.ThresholdSeconds)
	setInt(&c.Idle.PollIntervalMS, d.Idle.PollIntervalMS)
	setInt(&c.Idle.HistoryWindowMinutes, d.Idle.HistoryWindowMinutes)
	if c.Idle.MinConfidence <= 0 {
		c.Idle.MinConfidence = d.Idle.MinConfidence
	}
	if c.Idle.Mode == "" {
		c.Idle.Mode = d.Idle.Mode
	}
	if c.Coordinator.PauseConfidence <= 0 {
		c.Coordinator.PauseConfidence = d.Coordinator.PauseConfidence
	}
	if c.Coordinator.ResumeConfidence <= 0 {
		c.Coordinator.ResumeConfidence = d.Coordinator.ResumeConfidence
	}
	setInt(&c.Coordinator.InactivityWarningMinutes, d.Coordinator.InactivityWarningMinutes)
	setInt(&c.Coordinator.StaleAfterHours, d.Coordinator.StaleAfterHours)
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// TimerSettings returns the timer tuning and the requested default interval,
// which the caller applies with SetTickInterval so out-of-range values are
// reported.
func (c Config) TimerSettings() (timer.Config, time.Duration) {
	tc := timer.DefaultConfig()
	tc.DriftThreshold = time.Duration(c.Timer.DriftThresholdMS) * time.Millisecond
	tc.SaveEvery = time.Duration(c.Timer.SaveEverySeconds) * time.Second
	return tc, time.Duration(c.Timer.IntervalMS) * time.Millisecond
}

// IdleSettings maps the idle section to the detector's config. An unknown
// mode is rejected.
func (c Config) IdleSettings() (idle.Config, error) {
	mode, err := idle.ParseMode(c.Idle.Mode)
	if err != nil {
		return idle.Config{}, fmt.Errorf("idle.mode: %w", err)
	}
	ic := idle.DefaultConfig()
	ic.Threshold = time.Duration(c.Idle.ThresholdSeconds) * time.Second
	ic.PollInterval = time.Duration(c.Idle.PollIntervalMS) * time.Millisecond
	ic.MinConfidence = c.Idle.MinConfidence
	ic.Mode = mode
	ic.HistoryWindow = time.Duration(c.Idle.HistoryWindowMinutes) * time.Minute
	return ic, nil
}

// CoordinatorSettings maps the coordinator section.
func (c Config) CoordinatorSettings() coordinator.Config {
	cc := coordinator.DefaultConfig()
	cc.PauseConfidence = c.Coordinator.PauseConfidence
	cc.ResumeConfidence = c.Coordinator.ResumeConfidence
	cc.InactivityWarning = time.Duration(c.Coordinator.InactivityWarningMinutes) * time.Minute
	cc.StaleAfter = time.Duration(c.Coordinator.StaleAfterHours) * time.Hour
	return cc
}

// writeDefault creates the config directory and writes the annotated default
// config template.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
