package coordinator

import "time"

// Config holds the coordinator's thresholds and periods.
type Config struct {
	// PauseConfidence is the minimum confidence of an idle change that pauses the timer.
	PauseConfidence float64
	// ResumeConfidence is the minimum confidence of an active change that
	// resumes it without asking. Keep it above PauseConfidence.
	ResumeConfidence float64

	MaintenanceInterval time.Duration
	StaleAfter          time.Duration
	InactivityWarning   time.Duration

	SuggestionInterval  time.Duration
	SuggestionThreshold time.Duration
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		PauseConfidence:     0.7,
		ResumeConfidence:    0.8,
		MaintenanceInterval: 5 * time.Minute,
		StaleAfter:          24 * time.Hour,
		InactivityWarning:   30 * time.Minute,
		SuggestionInterval:  time.Minute,
		SuggestionThreshold: 60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PauseConfidence <= 0 {
		c.PauseConfidence = d.PauseConfidence
	}
	if c.ResumeConfidence <= 0 {
		c.ResumeConfidence = d.ResumeConfidence
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = d.MaintenanceInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.InactivityWarning <= 0 {
		c.InactivityWarning = d.InactivityWarning
	}
	if c.SuggestionInterval <= 0 {
		c.SuggestionInterval = d.SuggestionInterval
	}
	if c.SuggestionThreshold <= 0 {
		c.SuggestionThreshold = d.SuggestionThreshold
	}
	return c
}
