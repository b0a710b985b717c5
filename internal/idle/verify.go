package idle

import (
	"math"
	"time"

	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

// Confidence tiers used by the verification signals.
const (
	ConfidenceLow      = 0.3
	ConfidenceMedium   = 0.6
	ConfidenceHigh     = 0.8
	ConfidenceVeryHigh = 0.95
	ConfidenceMax      = 1.0
)

// maxPlausibleIdle is the largest idle duration a source may report.
const maxPlausibleIdle = 24 * time.Hour

// Weights of the magnitude, temporal, pattern and sequence signals.
var signalWeights = [4]float64{0.4, 0.3, 0.2, 0.1}

// verify fuses the verification signals for a sample. It must run before
// the sample is recorded, since it compares against the previous one.
func (d *Detector) verify(idleTime time.Duration, now time.Time, idle bool) float64 {
	magnitude := d.magnitudeSignal(idleTime)
	if d.cfg.Mode == ModeBasic {
		return magnitude
	}

	signals := [4]float64{
		magnitude,
		d.temporalSignal(idleTime, now),
		d.patternSignal(idleTime, now),
		d.sequenceSignal(idle),
	}
	var c float64
	for i, s := range signals {
		c += s * signalWeights[i]
	}
	return math.Min(c, ConfidenceMax)
}

func (d *Detector) magnitudeSignal(idleTime time.Duration) float64 {
	if idleTime < 0 || idleTime > maxPlausibleIdle {
		return ConfidenceLow
	}
	if !d.lastSampleAt.IsZero() && idleTime-d.lastIdle > 2*d.interval {
		return ConfidenceMedium
	}
	return ConfidenceVeryHigh
}

// temporalSignal checks that the idle counter grew by about as much wall
// time as passed since the previous sample.
func (d *Detector) temporalSignal(idleTime time.Duration, now time.Time) float64 {
	if d.lastSampleAt.IsZero() {
		return ConfidenceMedium
	}
	expected := now.Sub(d.lastSampleAt)
	if expected <= 0 {
		return ConfidenceMedium
	}

	if idleTime <= d.lastIdle {
		// The counter restarted on input; it cannot exceed the time since
		// the last sample.
		if idleTime <= expected {
			return ConfidenceVeryHigh
		}
		return ConfidenceLow
	}

	actual := idleTime - d.lastIdle
	discrepancy := math.Abs(float64(actual-expected)) / float64(expected)
	switch {
	case discrepancy < 0.1:
		return ConfidenceVeryHigh
	case discrepancy < 0.3:
		return ConfidenceHigh
	case discrepancy < 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// patternSignal compares the sample with the learned average for its bucket.
func (d *Detector) patternSignal(idleTime time.Duration, now time.Time) float64 {
	avg, ok := d.patterns[timecalc.Bucket(now)]
	if !ok {
		return ConfidenceMedium
	}
	deviation := math.Abs(float64(idleTime-avg)) / float64(max(avg, time.Second))
	switch {
	case deviation < 0.5:
		return ConfidenceHigh
	case deviation < 1.0:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// sequenceSignal grows with the streak of checks that agree with this one.
func (d *Detector) sequenceSignal(idle bool) float64 {
	streak := d.activeStreak
	if idle {
		streak = d.idleStreak
	}
	switch {
	case streak >= 5:
		return ConfidenceVeryHigh
	case streak >= 3:
		return ConfidenceHigh
	case streak >= 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
