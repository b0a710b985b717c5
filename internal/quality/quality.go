// Package quality tracks how far a timer's ticks drift from wall-clock time
// and turns that into a score, a status label and a recommended tick interval.
package quality

import (
	"math"
	"time"
)

const (
	// TargetAccuracy is the drift at which the score starts dropping below 1.
	TargetAccuracy = 50 * time.Millisecond

	historyCap  = 100
	historyKeep = 50
)

// Status is a coarse label for the current timing quality.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusFair      Status = "fair"
	StatusPoor      Status = "poor"
)

// Metrics is a point-in-time copy of the monitor's aggregates.
type Metrics struct {
	AverageDrift time.Duration
	MaxDrift     time.Duration
	Corrections  int
	Samples      int
	Score        float64
	Status       Status
}

// Monitor keeps a bounded window of absolute drift samples. It is not safe
// for concurrent use; the timer that owns it calls it from its event loop.
type Monitor struct {
	drifts      []int64 // absolute drift in ms
	avgMs       float64
	maxMs       int64
	corrections int
	score       float64
}

// NewMonitor returns a monitor with a perfect score.
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.Reset()
	return m
}

// RecordDrift adds one drift sample. The sign is ignored.
func (m *Monitor) RecordDrift(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = -ms
	}
	m.drifts = append(m.drifts, ms)
	if len(m.drifts) > historyCap {
		m.drifts = append([]int64(nil), m.drifts[len(m.drifts)-historyKeep:]...)
	}

	var sum, maxMs int64
	for _, v := range m.drifts {
		sum += v
		if v > maxMs {
			maxMs = v
		}
	}
	m.avgMs = float64(sum) / float64(len(m.drifts))
	m.maxMs = maxMs
	target := float64(TargetAccuracy.Milliseconds())
	m.score = math.Min(target/(m.avgMs+1), 1.0)
}

// RecordCorrection counts a drift correction. It does not affect the score.
func (m *Monitor) RecordCorrection() {
	m.corrections++
}

// RecommendedInterval classifies the average drift into one of three tick intervals.
func (m *Monitor) RecommendedInterval() time.Duration {
	switch {
	case m.avgMs < 20:
		return 1000 * time.Millisecond
	case m.avgMs < 100:
		return 500 * time.Millisecond
	default:
		return 250 * time.Millisecond
	}
}

// Score returns the current quality score in [0, 1].
func (m *Monitor) Score() float64 { return m.score }

// Status maps the score onto a label.
func (m *Monitor) Status() Status {
	switch {
	case m.score >= 0.9:
		return StatusExcellent
	case m.score >= 0.7:
		return StatusGood
	case m.score >= 0.5:
		return StatusFair
	default:
		return StatusPoor
	}
}

// Metrics returns a snapshot of the aggregates.
func (m *Monitor) Metrics() Metrics {
	return Metrics{
		AverageDrift: time.Duration(m.avgMs * float64(time.Millisecond)),
		MaxDrift:     time.Duration(m.maxMs) * time.Millisecond,
		Corrections:  m.corrections,
		Samples:      len(m.drifts),
		Score:        m.score,
		Status:       m.Status(),
	}
}

// Reset drops all samples and restores the initial score of 1.0.
func (m *Monitor) Reset() {
	m.drifts = nil
	m.avgMs = 0
	m.maxMs = 0
	m.corrections = 0
	m.score = 1.0
}
