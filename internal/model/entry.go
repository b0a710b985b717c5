package model

import "time"

// End reasons recorded on a closed session.
const (
	EndStop        = "stop"
	EndPause       = "pause"
	EndIdle        = "idle"
	EndSuspend     = "system suspend"
	EndInterrupted = "interrupted"
)

// Entry is one tracking span of a task: from the moment the timer started
// or resumed until it paused or stopped. End is nil while the span is open.
type Entry struct {
	ID              string     `json:"id"`
	TaskID          string     `json:"task_id"`
	Start           time.Time  `json:"start"`
	End             *time.Time `json:"end"`
	DurationSeconds *int64     `json:"duration_seconds"`
	EndReason       string     `json:"end_reason,omitempty"`
	Source          string     `json:"source"`
}

// Open reports whether the span has not been closed yet.
func (e Entry) Open() bool { return e.End == nil }

// Seconds returns the span length, counting an open span up to now.
func (e Entry) Seconds(now time.Time) int64 {
	if e.DurationSeconds != nil {
		return *e.DurationSeconds
	}
	end := now
	if e.End != nil {
		end = *e.End
	}
	if d := end.Sub(e.Start); d > 0 {
		return int64(d.Round(time.Second) / time.Second)
	}
	return 0
}

// Close ends the span at end with the given reason.
func (e *Entry) Close(end time.Time, reason string) {
	if end.Before(e.Start) {
		end = e.Start
	}
	e.End = &end
	secs := int64(end.Sub(e.Start).Round(time.Second) / time.Second)
	e.DurationSeconds = &secs
	e.EndReason = reason
}

// DayFile is the top-level structure stored in each daily JSON file.
type DayFile struct {
	Date    string  `json:"date"`
	Entries []Entry `json:"entries"`
}
