package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Tiliavir/precise-time-tracker/internal/model"
)

func TestCSVEscape(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"system suspend", "system suspend"},
		{"task,42", `"task,42"`},
		{`say "hi"`, `"say ""hi"""`},
		{"two\nlines", "\"two\nlines\""},
		{"cr\rhere", "\"cr\rhere\""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := csvEscape(tt.input); got != tt.want {
			t.Errorf("csvEscape(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPrintCSV(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	suspended := closedEntry("beta", day, 30*time.Minute)
	suspended.EndReason = model.EndSuspend
	odd := closedEntry("ops,night", day.Add(time.Hour), 90*time.Second)
	odd.Source = `import "legacy"`
	open := model.Entry{ID: "o", TaskID: "gamma", Start: day.Add(2 * time.Hour), Source: "track"}

	var buf bytes.Buffer
	printCSV(&buf, []model.Entry{suspended, odd, open})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	want := []string{
		"date,task,start,end,duration_minutes,end_reason,source",
		"2026-03-02,beta,2026-03-02T09:00:00Z,2026-03-02T09:30:00Z,30,system suspend,track",
		`2026-03-02,"ops,night",2026-03-02T10:00:00Z,2026-03-02T10:01:30Z,1,stop,"import ""legacy"""`,
		"2026-03-02,gamma,2026-03-02T11:00:00Z,,0,,track",
	}
	if len(lines) != len(want) {
		t.Fatalf("csv has %d lines, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
