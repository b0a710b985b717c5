package cmd

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Tiliavir/precise-time-tracker/internal/loop"
	"github.com/Tiliavir/precise-time-tracker/internal/model"
	"github.com/Tiliavir/precise-time-tracker/internal/storage"
)

var sessionEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recordingSaver struct {
	saved []model.Entry
	err   error
}

func (r *recordingSaver) SaveSession(_ context.Context, e model.Entry) error {
	r.saved = append(r.saved, e)
	return r.err
}

func TestSessionLogWritesInOrder(t *testing.T) {
	m := loop.NewManual(sessionEpoch)
	rec := &recordingSaver{}
	s := newSessionLog(m, rec, slog.New(slog.DiscardHandler))

	s.open("T1", sessionEpoch)
	s.open("T1", sessionEpoch.Add(time.Second)) // already open
	s.close(model.EndIdle, sessionEpoch.Add(90*time.Second))
	s.close(model.EndStop, sessionEpoch.Add(100*time.Second)) // nothing open

	if len(rec.saved) != 1 {
		t.Fatalf("writes before drain = %d, want 1", len(rec.saved))
	}
	if !s.busy() {
		t.Fatal("busy() = false with a queued write")
	}
	m.Drain()
	if s.busy() {
		t.Fatal("busy() = true after drain")
	}

	if len(rec.saved) != 2 {
		t.Fatalf("writes = %d, want 2", len(rec.saved))
	}
	first, second := rec.saved[0], rec.saved[1]
	if !first.Open() || first.TaskID != "T1" || first.Source != "track" {
		t.Errorf("first write = %+v, want open T1 session", first)
	}
	if second.ID != first.ID || second.Open() {
		t.Errorf("second write = %+v, want the same session closed", second)
	}
	if second.EndReason != model.EndIdle || *second.DurationSeconds != 90 {
		t.Errorf("closed session = reason %q, %ds", second.EndReason, *second.DurationSeconds)
	}
}

func TestSessionLogContinuesAfterFailedWrite(t *testing.T) {
	m := loop.NewManual(sessionEpoch)
	rec := &recordingSaver{err: errors.New("disk full")}
	s := newSessionLog(m, rec, slog.New(slog.DiscardHandler))

	s.open("T1", sessionEpoch)
	s.close(model.EndPause, sessionEpoch.Add(time.Minute))
	m.Drain()

	if len(rec.saved) != 2 || s.busy() {
		t.Errorf("writes = %d, busy = %v; want 2 attempts and idle log", len(rec.saved), s.busy())
	}
}

func TestSessionLogPersistsToDayFile(t *testing.T) {
	m := loop.NewManual(sessionEpoch)
	store := storage.NewStore(t.TempDir())
	s := newSessionLog(m, store, slog.New(slog.DiscardHandler))

	s.open("T1", sessionEpoch)
	m.Drain()
	open, _, err := storage.FindOpenEntry(store.Base(), sessionEpoch, "T1")
	if err != nil || open == nil {
		t.Fatalf("FindOpenEntry = %v, %v; want the open session", open, err)
	}

	s.close(model.EndStop, sessionEpoch.Add(45*time.Minute))
	s.open("T1", sessionEpoch.Add(time.Hour))
	m.Drain()

	df, err := storage.LoadDay(store.Base(), sessionEpoch)
	if err != nil {
		t.Fatal(err)
	}
	if len(df.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(df.Entries))
	}
	if df.Entries[0].Open() || *df.Entries[0].DurationSeconds != 45*60 {
		t.Errorf("first session = %+v, want closed after 45m", df.Entries[0])
	}
	if !df.Entries[1].Open() {
		t.Errorf("second session = %+v, want open", df.Entries[1])
	}
}
