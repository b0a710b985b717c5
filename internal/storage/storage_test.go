package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tiliavir/precise-time-tracker/internal/model"
	"github.com/Tiliavir/precise-time-tracker/internal/storage"
	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

func TestLoadDayNotExist(t *testing.T) {
	base := t.TempDir()
	day := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	df, err := storage.LoadDay(base, day)
	if err != nil {
		t.Fatalf("LoadDay on missing file: %v", err)
	}
	if df.Date != "2026-02-27" {
		t.Errorf("LoadDay date = %q, want %q", df.Date, "2026-02-27")
	}
	if len(df.Entries) != 0 {
		t.Errorf("LoadDay entries = %d, want 0", len(df.Entries))
	}
}

func TestSaveDayAndLoadDay(t *testing.T) {
	base := t.TempDir()
	day := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)

	e := model.Entry{ID: "s1", TaskID: "42", Start: day.Add(9 * time.Hour), Source: "track"}
	e.Close(day.Add(10*time.Hour), model.EndStop)
	df := model.DayFile{Date: "2026-02-27", Entries: []model.Entry{e}}

	if err := storage.SaveDay(base, day, df); err != nil {
		t.Fatalf("SaveDay: %v", err)
	}

	loaded, err := storage.LoadDay(base, day)
	if err != nil {
		t.Fatalf("LoadDay after save: %v", err)
	}
	if len(loaded.Entries) != 1 {
		t.Fatalf("LoadDay entries = %d, want 1", len(loaded.Entries))
	}
	got := loaded.Entries[0]
	if got.TaskID != "42" || got.EndReason != model.EndStop {
		t.Errorf("LoadDay entry = %+v", got)
	}
	if got.DurationSeconds == nil || *got.DurationSeconds != 3600 {
		t.Errorf("LoadDay duration = %v, want 3600", got.DurationSeconds)
	}
}

func TestLoadDayBacksUpCorruptFile(t *testing.T) {
	base := t.TempDir()
	day := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)

	path := filepath.Join(base, "2026", "02", "27.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{bad json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := storage.LoadDay(base, day); err == nil {
		t.Fatal("expected error for corrupt JSON, got nil")
	}
	if _, err := os.Stat(path + ".corrupt"); os.IsNotExist(err) {
		t.Error("expected backup file to exist after corrupt JSON")
	}
}

func TestUpdateEntry(t *testing.T) {
	base := t.TempDir()
	day := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)

	entry := model.Entry{ID: "e1", TaskID: "7", Start: day, Source: "track"}
	if err := storage.UpdateEntry(base, day, entry); err != nil {
		t.Fatalf("UpdateEntry (insert): %v", err)
	}

	entry.Close(day.Add(90*time.Second), model.EndIdle)
	if err := storage.UpdateEntry(base, day, entry); err != nil {
		t.Fatalf("UpdateEntry (update): %v", err)
	}

	df, err := storage.LoadDay(base, day)
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}
	if len(df.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(df.Entries))
	}
	if df.Entries[0].Open() || df.Entries[0].EndReason != model.EndIdle {
		t.Errorf("entry = %+v, want closed for idle", df.Entries[0])
	}
}

func TestFindOpenEntry(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)

	open, _, err := storage.FindOpenEntry(base, now, "")
	if err != nil {
		t.Fatal(err)
	}
	if open != nil {
		t.Fatal("expected no open entry on empty storage")
	}

	yesterday := now.AddDate(0, 0, -1)
	closed := model.Entry{ID: "c1", TaskID: "1", Start: yesterday, Source: "track"}
	closed.Close(yesterday.Add(time.Minute), model.EndStop)
	running := model.Entry{ID: "o1", TaskID: "1", Start: yesterday.Add(time.Hour), Source: "track"}
	for _, e := range []model.Entry{closed, running} {
		if err := storage.UpdateEntry(base, yesterday, e); err != nil {
			t.Fatal(err)
		}
	}

	open, day, err := storage.FindOpenEntry(base, now, "1")
	if err != nil {
		t.Fatal(err)
	}
	if open == nil || open.ID != "o1" {
		t.Fatalf("open entry = %+v, want o1", open)
	}
	if day.Day() != yesterday.Day() {
		t.Errorf("found on %v, want %v", day, yesterday)
	}

	if other, _, _ := storage.FindOpenEntry(base, now, "2"); other != nil {
		t.Errorf("task 2 open entry = %+v, want none", other)
	}
}

func TestLoadRange(t *testing.T) {
	base := t.TempDir()
	from := time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		day := from.AddDate(0, 0, i*2)
		if err := storage.UpdateEntry(base, day, model.Entry{ID: day.Format("0102"), TaskID: "1", Start: day}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := storage.LoadRange(base, from, from.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("LoadRange: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("LoadRange = %d entries, want 2", len(entries))
	}
}

func TestStoreSaveElapsed(t *testing.T) {
	ctx := context.Background()
	s := storage.NewStore(t.TempDir())

	if err := s.SaveElapsed(ctx, "42", "00:00:30"); err != nil {
		t.Fatalf("SaveElapsed: %v", err)
	}
	if err := s.SaveElapsed(ctx, "42", "00:01:00"); err != nil {
		t.Fatalf("SaveElapsed: %v", err)
	}
	if err := s.SaveElapsed(ctx, "7", "01:00:00"); err != nil {
		t.Fatalf("SaveElapsed: %v", err)
	}

	f, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(f.Active) != 2 || f.Active[0].Elapsed != "00:01:00" {
		t.Errorf("active = %+v", f.Active)
	}

	secs, err := s.Elapsed(ctx, "7")
	if err != nil || secs != 3600 {
		t.Errorf("Elapsed(7) = %d, %v, want 3600", secs, err)
	}
	if secs, err := s.Elapsed(ctx, "unknown"); err != nil || secs != 0 {
		t.Errorf("Elapsed(unknown) = %d, %v, want 0", secs, err)
	}
}

func TestStoreRejectsMalformedElapsed(t *testing.T) {
	s := storage.NewStore(t.TempDir())
	err := s.SaveElapsed(context.Background(), "1", "1:00")
	if !errors.Is(err, timecalc.ErrInvalidFormat) {
		t.Errorf("SaveElapsed(1:00) error = %v, want ErrInvalidFormat", err)
	}
}

func TestStoreComplete(t *testing.T) {
	ctx := context.Background()
	s := storage.NewStore(t.TempDir())
	if err := s.SaveElapsed(ctx, "42", "00:10:00"); err != nil {
		t.Fatal(err)
	}

	task, err := s.Complete(ctx, "42")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if task.Elapsed != "00:10:00" {
		t.Errorf("completed elapsed = %q", task.Elapsed)
	}

	f, _ := s.Snapshot(ctx)
	if len(f.Active) != 0 || len(f.Completed) != 1 {
		t.Errorf("after complete: %+v", f)
	}

	if _, err := s.Complete(ctx, "42"); !errors.Is(err, storage.ErrTaskCompleted) {
		t.Errorf("second Complete error = %v, want ErrTaskCompleted", err)
	}
	if _, err := s.Complete(ctx, "nope"); !errors.Is(err, storage.ErrTaskNotFound) {
		t.Errorf("Complete(nope) error = %v, want ErrTaskNotFound", err)
	}
	if err := s.SaveElapsed(ctx, "42", "00:11:00"); !errors.Is(err, storage.ErrTaskCompleted) {
		t.Errorf("SaveElapsed after complete error = %v, want ErrTaskCompleted", err)
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := storage.NewStore(t.TempDir())
	if err := s.SaveElapsed(ctx, "1", "00:00:01"); !errors.Is(err, context.Canceled) {
		t.Errorf("SaveElapsed error = %v, want context.Canceled", err)
	}
}

func TestStoreSaveSession(t *testing.T) {
	ctx := context.Background()
	s := storage.NewStore(t.TempDir())
	start := time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)

	e := model.Entry{ID: "s1", TaskID: "1", Start: start, Source: "track"}
	if err := s.SaveSession(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Close(start.Add(25*time.Minute), model.EndPause)
	if err := s.SaveSession(ctx, e); err != nil {
		t.Fatal(err)
	}

	df, err := storage.LoadDay(s.Base(), start)
	if err != nil {
		t.Fatal(err)
	}
	if len(df.Entries) != 1 || df.Entries[0].Seconds(start) != 1500 {
		t.Errorf("sessions = %+v", df.Entries)
	}
}
