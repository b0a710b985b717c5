package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Tiliavir/precise-time-tracker/internal/model"
	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskCompleted = errors.New("task already completed")
)

// Store keeps the per-task elapsed times in base/tasks.json and the session
// history in the day files under base. It is safe for concurrent use.
type Store struct {
	base string
	now  func() time.Time
	mu   sync.Mutex
}

// NewStore returns a Store rooted at base.
func NewStore(base string) *Store {
	return &Store{base: base, now: time.Now}
}

// Base returns the data directory.
func (s *Store) Base() string { return s.base }

func (s *Store) tasksPath() string { return filepath.Join(s.base, "tasks.json") }

func (s *Store) load() (model.TaskFile, error) {
	f := model.TaskFile{Active: []model.Task{}, Completed: []model.Task{}}
	if _, err := readJSON(s.tasksPath(), &f); err != nil {
		return model.TaskFile{}, err
	}
	return f, nil
}

// Snapshot returns the stored tasks.
func (s *Store) Snapshot(ctx context.Context) (model.TaskFile, error) {
	if err := ctx.Err(); err != nil {
		return model.TaskFile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// SaveElapsed records the elapsed time of an active task, creating the task
// on first save.
func (s *Store) SaveElapsed(ctx context.Context, taskID, elapsed string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := timecalc.Parse(elapsed); err != nil {
		return fmt.Errorf("saving task %s: %w", taskID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return err
	}
	if f.FindCompleted(taskID) >= 0 {
		return fmt.Errorf("saving task %s: %w", taskID, ErrTaskCompleted)
	}

	t := model.Task{ID: taskID, Elapsed: elapsed, UpdatedAt: s.now().UTC()}
	if i := f.FindActive(taskID); i >= 0 {
		f.Active[i] = t
	} else {
		f.Active = append(f.Active, t)
	}
	return writeJSON(s.tasksPath(), f)
}

// Elapsed returns the stored seconds of an active task, or 0 for an unknown one.
func (s *Store) Elapsed(ctx context.Context, taskID string) (int64, error) {
	f, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if f.FindCompleted(taskID) >= 0 {
		return 0, fmt.Errorf("task %s: %w", taskID, ErrTaskCompleted)
	}
	i := f.FindActive(taskID)
	if i < 0 {
		return 0, nil
	}
	return timecalc.Parse(f.Active[i].Elapsed)
}

// Complete moves a task from the active to the completed set.
func (s *Store) Complete(ctx context.Context, taskID string) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return model.Task{}, err
	}
	if f.FindCompleted(taskID) >= 0 {
		return model.Task{}, fmt.Errorf("task %s: %w", taskID, ErrTaskCompleted)
	}
	i := f.FindActive(taskID)
	if i < 0 {
		return model.Task{}, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
	}

	t := f.Active[i]
	t.UpdatedAt = s.now().UTC()
	f.Active = append(f.Active[:i], f.Active[i+1:]...)
	f.Completed = append(f.Completed, t)
	return t, writeJSON(s.tasksPath(), f)
}

// SaveSession writes a session into the day file of its start date.
func (s *Store) SaveSession(ctx context.Context, e model.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return UpdateEntry(s.base, e.Start, e)
}
