package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Tiliavir/precise-time-tracker/internal/loop"
	"github.com/Tiliavir/precise-time-tracker/internal/model"
)

// sessionSaver persists session entries.
type sessionSaver interface {
	SaveSession(ctx context.Context, e model.Entry) error
}

// sessionLog records the spans during which the timer ran. Writes are
// issued one at a time so an open span is never written after its close.
// It lives on the event loop.
type sessionLog struct {
	sched  loop.Scheduler
	store  sessionSaver
	logger *slog.Logger

	current *model.Entry
	pending []model.Entry
	writing bool
}

func newSessionLog(sched loop.Scheduler, store sessionSaver, logger *slog.Logger) *sessionLog {
	return &sessionLog{sched: sched, store: store, logger: logger}
}

// open starts a span for taskID unless one is already open.
func (s *sessionLog) open(taskID string, at time.Time) {
	if s.current != nil {
		return
	}
	e := model.Entry{ID: uuid.NewString(), TaskID: taskID, Start: at, Source: "track"}
	s.current = &e
	s.enqueue(e)
}

// close ends the open span, if any.
func (s *sessionLog) close(reason string, at time.Time) {
	if s.current == nil {
		return
	}
	e := *s.current
	s.current = nil
	e.Close(at, reason)
	s.enqueue(e)
}

// busy reports whether writes are still outstanding.
func (s *sessionLog) busy() bool {
	return s.writing || len(s.pending) > 0
}

func (s *sessionLog) enqueue(e model.Entry) {
	s.pending = append(s.pending, e)
	s.flush()
}

func (s *sessionLog) flush() {
	if s.writing || len(s.pending) == 0 {
		return
	}
	e := s.pending[0]
	s.pending = s.pending[1:]
	s.writing = true
	store := s.store
	s.sched.Go(func(ctx context.Context) error {
		return store.SaveSession(ctx, e)
	}, func(err error) {
		s.writing = false
		if err != nil {
			s.logger.Warn("saving session failed", "task", e.TaskID, "session", e.ID, "error", err)
		}
		s.flush()
	})
}
