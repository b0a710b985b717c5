package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tiliavir/precise-time-tracker/internal/coordinator"
	"github.com/Tiliavir/precise-time-tracker/internal/idle"
	"github.com/Tiliavir/precise-time-tracker/internal/loop"
	"github.com/Tiliavir/precise-time-tracker/internal/model"
	"github.com/Tiliavir/precise-time-tracker/internal/power"
	"github.com/Tiliavir/precise-time-tracker/internal/storage"
	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
	"github.com/Tiliavir/precise-time-tracker/internal/timer"
)

// shutdownGrace bounds how long the final save may take on exit.
const shutdownGrace = 5 * time.Second

var (
	trackNoIdle bool
	trackQuiet  bool
)

var trackCmd = &cobra.Command{
	Use:   "track <task-id>",
	Short: "Track a task in the foreground",
	Long: `Track a task until interrupted. The stored elapsed time is resumed, the
timer pauses when you go idle or the machine sleeps, and the elapsed time
is saved periodically and on exit.

While tracking, type a command and press Enter:
  r  resume (or confirm a suggested resume)
  p  pause
  s  show status
  c  clear a save error
  q  stop tracking`,
	Args: cobra.ExactArgs(1),
	RunE: runTrack,
}

func init() {
	trackCmd.Flags().BoolVar(&trackNoIdle, "no-idle", false, "Disable idle detection")
	trackCmd.Flags().BoolVar(&trackQuiet, "quiet", false, "Do not print the running elapsed time")
}

// tracker is the engine assembled for one task. Its fields are only
// touched on the loop.
type tracker struct {
	taskID   string
	lp       *loop.Loop
	timer    *timer.Timer
	detector *idle.Detector
	coord    *coordinator.Coordinator
	sessions *sessionLog
	logger   *slog.Logger
	quit     context.CancelFunc
}

func runTrack(cmd *cobra.Command, args []string) error {
	taskID := args[0]
	cfg := loadConfig()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	base, err := storage.BaseDir()
	if err != nil {
		return err
	}
	store := storage.NewStore(base)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	initial, err := resumePoint(ctx, store, taskID)
	if err != nil {
		return err
	}

	lp := loop.New()
	tcfg, interval := cfg.TimerSettings()
	t := &tracker{
		taskID:   taskID,
		lp:       lp,
		timer:    timer.New(lp, tcfg, timer.WithSaver(store), timer.WithLogger(logger)),
		sessions: newSessionLog(lp, store, logger),
		logger:   logger,
		quit:     quit,
	}
	if err := t.timer.SetTickInterval(interval); err != nil {
		notice("ignoring timer.interval_ms: %v", err)
	}

	source := idle.NewCommandSource()
	if !trackNoIdle {
		icfg, err := cfg.IdleSettings()
		if err != nil {
			return err
		}
		t.detector = idle.New(lp, source, icfg, idle.WithLogger(logger))
	}
	var det coordinator.Detector
	if t.detector != nil {
		det = t.detector
	}
	t.coord = coordinator.New(lp, t.timer, det, cfg.CoordinatorSettings(),
		coordinator.WithLogger(logger),
		coordinator.WithTaskStore(store),
		coordinator.WithIdleSource(source),
	)

	watcher, err := power.NewWatcher(power.WithDir(powerDir(cfg.Power.Dir, base)), power.WithLogger(logger))
	if err != nil {
		notice("power signals disabled: %v", err)
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := lp.Run(loopCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	var startErr error
	if err := lp.Do(func() { startErr = t.start(initial) }); err != nil {
		return err
	}
	if startErr != nil {
		stopLoop()
		_ = g.Wait()
		return startErr
	}

	if watcher != nil {
		g.Go(func() error {
			defer watcher.Close()
			return t.forwardSignals(gctx, watcher.Start())
		})
	}
	go t.readCommands(os.Stdin)

	g.Go(func() error {
		<-gctx.Done()
		err := t.shutdown()
		stopLoop()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// resumePoint returns the stored seconds of taskID and closes a session a
// crashed run left open.
func resumePoint(ctx context.Context, store *storage.Store, taskID string) (int64, error) {
	f, err := store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if f.FindCompleted(taskID) >= 0 {
		return 0, fmt.Errorf("task %s: %w", taskID, storage.ErrTaskCompleted)
	}

	var initial int64
	var lastSaved time.Time
	if i := f.FindActive(taskID); i >= 0 {
		if initial, err = timecalc.Parse(f.Active[i].Elapsed); err != nil {
			return 0, fmt.Errorf("stored elapsed time of task %s: %w", taskID, err)
		}
		lastSaved = f.Active[i].UpdatedAt
	}

	open, _, err := storage.FindOpenEntry(store.Base(), time.Now(), taskID)
	if err != nil {
		return 0, err
	}
	if open != nil {
		open.Close(lastSaved, model.EndInterrupted)
		if err := store.SaveSession(ctx, *open); err != nil {
			return 0, err
		}
		notice("closed a session left open by an interrupted run")
	}
	return initial, nil
}

func powerDir(configured, base string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(base, "power")
}

// start runs on the loop.
func (t *tracker) start(initial int64) error {
	if err := t.timer.Start(t.taskID, initial); err != nil {
		return err
	}
	now := t.lp.Now()
	t.sessions.open(t.taskID, now)
	t.coord.RegisterActivity(t.taskID)
	t.coord.Subscribe(t.onEvent)
	if !trackQuiet {
		t.timer.Subscribe(func(tk timer.Tick) {
			faint.Printf("\r%s  %s  ", tk.TaskID, timecalc.Format(tk.TotalSeconds))
		})
	}
	if t.detector != nil {
		t.detector.Start()
	}
	t.coord.Start()

	green.Printf("Tracking task %s from %s\n", t.taskID, timecalc.Format(initial))
	return nil
}

func (t *tracker) onEvent(ev coordinator.Event) {
	fmt.Println()
	switch ev.Kind {
	case coordinator.EventIdlePause:
		t.sessions.close(model.EndIdle, ev.At)
		notice("paused: you seem to be away (confidence %.2f)", ev.Confidence)
	case coordinator.EventSuspend:
		t.sessions.close(model.EndSuspend, ev.At)
		notice("paused: system is going to sleep")
	case coordinator.EventResume:
		notice("system woke up; type r to resume")
	case coordinator.EventAutoResume, coordinator.EventManualResume:
		t.sessions.open(t.taskID, ev.At)
		success("resumed")
	case coordinator.EventConfirmResume:
		notice("activity detected; type r to resume")
	case coordinator.EventResumeSuggested:
		notice("welcome back; type r to resume")
	case coordinator.EventIntegrity:
		for _, is := range ev.Issues {
			problem("task store: %s", is)
		}
	}
}

// command handles one line typed by the user. It runs on the loop.
func (t *tracker) command(line string) {
	if t.detector != nil {
		t.detector.RecordInput(idle.InputKey)
	}
	switch strings.TrimSpace(strings.ToLower(line)) {
	case "", "r", "resume":
		t.resume()
	case "p", "pause":
		if _, err := t.timer.Pause(); err != nil {
			notice("%v", err)
			return
		}
		t.sessions.close(model.EndPause, t.lp.Now())
		success("paused at %s", timecalc.Format(t.timer.TotalSeconds()))
	case "s", "status":
		t.printStatus()
	case "c", "clear":
		t.clearErr()
	case "q", "quit", "stop":
		t.quit()
	default:
		notice("unknown command %q (r, p, s, c, q)", line)
	}
}

// clearErr acknowledges a failed save.
func (t *tracker) clearErr() {
	err := t.timer.Err()
	if err == nil {
		notice("no save error to clear")
		return
	}
	t.timer.ClearErr()
	success("cleared: %v", err)
}

func (t *tracker) resume() {
	if t.timer.IsRunning() {
		t.printStatus()
		return
	}
	for _, s := range t.coord.Suspended() {
		if s.TaskID == t.taskID {
			if err := t.coord.ConfirmResume(t.taskID); err != nil {
				problem("%v", err)
			}
			return
		}
	}
	if err := t.timer.Resume(); err != nil {
		problem("%v", err)
		return
	}
	t.sessions.open(t.taskID, t.lp.Now())
	success("resumed")
}

func (t *tracker) printStatus() {
	state := "paused"
	if t.timer.IsRunning() {
		state = "running"
	}
	q := t.timer.Quality()
	fmt.Println()
	cyan.Printf("Task %s %s: %s\n", t.taskID, state, timecalc.Format(t.timer.TotalSeconds()))
	fmt.Printf("  Timer quality: %s (score %.2f, avg drift %v, %d corrections)\n", q.Status, q.Score, q.AverageDrift, q.Corrections)
	if t.detector != nil {
		st := t.detector.Status()
		fmt.Printf("  Idle: %v (idle for %s, confidence %.2f)\n", st.Idle, st.IdleTime.Round(time.Second), st.Confidence)
	}
	stats := t.coord.Stats()
	fmt.Printf("  Suspended: %d, pending suggestions: %d\n", stats.Suspended, stats.PendingSuggestions)
	if err := t.timer.Err(); err != nil {
		problem("%v", err)
	}
}

// readCommands forwards stdin lines to the loop until stdin closes.
func (t *tracker) readCommands(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		t.lp.Post(func() { t.command(line) })
	}
}

func (t *tracker) forwardSignals(ctx context.Context, events <-chan power.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				t.logger.Warn("power signal", "error", ev.Err)
				continue
			}
			t.lp.Post(func() { t.coord.HandleSignal(ev.Signal) })
		}
	}
}

// shutdown stops the engine, saves the final elapsed time and waits for
// outstanding writes. Only a failure of the final save is returned; an
// earlier periodic save that failed was superseded by it.
func (t *tracker) shutdown() error {
	var secs int64
	var stopErr error
	err := t.lp.Do(func() {
		t.coord.Stop()
		if t.detector != nil {
			t.detector.Stop()
		}
		t.sessions.close(model.EndStop, t.lp.Now())
		if prev := t.timer.Err(); prev != nil {
			t.logger.Warn("an earlier save failed", "task", t.taskID, "error", prev)
			t.timer.ClearErr()
		}
		secs, stopErr = t.timer.Stop()
	})
	if err != nil {
		return err
	}

	pending := func() bool { return t.timer.SavePending() || t.sessions.busy() }
	if err := awaitSaves(t.lp.Do, pending, shutdownGrace, 50*time.Millisecond); err != nil {
		return err
	}
	var saveErr error
	if err := t.lp.Do(func() { saveErr = t.timer.Err() }); err != nil {
		return err
	}

	fmt.Println()
	if stopErr != nil {
		return stopErr
	}
	if err := finalSaveErr(saveErr, t.taskID, secs); err != nil {
		return err
	}
	success("stopped task %s. Elapsed: %s", t.taskID, formatElapsed(secs))
	return nil
}

var errSaveTimeout = errors.New("timed out saving the final elapsed time")

// awaitSaves checks pending on the loop every poll until it reports false
// or grace has passed.
func awaitSaves(do func(func()) error, pending func() bool, grace, poll time.Duration) error {
	deadline := time.Now().Add(grace)
	for {
		var busy bool
		if err := do(func() { busy = pending() }); err != nil {
			return err
		}
		if !busy {
			return nil
		}
		if time.Now().After(deadline) {
			return errSaveTimeout
		}
		time.Sleep(poll)
	}
}

// finalSaveErr returns err only if it belongs to the save of secs for taskID.
func finalSaveErr(err error, taskID string, secs int64) error {
	var se *timer.SaveError
	if !errors.As(err, &se) {
		return err
	}
	if se.TaskID != taskID || se.Elapsed != timecalc.Format(secs) {
		return nil
	}
	return err
}
