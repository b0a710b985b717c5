package power

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is one signal read from the state file, or a watch error.
type Event struct {
	Signal Signal
	At     time.Time
	Err    error
}

// Option configures a Watcher.
type Option func(*watcherConfig)

type watcherConfig struct {
	dir    string
	logger *slog.Logger
}

// WithDir sets the directory holding the state file.
func WithDir(dir string) Option {
	return func(c *watcherConfig) { c.dir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *watcherConfig) { c.logger = l }
}

// Watcher watches the state file using fsnotify. The directory is watched
// rather than the file so that atomic replacements are seen.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan Event
	done    chan struct{}
	ready   chan struct{}
	path    string
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewWatcher creates the state directory if needed and starts watching it.
func NewWatcher(opts ...Option) (*Watcher, error) {
	cfg := &watcherConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.dir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		cfg.dir = dir
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := os.MkdirAll(cfg.dir, 0o755); err != nil {
		fw.Close()
		return nil, fmt.Errorf("create directory %s: %w", cfg.dir, err)
	}
	if err := fw.Add(cfg.dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch directory %s: %w", cfg.dir, err)
	}

	return &Watcher{
		watcher: fw,
		events:  make(chan Event, 8),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
		path:    filepath.Join(cfg.dir, StateFile),
		logger:  cfg.logger,
	}, nil
}

// Path returns the state file being watched.
func (w *Watcher) Path() string { return w.path }

// Start begins watching and returns the event channel, which is closed
// when the watcher stops. Later calls return the same channel.
func (w *Watcher) Start() <-chan Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started && !w.closed {
		w.started = true
		go w.watch()
	}
	return w.events
}

// Ready is closed once the watch goroutine runs.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

func (w *Watcher) watch() {
	defer close(w.events)
	close(w.ready)

	var last string
	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path || !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			content, err := readState(w.path)
			if err != nil {
				w.logger.Warn("reading power state failed", "path", w.path, "error", err)
				if !w.send(Event{Err: err}) {
					return
				}
				continue
			}
			// One write can produce several events.
			if content == last {
				continue
			}
			last = content

			sig, at, err := parseState(content)
			if err != nil {
				w.logger.Warn("invalid power state", "content", content, "error", err)
				if !w.send(Event{Err: err}) {
					return
				}
				continue
			}
			if at.IsZero() {
				at = time.Now()
			}
			w.logger.Debug("power signal", "signal", sig, "at", at)
			if !w.send(Event{Signal: sig, At: at}) {
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if !w.send(Event{Err: err}) {
				return
			}
		}
	}
}

func (w *Watcher) send(ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.done:
		return false
	}
}

// readState reads the state file, retrying briefly when a hook truncated
// it and has not finished writing.
func readState(path string) (string, error) {
	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		if s := strings.TrimSpace(string(b)); s != "" {
			return s, nil
		}
		lastErr = fmt.Errorf("empty file")
	}
	return "", fmt.Errorf("read %s after %d attempts: %w", path, attempts, lastErr)
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	if !w.started {
		close(w.ready)
		close(w.events)
	}
	return w.watcher.Close()
}
