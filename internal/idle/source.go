package idle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

// ErrUnsupported is returned by CommandSource on platforms it cannot read.
var ErrUnsupported = errors.New("idle time not available on this platform")

// Source reports how long the system has seen no user input. It is called
// off the event loop and may block.
type Source interface {
	IdleDuration(ctx context.Context) (time.Duration, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (time.Duration, error)

func (f SourceFunc) IdleDuration(ctx context.Context) (time.Duration, error) { return f(ctx) }

// CommandSource reads the idle time through a platform tool: ioreg on macOS
// and xprintidle on X11 systems.
type CommandSource struct {
	GOOS string
	run  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommandSource returns a CommandSource for the running platform.
func NewCommandSource() *CommandSource {
	return &CommandSource{GOOS: runtime.GOOS, run: runCommand}
}

func (s *CommandSource) IdleDuration(ctx context.Context) (time.Duration, error) {
	switch s.GOOS {
	case "darwin":
		out, err := s.run(ctx, "/usr/sbin/ioreg", "-c", "IOHIDSystem")
		if err != nil {
			return 0, fmt.Errorf("ioreg: %w", err)
		}
		return parseIOReg(out)
	case "linux", "freebsd", "openbsd", "netbsd":
		out, err := s.run(ctx, "xprintidle")
		if err != nil {
			return 0, fmt.Errorf("xprintidle: %w", err)
		}
		return parseXPrintIdle(out)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, s.GOOS)
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var hidIdleRe = regexp.MustCompile(`"HIDIdleTime"\s*=\s*([0-9]+)`)

// parseIOReg extracts HIDIdleTime, reported in nanoseconds.
func parseIOReg(out []byte) (time.Duration, error) {
	m := hidIdleRe.FindSubmatch(out)
	if m == nil {
		return 0, errors.New("HIDIdleTime not found in ioreg output")
	}
	ns, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse HIDIdleTime: %w", err)
	}
	return time.Duration(ns), nil
}

// parseXPrintIdle reads the millisecond count printed by xprintidle.
func parseXPrintIdle(out []byte) (time.Duration, error) {
	ms, err := strconv.ParseInt(string(bytes.TrimSpace(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse xprintidle output: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
