// Package power carries host power and session signals into the tracker.
// Hooks such as systemd-sleep scripts or screen-lock handlers write a
// signal into a state file; Watcher turns changes of that file into events.
package power

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StateFile is the name of the file holding the latest signal.
const StateFile = "state"

// Signal is a host power or session transition.
type Signal string

const (
	Suspend Signal = "suspend"
	Resume  Signal = "resume"
	Lock    Signal = "lock"
	Unlock  Signal = "unlock"
)

var ErrUnknownSignal = errors.New("unknown power signal")

// ParseSignal parses a signal name, ignoring case and surrounding space.
func ParseSignal(s string) (Signal, error) {
	switch sig := Signal(strings.ToLower(strings.TrimSpace(s))); sig {
	case Suspend, Resume, Lock, Unlock:
		return sig, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSignal, s)
	}
}

// DefaultDir returns ~/.ptt/power.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ptt", "power"), nil
}

// Write publishes sig with its timestamp to the state file in dir. The file
// is replaced atomically so a watcher never sees partial content.
func Write(dir string, sig Signal, at time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(tmp, "%s %s\n", sig, at.Format(time.RFC3339Nano)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, StateFile))
}

// parseState reads "<signal> [timestamp]". A missing or unreadable
// timestamp yields the zero time.
func parseState(content string) (Signal, time.Time, error) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return "", time.Time{}, errors.New("empty power state")
	}
	sig, err := ParseSignal(fields[0])
	if err != nil {
		return "", time.Time{}, err
	}
	var at time.Time
	if len(fields) > 1 {
		at, _ = time.Parse(time.RFC3339Nano, fields[1])
	}
	return sig, at, nil
}
