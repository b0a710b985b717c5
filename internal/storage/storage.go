package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Tiliavir/precise-time-tracker/internal/model"
)

// BaseDir returns the root data directory (~/.ptt).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".ptt"), nil
}

// dayFilePath returns the path for the given date's JSON file.
func dayFilePath(base string, t time.Time) string {
	return filepath.Join(base, t.Format("2006"), t.Format("01"), t.Format("02")+".json")
}

// readJSON decodes path into v. A file that does not parse is moved aside
// to path.corrupt so the next write starts clean.
func readJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage error reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		backupPath := path + ".corrupt"
		_ = os.Rename(path, backupPath)
		return false, fmt.Errorf("corrupt JSON in %s (backed up to %s): %w", path, backupPath, err)
	}
	return true, nil
}

// writeJSON atomically replaces path with the indented encoding of v.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}

// LoadDay loads the sessions of the given date. Returns an empty DayFile if not found.
func LoadDay(base string, t time.Time) (model.DayFile, error) {
	var df model.DayFile
	found, err := readJSON(dayFilePath(base, t), &df)
	if err != nil {
		return model.DayFile{}, err
	}
	if !found {
		return model.DayFile{Date: t.Format("2006-01-02"), Entries: []model.Entry{}}, nil
	}
	return df, nil
}

// SaveDay atomically writes a DayFile for the given date.
func SaveDay(base string, t time.Time, df model.DayFile) error {
	return writeJSON(dayFilePath(base, t), df)
}

// FindOpenEntry searches the last week of day files, most recent first, for
// a session of taskID that was never closed. An empty taskID matches any task.
func FindOpenEntry(base string, now time.Time, taskID string) (*model.Entry, time.Time, error) {
	for i := 0; i < 7; i++ {
		day := now.AddDate(0, 0, -i)
		df, err := LoadDay(base, day)
		if err != nil {
			return nil, time.Time{}, err
		}
		for j := len(df.Entries) - 1; j >= 0; j-- {
			e := df.Entries[j]
			if e.Open() && (taskID == "" || e.TaskID == taskID) {
				return &e, day, nil
			}
		}
	}
	return nil, time.Time{}, nil
}

// UpdateEntry replaces or appends a session in the DayFile for the given date.
func UpdateEntry(base string, day time.Time, entry model.Entry) error {
	df, err := LoadDay(base, day)
	if err != nil {
		return err
	}
	for i, e := range df.Entries {
		if e.ID == entry.ID {
			df.Entries[i] = entry
			return SaveDay(base, day, df)
		}
	}
	df.Entries = append(df.Entries, entry)
	return SaveDay(base, day, df)
}

// LoadRange loads all sessions in [from, to] inclusive.
func LoadRange(base string, from, to time.Time) ([]model.Entry, error) {
	var entries []model.Entry
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		df, err := LoadDay(base, d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, df.Entries...)
	}
	return entries, nil
}
