package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/precise-time-tracker/internal/model"
	"github.com/Tiliavir/precise-time-tracker/internal/storage"
	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

var (
	listToday bool
	listWeek  bool
	listTask  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracking sessions",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listToday, "today", false, "Show today's sessions")
	listCmd.Flags().BoolVar(&listWeek, "week", false, "Show this week's sessions")
	listCmd.Flags().StringVar(&listTask, "task", "", "Only show sessions of this task")
}

func runList(cmd *cobra.Command, args []string) error {
	now := time.Now()

	base, err := storage.BaseDir()
	if err != nil {
		return err
	}

	var from, to time.Time
	switch {
	case listWeek:
		from, to = timecalc.WeekRange(now)
	default:
		// Default to today (covers --today and the bare command).
		from = timecalc.StartOfDay(now)
		to = timecalc.EndOfDay(now)
	}

	entries, err := storage.LoadRange(base, from, to)
	if err != nil {
		return err
	}

	printList(os.Stdout, filterTask(entries, listTask))
	return nil
}

// filterTask keeps the sessions of taskID; an empty taskID keeps all.
func filterTask(entries []model.Entry, taskID string) []model.Entry {
	if taskID == "" {
		return entries
	}
	var out []model.Entry
	for _, e := range entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

// printList groups sessions by date and prints them.
func printList(w io.Writer, entries []model.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}

	var currentDay string
	for _, e := range entries {
		day := e.Start.Format("2006-01-02")
		if day != currentDay {
			fmt.Fprintln(w, day)
			currentDay = day
		}

		startStr := e.Start.Format("15:04")
		endStr := "ongoing"
		durStr := ""
		if e.End != nil {
			endStr = e.End.Format("15:04")
		}
		if e.DurationSeconds != nil {
			durStr = fmt.Sprintf(" (%s)", timecalc.FormatDuration(*e.DurationSeconds))
		}
		reason := ""
		if e.EndReason != "" {
			reason = "  [" + e.EndReason + "]"
		}

		fmt.Fprintf(w, "%s–%s  %s%s%s\n", startStr, endStr, e.TaskID, durStr, reason)
	}
}
