package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/precise-time-tracker/internal/model"
	"github.com/Tiliavir/precise-time-tracker/internal/storage"
	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

var (
	reportWeek   bool
	reportFormat string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show tracked time per task for this week",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportWeek, "week", false, "Report for this week (default)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format: md, csv, json")
}

func runReport(cmd *cobra.Command, args []string) error {
	now := time.Now()

	base, err := storage.BaseDir()
	if err != nil {
		return err
	}

	from, to := timecalc.WeekRange(now)
	entries, err := storage.LoadRange(base, from, to)
	if err != nil {
		return err
	}

	return writeReport(os.Stdout, timecalc.ISOWeekLabel(now), entries, reportFormat)
}

type taskTotal struct {
	TaskID  string `json:"task_id"`
	Seconds int64  `json:"-"`
	Minutes int64  `json:"duration_minutes"`
	Elapsed string `json:"elapsed"`
}

// totalsByTask sums closed sessions per task, sorted by task id.
func totalsByTask(entries []model.Entry) ([]taskTotal, int64) {
	sums := map[string]int64{}
	for _, e := range entries {
		if e.DurationSeconds == nil {
			continue
		}
		sums[e.TaskID] += *e.DurationSeconds
	}

	var grand int64
	totals := make([]taskTotal, 0, len(sums))
	for id, sec := range sums {
		grand += sec
		totals = append(totals, taskTotal{TaskID: id, Seconds: sec, Minutes: sec / 60, Elapsed: timecalc.Format(sec)})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].TaskID < totals[j].TaskID })
	return totals, grand
}

func writeReport(w io.Writer, label string, entries []model.Entry, format string) error {
	totals, grand := totalsByTask(entries)

	switch format {
	case "csv":
		fmt.Fprintln(w, "task,duration_minutes,elapsed")
		for _, t := range totals {
			fmt.Fprintf(w, "%s,%d,%s\n", csvEscape(t.TaskID), t.Minutes, t.Elapsed)
		}
	case "json":
		out := struct {
			Week         string      `json:"week"`
			Tasks        []taskTotal `json:"tasks"`
			TotalMinutes int64       `json:"total_minutes"`
			Total        string      `json:"total"`
		}{label, totals, grand / 60, timecalc.Format(grand)}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "md", "":
		fmt.Fprintf(w, "Week %s\n", label)
		fmt.Fprintln(w, "--------------------------------")
		for _, t := range totals {
			fmt.Fprintf(w, "%-20s%s\n", t.TaskID, timecalc.FormatDuration(t.Seconds))
		}
		fmt.Fprintln(w, "--------------------------------")
		fmt.Fprintf(w, "%-20s%s\n", "Total", timecalc.FormatDuration(grand))
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	return nil
}
