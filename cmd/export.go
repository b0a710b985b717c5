package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/precise-time-tracker/internal/model"
	"github.com/Tiliavir/precise-time-tracker/internal/storage"
	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export this week's sessions to stdout",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv, json, md")
}

func runExport(cmd *cobra.Command, args []string) error {
	base, err := storage.BaseDir()
	if err != nil {
		return err
	}

	from, to := timecalc.WeekRange(time.Now())
	entries, err := storage.LoadRange(base, from, to)
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
		fmt.Println(string(data))
	case "md":
		printList(os.Stdout, entries)
	default: // csv
		printCSV(os.Stdout, entries)
	}
	return nil
}

func printCSV(w io.Writer, entries []model.Entry) {
	fmt.Fprintln(w, "date,task,start,end,duration_minutes,end_reason,source")
	for _, e := range entries {
		endStr := ""
		if e.End != nil {
			endStr = e.End.Format(time.RFC3339)
		}
		durMin := int64(0)
		if e.DurationSeconds != nil {
			durMin = *e.DurationSeconds / 60
		}
		fmt.Fprintf(w, "%s,%s,%s,%s,%d,%s,%s\n",
			csvEscape(e.Start.Format("2006-01-02")),
			csvEscape(e.TaskID),
			csvEscape(e.Start.Format(time.RFC3339)),
			csvEscape(endStr),
			durMin,
			csvEscape(e.EndReason),
			csvEscape(e.Source),
		)
	}
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
