package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/precise-time-tracker/internal/storage"
	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored tasks and the running session",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	now := time.Now()

	base, err := storage.BaseDir()
	if err != nil {
		return err
	}
	store := storage.NewStore(base)

	f, err := store.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	if len(f.Active) == 0 {
		fmt.Println("No active tasks.")
	} else {
		fmt.Println("Active tasks:")
		for _, t := range f.Active {
			cyan.Printf("  %-20s", t.ID)
			fmt.Printf(" %s", t.Elapsed)
			faint.Printf("  (saved %s)\n", t.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
	}
	if n := len(f.Completed); n > 0 {
		faint.Printf("%d completed task(s)\n", n)
	}

	open, _, err := storage.FindOpenEntry(base, now, "")
	if err != nil {
		return err
	}
	if open != nil {
		green.Printf("Tracking %s since %s (%s)\n", open.TaskID, open.Start.Local().Format("15:04"),
			timecalc.FormatDuration(open.Seconds(now)))
	}

	df, err := storage.LoadDay(base, now)
	if err != nil {
		return err
	}
	var total int64
	for _, e := range df.Entries {
		total += e.Seconds(now)
	}
	fmt.Printf("Today: %s logged.\n", timecalc.FormatDuration(total))
	return nil
}
