package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Tiliavir/precise-time-tracker/internal/storage"
)

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task as completed",
	Long: `Move a task from the active to the completed list. Its elapsed time is
kept; a completed task can no longer be tracked.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func runComplete(cmd *cobra.Command, args []string) error {
	base, err := storage.BaseDir()
	if err != nil {
		return err
	}
	task, err := storage.NewStore(base).Complete(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	success("completed task %s after %s", task.ID, task.Elapsed)
	return nil
}
