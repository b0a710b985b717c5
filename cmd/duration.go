package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/precise-time-tracker/internal/timecalc"
)

var durationCmd = &cobra.Command{
	Use:   "duration",
	Short: "Convert and add HH:MM:SS durations",
}

var durationFormatCmd = &cobra.Command{
	Use:   "format <seconds>",
	Short: "Print seconds as HH:MM:SS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("seconds: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), timecalc.Format(n))
		return nil
	},
}

var durationParseCmd = &cobra.Command{
	Use:   "parse <HH:MM:SS>",
	Short: "Print an HH:MM:SS duration as seconds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := timecalc.Parse(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var durationAddCmd = &cobra.Command{
	Use:   "add <HH:MM:SS> <seconds>",
	Short: "Add seconds to an HH:MM:SS duration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("seconds: %w", err)
		}
		out, err := timecalc.AddSeconds(args[0], delta)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	durationCmd.AddCommand(durationFormatCmd, durationParseCmd, durationAddCmd)
}
