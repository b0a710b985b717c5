package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/precise-time-tracker/internal/power"
)

var signalCmd = &cobra.Command{
	Use:   "signal <suspend|resume|lock|unlock>",
	Short: "Tell a running tracker about a power or lock event",
	Long: `Record a host event for running trackers. Hook this into your system's
sleep and screen-lock scripts, for example:

  ptt signal suspend   # before sleep
  ptt signal resume    # after wake`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"suspend", "resume", "lock", "unlock"},
	RunE:      runSignal,
}

func runSignal(cmd *cobra.Command, args []string) error {
	sig, err := power.ParseSignal(args[0])
	if err != nil {
		return err
	}
	dir := loadConfig().Power.Dir
	if dir == "" {
		if dir, err = power.DefaultDir(); err != nil {
			return err
		}
	}
	if err := power.Write(dir, sig, time.Now()); err != nil {
		return err
	}
	success("signalled %s", sig)
	return nil
}
