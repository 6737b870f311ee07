package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"availwatch/internal/app"
)

var (
	setInterval int
	setCount    int
	setAlarm    bool
	setTestMode bool
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change persisted monitor settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		var opts app.SetOptions
		if flags.Changed("interval") {
			opts.IntervalMinutes = &setInterval
		}
		if flags.Changed("count") {
			opts.NotificationCount = &setCount
		}
		if flags.Changed("alarm") {
			opts.UseAlarmMode = &setAlarm
		}
		if flags.Changed("test-mode") {
			opts.TestMode = &setTestMode
		}
		if opts == (app.SetOptions{}) {
			return errors.New("nothing to set; pass at least one of --interval, --count, --alarm, --test-mode")
		}
		return getApp().Set(cmd.Context(), opts)
	},
}

func init() {
	setCmd.Flags().IntVar(&setInterval, "interval", 0, "Check interval in minutes")
	setCmd.Flags().IntVar(&setCount, "count", 0, "Standard notifications per alert episode")
	setCmd.Flags().BoolVar(&setAlarm, "alarm", true, "Add the urgent tier to alert episodes")
	setCmd.Flags().BoolVar(&setTestMode, "test-mode", false, "Skip store lookups and report Not Available")
}
