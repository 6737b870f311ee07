package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"availwatch/internal/app"
)

var (
	testAlertCount  int
	testAlertUrgent bool
	testAlertDelay  time.Duration
)

var testAlertCmd = &cobra.Command{
	Use:   "test-alert",
	Short: "Send TEST notifications through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if testAlertDelay < 0 {
			return fmt.Errorf("--delay must not be negative")
		}
		return getApp().TestAlert(cmd.Context(), app.TestAlertOptions{
			Count:  testAlertCount,
			Urgent: testAlertUrgent,
			Delay:  testAlertDelay,
		})
	},
}

func init() {
	testAlertCmd.Flags().IntVar(&testAlertCount, "count", 0, "Number of notifications (defaults to the stored notification count)")
	testAlertCmd.Flags().BoolVar(&testAlertUrgent, "urgent", false, "Include the urgent tier")
	testAlertCmd.Flags().DurationVar(&testAlertDelay, "delay", 0, "Wait before the first notification")
}
