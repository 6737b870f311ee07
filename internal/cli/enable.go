package cli

import (
	"github.com/spf13/cobra"
)

var enableInterval int

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn monitoring on; intervals up to 5 minutes use the continuous loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Enable(cmd.Context(), enableInterval)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn monitoring off",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Disable(cmd.Context())
	},
}

func init() {
	enableCmd.Flags().IntVar(&enableInterval, "interval", 1, "Check interval in minutes")
}
