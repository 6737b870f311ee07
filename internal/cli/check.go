package cli

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one availability check now and deliver any resulting alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckNow(cmd.Context())
	},
}
