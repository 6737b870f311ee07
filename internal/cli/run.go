package cli

import (
	"github.com/spf13/cobra"
)

var runAPI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring service",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if cmd.Flags().Changed("api") {
			a.Config.API.Enabled = runAPI
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runAPI, "api", false, "Serve the HTTP control API (overrides api.enabled)")
}
