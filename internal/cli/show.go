package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"availwatch/internal/app"
)

var (
	showLimit    int
	showEpisodes bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent check samples or alert episodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:    showLimit,
			Episodes: showEpisodes,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showEpisodes, "episodes", false, "Show alert episodes instead of check samples")
}
