package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"availwatch/internal/app"
	"availwatch/internal/status"
)

var (
	simulateFrom   string
	simulateTo     string
	simulateCount  int
	simulateUrgent bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次状态变化并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseStatus(simulateFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := parseStatus(simulateTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}

		opts := app.SimulateOptions{From: from, To: to, Count: simulateCount}
		if cmd.Flags().Changed("urgent") {
			opts.Urgent = &simulateUrgent
		}
		return getApp().SimulateTransition(cmd.Context(), opts)
	},
}

func parseStatus(raw string) (status.Status, error) {
	s := status.Parse(strings.ToUpper(strings.TrimSpace(raw)))
	if s == status.Unknown && !strings.EqualFold(strings.TrimSpace(raw), "unknown") {
		return s, fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFrom, "from", "NOT_AVAILABLE", "上一次状态")
	simulateCmd.Flags().StringVar(&simulateTo, "to", "AVAILABLE", "新状态")
	simulateCmd.Flags().IntVar(&simulateCount, "count", 0, "通知次数（默认读取设置）")
	simulateCmd.Flags().BoolVar(&simulateUrgent, "urgent", false, "是否包含紧急提醒（默认读取设置）")
}
