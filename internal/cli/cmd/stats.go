package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-dispatch/internal/cli/output"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show webhook delivery statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		stats, err := c.Stats()
		if err != nil {
			return fmt.Errorf("failed to fetch stats: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(stats)
		}

		output.Info("Endpoints:  %d total, %d active", stats.TotalEndpoints, stats.ActiveEndpoints)
		output.Info("Deliveries: %d total, %d delivered, %d failed",
			stats.TotalDeliveries, stats.SuccessfulDeliveries, stats.FailedDeliveries)
		output.Info("Average response time: %.1fms", stats.AverageResponseTime)
		output.Info("Volume: %d last 24h, %d last week, %d last month",
			stats.DeliveryRate.Last24h, stats.DeliveryRate.LastWeek, stats.DeliveryRate.LastMonth)

		if len(stats.TopEventTypes) > 0 {
			fmt.Println()
			table := output.NewTable([]string{"Event Type", "Count", "Success Rate"})
			for _, t := range stats.TopEventTypes {
				table.AddRow([]string{
					t.EventType,
					fmt.Sprintf("%d", t.Count),
					fmt.Sprintf("%.0f%%", t.SuccessRate*100),
				})
			}
			table.Render()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
