package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-dispatch/internal/cli/output"
)

var (
	deliveriesEndpoint string
	deliveriesLimit    int
)

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "Delivery history and retries",
	Long:  "Inspect webhook delivery records and re-drive failed deliveries",
}

var deliveriesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recent deliveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		deliveries, err := c.ListDeliveries(deliveriesEndpoint, deliveriesLimit)
		if err != nil {
			return fmt.Errorf("failed to list deliveries: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(deliveries)
		}

		if len(deliveries) == 0 {
			output.Info("No deliveries found")
			return nil
		}

		table := output.NewTable([]string{"ID", "Endpoint", "Event Type", "Status", "Attempts", "Created At"})
		for _, d := range deliveries {
			eventType := ""
			if d.Event != nil {
				eventType = d.Event.Type
			}
			table.AddRow([]string{
				d.ID,
				d.EndpointID,
				eventType,
				string(d.Status),
				fmt.Sprintf("%d", len(d.Attempts)),
				d.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

var deliveriesRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-attempt failed deliveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		result, err := c.RetryFailed(deliveriesEndpoint)
		if err != nil {
			return fmt.Errorf("failed to retry deliveries: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(result)
		}

		if result.RetriedCount == 0 {
			output.Info("No failed deliveries to retry")
			return nil
		}

		table := output.NewTable([]string{"Delivery ID", "Status"})
		for _, r := range result.Results {
			table.AddRow([]string{r.DeliveryID, string(r.Status)})
		}
		table.Render()
		output.Info("\nRetried %d deliveries", result.RetriedCount)
		return nil
	},
}

func init() {
	deliveriesCmd.PersistentFlags().StringVar(&deliveriesEndpoint, "endpoint", "", "filter by endpoint ID")
	deliveriesListCmd.Flags().IntVar(&deliveriesLimit, "limit", 50, "maximum records to return")

	deliveriesCmd.AddCommand(deliveriesListCmd)
	deliveriesCmd.AddCommand(deliveriesRetryCmd)
	rootCmd.AddCommand(deliveriesCmd)
}
