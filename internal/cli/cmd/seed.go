package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-dispatch/internal/cli/output"
	"github.com/telhawk-systems/telhawk-dispatch/internal/cli/seeder"
)

var (
	seedCount    int
	seedSeed     int64
	seedInterval time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Inject synthetic security events",
	Long: `Generate randomized security events and push them through the
trigger API. Useful for exercising endpoint subscriptions and delivery
retries in development.

Examples:
  # Send 100 events as fast as the API accepts them
  dispatchctl seed --count 100

  # Reproducible stream, paced at 10 events per second
  dispatchctl seed --count 500 --seed 42 --interval 100ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		gen := seeder.NewGenerator(seedSeed)
		sent := 0
		for i := 0; i < seedCount; i++ {
			if _, err := c.TriggerEvent(gen.Next()); err != nil {
				output.Error("Failed to send event: %v", err)
				continue
			}
			sent++
			if seedInterval > 0 {
				time.Sleep(seedInterval)
			}
		}

		output.Success("Sent %d of %d events", sent, seedCount)
		return nil
	},
}

var seedTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List generated event types",
	Run: func(cmd *cobra.Command, args []string) {
		for _, t := range seeder.EventTypes() {
			fmt.Println(t)
		}
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "number of events to send")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "random seed (0 uses the clock)")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 0, "pause between events")

	seedCmd.AddCommand(seedTypesCmd)
	rootCmd.AddCommand(seedCmd)
}
