// Package cmd implements the dispatchctl command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-dispatch/internal/cli/client"
	"github.com/telhawk-systems/telhawk-dispatch/internal/cli/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dispatchctl",
	Short: "TelHawk Dispatch CLI",
	Long: `dispatchctl is the command-line interface for the TelHawk event
dispatch service.

Manage webhook endpoints, inspect delivery history, trigger test events,
and seed synthetic security events from your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.dispatchctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// apiClient builds a client for the profile selected on the command.
func apiClient(cmd *cobra.Command) (*client.DispatchClient, error) {
	profile, _ := cmd.Flags().GetString("profile")
	p, err := cfg.GetProfile(profile)
	if err != nil {
		return nil, err
	}
	return client.NewDispatchClient(p.ServerURL, p.Token), nil
}
