package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/telhawk-dispatch/internal/cli/output"
	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook"
)

var (
	endpointName       string
	endpointURL        string
	endpointEventTypes string
	endpointMaxRetries int
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "Webhook endpoint management",
	Long:  "Register, list, test, and remove webhook delivery endpoints",
}

var endpointsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		endpoints, err := c.ListEndpoints()
		if err != nil {
			return fmt.Errorf("failed to list endpoints: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(endpoints)
		}

		if len(endpoints) == 0 {
			output.Info("No endpoints registered")
			return nil
		}

		table := output.NewTable([]string{"ID", "Name", "URL", "Status", "Event Types", "Success", "Failure"})
		for _, ep := range endpoints {
			table.AddRow([]string{
				ep.ID,
				ep.Name,
				ep.URL,
				string(ep.Status),
				strings.Join(ep.EventTypes, ","),
				fmt.Sprintf("%d", ep.SuccessCount),
				fmt.Sprintf("%d", ep.FailureCount),
			})
		}
		table.Render()
		return nil
	},
}

var endpointsRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new endpoint",
	Long:  "Register a webhook endpoint. The signing secret is printed once; store it safely.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		req := webhook.RegisterEndpointRequest{
			Name:       endpointName,
			URL:        endpointURL,
			EventTypes: splitTypes(endpointEventTypes),
		}
		if endpointMaxRetries > 0 {
			policy := models.DefaultRetryPolicy()
			policy.MaxRetries = endpointMaxRetries
			req.RetryPolicy = &policy
		}

		ep, err := c.RegisterEndpoint(req)
		if err != nil {
			return fmt.Errorf("failed to register endpoint: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(ep)
		}

		output.Success("Endpoint registered: %s", ep.ID)
		output.Info("Signing secret: %s", ep.Secret)
		output.Warn("The secret is shown only once")
		return nil
	},
}

var endpointsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an endpoint and its delivery history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		if err := c.DeleteEndpoint(args[0]); err != nil {
			return fmt.Errorf("failed to delete endpoint: %w", err)
		}
		output.Success("Endpoint deleted: %s", args[0])
		return nil
	},
}

var endpointsTestCmd = &cobra.Command{
	Use:   "test [id]",
	Short: "Send a synthetic test event to an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		result, err := c.TestEndpoint(args[0])
		if err != nil {
			return fmt.Errorf("failed to test endpoint: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(result)
		}

		if result.Success {
			output.Success("Endpoint reachable (status %d, %dms)", result.HTTPStatus, result.ResponseTimeMs)
		} else {
			output.Error("Endpoint test failed: %s", result.Error)
		}
		return nil
	},
}

// importSpec is the YAML shape accepted by endpoints import.
type importSpec struct {
	Endpoints []struct {
		Name        string              `yaml:"name"`
		URL         string              `yaml:"url"`
		EventTypes  []string            `yaml:"event_types"`
		RetryPolicy *models.RetryPolicy `yaml:"retry_policy"`
	} `yaml:"endpoints"`
}

var endpointsImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Register endpoints from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		var spec importSpec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}

		registered := 0
		for _, e := range spec.Endpoints {
			ep, err := c.RegisterEndpoint(webhook.RegisterEndpointRequest{
				Name:        e.Name,
				URL:         e.URL,
				EventTypes:  e.EventTypes,
				RetryPolicy: e.RetryPolicy,
			})
			if err != nil {
				output.Error("Failed to register %q: %v", e.Name, err)
				continue
			}
			output.Success("Registered %s (%s)", ep.Name, ep.ID)
			registered++
		}

		output.Info("Registered %d of %d endpoints", registered, len(spec.Endpoints))
		return nil
	},
}

func splitTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	types := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			types = append(types, t)
		}
	}
	return types
}

func init() {
	endpointsRegisterCmd.Flags().StringVar(&endpointName, "name", "", "endpoint name (required)")
	endpointsRegisterCmd.Flags().StringVar(&endpointURL, "url", "", "endpoint URL (required)")
	endpointsRegisterCmd.Flags().StringVar(&endpointEventTypes, "event-types", "", "comma-separated event types (required)")
	endpointsRegisterCmd.Flags().IntVar(&endpointMaxRetries, "max-retries", 0, "override retry budget")
	_ = endpointsRegisterCmd.MarkFlagRequired("name")
	_ = endpointsRegisterCmd.MarkFlagRequired("url")
	_ = endpointsRegisterCmd.MarkFlagRequired("event-types")

	endpointsCmd.AddCommand(endpointsListCmd)
	endpointsCmd.AddCommand(endpointsRegisterCmd)
	endpointsCmd.AddCommand(endpointsDeleteCmd)
	endpointsCmd.AddCommand(endpointsTestCmd)
	endpointsCmd.AddCommand(endpointsImportCmd)
	rootCmd.AddCommand(endpointsCmd)
}
