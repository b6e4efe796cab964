package main

import (
	"context"
	"fmt"

	"github.com/kimjh/vlanstitch/pkg/transport"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Args:  cobra.NoArgs,
	Short: "Fetch the current manifest from a provider",
	Long:  `Calls the provider's describe operation for a slice and prints the returned manifest document.`,
	RunE:  runDescribe,
}

func init() {
	describeCmd.Flags().String("url", "", "provider endpoint URL")
	describeCmd.Flags().Int("api-version", 2, "provider API version (2 or 3)")
	describeCmd.Flags().String("slice", "", "slice URN")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		return fmt.Errorf("--url flag is required")
	}
	apiVersion, _ := cmd.Flags().GetInt("api-version")
	slice, _ := cmd.Flags().GetString("slice")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)

	provider := transport.NewProviderClient(transport.ProviderConfig{
		Timeout:    cfg.Provider.Timeout,
		DCNTimeout: cfg.Provider.DCNTimeout,
	}, logger)

	manifest, err := provider.Describe(context.Background(), url, apiVersion, slice)
	if err != nil {
		return fmt.Errorf("describe failed: %w", err)
	}

	fmt.Println(string(manifest))
	return nil
}
