// Package cli implements the relay command line.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/imbot-relay/internal/config"
	"github.com/capitalize-ai/imbot-relay/pkg/logger"
)

// version can be overridden at build time via -ldflags "-X ...cli.version=x".
var version = "0.4.0"

const serviceName = "imbot-relay"

var rootCmd = &cobra.Command{
	Use:          "relay",
	Short:        "Relay chat-bot events to an AI assistant and post the replies back",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, color.CyanString(version))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(unregisterCmd)
}

// loadRuntime loads configuration and builds the logger.
func loadRuntime() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewFromEnv(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
