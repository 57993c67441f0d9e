// Package cli implements the emulator-mcp command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/FreePeak/emulator-mcp-server/internal/config"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
)

// Version is overridden at link time.
var Version = "dev"

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

type loader func() (*config.Config, error)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "emulator-mcp",
		Short:         "Emulator MCP server and client",
		Long:          "emulator-mcp serves emulator tools over an authenticated persistent connection and provides a client for calling them.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (toml, yaml or json)")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	rootCmd.AddCommand(
		newServeCmd(load),
		newCallCmd(load),
		newTokenCmd(load),
		newCategoriesCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:       logging.ParseLevel(cfg.Log.Level),
		Development: cfg.Log.Development,
		OutputPaths: []string{"stderr"},
	})
}
