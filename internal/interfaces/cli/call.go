package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/FreePeak/emulator-mcp-server/internal/config"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/emulator-mcp-server/internal/infrastructure/wsconn"
	"github.com/FreePeak/emulator-mcp-server/pkg/client"
)

func newCallCmd(load loader) *cobra.Command {
	var params string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Call one tool and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(params)) {
				return errors.New("--params is not valid JSON")
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := newClient(cfg, logger)
			defer c.Close()

			if err := c.Connect(ctx); err != nil {
				logger.Warn("connect failed, waiting for reconnect", logging.Fields{"error": err})
				if err := c.WaitReady(ctx); err != nil {
					return err
				}
			}

			result, err := c.Call(ctx, args[0], json.RawMessage(params))
			if err != nil {
				return err
			}

			var out bytes.Buffer
			if err := json.Indent(&out, result, "", "  "); err != nil {
				return errors.Wrap(err, "format result")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out.String())
			return err
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "{}", "tool params as a JSON object")
	return cmd
}

func newClient(cfg *config.Config, logger *logging.Logger) *client.Client {
	return client.New(client.Config{
		URL:    cfg.Client.URL,
		Dialer: &wsconn.Dialer{Options: wsconn.Options{ReadLimit: cfg.Server.ReadLimit}},
		Tokens: newTokenSource(cfg),
		Backoff: client.Backoff{
			BaseDelay:   cfg.Client.BaseDelay,
			MaxAttempts: cfg.Client.MaxAttempts,
		},
		CallTimeout: cfg.Client.CallTimeout,
		Logger:      logger,
	})
}

func newTokenSource(cfg *config.Config) *client.HTTPTokenSource {
	tokens := client.NewHTTPTokenSource(cfg.Client.TokenURL, cfg.Client.WebSession)
	tokens.CookieName = cfg.Auth.CookieName
	return tokens
}
