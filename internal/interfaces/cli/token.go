package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Fetch a bearer token for the configured web session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			token, err := newTokenSource(cfg).Token(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}
