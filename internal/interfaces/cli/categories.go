package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FreePeak/emulator-mcp-server/internal/usecases"
)

func newCategoriesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Print the upload validation rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos := usecases.DescribeCategories()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tMAX SIZE\tEXTENSIONS\tSIGNATURE")
			for _, info := range infos {
				sig := "-"
				if len(info.Signature) > 0 {
					sig = fmt.Sprintf("%s @0x%X", strings.Join(info.Signature, "|"), info.Offset)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					info.Category, info.MaxSize, strings.Join(info.Extensions, " "), sig)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
