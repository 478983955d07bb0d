package main

import (
	"context"
	"database/sql"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"irec-issuer/internal/audit"
	"irec-issuer/internal/config"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <resource-type> [resource-id]",
	Short: "Print the audit trail of a resource",
	Long: `Print audit entries recorded by the API, oldest first.

Examples:
  irec-issuer history certification_request 42
  irec-issuer history certification_request --limit 20`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resourceID := ""
		if len(args) == 2 {
			resourceID = args[1]
		}
		return withDB(cmd.Context(), func(ctx context.Context, _ config.Config, db *sql.DB) error {
			entries, err := audit.NewRepository(db).ListByResource(ctx, args[0], resourceID, historyLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tRESOURCE\tACTOR\tROLE\tIP")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.UTC().Format(time.RFC3339), e.Action, e.ResourceID, e.Actor, e.Role, e.IP)
			}
			return w.Flush()
		})
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 100, "Maximum number of entries")
}
