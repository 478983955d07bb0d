package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"irec-issuer/internal/config"
	eventingrepo "irec-issuer/internal/eventing/infrastructure/postgres"
)

var purgeOlderThan time.Duration

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Outbox maintenance",
}

var outboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show outbox delivery counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, cfg config.Config, db *sql.DB) error {
			store := eventingrepo.NewOutboxStore(db, eventingrepo.WithMaxAttempts(cfg.Worker.MaxAttempts))
			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pending:   %d\n", stats.Pending)
			fmt.Fprintf(out, "retrying:  %d\n", stats.Retrying)
			fmt.Fprintf(out, "exhausted: %d\n", stats.Exhausted)
			fmt.Fprintf(out, "sent:      %d\n", stats.Sent)
			if !stats.Oldest.IsZero() {
				fmt.Fprintf(out, "oldest undelivered: %s\n", stats.Oldest.UTC().Format(time.RFC3339))
			}
			return nil
		})
	},
}

var dlqLimit int

var outboxDLQCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List dead-lettered events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, _ config.Config, db *sql.DB) error {
			letters, err := eventingrepo.NewDLQStore(db).List(ctx, dlqLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EVENT ID\tTYPE\tAGGREGATE\tATTEMPTS\tLAST SEEN\tERROR")
			for _, d := range letters {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					d.EventID, d.EventType, d.AggregateID, d.Attempts, d.LastSeenAt.UTC().Format(time.RFC3339), d.Error)
			}
			return w.Flush()
		})
	},
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue <event-id>",
	Short: "Reset a dead-lettered event so the worker delivers it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, _ config.Config, db *sql.DB) error {
			if err := eventingrepo.NewDLQStore(db).Requeue(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
			return nil
		})
	},
}

var outboxPurgeCmd = &cobra.Command{
	Use:   "purge-processed",
	Short: "Delete old consumer idempotency markers for delivered events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if purgeOlderThan <= 0 {
			return errors.New("--older-than must be positive")
		}
		return withDB(cmd.Context(), func(ctx context.Context, _ config.Config, db *sql.DB) error {
			removed, err := eventingrepo.NewProcessedStore(db).PurgeBefore(ctx, time.Now().Add(-purgeOlderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d processed markers\n", removed)
			return nil
		})
	},
}

func init() {
	outboxPurgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 30*24*time.Hour, "Minimum marker age")
	outboxDLQCmd.Flags().IntVar(&dlqLimit, "limit", 50, "Maximum number of entries")
	outboxCmd.AddCommand(outboxStatsCmd, outboxDLQCmd, outboxRequeueCmd, outboxPurgeCmd)
}
