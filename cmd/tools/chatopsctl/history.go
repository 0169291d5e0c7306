package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"infra-chatops/internal/common/database"
	"infra-chatops/internal/store"
)

var (
	historyWorkflow string
	historyLimit    int
	searchSize      int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived executions from the Postgres audit trail",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		pg, err := database.NewPostgres(ctx, cfg.Database.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()

		records, err := store.NewAuditRepository(pg.DB).History(ctx, historyWorkflow, historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INSTANCE\tWORKFLOW\tSTATUS\tFAILED STEP\tSTARTED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.InstanceID, r.Workflow, r.Status, r.FailedStep, r.StartedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over archived reports in Elasticsearch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return fmt.Errorf("elasticsearch: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		ids, err := store.NewSearchIndexer(es.Client, es.Index).Search(ctx, args[0], searchSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no matching executions")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyWorkflow, "workflow", "", "only this workflow")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum rows")
	searchCmd.Flags().IntVar(&searchSize, "size", 20, "maximum hits")
	rootCmd.AddCommand(historyCmd, searchCmd)
}
