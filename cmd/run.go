package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pace/ingest-service/internal/model"
	"pace/ingest-service/internal/scraper"
)

func newRunCmd() *cobra.Command {
	var categories []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ingest pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var extra []scraper.Option
			if len(categories) > 0 {
				cats := make([]model.Category, 0, len(categories))
				for _, raw := range categories {
					c, err := model.ParseCategory(raw)
					if err != nil {
						return err
					}
					cats = append(cats, c)
				}
				extra = append(extra, scraper.WithCategories(cats))
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Migrate(ctx); err != nil {
				return err
			}
			worker, err := a.worker(extra)
			if err != nil {
				return err
			}

			stats := worker.Run(ctx)
			t := stats.Totals()
			a.log.Info("run finished",
				zap.String("run_id", stats.RunID),
				zap.Int("created", t.Created),
				zap.Int("merged", t.Merged),
				zap.Int("failed", t.Failed),
			)
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("run interrupted: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "limit the run to these categories (repeatable)")
	return cmd
}
