package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pace/ingest-service/internal/api"
	"pace/ingest-service/internal/scheduler"
)

const runLockKey = "ingest:run-lock"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled ingest loop and the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Migrate(ctx); err != nil {
		return err
	}

	worker, err := a.worker(nil)
	if err != nil {
		return err
	}

	var locker scheduler.Locker
	if a.rdb != nil {
		locker = scheduler.NewRedisLock(a.rdb, runLockKey, a.cfg.LockTTL)
	}
	sched := scheduler.New(worker, locker, a.cfg.Schedule, a.log)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	srv := api.New(":"+a.cfg.Port, sched, a.metrics.Handler(), a.log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			a.log.Error("admin api stopped", zap.Error(err))
		}
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn("admin api shutdown", zap.Error(serr))
	}
	sched.Stop()
	a.log.Info("stopped")
	return err
}
