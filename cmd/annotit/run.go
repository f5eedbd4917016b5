package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/annotit"
	"github.com/poiesic/annotit/config"
	"github.com/poiesic/annotit/metrics"
	"github.com/poiesic/annotit/readiness"
	"github.com/urfave/cli/v2"
)

func runCommand(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := waitForServices(ctx, cfg); err != nil {
		return err
	}

	var opts []annotit.Option
	if cfg.Metrics.Port > 0 {
		collector := metrics.NewCollector()
		opts = append(opts, annotit.WithCollector(collector))
		go func() {
			if err := collector.Serve(ctx, cfg.Metrics.Port); err != nil {
				slog.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}
	if c.Bool("progress") {
		opts = append(opts, annotit.WithProgress(c.App.ErrWriter))
	}

	ing, err := annotit.NewIngester(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}
	defer ing.Close()

	if cfg.Schedule.Cron != "" && !c.Bool("once") {
		slog.Info("running on schedule", "cron", cfg.Schedule.Cron)
		return ing.RunPeriodic(ctx, cfg.Schedule.Cron)
	}

	summary, err := ing.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "run %s: %s\n", summary.RunID, summary)
	if summary.Failed() {
		return errRunFailed
	}
	return nil
}

func waitCommand(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := waitForServices(ctx, cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d service(s) ready after %s\n", len(cfg.WaitFor), elapsed(start))
	return nil
}

func waitForServices(ctx context.Context, cfg *config.Config) error {
	if len(cfg.WaitFor) == 0 {
		return nil
	}
	slog.Info("waiting for services", "targets", cfg.WaitFor, "timeout", cfg.WaitTimeout)
	return readiness.NewWaiter(readiness.WithTimeout(cfg.WaitTimeout)).Wait(ctx, cfg.WaitFor...)
}
