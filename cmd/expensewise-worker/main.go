package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensewise/internal/amqp"
	"expensewise/internal/cli"
	"expensewise/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("worker")
	logger.Info("Starting expensewise-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	mirror := cli.InitMirror(context.Background(), logger, cfg)

	// Without a broker the worker only runs the scheduled jobs.
	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPExportQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		consumer = c
	} else {
		logger.Info("AMQP disabled - relying on scheduled export reconciliation")
	}

	w := worker.NewExportWorker(res.Store, res.Exports, mirror, worker.Config{
		BatchSize:      cfg.ExportBatchSize,
		ExportSchedule: cfg.ExportSchedule,
		DigestSchedule: cfg.DigestSchedule,
		Location:       cfg.FilterOptions().Location,
	})

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx, consumer)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
