package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"expensewise/internal/amqp"
	"expensewise/internal/auth"
	"expensewise/internal/cli"
	apphttp "expensewise/internal/http"
	"expensewise/internal/services"
	"expensewise/internal/store"
	"expensewise/internal/tracker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("server")
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	// Change events are optional; without a broker the server runs standalone.
	var (
		publisher  services.EventPublisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPExportQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change events", "error", err)
		} else {
			amqpClient = c
			publisher = c
			defer c.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	opts := cfg.FilterOptions()
	svc := services.NewExpenseService(res.Store, publisher, opts)
	defer svc.Close()

	authSvc := auth.NewService(res.Store, cfg.SessionTTL, 0)
	trackers := tracker.NewRegistry(res.Store, svc, opts)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		CookieSecure:       cfg.SessionCookieSecure,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}, svc, authSvc, trackers, res.Store)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	if amqpClient != nil {
		go followRemoteChanges(ctx, amqpClient, res.Store, svc, logger.Logger)
	}

	logger.Info("Starting expensewise server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"filter_policy", opts.Policy,
		"week_start", opts.WeekStart.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// followRemoteChanges republishes a user's collections when another process
// writes to them, so open live views pick the change up.
func followRemoteChanges(ctx context.Context, c *amqp.Client, st store.Subscriber, svc *services.ExpenseService, logger *slog.Logger) {
	err := c.SubscribeChanges(ctx, func(ctx context.Context, ev *amqp.ChangeEvent) error {
		svc.Invalidate(ev.UserID)
		return st.Refresh(ctx, ev.UserID)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(ctx, "Change subscription stopped", "error", err)
	}
}
