package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bookvault/internal/app"
	"bookvault/internal/config"
	"bookvault/internal/notify"
	"bookvault/internal/ratelimit"
	"bookvault/internal/server"
	"bookvault/internal/sweeper"
	"bookvault/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	sweepInterval, err := config.ParseSweepInterval(cfg.SweepInterval)
	if err != nil {
		log.Fatalf("failed to parse sweep interval: %v", err)
	}
	dueSoonWindow, err := config.ParseDueSoonWindow(cfg.DueSoonWindow)
	if err != nil {
		log.Fatalf("failed to parse due-soon window: %v", err)
	}

	notifier := buildNotifier(cfg)
	dispatcher := notify.NewDispatcher(notifier, 0)

	appCore, err := app.New(app.Config{
		DatabaseURL:   cfg.DatabaseURL,
		Notifications: dispatcher,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var borrowLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		limit := cfg.BorrowRateLimitPerMinute
		if limit <= 0 {
			limit = 30
		}
		borrowLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "bookvault:ratelimit:borrow", limit, time.Minute)
		if err != nil {
			log.Fatalf("failed to init borrow rate limiter: %v", err)
		}
	}

	sweeps := sweeper.New(appCore, sweepInterval, dueSoonWindow)

	httpServer, err := server.New(server.Config{
		App:           appCore,
		Sweeps:        sweeps,
		BorrowLimiter: borrowLimiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	dispatcher.Start(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := sweeps.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		slog.Error("server error", "err", err)
	}
	// Give the dispatcher a moment to drain queued notifications.
	select {
	case <-dispatcher.Done():
	case <-time.After(5 * time.Second):
	}
}

// buildNotifier picks the configured transport: AMQP when a broker URL is
// set, SMTP when mail is configured, otherwise log-only.
func buildNotifier(cfg config.FileConfig) notify.Notifier {
	if cfg.AMQPURL != "" {
		notifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.NotificationQueue)
		if err != nil {
			log.Fatalf("failed to init amqp notifier: %v", err)
		}
		return notifier
	}
	if cfg.SMTPHost != "" {
		notifier, err := notify.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
		if err != nil {
			log.Fatalf("failed to init smtp notifier: %v", err)
		}
		return notifier
	}
	return notify.LogNotifier{}
}
