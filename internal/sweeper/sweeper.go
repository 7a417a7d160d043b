// Package sweeper runs the overdue sweep on a fixed schedule.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"bookvault/internal/app"
)

// ErrSweepRunning is returned when a trigger overlaps an in-flight run.
var ErrSweepRunning = errors.New("sweep already running")

// Runner fires the overdue sweep and due-soon reminders periodically.
// Runs never overlap: a tick that arrives while a run is still in flight
// is skipped rather than queued, so no record gets a duplicate reminder.
type Runner struct {
	app           *app.App
	interval      time.Duration
	dueSoonWindow time.Duration

	mu sync.Mutex
}

// New creates a runner. interval <= 0 defaults to daily; a zero
// dueSoonWindow disables due-soon reminders.
func New(a *app.App, interval, dueSoonWindow time.Duration) *Runner {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Runner{app: a, interval: interval, dueSoonWindow: dueSoonWindow}
}

// Run blocks until ctx is cancelled, sweeping once immediately and then
// on every interval tick.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// RunOnce triggers a sweep on demand, respecting the non-overlap guard.
func (r *Runner) RunOnce(ctx context.Context) (app.SweepResult, error) {
	if !r.mu.TryLock() {
		return app.SweepResult{}, ErrSweepRunning
	}
	defer r.mu.Unlock()
	return r.app.RunOverdueSweep(ctx)
}

func (r *Runner) sweep(ctx context.Context) {
	result, err := r.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, ErrSweepRunning) || errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("overdue sweep failed", "err", err)
		return
	}
	slog.Info("overdue sweep finished",
		"processed", result.Processed, "skipped", result.Skipped, "failed", result.Failed)

	if r.dueSoonWindow > 0 {
		sent, err := r.app.RunDueSoonReminders(ctx, r.dueSoonWindow)
		if err != nil {
			slog.Error("due-soon reminders failed", "err", err)
			return
		}
		slog.Info("due-soon reminders sent", "count", sent)
	}
}
