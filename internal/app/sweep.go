package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookvault/pkg/fine"
)

// SweepResult summarizes one overdue sweep run.
type SweepResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// RunOverdueSweep scans borrowed records past their due date, persists a
// running fine estimate, and emits at most one reminder per record per
// calendar day. One record failing does not stop the rest; the sweep only
// stops between records when ctx is cancelled.
func (a *App) RunOverdueSweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := a.now()
	settings, err := a.Settings()
	if err != nil {
		return result, err
	}
	candidates, err := a.store.ListOverdue(now)
	if err != nil {
		return result, fmt.Errorf("list overdue: %w", err)
	}

	ids := make([]string, 0, len(candidates))
	for _, rec := range candidates {
		ids = append(ids, rec.BookID)
	}
	books, err := a.store.GetBooks(ids)
	if err != nil {
		return result, fmt.Errorf("load books: %w", err)
	}

	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if rec.OverdueNotifiedAt != nil && sameCalendarDay(*rec.OverdueNotifiedAt, now) {
			result.Skipped++
			continue
		}
		if rec.DueDate == nil {
			result.Skipped++
			continue
		}
		amount := fine.Accrued(*rec.DueDate, now, settings.FinePerDay)
		updated, err := a.store.MarkOverdueNotified(rec.ID, amount, now)
		if err != nil {
			result.Failed++
			slog.Error("overdue sweep: failed to update record", "record", rec.ID, "err", err)
			continue
		}
		if !updated {
			// Returned between the scan and the update.
			result.Skipped++
			continue
		}
		a.enqueue(overdueIntent(rec, books[rec.BookID], amount, fine.DaysLate(*rec.DueDate, now)))
		result.Processed++
	}
	return result, nil
}

// RunDueSoonReminders emits reminders for loans due within window of now.
// Nothing is persisted; the caller controls cadence.
func (a *App) RunDueSoonReminders(ctx context.Context, window time.Duration) (int, error) {
	now := a.now()
	candidates, err := a.store.ListDueSoon(now, now.Add(window))
	if err != nil {
		return 0, fmt.Errorf("list due soon: %w", err)
	}
	ids := make([]string, 0, len(candidates))
	for _, rec := range candidates {
		ids = append(ids, rec.BookID)
	}
	books, err := a.store.GetBooks(ids)
	if err != nil {
		return 0, fmt.Errorf("load books: %w", err)
	}
	sent := 0
	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		a.enqueue(dueSoonIntent(rec, books[rec.BookID]))
		sent++
	}
	return sent, nil
}

// sameCalendarDay compares UTC dates, matching the one-reminder-per-day cap.
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
