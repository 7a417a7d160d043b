package app

import (
	"fmt"

	"bookvault/pkg/domain"
	"bookvault/pkg/fine"
)

// Stats aggregates the admin dashboard counters.
type Stats struct {
	TotalBooks        int   `json:"totalBooks"`
	PendingRequests   int   `json:"pendingRequests"`
	CurrentlyBorrowed int   `json:"currentlyBorrowed"`
	TotalFines        int64 `json:"totalFines"`
}

// Stats computes catalog and ledger totals. TotalFines covers settled
// fines on returned records plus a live estimate for still-borrowed
// overdue loans at the configured rate.
func (a *App) Stats() (Stats, error) {
	settings, err := a.Settings()
	if err != nil {
		return Stats{}, err
	}
	books, err := a.store.ListBooks("", "")
	if err != nil {
		return Stats{}, fmt.Errorf("list books: %w", err)
	}
	pending, err := a.store.ListBorrowsByStatus(domain.StatusPending)
	if err != nil {
		return Stats{}, fmt.Errorf("list pending: %w", err)
	}
	borrowed, err := a.store.ListBorrowsByStatus(domain.StatusBorrowed)
	if err != nil {
		return Stats{}, fmt.Errorf("list borrowed: %w", err)
	}
	returned, err := a.store.ListBorrowsByStatus(domain.StatusReturned)
	if err != nil {
		return Stats{}, fmt.Errorf("list returned: %w", err)
	}

	now := a.now()
	var fines int64
	for _, r := range borrowed {
		if r.DueDate != nil {
			fines += fine.Accrued(*r.DueDate, now, settings.FinePerDay)
		}
	}
	for _, r := range returned {
		fines += r.Fine
	}
	return Stats{
		TotalBooks:        len(books),
		PendingRequests:   len(pending),
		CurrentlyBorrowed: len(borrowed),
		TotalFines:        fines,
	}, nil
}
