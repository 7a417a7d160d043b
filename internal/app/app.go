// Package app implements the borrow-lifecycle engine: the state machine
// moving borrow records between pending, borrowed, rejected and returned,
// and the inventory accounting that goes with it.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"bookvault/internal/notify"
	"bookvault/internal/store"
	"bookvault/pkg/domain"
	"bookvault/pkg/fine"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	Store         store.Store
	Notifications notify.Enqueuer
	Now           func() time.Time
}

// App is the lifecycle engine. It is the sole writer of record status,
// availability counts, and fine fields.
type App struct {
	store         store.Store
	notifications notify.Enqueuer
	now           func() time.Time
}

// New constructs the engine, opening a Postgres-backed store when none is
// injected.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &App{
		store:         dataStore,
		notifications: cfg.Notifications,
		now:           now,
	}, nil
}

// UserRef identifies the requesting user as asserted by the gateway.
type UserRef struct {
	ID    string
	Name  string
	Email string
}

// RequestBorrow creates a pending request for (user, book). Inventory is
// untouched: copies are reserved at approval, first-approved-first-served.
func (a *App) RequestBorrow(user UserRef, bookID string) (domain.BorrowRecord, error) {
	if user.ID == "" {
		return domain.BorrowRecord{}, fmt.Errorf("user id required: %w", ErrInvalidState)
	}
	_, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.BorrowRecord{}, fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return domain.BorrowRecord{}, fmt.Errorf("book %s: %w", bookID, ErrNotFound)
	}
	settings, err := a.Settings()
	if err != nil {
		return domain.BorrowRecord{}, err
	}

	now := a.now()
	rec := domain.BorrowRecord{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		UserName:    user.Name,
		UserEmail:   user.Email,
		BookID:      bookID,
		Status:      domain.StatusPending,
		RequestedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch err := a.store.CreateBorrow(rec, settings.MaxBooksPerUser); {
	case err == nil:
		return rec, nil
	case errors.Is(err, store.ErrDuplicateActive):
		return domain.BorrowRecord{}, fmt.Errorf("active request or loan exists for this book: %w", ErrConflict)
	case errors.Is(err, store.ErrUserAtLimit):
		return domain.BorrowRecord{}, fmt.Errorf("borrow limit of %d reached: %w", settings.MaxBooksPerUser, ErrConflict)
	default:
		return domain.BorrowRecord{}, fmt.Errorf("create borrow: %w", err)
	}
}

// ApproveRequest moves a pending request to borrowed, reserving one copy.
// The reservation is taken before the record flips so a lost race releases
// its copy instead of driving availability negative.
func (a *App) ApproveRequest(recordID string) (domain.BorrowView, error) {
	rec, ok, err := a.store.GetBorrow(recordID)
	if err != nil {
		return domain.BorrowView{}, fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return domain.BorrowView{}, fmt.Errorf("request %s: %w", recordID, ErrNotFound)
	}
	if rec.Status != domain.StatusPending {
		return domain.BorrowView{}, fmt.Errorf("request is %s, not pending: %w", rec.Status, ErrInvalidState)
	}
	book, ok, err := a.store.GetBook(rec.BookID)
	if err != nil {
		return domain.BorrowView{}, fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return domain.BorrowView{}, fmt.Errorf("book %s: %w", rec.BookID, ErrNotFound)
	}
	settings, err := a.Settings()
	if err != nil {
		return domain.BorrowView{}, err
	}

	reserved, err := a.store.ReserveCopy(rec.BookID)
	if err != nil {
		return domain.BorrowView{}, fmt.Errorf("reserve copy: %w", err)
	}
	if !reserved {
		return domain.BorrowView{}, fmt.Errorf("no copies available: %w", ErrConflict)
	}

	now := a.now()
	due := now.Add(time.Duration(settings.LoanPeriodDays) * 24 * time.Hour)
	rec.Status = domain.StatusBorrowed
	rec.ApprovedAt = &now
	rec.BorrowDate = &now
	rec.DueDate = &due

	committed, err := a.store.TransitionBorrow(rec, domain.StatusPending)
	if err != nil || !committed {
		// Give the reservation back; the record did not move.
		if relErr := a.store.ReleaseCopy(rec.BookID); relErr != nil {
			slog.Error("failed to release copy after aborted approval",
				"record", rec.ID, "book", rec.BookID, "err", relErr)
		}
		if err != nil {
			return domain.BorrowView{}, fmt.Errorf("commit approval: %w", err)
		}
		return domain.BorrowView{}, fmt.Errorf("request no longer pending: %w", ErrInvalidState)
	}

	a.enqueue(approvalIntent(rec, book))
	return a.view(rec, now, settings.FinePerDay), nil
}

// RejectRequest moves a pending request to rejected. No inventory effect.
func (a *App) RejectRequest(recordID string) (domain.BorrowView, error) {
	rec, ok, err := a.store.GetBorrow(recordID)
	if err != nil {
		return domain.BorrowView{}, fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return domain.BorrowView{}, fmt.Errorf("request %s: %w", recordID, ErrNotFound)
	}
	if rec.Status != domain.StatusPending {
		return domain.BorrowView{}, fmt.Errorf("request is %s, not pending: %w", rec.Status, ErrInvalidState)
	}

	now := a.now()
	rec.Status = domain.StatusRejected
	rec.RejectedAt = &now
	committed, err := a.store.TransitionBorrow(rec, domain.StatusPending)
	if err != nil {
		return domain.BorrowView{}, fmt.Errorf("commit rejection: %w", err)
	}
	if !committed {
		return domain.BorrowView{}, fmt.Errorf("request no longer pending: %w", ErrInvalidState)
	}

	book, _, err := a.store.GetBook(rec.BookID)
	if err != nil {
		slog.Error("failed to load book for notification",
			"record", rec.ID, "book", rec.BookID, "err", err)
	}
	a.enqueue(rejectionIntent(rec, book))
	return a.view(rec, now, 0), nil
}

// ReturnBook settles a loan: the record becomes returned with its fine
// fixed, the copy goes back into availability (clamped at the total), and
// the head of the waitlist is promoted.
func (a *App) ReturnBook(recordID string) (domain.BorrowRecord, int64, error) {
	rec, ok, err := a.store.GetBorrow(recordID)
	if err != nil {
		return domain.BorrowRecord{}, 0, fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return domain.BorrowRecord{}, 0, fmt.Errorf("record %s: %w", recordID, ErrNotFound)
	}
	if rec.Status != domain.StatusBorrowed {
		return domain.BorrowRecord{}, 0, fmt.Errorf("record is %s, not borrowed: %w", rec.Status, ErrInvalidState)
	}
	settings, err := a.Settings()
	if err != nil {
		return domain.BorrowRecord{}, 0, err
	}

	now := a.now()
	var amount int64
	if rec.DueDate != nil {
		amount = fine.Accrued(*rec.DueDate, now, settings.FinePerDay)
	}
	rec.Status = domain.StatusReturned
	rec.ReturnDate = &now
	rec.Fine = amount

	committed, err := a.store.TransitionBorrow(rec, domain.StatusBorrowed)
	if err != nil {
		return domain.BorrowRecord{}, 0, fmt.Errorf("commit return: %w", err)
	}
	if !committed {
		return domain.BorrowRecord{}, 0, fmt.Errorf("record no longer borrowed: %w", ErrInvalidState)
	}
	if err := a.store.ReleaseCopy(rec.BookID); err != nil {
		// The return is committed; an availability undercount is the safe
		// failure direction and needs operator attention, not a rollback.
		slog.Error("failed to release copy on return",
			"record", rec.ID, "book", rec.BookID, "err", err)
	}

	book, _, err := a.store.GetBook(rec.BookID)
	if err != nil {
		slog.Error("failed to load book for notification",
			"record", rec.ID, "book", rec.BookID, "err", err)
	}
	if next, popped, err := a.store.PopWaitlist(rec.BookID); err != nil {
		slog.Error("failed to pop waitlist", "book", rec.BookID, "err", err)
	} else if popped {
		a.enqueue(availabilityIntent(next, book))
	}
	a.enqueue(returnIntent(rec, book))
	return rec, amount, nil
}

// ListPending returns all pending requests for the admin queue.
func (a *App) ListPending() ([]domain.BorrowView, error) {
	recs, err := a.store.ListBorrowsByStatus(domain.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return a.views(recs)
}

// ListForUser returns a user's borrow history with live overdue state.
func (a *App) ListForUser(userID string) ([]domain.BorrowView, error) {
	recs, err := a.store.ListBorrowsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list for user: %w", err)
	}
	return a.views(recs)
}

// PagedBorrows is one page of the admin listing.
type PagedBorrows struct {
	Data       []domain.BorrowView `json:"data"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	Total      int64               `json:"total"`
	TotalPages int                 `json:"totalPages"`
}

// ListAll returns a filtered, paginated view over the whole ledger.
func (a *App) ListAll(filter store.BorrowFilter) (PagedBorrows, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	recs, total, err := a.store.ListBorrows(filter)
	if err != nil {
		return PagedBorrows{}, fmt.Errorf("list borrows: %w", err)
	}
	views, err := a.views(recs)
	if err != nil {
		return PagedBorrows{}, err
	}
	return PagedBorrows{
		Data:       views,
		Page:       filter.Page,
		Limit:      filter.Limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.Limit))),
	}, nil
}

// Settings returns the current policy, falling back to the defaults when
// no settings row exists.
func (a *App) Settings() (domain.Settings, error) {
	settings, ok, err := a.store.GetSettings()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return domain.DefaultSettings(), nil
	}
	if settings.MaxBooksPerUser <= 0 {
		settings.MaxBooksPerUser = domain.DefaultMaxBooksPerUser
	}
	if settings.LoanPeriodDays <= 0 {
		settings.LoanPeriodDays = domain.DefaultLoanPeriodDays
	}
	if settings.FinePerDay <= 0 {
		settings.FinePerDay = domain.DefaultFinePerDay
	}
	return settings, nil
}

// UpdateSettings replaces the policy row.
func (a *App) UpdateSettings(settings domain.Settings) (domain.Settings, error) {
	if settings.MaxBooksPerUser < 1 || settings.LoanPeriodDays < 1 || settings.FinePerDay < 0 {
		return domain.Settings{}, fmt.Errorf("settings values out of range: %w", ErrInvalidState)
	}
	if err := a.store.SaveSettings(settings); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return a.Settings()
}

func (a *App) enqueue(intent notify.Intent) {
	if a.notifications == nil || intent.To == "" {
		return
	}
	a.notifications.Enqueue(intent)
}

// view derives the read-only overdue fields for one record.
func (a *App) view(rec domain.BorrowRecord, now time.Time, perDay int64) domain.BorrowView {
	v := domain.BorrowView{BorrowRecord: rec, CurrentFine: rec.Fine}
	if rec.Status == domain.StatusBorrowed && rec.DueDate != nil && now.After(*rec.DueDate) {
		v.IsOverdue = true
		v.CurrentFine = fine.Accrued(*rec.DueDate, now, perDay)
	}
	return v
}

func (a *App) views(recs []domain.BorrowRecord) ([]domain.BorrowView, error) {
	settings, err := a.Settings()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if _, ok := seen[rec.BookID]; !ok {
			seen[rec.BookID] = struct{}{}
			ids = append(ids, rec.BookID)
		}
	}
	books, err := a.store.GetBooks(ids)
	if err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	now := a.now()
	views := make([]domain.BorrowView, 0, len(recs))
	for _, rec := range recs {
		v := a.view(rec, now, settings.FinePerDay)
		if book, ok := books[rec.BookID]; ok {
			b := book
			v.Book = &b
		}
		views = append(views, v)
	}
	return views, nil
}
