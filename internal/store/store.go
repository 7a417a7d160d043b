package store

import (
	"errors"
	"time"

	"bookvault/pkg/domain"
)

// Guard violations surfaced by CreateBorrow. The lifecycle engine maps
// them onto its caller-error taxonomy.
var (
	ErrDuplicateActive = errors.New("active borrow already exists for user and book")
	ErrUserAtLimit     = errors.New("user reached active borrow limit")
)

// BorrowFilter narrows ListBorrows. Zero values mean "no filter".
// UserName and BookTitle are case-insensitive substring matches.
type BorrowFilter struct {
	Status    domain.BorrowStatus
	UserName  string
	BookTitle string
	Page      int
	Limit     int
}

// Store defines persistence for the catalog, the borrow ledger, and settings.
//
// The mutating book operations are the serialization points the lifecycle
// engine relies on: ReserveCopy is an atomic check-and-decrement that can
// never drive availability negative, ReleaseCopy an increment clamped to
// the total, and CreateBorrow a serialized check-then-insert enforcing the
// one-active-record-per-(user, book) guard. TransitionBorrow compares the
// current status before writing so a lost race surfaces as a failed
// transition instead of a double mutation.
type Store interface {
	// catalog
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	GetBooks(ids []string) (map[string]domain.Book, error)
	ListBooks(query, category string) ([]domain.Book, error)
	DeleteBook(id string) (bool, error)
	ReserveCopy(bookID string) (bool, error)
	ReleaseCopy(bookID string) error
	AdjustCapacity(bookID string, newTotal int) (domain.Book, bool, error)
	PushWaitlist(bookID, userID string) (domain.Book, bool, error)
	PopWaitlist(bookID string) (string, bool, error)

	// ledger
	CreateBorrow(rec domain.BorrowRecord, maxActivePerUser int) error
	GetBorrow(id string) (domain.BorrowRecord, bool, error)
	TransitionBorrow(rec domain.BorrowRecord, from domain.BorrowStatus) (bool, error)
	MarkOverdueNotified(id string, fine int64, at time.Time) (bool, error)
	ListBorrowsByStatus(status domain.BorrowStatus) ([]domain.BorrowRecord, error)
	ListBorrowsByUser(userID string) ([]domain.BorrowRecord, error)
	ListBorrows(filter BorrowFilter) ([]domain.BorrowRecord, int64, error)
	ListOverdue(asOf time.Time) ([]domain.BorrowRecord, error)
	ListDueSoon(asOf, until time.Time) ([]domain.BorrowRecord, error)

	// settings
	GetSettings() (domain.Settings, bool, error)
	SaveSettings(domain.Settings) error
}
