package domain

import "time"

type BorrowStatus string

const (
	StatusPending  BorrowStatus = "pending"
	StatusBorrowed BorrowStatus = "borrowed"
	StatusRejected BorrowStatus = "rejected"
	StatusReturned BorrowStatus = "returned"
)

// Active reports whether the record still ties up the (user, book) pair.
// Pending requests and open loans are active; rejected and returned are terminal.
func (s BorrowStatus) Active() bool {
	return s == StatusPending || s == StatusBorrowed
}

// Terminal reports whether the record can no longer transition.
func (s BorrowStatus) Terminal() bool {
	return s == StatusRejected || s == StatusReturned
}

type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Category        string    `json:"category,omitempty"`
	ISBN            string    `json:"isbn,omitempty"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	CoverURL        string    `json:"coverUrl,omitempty"`
	Waitlist        []string  `json:"waitlist,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// BorrowRecord is the audit trail of one borrow request. Records are never
// deleted; status is the only field that moves the record through its
// lifecycle, and the date fields are set once at the transition that
// introduces them.
type BorrowRecord struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	UserName  string       `json:"userName,omitempty"`
	UserEmail string       `json:"userEmail,omitempty"`
	BookID    string       `json:"bookId"`
	Status    BorrowStatus `json:"status"`

	RequestedAt time.Time  `json:"requestedAt"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	RejectedAt  *time.Time `json:"rejectedAt,omitempty"`
	BorrowDate  *time.Time `json:"borrowDate,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	ReturnDate  *time.Time `json:"returnDate,omitempty"`

	// Fine is the settled amount, fixed at return time. Between sweeps it
	// may hold a running estimate for still-overdue loans.
	Fine int64 `json:"fine"`
	// OverdueNotifiedAt caps overdue reminders to one per calendar day.
	OverdueNotifiedAt *time.Time `json:"overdueNotifiedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BorrowView is a BorrowRecord enriched with fields derived at read time.
// CurrentFine is advisory and never persisted from this path.
type BorrowView struct {
	BorrowRecord
	Book        *Book `json:"book,omitempty"`
	IsOverdue   bool  `json:"isOverdue"`
	CurrentFine int64 `json:"currentFine"`
}

// Settings is the singleton library policy row.
type Settings struct {
	MaxBooksPerUser int       `json:"maxBooksPerUser"`
	LoanPeriodDays  int       `json:"loanPeriodDays"`
	FinePerDay      int64     `json:"finePerDay"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

const (
	DefaultMaxBooksPerUser = 3
	DefaultLoanPeriodDays  = 14
	DefaultFinePerDay      = 10
)

// DefaultSettings returns the hardcoded policy used when no settings row exists.
func DefaultSettings() Settings {
	return Settings{
		MaxBooksPerUser: DefaultMaxBooksPerUser,
		LoanPeriodDays:  DefaultLoanPeriodDays,
		FinePerDay:      DefaultFinePerDay,
	}
}
