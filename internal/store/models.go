package store

import (
	"time"

	"gorm.io/datatypes"

	"bookvault/pkg/domain"
)

// GORM models used for persistence.
type BookModel struct {
	ID              string `gorm:"primaryKey"`
	Title           string `gorm:"not null;index"`
	Author          string `gorm:"not null"`
	Category        string `gorm:"index"`
	ISBN            string
	TotalCopies     int `gorm:"not null"`
	AvailableCopies int `gorm:"not null"`
	CoverURL        string
	Waitlist        datatypes.JSONSlice[string]
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (BookModel) TableName() string { return "books" }

type BorrowModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	UserName  string
	UserEmail string
	BookID    string `gorm:"not null;index"`
	Status    string `gorm:"not null;index"`

	RequestedAt time.Time `gorm:"not null"`
	ApprovedAt  *time.Time
	RejectedAt  *time.Time
	BorrowDate  *time.Time
	DueDate     *time.Time `gorm:"index"`
	ReturnDate  *time.Time

	Fine              int64 `gorm:"not null;default:0"`
	OverdueNotifiedAt *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (BorrowModel) TableName() string { return "borrow_records" }

// SettingsModel is a singleton row keyed by a fixed ID.
type SettingsModel struct {
	ID              string `gorm:"primaryKey"`
	MaxBooksPerUser int    `gorm:"not null"`
	LoanPeriodDays  int    `gorm:"not null"`
	FinePerDay      int64  `gorm:"not null"`
	UpdatedAt       time.Time
}

func (SettingsModel) TableName() string { return "settings" }

const settingsRowID = "library"

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		Category:        b.Category,
		ISBN:            b.ISBN,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CoverURL:        b.CoverURL,
		Waitlist:        datatypes.NewJSONSlice(b.Waitlist),
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:              m.ID,
		Title:           m.Title,
		Author:          m.Author,
		Category:        m.Category,
		ISBN:            m.ISBN,
		TotalCopies:     m.TotalCopies,
		AvailableCopies: m.AvailableCopies,
		CoverURL:        m.CoverURL,
		Waitlist:        []string(m.Waitlist),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func borrowToModel(r domain.BorrowRecord) BorrowModel {
	return BorrowModel{
		ID:                r.ID,
		UserID:            r.UserID,
		UserName:          r.UserName,
		UserEmail:         r.UserEmail,
		BookID:            r.BookID,
		Status:            string(r.Status),
		RequestedAt:       r.RequestedAt,
		ApprovedAt:        r.ApprovedAt,
		RejectedAt:        r.RejectedAt,
		BorrowDate:        r.BorrowDate,
		DueDate:           r.DueDate,
		ReturnDate:        r.ReturnDate,
		Fine:              r.Fine,
		OverdueNotifiedAt: r.OverdueNotifiedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func borrowFromModel(m BorrowModel) domain.BorrowRecord {
	return domain.BorrowRecord{
		ID:                m.ID,
		UserID:            m.UserID,
		UserName:          m.UserName,
		UserEmail:         m.UserEmail,
		BookID:            m.BookID,
		Status:            domain.BorrowStatus(m.Status),
		RequestedAt:       m.RequestedAt,
		ApprovedAt:        m.ApprovedAt,
		RejectedAt:        m.RejectedAt,
		BorrowDate:        m.BorrowDate,
		DueDate:           m.DueDate,
		ReturnDate:        m.ReturnDate,
		Fine:              m.Fine,
		OverdueNotifiedAt: m.OverdueNotifiedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
