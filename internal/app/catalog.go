package app

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bookvault/pkg/domain"
)

// BookInput carries catalog fields for creating a book.
type BookInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	ISBN        string `json:"isbn"`
	TotalCopies int    `json:"totalCopies"`
	CoverURL    string `json:"coverUrl"`
}

// BookUpdate carries a partial catalog edit. Nil fields are left alone.
// TotalCopies applies capacity-adjustment semantics: availability shifts
// by the same delta, clamped at zero.
type BookUpdate struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Category    *string `json:"category"`
	ISBN        *string `json:"isbn"`
	TotalCopies *int    `json:"totalCopies"`
	CoverURL    *string `json:"coverUrl"`
}

// CreateBook adds a catalog entry with all copies available.
func (a *App) CreateBook(input BookInput) (domain.Book, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Author = strings.TrimSpace(input.Author)
	if input.Title == "" || input.Author == "" {
		return domain.Book{}, fmt.Errorf("title and author required: %w", ErrInvalidState)
	}
	total := input.TotalCopies
	if total < 1 {
		total = 1
	}
	now := a.now()
	book := domain.Book{
		ID:              uuid.NewString(),
		Title:           input.Title,
		Author:          input.Author,
		Category:        strings.TrimSpace(input.Category),
		ISBN:            strings.TrimSpace(input.ISBN),
		TotalCopies:     total,
		AvailableCopies: total,
		CoverURL:        strings.TrimSpace(input.CoverURL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// GetBook returns one catalog entry.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return domain.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return book, nil
}

// ListBooks returns catalog entries matching a free-text query and category.
func (a *App) ListBooks(query, category string) ([]domain.Book, error) {
	books, err := a.store.ListBooks(strings.TrimSpace(query), strings.TrimSpace(category))
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// UpdateBook applies a partial catalog edit. A totalCopies change can
// leave availability at zero with more loans outstanding than the new
// total; returns self-correct toward the new cap.
func (a *App) UpdateBook(id string, upd BookUpdate) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return domain.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) != "" {
		book.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Author != nil && strings.TrimSpace(*upd.Author) != "" {
		book.Author = strings.TrimSpace(*upd.Author)
	}
	if upd.Category != nil {
		book.Category = strings.TrimSpace(*upd.Category)
	}
	if upd.ISBN != nil {
		book.ISBN = strings.TrimSpace(*upd.ISBN)
	}
	if upd.CoverURL != nil {
		book.CoverURL = strings.TrimSpace(*upd.CoverURL)
	}
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	if upd.TotalCopies != nil {
		if *upd.TotalCopies < 0 {
			return domain.Book{}, fmt.Errorf("totalCopies must be >= 0: %w", ErrInvalidState)
		}
		adjusted, ok, err := a.store.AdjustCapacity(id, *upd.TotalCopies)
		if err != nil {
			return domain.Book{}, fmt.Errorf("adjust capacity: %w", err)
		}
		if !ok {
			return domain.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
		}
		return adjusted, nil
	}
	return a.GetBook(id)
}

// DeleteBook removes a catalog entry. Ledger records stay as audit trail.
func (a *App) DeleteBook(id string) error {
	ok, err := a.store.DeleteBook(id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if !ok {
		return fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return nil
}

// JoinWaitlist queues a contact address for notification when the book
// next becomes available. Idempotent per address.
func (a *App) JoinWaitlist(bookID, contact string) (domain.Book, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return domain.Book{}, fmt.Errorf("contact address required: %w", ErrInvalidState)
	}
	book, ok, err := a.store.PushWaitlist(bookID, contact)
	if err != nil {
		return domain.Book{}, fmt.Errorf("join waitlist: %w", err)
	}
	if !ok {
		return domain.Book{}, fmt.Errorf("book %s: %w", bookID, ErrNotFound)
	}
	return book, nil
}
