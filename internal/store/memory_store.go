package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"bookvault/pkg/domain"
)

// MemoryStore keeps catalog and ledger in-process. A single mutex covers
// every operation, which makes the cross-entity guards trivially atomic.
// Used by tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	books    map[string]domain.Book
	borrows  map[string]domain.BorrowRecord
	order    []string // borrow insertion order
	settings *domain.Settings
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:   make(map[string]domain.Book),
		borrows: make(map[string]domain.BorrowRecord),
	}
}

func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.books[b.ID]; ok {
		// Capacity and waitlist move only through their dedicated operations.
		b.TotalCopies = existing.TotalCopies
		b.AvailableCopies = existing.AvailableCopies
		b.Waitlist = existing.Waitlist
		b.CreatedAt = existing.CreatedAt
	}
	b.UpdatedAt = time.Now().UTC()
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	return b, ok, nil
}

func (m *MemoryStore) GetBooks(ids []string) (map[string]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make(map[string]domain.Book, len(ids))
	for _, id := range ids {
		if b, ok := m.books[id]; ok {
			res[id] = b
		}
	}
	return res, nil
}

func (m *MemoryStore) ListBooks(query, category string) ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Book, 0, len(m.books))
	q := strings.ToLower(query)
	for _, b := range m.books {
		if category != "" && b.Category != category {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(b.Title), q) &&
			!strings.Contains(strings.ToLower(b.Author), q) &&
			!strings.Contains(strings.ToLower(b.ISBN), q) {
			continue
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteBook(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return false, nil
	}
	delete(m.books, id)
	return true, nil
}

func (m *MemoryStore) ReserveCopy(bookID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok || b.AvailableCopies < 1 {
		return false, nil
	}
	b.AvailableCopies--
	b.UpdatedAt = time.Now().UTC()
	m.books[bookID] = b
	return true, nil
}

func (m *MemoryStore) ReleaseCopy(bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return nil
	}
	if b.AvailableCopies < b.TotalCopies {
		b.AvailableCopies++
	}
	b.UpdatedAt = time.Now().UTC()
	m.books[bookID] = b
	return nil
}

func (m *MemoryStore) AdjustCapacity(bookID string, newTotal int) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return domain.Book{}, false, nil
	}
	delta := newTotal - b.TotalCopies
	b.TotalCopies = newTotal
	b.AvailableCopies += delta
	if b.AvailableCopies < 0 {
		b.AvailableCopies = 0
	}
	b.UpdatedAt = time.Now().UTC()
	m.books[bookID] = b
	return b, true, nil
}

func (m *MemoryStore) PushWaitlist(bookID, userID string) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return domain.Book{}, false, nil
	}
	for _, id := range b.Waitlist {
		if id == userID {
			return b, true, nil
		}
	}
	b.Waitlist = append(b.Waitlist, userID)
	b.UpdatedAt = time.Now().UTC()
	m.books[bookID] = b
	return b, true, nil
}

func (m *MemoryStore) PopWaitlist(bookID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok || len(b.Waitlist) == 0 {
		return "", false, nil
	}
	head := b.Waitlist[0]
	b.Waitlist = append([]string{}, b.Waitlist[1:]...)
	b.UpdatedAt = time.Now().UTC()
	m.books[bookID] = b
	return head, true, nil
}

func (m *MemoryStore) CreateBorrow(rec domain.BorrowRecord, maxActivePerUser int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := 0
	for _, r := range m.borrows {
		if r.UserID != rec.UserID || !r.Status.Active() {
			continue
		}
		if r.BookID == rec.BookID {
			return ErrDuplicateActive
		}
		active++
	}
	if maxActivePerUser > 0 && active >= maxActivePerUser {
		return ErrUserAtLimit
	}
	m.borrows[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *MemoryStore) GetBorrow(id string) (domain.BorrowRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.borrows[id]
	return r, ok, nil
}

func (m *MemoryStore) TransitionBorrow(rec domain.BorrowRecord, from domain.BorrowStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.borrows[rec.ID]
	if !ok || current.Status != from {
		return false, nil
	}
	rec.UpdatedAt = time.Now().UTC()
	m.borrows[rec.ID] = rec
	return true, nil
}

func (m *MemoryStore) MarkOverdueNotified(id string, fineAmount int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.borrows[id]
	if !ok || r.Status != domain.StatusBorrowed {
		return false, nil
	}
	r.Fine = fineAmount
	notified := at
	r.OverdueNotifiedAt = &notified
	r.UpdatedAt = at
	m.borrows[id] = r
	return true, nil
}

func (m *MemoryStore) ListBorrowsByStatus(status domain.BorrowStatus) ([]domain.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.collect(func(r domain.BorrowRecord) bool { return r.Status == status })
	sort.Slice(res, func(i, j int) bool { return res[i].RequestedAt.After(res[j].RequestedAt) })
	return res, nil
}

func (m *MemoryStore) ListBorrowsByUser(userID string) ([]domain.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.collect(func(r domain.BorrowRecord) bool { return r.UserID == userID })
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) ListBorrows(filter BorrowFilter) ([]domain.BorrowRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userName := strings.ToLower(filter.UserName)
	bookTitle := strings.ToLower(filter.BookTitle)
	res := m.collect(func(r domain.BorrowRecord) bool {
		if filter.Status != "" && r.Status != filter.Status {
			return false
		}
		if userName != "" && !strings.Contains(strings.ToLower(r.UserName), userName) {
			return false
		}
		if bookTitle != "" {
			b, ok := m.books[r.BookID]
			if !ok || !strings.Contains(strings.ToLower(b.Title), bookTitle) {
				return false
			}
		}
		return true
	})
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })

	total := int64(len(res))
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(res) {
		return []domain.BorrowRecord{}, total, nil
	}
	end := start + limit
	if end > len(res) {
		end = len(res)
	}
	return res[start:end], total, nil
}

func (m *MemoryStore) ListOverdue(asOf time.Time) ([]domain.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.collect(func(r domain.BorrowRecord) bool {
		return r.Status == domain.StatusBorrowed && r.DueDate != nil && r.DueDate.Before(asOf)
	})
	sort.Slice(res, func(i, j int) bool { return res[i].DueDate.Before(*res[j].DueDate) })
	return res, nil
}

func (m *MemoryStore) ListDueSoon(asOf, until time.Time) ([]domain.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.collect(func(r domain.BorrowRecord) bool {
		return r.Status == domain.StatusBorrowed && r.DueDate != nil &&
			!r.DueDate.Before(asOf) && !r.DueDate.After(until)
	})
	sort.Slice(res, func(i, j int) bool { return res[i].DueDate.Before(*res[j].DueDate) })
	return res, nil
}

func (m *MemoryStore) GetSettings() (domain.Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return domain.Settings{}, false, nil
	}
	return *m.settings, true, nil
}

func (m *MemoryStore) SaveSettings(cfg domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.UpdatedAt = time.Now().UTC()
	m.settings = &cfg
	return nil
}

// collect returns matching borrows in insertion order. Callers hold the lock.
func (m *MemoryStore) collect(match func(domain.BorrowRecord) bool) []domain.BorrowRecord {
	res := make([]domain.BorrowRecord, 0, len(m.order))
	for _, id := range m.order {
		r, ok := m.borrows[id]
		if ok && match(r) {
			res = append(res, r)
		}
	}
	return res
}
