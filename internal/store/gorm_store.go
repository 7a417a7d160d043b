package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookvault/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&BookModel{}, &BorrowModel{}, &SettingsModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveBook creates or updates a book.
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "author", "category", "isbn", "cover_url", "updated_at"}),
	}).Create(&model).Error
}

// GetBook returns a book by ID.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// GetBooks returns the subset of ids that exist, keyed by ID.
func (s *GormStore) GetBooks(ids []string) (map[string]domain.Book, error) {
	res := make(map[string]domain.Book, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	var models []BookModel
	if err := s.db.Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		res[m.ID] = bookFromModel(m)
	}
	return res, nil
}

// ListBooks returns books matching an optional free-text query and category.
func (s *GormStore) ListBooks(query, category string) ([]domain.Book, error) {
	q := s.db.Model(&BookModel{}).Order("created_at DESC")
	if query != "" {
		pattern := "%" + query + "%"
		q = q.Where("title ILIKE ? OR author ILIKE ? OR isbn ILIKE ?", pattern, pattern, pattern)
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var models []BookModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// DeleteBook removes a book. Borrow records referencing it are kept as audit trail.
func (s *GormStore) DeleteBook(id string) (bool, error) {
	res := s.db.Delete(&BookModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReserveCopy atomically decrements availability. Returns false when no
// copy is available; the conditional update is the per-book serialization
// point, so concurrent reservations cannot drive the count negative.
func (s *GormStore) ReserveCopy(bookID string) (bool, error) {
	res := s.db.Model(&BookModel{}).
		Where("id = ? AND available_copies >= 1", bookID).
		Updates(map[string]any{
			"available_copies": gorm.Expr("available_copies - 1"),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseCopy increments availability, clamped at total_copies.
func (s *GormStore) ReleaseCopy(bookID string) error {
	return s.db.Model(&BookModel{}).
		Where("id = ?", bookID).
		Updates(map[string]any{
			"available_copies": gorm.Expr("LEAST(total_copies, available_copies + 1)"),
			"updated_at":       time.Now().UTC(),
		}).Error
}

// AdjustCapacity sets a new total and shifts availability by the same
// delta, clamped at 0. Both columns move in one statement so concurrent
// reservations observe a consistent pair.
func (s *GormStore) AdjustCapacity(bookID string, newTotal int) (domain.Book, bool, error) {
	res := s.db.Model(&BookModel{}).
		Where("id = ?", bookID).
		Updates(map[string]any{
			"available_copies": gorm.Expr("GREATEST(0, available_copies + ? - total_copies)", newTotal),
			"total_copies":     newTotal,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.Book{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Book{}, false, nil
	}
	return s.GetBook(bookID)
}

// PushWaitlist appends a user to the book's waitlist unless already queued.
func (s *GormStore) PushWaitlist(bookID, userID string) (domain.Book, bool, error) {
	var out domain.Book
	found := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model BookModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true
		for _, id := range model.Waitlist {
			if id == userID {
				out = bookFromModel(model)
				return nil
			}
		}
		model.Waitlist = append(model.Waitlist, userID)
		model.UpdatedAt = time.Now().UTC()
		if err := tx.Model(&BookModel{}).Where("id = ?", bookID).
			Updates(map[string]any{"waitlist": model.Waitlist, "updated_at": model.UpdatedAt}).Error; err != nil {
			return err
		}
		out = bookFromModel(model)
		return nil
	})
	return out, found, err
}

// PopWaitlist removes and returns the head of the book's waitlist.
func (s *GormStore) PopWaitlist(bookID string) (string, bool, error) {
	var head string
	popped := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model BookModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if len(model.Waitlist) == 0 {
			return nil
		}
		head = model.Waitlist[0]
		popped = true
		return tx.Model(&BookModel{}).Where("id = ?", bookID).
			Updates(map[string]any{"waitlist": model.Waitlist[1:], "updated_at": time.Now().UTC()}).Error
	})
	return head, popped, err
}

// CreateBorrow inserts a pending record after the duplicate-active and
// per-user-limit guards pass. The check-then-insert runs under a per-user
// advisory lock so two concurrent requests cannot both slip past a guard.
func (s *GormStore) CreateBorrow(rec domain.BorrowRecord, maxActivePerUser int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", rec.UserID).Error; err != nil {
			return err
		}
		activeStatuses := []string{string(domain.StatusPending), string(domain.StatusBorrowed)}
		var dup int64
		if err := tx.Model(&BorrowModel{}).
			Where("user_id = ? AND book_id = ? AND status IN ?", rec.UserID, rec.BookID, activeStatuses).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return ErrDuplicateActive
		}
		if maxActivePerUser > 0 {
			var active int64
			if err := tx.Model(&BorrowModel{}).
				Where("user_id = ? AND status IN ?", rec.UserID, activeStatuses).
				Count(&active).Error; err != nil {
				return err
			}
			if active >= int64(maxActivePerUser) {
				return ErrUserAtLimit
			}
		}
		model := borrowToModel(rec)
		return tx.Create(&model).Error
	})
}

// GetBorrow returns a borrow record by ID.
func (s *GormStore) GetBorrow(id string) (domain.BorrowRecord, bool, error) {
	var model BorrowModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.BorrowRecord{}, false, nil
		}
		return domain.BorrowRecord{}, false, err
	}
	return borrowFromModel(model), true, nil
}

// TransitionBorrow writes the record's post-transition state, guarded on
// the expected current status. Returns false when the record was not in
// the expected state, which is how a lost approve/return race surfaces.
func (s *GormStore) TransitionBorrow(rec domain.BorrowRecord, from domain.BorrowStatus) (bool, error) {
	res := s.db.Model(&BorrowModel{}).
		Where("id = ? AND status = ?", rec.ID, string(from)).
		Updates(map[string]any{
			"status":      string(rec.Status),
			"approved_at": rec.ApprovedAt,
			"rejected_at": rec.RejectedAt,
			"borrow_date": rec.BorrowDate,
			"due_date":    rec.DueDate,
			"return_date": rec.ReturnDate,
			"fine":        rec.Fine,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkOverdueNotified persists the running fine estimate and the reminder
// timestamp. The status guard keeps a concurrent return from being
// overwritten by a stale sweep.
func (s *GormStore) MarkOverdueNotified(id string, fine int64, at time.Time) (bool, error) {
	res := s.db.Model(&BorrowModel{}).
		Where("id = ? AND status = ?", id, string(domain.StatusBorrowed)).
		Updates(map[string]any{
			"fine":                fine,
			"overdue_notified_at": at,
			"updated_at":          at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListBorrowsByStatus returns records in one status, newest request first.
func (s *GormStore) ListBorrowsByStatus(status domain.BorrowStatus) ([]domain.BorrowRecord, error) {
	var models []BorrowModel
	if err := s.db.Where("status = ?", string(status)).Order("requested_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return borrowsFromModels(models), nil
}

// ListBorrowsByUser returns a user's full borrow history, newest first.
func (s *GormStore) ListBorrowsByUser(userID string) ([]domain.BorrowRecord, error) {
	var models []BorrowModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return borrowsFromModels(models), nil
}

// ListBorrows returns a filtered page of records plus the total match count.
func (s *GormStore) ListBorrows(filter BorrowFilter) ([]domain.BorrowRecord, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}

	q := s.db.Model(&BorrowModel{}).
		Joins("LEFT JOIN books ON books.id = borrow_records.book_id")
	if filter.Status != "" {
		q = q.Where("borrow_records.status = ?", string(filter.Status))
	}
	if filter.UserName != "" {
		q = q.Where("borrow_records.user_name ILIKE ?", "%"+filter.UserName+"%")
	}
	if filter.BookTitle != "" {
		q = q.Where("books.title ILIKE ?", "%"+filter.BookTitle+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []BorrowModel
	if err := q.Select("borrow_records.*").
		Order("borrow_records.created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return borrowsFromModels(models), total, nil
}

// ListOverdue returns borrowed records past their due date at asOf.
func (s *GormStore) ListOverdue(asOf time.Time) ([]domain.BorrowRecord, error) {
	var models []BorrowModel
	if err := s.db.
		Where("status = ? AND due_date < ?", string(domain.StatusBorrowed), asOf).
		Order("due_date ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return borrowsFromModels(models), nil
}

// ListDueSoon returns borrowed records due within (asOf, until].
func (s *GormStore) ListDueSoon(asOf, until time.Time) ([]domain.BorrowRecord, error) {
	var models []BorrowModel
	if err := s.db.
		Where("status = ? AND due_date >= ? AND due_date <= ?", string(domain.StatusBorrowed), asOf, until).
		Order("due_date ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return borrowsFromModels(models), nil
}

// GetSettings returns the singleton settings row if present.
func (s *GormStore) GetSettings() (domain.Settings, bool, error) {
	var model SettingsModel
	if err := s.db.First(&model, "id = ?", settingsRowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Settings{}, false, nil
		}
		return domain.Settings{}, false, err
	}
	return domain.Settings{
		MaxBooksPerUser: model.MaxBooksPerUser,
		LoanPeriodDays:  model.LoanPeriodDays,
		FinePerDay:      model.FinePerDay,
		UpdatedAt:       model.UpdatedAt,
	}, true, nil
}

// SaveSettings upserts the singleton settings row.
func (s *GormStore) SaveSettings(cfg domain.Settings) error {
	model := SettingsModel{
		ID:              settingsRowID,
		MaxBooksPerUser: cfg.MaxBooksPerUser,
		LoanPeriodDays:  cfg.LoanPeriodDays,
		FinePerDay:      cfg.FinePerDay,
		UpdatedAt:       time.Now().UTC(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"max_books_per_user", "loan_period_days", "fine_per_day", "updated_at"}),
	}).Create(&model).Error
}

func borrowsFromModels(models []BorrowModel) []domain.BorrowRecord {
	res := make([]domain.BorrowRecord, 0, len(models))
	for _, m := range models {
		res = append(res, borrowFromModel(m))
	}
	return res
}
