package app

import (
	"fmt"

	"bookvault/internal/notify"
	"bookvault/pkg/domain"
)

// Intent builders. Bodies follow the BookVault mail templates.

func approvalIntent(rec domain.BorrowRecord, book domain.Book) notify.Intent {
	due := ""
	if rec.DueDate != nil {
		due = rec.DueDate.Format("Mon Jan 2 2006")
	}
	return notify.Intent{
		Kind:    notify.KindApproval,
		To:      rec.UserEmail,
		Subject: fmt.Sprintf("Borrow request approved: %s", book.Title),
		Body: fmt.Sprintf("Hello %s,\n\nYour request to borrow %q has been approved. Due date: %s.\n\nRegards,\nBookVault",
			rec.UserName, book.Title, due),
	}
}

func rejectionIntent(rec domain.BorrowRecord, book domain.Book) notify.Intent {
	return notify.Intent{
		Kind:    notify.KindRejection,
		To:      rec.UserEmail,
		Subject: fmt.Sprintf("Borrow request rejected: %s", book.Title),
		Body: fmt.Sprintf("Hello %s,\n\nYour request to borrow %q was rejected by the admin.\n\nRegards,\nBookVault",
			rec.UserName, book.Title),
	}
}

func returnIntent(rec domain.BorrowRecord, book domain.Book) notify.Intent {
	return notify.Intent{
		Kind:    notify.KindReturn,
		To:      rec.UserEmail,
		Subject: fmt.Sprintf("Book returned: %s", book.Title),
		Body: fmt.Sprintf("Hello %s,\n\nYou returned %q. Fine: %d.\n\nRegards,\nBookVault",
			rec.UserName, book.Title, rec.Fine),
	}
}

func availabilityIntent(contact string, book domain.Book) notify.Intent {
	return notify.Intent{
		Kind:    notify.KindAvailability,
		To:      contact,
		Subject: fmt.Sprintf("Book available: %s", book.Title),
		Body: fmt.Sprintf("Hello,\n\n%q is available again. Request it now before it is borrowed.\n\nRegards,\nBookVault",
			book.Title),
	}
}

func overdueIntent(rec domain.BorrowRecord, book domain.Book, amount, daysLate int64) notify.Intent {
	return notify.Intent{
		Kind:    notify.KindOverdue,
		To:      rec.UserEmail,
		Subject: fmt.Sprintf("Overdue reminder: %s", book.Title),
		Body: fmt.Sprintf("Hello %s,\n\nYour borrowed book %q is %d day(s) overdue. Current fine: %d. Please return it as soon as possible.\n\nRegards,\nBookVault",
			rec.UserName, book.Title, daysLate, amount),
	}
}

func dueSoonIntent(rec domain.BorrowRecord, book domain.Book) notify.Intent {
	due := ""
	if rec.DueDate != nil {
		due = rec.DueDate.Format("Mon Jan 2 2006")
	}
	return notify.Intent{
		Kind:    notify.KindDueSoon,
		To:      rec.UserEmail,
		Subject: fmt.Sprintf("Due reminder: %s", book.Title),
		Body: fmt.Sprintf("Hello %s,\n\nYour borrowed book %q is due on %s. Please return or renew soon to avoid fines.\n\nRegards,\nBookVault",
			rec.UserName, book.Title, due),
	}
}
