// Package fine computes overdue fines from elapsed time past the due date.
package fine

import "time"

// Day is the accrual unit. Lateness is measured as elapsed time, not
// calendar-day boundaries: one millisecond past the due date already
// counts as a full day.
const Day = 24 * time.Hour

// Accrued returns the fine owed at asOf for a loan due at dueDate.
// Returns 0 when the loan is not yet overdue. Pure and total.
func Accrued(dueDate, asOf time.Time, perDay int64) int64 {
	if !asOf.After(dueDate) {
		return 0
	}
	return DaysLate(dueDate, asOf) * perDay
}

// DaysLate returns ceil(elapsed / 24h) for an overdue loan, 0 otherwise.
func DaysLate(dueDate, asOf time.Time) int64 {
	elapsed := asOf.Sub(dueDate)
	if elapsed <= 0 {
		return 0
	}
	days := int64(elapsed / Day)
	if elapsed%Day != 0 {
		days++
	}
	return days
}
