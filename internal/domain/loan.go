package domain

import (
	"time"

	"github.com/google/uuid"
)

// Loan records one borrowing of one copy by one member.
//
// A loan is created active (ReturnedAt nil) and is closed exactly once by
// setting ReturnedAt. Loans are never deleted and MemberID/CopyID never change.
// The store guarantees DueAt >= BorrowedAt, ReturnedAt >= BorrowedAt, and at
// most one active loan per copy.
type Loan struct {
	ID         uuid.UUID
	MemberID   uuid.UUID
	CopyID     uuid.UUID
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsActive reports whether the loan has not been returned.
func (l *Loan) IsActive() bool {
	return l.ReturnedAt == nil
}

// IsOverdue reports whether an active loan is past its due time at now.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.IsActive() && now.After(l.DueAt)
}

// Duration returns how long the copy was out. Zero for active loans.
func (l *Loan) Duration() time.Duration {
	if l.ReturnedAt == nil {
		return 0
	}
	return l.ReturnedAt.Sub(l.BorrowedAt)
}

// LoanDetails is the listing view of a loan joined with its member, copy and book.
type LoanDetails struct {
	Loan
	MemberName string
	CopyCode   string
	BookID     uuid.UUID
	BookTitle  string
	BookAuthor string
}
