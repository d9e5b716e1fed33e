package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/library-lending-service/internal/domain"
)

// LoanLedger is the authoritative record of loans. It enforces the loan
// invariants at the storage boundary:
//
//   - due_at >= borrowed_at
//   - returned_at >= borrowed_at when set
//   - at most one loan per copy with returned_at unset
//
// The last one is enforced by a partial unique index, so concurrent creates
// for the same copy leave exactly one winner even across processes.
type LoanLedger interface {
	// Create records a new active loan borrowed now.
	// Returns *domain.ActiveLoanConflictError when the copy already has an
	// active loan and *domain.ValidationError when dueAt is before now.
	Create(ctx context.Context, memberID, copyID uuid.UUID, dueAt time.Time) (*domain.Loan, error)

	// Get returns domain.ErrNotFound when no loan has the id.
	Get(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// List returns loans with member, copy, and book details, newest first.
	List(ctx context.Context, filter LoanFilter) ([]*domain.LoanDetails, error)

	// ActiveCopyIDs returns the copies that currently have an active loan,
	// read in a single statement.
	ActiveCopyIDs(ctx context.Context) (map[uuid.UUID]struct{}, error)

	// MarkReturned sets returned_at on the loan unconditionally. Callers are
	// responsible for rejecting loans that are already returned.
	MarkReturned(ctx context.Context, loan *domain.Loan, returnedAt time.Time) (*domain.Loan, error)
}

// LoanFilter selects loans for List.
type LoanFilter struct {
	MemberID   *uuid.UUID
	ActiveOnly bool
	Limit      int
	Offset     int
}

// LoanEventRecorder writes loan lifecycle events through q, which is the
// transaction holding the loan write.
type LoanEventRecorder interface {
	LoanBorrowed(ctx context.Context, q DBTX, loan *domain.Loan) error
	LoanReturned(ctx context.Context, q DBTX, loan *domain.Loan) error
}
