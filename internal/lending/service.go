// Package lending implements the loan lifecycle: borrowing a specific copy,
// borrowing any free copy of a book, returning, and reading loans.
//
// The service holds no locks. The only guard against two active loans for
// one copy is the ledger's storage-level uniqueness, so concurrent borrows of
// the same copy resolve to one loan and domain.ErrConflict for the rest.
package lending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/observability"
	"github.com/helixir/library-lending-service/internal/repository"
)

// CatalogStore is the part of the catalog the service reads.
type CatalogStore interface {
	GetCopy(ctx context.Context, id uuid.UUID) (*domain.BookCopy, error)
	// ListCopies must order copies by copy code.
	ListCopies(ctx context.Context, bookID uuid.UUID) ([]*domain.BookCopy, error)
}

// MemberStore is the part of the membership store the service reads.
type MemberStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Member, error)
}

// ListLoansParams filters ListLoans.
type ListLoansParams struct {
	MemberID   *uuid.UUID
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Service runs loan operations against the catalog, member, and ledger stores.
type Service struct {
	catalog CatalogStore
	members MemberStore
	ledger  repository.LoanLedger
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used to stamp returns.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records operation outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a lending service.
func NewService(catalog CatalogStore, members MemberStore, ledger repository.LoanLedger, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		members: members,
		ledger:  ledger,
		logger:  logger.With().Str("component", "lending").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Borrow lends a specific copy to a member until dueAt.
//
// Errors: NotFoundError for an unknown member or copy, ActiveLoanConflictError
// when the copy is already on loan, ValidationError when dueAt precedes the
// borrow time.
func (s *Service) Borrow(ctx context.Context, memberID, copyID uuid.UUID, dueAt time.Time) (*domain.Loan, error) {
	start := time.Now()
	loan, err := s.borrow(ctx, memberID, copyID, dueAt)

	logger := s.logger.With().
		Str("member_id", memberID.String()).
		Str("copy_id", copyID.String()).
		Logger()
	s.observeBorrow(logger, observability.BorrowModeByCopy, start, loan, err)
	return loan, err
}

// BorrowByBook lends the first free copy of a book, in copy code order.
//
// Free copies are picked from a snapshot of active loans and then borrowed
// through Borrow, so a copy taken in between surfaces as domain.ErrConflict
// and the caller may retry. A book without copies, including an unknown
// book, yields domain.ErrNoCopies; a book whose copies are all out yields
// domain.ErrAllCopiesOnLoan.
func (s *Service) BorrowByBook(ctx context.Context, memberID, bookID uuid.UUID, dueAt time.Time) (*domain.Loan, error) {
	start := time.Now()
	loan, err := s.borrowByBook(ctx, memberID, bookID, dueAt)

	logger := s.logger.With().
		Str("member_id", memberID.String()).
		Str("book_id", bookID.String()).
		Logger()
	s.observeBorrow(logger, observability.BorrowModeByBook, start, loan, err)
	return loan, err
}

func (s *Service) borrow(ctx context.Context, memberID, copyID uuid.UUID, dueAt time.Time) (*domain.Loan, error) {
	if _, err := s.members.Get(ctx, memberID); err != nil {
		return nil, lookupError(err, domain.EntityMember, memberID)
	}
	if _, err := s.catalog.GetCopy(ctx, copyID); err != nil {
		return nil, lookupError(err, domain.EntityCopy, copyID)
	}

	loan, err := s.ledger.Create(ctx, memberID, copyID, dueAt)
	if err != nil {
		if isExpected(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create loan: %w", err)
	}
	return loan, nil
}

func (s *Service) borrowByBook(ctx context.Context, memberID, bookID uuid.UUID, dueAt time.Time) (*domain.Loan, error) {
	if _, err := s.members.Get(ctx, memberID); err != nil {
		return nil, lookupError(err, domain.EntityMember, memberID)
	}

	copies, err := s.catalog.ListCopies(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list copies: %w", err)
	}
	if len(copies) == 0 {
		return nil, domain.ErrNoCopies
	}

	active, err := s.ledger.ActiveCopyIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read active loans: %w", err)
	}

	for _, c := range copies {
		if _, onLoan := active[c.ID]; !onLoan {
			return s.borrow(ctx, memberID, c.ID, dueAt)
		}
	}
	return nil, domain.ErrAllCopiesOnLoan
}

// ReturnLoan closes an active loan at the current time. A second return of
// the same loan yields *domain.AlreadyReturnedError and leaves the stored
// return time unchanged.
func (s *Service) ReturnLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	start := time.Now()
	logger := s.logger.With().Str("loan_id", loanID.String()).Logger()

	loan, err := s.returnLoan(ctx, loanID)
	if err != nil {
		reason := rejectionReason(err)
		s.metrics.RecordReturnRejected(reason, time.Since(start))
		logOutcome(logger, reason, err).Msg("return rejected")
		return nil, err
	}

	s.metrics.RecordReturn(loan.Duration(), time.Since(start))
	loanLogger := observability.WithLoanContext(s.logger, loan.ID, loan.MemberID, loan.CopyID)
	loanLogger.Info().
		Str("outcome", "ok").
		Time("returned_at", *loan.ReturnedAt).
		Bool("overdue", loan.ReturnedAt.After(loan.DueAt)).
		Msg("loan returned")
	return loan, nil
}

func (s *Service) returnLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.ledger.Get(ctx, loanID)
	if err != nil {
		return nil, lookupError(err, domain.EntityLoan, loanID)
	}
	// Concurrent returns of the same loan can both pass this check. The later
	// MarkReturned overwrites returned_at and records a second loan.returned
	// event; the ledger does not guard against it.
	if loan.ReturnedAt != nil {
		return nil, domain.NewAlreadyReturnedError(loan.ID, *loan.ReturnedAt)
	}

	returned, err := s.ledger.MarkReturned(ctx, loan, s.now().UTC())
	if err != nil {
		if isExpected(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to mark loan returned: %w", err)
	}
	return returned, nil
}

// GetLoan returns a loan by id.
func (s *Service) GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.ledger.Get(ctx, loanID)
	if err != nil {
		return nil, lookupError(err, domain.EntityLoan, loanID)
	}
	return loan, nil
}

// ListLoans returns loans with member, copy, and book details, newest first.
func (s *Service) ListLoans(ctx context.Context, params ListLoansParams) ([]*domain.LoanDetails, error) {
	loans, err := s.ledger.List(ctx, repository.LoanFilter{
		MemberID:   params.MemberID,
		ActiveOnly: params.ActiveOnly,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}

// observeBorrow records a borrow outcome. logger carries the request's
// identifiers and is used for rejections; successes log the loan's own.
func (s *Service) observeBorrow(logger zerolog.Logger, mode string, start time.Time, loan *domain.Loan, err error) {
	if err != nil {
		reason := rejectionReason(err)
		s.metrics.RecordBorrowRejected(mode, reason, time.Since(start))
		logOutcome(logger, reason, err).Str("mode", mode).Msg("borrow rejected")
		return
	}

	s.metrics.RecordBorrow(mode, time.Since(start))
	loanLogger := observability.WithLoanContext(s.logger, loan.ID, loan.MemberID, loan.CopyID)
	loanLogger.Info().
		Str("outcome", "ok").
		Str("mode", mode).
		Time("due_at", loan.DueAt).
		Msg("loan created")
}

// lookupError keeps not-found errors typed for entity and wraps the rest.
func lookupError(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewNotFoundError(entity, id.String())
	}
	return fmt.Errorf("failed to load %s: %w", entity, err)
}

// isExpected reports whether err belongs to the caller-facing taxonomy.
func isExpected(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrAlreadyReturned)
}

// rejectionReason labels a failed operation for metrics and logs.
func rejectionReason(err error) string {
	var nf *domain.NotFoundError
	switch {
	case errors.As(err, &nf):
		return nf.Entity + "_not_found"
	case errors.Is(err, domain.ErrConflict):
		return "copy_on_loan"
	case errors.Is(err, domain.ErrAlreadyReturned):
		return "already_returned"
	case errors.Is(err, domain.ErrNoCopies):
		return "no_copies"
	case errors.Is(err, domain.ErrAllCopiesOnLoan):
		return "all_copies_on_loan"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_request"
	default:
		return "internal"
	}
}

func logOutcome(logger zerolog.Logger, reason string, err error) *zerolog.Event {
	if reason == "internal" {
		return logger.Error().Err(err).Str("outcome", reason)
	}
	return logger.Info().Str("outcome", reason).AnErr("reason", err)
}
