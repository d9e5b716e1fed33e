package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/library-lending-service/internal/database"
	"github.com/helixir/library-lending-service/internal/domain"
)

// Compile-time interface verification.
var _ LoanLedger = (*PgLoanLedger)(nil)

const loanColumns = `id, member_id, copy_id, borrowed_at, due_at, returned_at, created_at, updated_at`

// timestampPrecision matches timestamptz storage, so a loan returned from a
// write equals the same loan read back.
const timestampPrecision = time.Microsecond

// PgLoanLedger is a PostgreSQL implementation of LoanLedger.
type PgLoanLedger struct {
	db     DBTX
	events LoanEventRecorder
	logger zerolog.Logger
	now    func() time.Time
}

// LedgerOption configures a PgLoanLedger.
type LedgerOption func(*PgLoanLedger)

// WithEventRecorder writes loan events in the same transaction as each loan write.
func WithEventRecorder(r LoanEventRecorder) LedgerOption {
	return func(l *PgLoanLedger) { l.events = r }
}

// WithLedgerLogger sets the logger used for transaction diagnostics.
func WithLedgerLogger(logger zerolog.Logger) LedgerOption {
	return func(l *PgLoanLedger) { l.logger = logger.With().Str("component", "loan_ledger").Logger() }
}

// WithLedgerClock overrides the clock that stamps borrowed_at.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *PgLoanLedger) { l.now = now }
}

// NewPgLoanLedger creates a new PostgreSQL loan ledger.
func NewPgLoanLedger(db DBTX, opts ...LedgerOption) *PgLoanLedger {
	l := &PgLoanLedger{
		db:     db,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create records a new active loan.
func (l *PgLoanLedger) Create(ctx context.Context, memberID, copyID uuid.UUID, dueAt time.Time) (*domain.Loan, error) {
	now := l.now().UTC().Truncate(timestampPrecision)
	dueAt = dueAt.UTC().Truncate(timestampPrecision)
	if dueAt.Before(now) {
		return nil, domain.NewValidationError("due_at", "must not be before borrowed_at")
	}

	loan := &domain.Loan{
		ID:         uuid.New(),
		MemberID:   memberID,
		CopyID:     copyID,
		BorrowedAt: now,
		DueAt:      dueAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query := `
		INSERT INTO loans (id, member_id, copy_id, borrowed_at, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	err := l.inTx(ctx, func(q DBTX) error {
		if _, err := q.Exec(ctx, query,
			loan.ID, loan.MemberID, loan.CopyID, loan.BorrowedAt, loan.DueAt, loan.CreatedAt, loan.UpdatedAt,
		); err != nil {
			return classifyLoanWriteError(err, loan, "failed to create loan")
		}
		if l.events != nil {
			if err := l.events.LoanBorrowed(ctx, q, loan); err != nil {
				return fmt.Errorf("failed to record loan borrowed event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Get retrieves a loan by ID.
func (l *PgLoanLedger) Get(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	loan, err := scanLoan(l.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityLoan, id.String())
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// List retrieves loans joined with member, copy, and book details.
func (l *PgLoanLedger) List(ctx context.Context, filter LoanFilter) ([]*domain.LoanDetails, error) {
	query, args, err := buildLoanListQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build loan list query: %w", err)
	}

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	loans := make([]*domain.LoanDetails, 0)
	for rows.Next() {
		var d domain.LoanDetails
		if err := rows.Scan(
			&d.ID, &d.MemberID, &d.CopyID, &d.BorrowedAt, &d.DueAt, &d.ReturnedAt, &d.CreatedAt, &d.UpdatedAt,
			&d.MemberName, &d.CopyCode, &d.BookID, &d.BookTitle, &d.BookAuthor,
		); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating loans: %w", err)
	}
	return loans, nil
}

// ActiveCopyIDs returns the set of copies with an unreturned loan.
func (l *PgLoanLedger) ActiveCopyIDs(ctx context.Context) (map[uuid.UUID]struct{}, error) {
	rows, err := l.db.Query(ctx, `SELECT copy_id FROM loans WHERE returned_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active loans: %w", err)
	}
	defer rows.Close()

	active := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var copyID uuid.UUID
		if err := rows.Scan(&copyID); err != nil {
			return nil, fmt.Errorf("failed to scan active copy id: %w", err)
		}
		active[copyID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active loans: %w", err)
	}
	return active, nil
}

// MarkReturned sets returned_at for the loan.
func (l *PgLoanLedger) MarkReturned(ctx context.Context, loan *domain.Loan, returnedAt time.Time) (*domain.Loan, error) {
	if loan == nil {
		return nil, domain.NewValidationError("loan", "loan cannot be nil")
	}
	returnedAt = returnedAt.UTC().Truncate(timestampPrecision)
	if returnedAt.Before(loan.BorrowedAt) {
		return nil, domain.NewValidationError("returned_at", "must not be before borrowed_at")
	}

	query := `
		UPDATE loans
		SET returned_at = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + loanColumns

	var updated *domain.Loan
	err := l.inTx(ctx, func(q DBTX) error {
		var err error
		updated, err = scanLoan(q.QueryRow(ctx, query, loan.ID, returnedAt, l.now().UTC().Truncate(timestampPrecision)))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NewNotFoundError(domain.EntityLoan, loan.ID.String())
			}
			return classifyLoanWriteError(err, loan, "failed to mark loan returned")
		}
		if l.events != nil {
			if err := l.events.LoanReturned(ctx, q, updated); err != nil {
				return fmt.Errorf("failed to record loan returned event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// inTx runs fn in a transaction when an event recorder needs the loan write
// and the event write to commit together. Without a recorder, or when the
// handle cannot begin a transaction, fn runs directly on the handle.
func (l *PgLoanLedger) inTx(ctx context.Context, fn func(q DBTX) error) error {
	if l.events == nil {
		return fn(l.db)
	}
	beginner, ok := l.db.(database.TxBeginner)
	if !ok {
		return fn(l.db)
	}
	return database.RunInTx(ctx, beginner, l.logger, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// classifyLoanWriteError maps constraint violations raised by a loan write
// to domain errors. Anything unrecognized is wrapped with msg.
func classifyLoanWriteError(err error, loan *domain.Loan, msg string) error {
	pgErr, ok := asPgError(err)
	if !ok {
		return fmt.Errorf("%s: %w", msg, err)
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == constraintActiveCopyLoan {
			return domain.NewActiveLoanConflictError(loan.CopyID)
		}
	case pgCheckViolation:
		switch pgErr.ConstraintName {
		case constraintLoanDueAfter:
			return domain.NewValidationError("due_at", "must not be before borrowed_at")
		case constraintLoanReturnedAfter:
			return domain.NewValidationError("returned_at", "must not be before borrowed_at")
		}
	case pgForeignKeyViolation:
		switch pgErr.ConstraintName {
		case constraintLoanMemberFK:
			return domain.NewNotFoundError(domain.EntityMember, loan.MemberID.String())
		case constraintLoanCopyFK:
			return domain.NewNotFoundError(domain.EntityCopy, loan.CopyID.String())
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// buildLoanListQuery renders the loan listing with prepared placeholders.
func buildLoanListQuery(filter LoanFilter) (string, []interface{}, error) {
	applyPaginationDefaults(&filter.Limit, &filter.Offset)

	ds := goqu.Dialect("postgres").
		From(goqu.T("loans").As("l")).
		Join(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("l.member_id")))).
		Join(goqu.T("book_copies").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("l.copy_id")))).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("c.book_id")))).
		Select(
			goqu.I("l.id"), goqu.I("l.member_id"), goqu.I("l.copy_id"),
			goqu.I("l.borrowed_at"), goqu.I("l.due_at"), goqu.I("l.returned_at"),
			goqu.I("l.created_at"), goqu.I("l.updated_at"),
			goqu.I("m.name"), goqu.I("c.copy_code"),
			goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.author"),
		).
		Order(goqu.I("l.borrowed_at").Desc(), goqu.I("l.id").Asc()).
		Limit(uint(filter.Limit)).
		Offset(uint(filter.Offset)).
		Prepared(true)

	if filter.MemberID != nil {
		ds = ds.Where(goqu.I("l.member_id").Eq(filter.MemberID.String()))
	}
	if filter.ActiveOnly {
		ds = ds.Where(goqu.I("l.returned_at").IsNull())
	}

	return ds.ToSQL()
}

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var loan domain.Loan
	if err := row.Scan(
		&loan.ID, &loan.MemberID, &loan.CopyID, &loan.BorrowedAt, &loan.DueAt, &loan.ReturnedAt,
		&loan.CreatedAt, &loan.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &loan, nil
}
