// Package repository provides the PostgreSQL stores of the lending service:
// the catalog (books and copies), members, the loan ledger, and the outbox.
//
// # Transactions
//
// Every store is constructed over a DBTX, which may be the pool or a pgx.Tx.
// Stores never hold a session of their own; callers that need several writes
// in one atomic unit pass a transaction:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    members := repository.NewPgMemberRepository(tx)
//	    return members.Create(ctx, member)
//	})
//
// The loan ledger opens its own transaction when it has an event recorder and
// its handle can begin one, so the loan row and its outbox row commit together.
//
// # Error Handling
//
// Postgres failures are classified by SQLSTATE and constraint name, never by
// message text:
//
//   - unique violation on ix_loans_active_copy: *domain.ActiveLoanConflictError
//   - unique violation on isbn, email, copy_code: *domain.AlreadyExistsError
//   - check violation on loan timestamps: *domain.ValidationError
//   - foreign key violation: *domain.NotFoundError for the referenced entity
//
// Everything else is wrapped with fmt.Errorf and %w.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/library-lending-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
	pgCheckViolation      = "23514" // check_violation
)

// Constraint names from migrations/.
const (
	constraintActiveCopyLoan    = "ix_loans_active_copy"
	constraintLoanDueAfter      = "ck_loans_due_after_borrowed"
	constraintLoanReturnedAfter = "ck_loans_returned_after_borrowed"
	constraintLoanMemberFK      = "loans_member_id_fkey"
	constraintLoanCopyFK        = "loans_copy_id_fkey"
	constraintCopyBookFK        = "book_copies_book_id_fkey"
	constraintBookISBN          = "uq_books_isbn"
	constraintCopyCode          = "uq_book_copies_copy_code"
	constraintMemberEmail       = "uq_members_email"
)

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// applyPaginationDefaults normalizes limit and offset values for filter queries.
// It clamps limit to [1, maxFilterLimit] and ensures offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}

// asPgError returns the *pgconn.PgError wrapped in err, if any.
func asPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// isPgViolation reports whether err is a Postgres error with the given code
// raised by the named constraint.
func isPgViolation(err error, code, constraint string) bool {
	pgErr, ok := asPgError(err)
	return ok && pgErr.Code == code && pgErr.ConstraintName == constraint
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
