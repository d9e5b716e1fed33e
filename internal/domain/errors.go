package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can
// branch with errors.Is.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate ISBN, email, or copy code.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates that the copy already has an active loan.
	ErrConflict = errors.New("copy already on loan")

	// ErrAlreadyReturned indicates a second return of the same loan.
	ErrAlreadyReturned = errors.New("loan already returned")

	// ErrNoCopies indicates that the book has no copies at all.
	ErrNoCopies = errors.New("book has no copies")

	// ErrAllCopiesOnLoan indicates that every copy of the book is on loan.
	ErrAllCopiesOnLoan = errors.New("all copies are currently on loan")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	Field  string
	Value  string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

// Unwrap returns ErrAlreadyExists.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// ActiveLoanConflictError is returned when a copy already has an active loan.
type ActiveLoanConflictError struct {
	CopyID uuid.UUID
}

// Error implements the error interface.
func (e *ActiveLoanConflictError) Error() string {
	return fmt.Sprintf("copy %s already on loan", e.CopyID)
}

// Unwrap returns ErrConflict.
func (e *ActiveLoanConflictError) Unwrap() error {
	return ErrConflict
}

// AlreadyReturnedError is returned when a loan is returned a second time.
type AlreadyReturnedError struct {
	LoanID     uuid.UUID
	ReturnedAt time.Time
}

// Error implements the error interface.
func (e *AlreadyReturnedError) Error() string {
	return fmt.Sprintf("loan %s already returned at %s", e.LoanID, e.ReturnedAt.UTC().Format(time.RFC3339))
}

// Unwrap returns ErrAlreadyReturned.
func (e *AlreadyReturnedError) Unwrap() error {
	return ErrAlreadyReturned
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, field, value string) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, Field: field, Value: value}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewActiveLoanConflictError creates a new ActiveLoanConflictError.
func NewActiveLoanConflictError(copyID uuid.UUID) *ActiveLoanConflictError {
	return &ActiveLoanConflictError{CopyID: copyID}
}

// NewAlreadyReturnedError creates a new AlreadyReturnedError.
func NewAlreadyReturnedError(loanID uuid.UUID, returnedAt time.Time) *AlreadyReturnedError {
	return &AlreadyReturnedError{LoanID: loanID, ReturnedAt: returnedAt}
}
