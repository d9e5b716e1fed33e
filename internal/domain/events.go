package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outbox event types published for the loan aggregate.
const (
	EventTypeLoanBorrowed = "loan.borrowed"
	EventTypeLoanReturned = "loan.returned"
)

// AggregateTypeLoan is the aggregate type of loan lifecycle events.
const AggregateTypeLoan = "loan"

// OutboxEvent is a row of the transactional outbox. It is written in the same
// transaction as the state change it describes and later published by the relay.
type OutboxEvent struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	// PartitionKey becomes the Kafka message key. Loan events use the copy ID
	// so all events for one copy land on one partition in order.
	PartitionKey string
	EventType    string
	EventVersion int
	Payload      []byte
	Metadata     []byte
	Attempts     int
	MaxAttempts  int
	LastError    *string
	LockedUntil  *time.Time
	PublishedAt  *time.Time
	CreatedAt    time.Time
}

// LoanBorrowedPayload is the payload of loan.borrowed events.
type LoanBorrowedPayload struct {
	LoanID     uuid.UUID `json:"loan_id"`
	MemberID   uuid.UUID `json:"member_id"`
	CopyID     uuid.UUID `json:"copy_id"`
	BorrowedAt time.Time `json:"borrowed_at"`
	DueAt      time.Time `json:"due_at"`
}

// LoanReturnedPayload is the payload of loan.returned events.
type LoanReturnedPayload struct {
	LoanID     uuid.UUID `json:"loan_id"`
	MemberID   uuid.UUID `json:"member_id"`
	CopyID     uuid.UUID `json:"copy_id"`
	BorrowedAt time.Time `json:"borrowed_at"`
	ReturnedAt time.Time `json:"returned_at"`
}

// NewLoanBorrowedPayload builds the loan.borrowed payload for loan.
func NewLoanBorrowedPayload(loan *Loan) LoanBorrowedPayload {
	return LoanBorrowedPayload{
		LoanID:     loan.ID,
		MemberID:   loan.MemberID,
		CopyID:     loan.CopyID,
		BorrowedAt: loan.BorrowedAt,
		DueAt:      loan.DueAt,
	}
}

// NewLoanReturnedPayload builds the loan.returned payload for a returned loan.
func NewLoanReturnedPayload(loan *Loan) LoanReturnedPayload {
	p := LoanReturnedPayload{
		LoanID:     loan.ID,
		MemberID:   loan.MemberID,
		CopyID:     loan.CopyID,
		BorrowedAt: loan.BorrowedAt,
	}
	if loan.ReturnedAt != nil {
		p.ReturnedAt = *loan.ReturnedAt
	}
	return p
}
