package outbox

import (
	"context"
	"fmt"

	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/observability"
	"github.com/helixir/library-lending-service/internal/repository"
)

// Inserter is the subset of the outbox repository needed by the adapter.
type Inserter interface {
	InsertEvent(ctx context.Context, q repository.DBTX, event *domain.OutboxEvent) error
}

// Adapter stores outbox events through an Inserter.
type Adapter struct {
	repo Inserter
}

// NewAdapter creates a new Adapter wrapping the given Inserter.
func NewAdapter(repo Inserter) *Adapter {
	return &Adapter{repo: repo}
}

// Create inserts an event into the outbox through q.
// A nil q lets the repository use its own handle.
func (a *Adapter) Create(ctx context.Context, q repository.DBTX, event *domain.OutboxEvent) error {
	if err := a.repo.InsertEvent(ctx, q, event); err != nil {
		return fmt.Errorf("outbox adapter: insert event: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var _ repository.LoanEventRecorder = (*Publisher)(nil)

// Publisher combines the Emitter and Adapter. It is installed on the loan
// ledger as its event recorder.
type Publisher struct {
	emitter *Emitter
	adapter *Adapter
}

// NewPublisher creates a new Publisher with the given emitter and adapter.
func NewPublisher(emitter *Emitter, adapter *Adapter) *Publisher {
	return &Publisher{
		emitter: emitter,
		adapter: adapter,
	}
}

// Publish emits an event and inserts it through q.
func (p *Publisher) Publish(ctx context.Context, q repository.DBTX, params EmitParams) error {
	event, err := p.emitter.Emit(params)
	if err != nil {
		return fmt.Errorf("emit event: %w", err)
	}
	if err := p.adapter.Create(ctx, q, event); err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	return nil
}

// LoanBorrowed records a loan.borrowed event in the ledger's transaction.
func (p *Publisher) LoanBorrowed(ctx context.Context, q repository.DBTX, loan *domain.Loan) error {
	rc := observability.RequestContextFromContext(ctx)
	event, err := p.emitter.EmitLoanBorrowed(loan, rc.RequestID, rc.CorrelationID)
	if err != nil {
		return fmt.Errorf("emit loan borrowed: %w", err)
	}
	return p.adapter.Create(ctx, q, event)
}

// LoanReturned records a loan.returned event in the ledger's transaction.
func (p *Publisher) LoanReturned(ctx context.Context, q repository.DBTX, loan *domain.Loan) error {
	rc := observability.RequestContextFromContext(ctx)
	event, err := p.emitter.EmitLoanReturned(loan, rc.RequestID, rc.CorrelationID)
	if err != nil {
		return fmt.Errorf("emit loan returned: %w", err)
	}
	return p.adapter.Create(ctx, q, event)
}
