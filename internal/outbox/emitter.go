package outbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/helixir/library-lending-service/internal/domain"
)

const (
	// defaultMaxAttempts is the default maximum number of delivery attempts for outbox events.
	defaultMaxAttempts = 5

	// eventVersion is the schema version of the loan event payloads.
	eventVersion = 1
)

// EmitterConfig configures the Emitter with service context.
type EmitterConfig struct {
	// ServiceName identifies the source service in event metadata.
	ServiceName string
	// MaxAttempts caps delivery attempts per event.
	MaxAttempts int
}

// EmitParams contains the parameters for emitting an event.
type EmitParams struct {
	// AggregateID is the loan ID.
	AggregateID uuid.UUID
	// PartitionKey orders events on the topic. Loan events use the copy ID.
	PartitionKey string
	// EventType is the type of event (e.g., "loan.borrowed").
	EventType string
	// Payload is the event payload that will be JSON-serialized.
	Payload interface{}
	// RequestID of the HTTP request that caused the event (optional).
	RequestID string
	// CorrelationID for request tracing (optional).
	CorrelationID string
}

// Metadata is stored alongside every event payload.
type Metadata struct {
	Source        string    `json:"source"`
	RequestID     string    `json:"request_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	EmittedAt     time.Time `json:"emitted_at"`
}

// Emitter creates outbox events for the loan aggregate.
type Emitter struct {
	config EmitterConfig
	now    func() time.Time
}

// NewEmitter creates a new Emitter with the given service configuration.
func NewEmitter(config EmitterConfig) *Emitter {
	if config.ServiceName == "" {
		config.ServiceName = "library-lending-service"
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	return &Emitter{config: config, now: time.Now}
}

// Emit creates an outbox event from the given parameters.
// The event is ready to be inserted into the outbox table.
func (e *Emitter) Emit(params EmitParams) (*domain.OutboxEvent, error) {
	if params.AggregateID == uuid.Nil {
		return nil, fmt.Errorf("aggregate_id is required")
	}
	if params.EventType == "" {
		return nil, fmt.Errorf("event_type is required")
	}

	payload, err := jsoniter.ConfigFastest.Marshal(params.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := e.now().UTC()
	metadata, err := jsoniter.ConfigFastest.Marshal(Metadata{
		Source:        e.config.ServiceName,
		RequestID:     params.RequestID,
		CorrelationID: params.CorrelationID,
		EmittedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	partitionKey := params.PartitionKey
	if partitionKey == "" {
		partitionKey = params.AggregateID.String()
	}

	return &domain.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: domain.AggregateTypeLoan,
		AggregateID:   params.AggregateID,
		PartitionKey:  partitionKey,
		EventType:     params.EventType,
		EventVersion:  eventVersion,
		Payload:       payload,
		Metadata:      metadata,
		MaxAttempts:   e.config.MaxAttempts,
		CreatedAt:     now,
	}, nil
}

// EmitLoanBorrowed builds a loan.borrowed event.
func (e *Emitter) EmitLoanBorrowed(loan *domain.Loan, requestID, correlationID string) (*domain.OutboxEvent, error) {
	return e.Emit(EmitParams{
		AggregateID:   loan.ID,
		PartitionKey:  loan.CopyID.String(),
		EventType:     domain.EventTypeLoanBorrowed,
		Payload:       domain.NewLoanBorrowedPayload(loan),
		RequestID:     requestID,
		CorrelationID: correlationID,
	})
}

// EmitLoanReturned builds a loan.returned event.
func (e *Emitter) EmitLoanReturned(loan *domain.Loan, requestID, correlationID string) (*domain.OutboxEvent, error) {
	return e.Emit(EmitParams{
		AggregateID:   loan.ID,
		PartitionKey:  loan.CopyID.String(),
		EventType:     domain.EventTypeLoanReturned,
		Payload:       domain.NewLoanReturnedPayload(loan),
		RequestID:     requestID,
		CorrelationID: correlationID,
	})
}
