package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"

	"github.com/helixir/library-lending-service/internal/config"
	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/observability"
)

// Kafka header keys set on every published event.
const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

// Store is the outbox persistence the relay drains.
type Store interface {
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

// MessageWriter is the subset of *kafka.Writer used by the relay.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Envelope is the Kafka message value.
type Envelope struct {
	EventID       uuid.UUID           `json:"event_id"`
	EventType     string              `json:"event_type"`
	AggregateType string              `json:"aggregate_type"`
	AggregateID   uuid.UUID           `json:"aggregate_id"`
	OccurredAt    time.Time           `json:"occurred_at"`
	Payload       jsoniter.RawMessage `json:"payload"`
	Metadata      jsoniter.RawMessage `json:"metadata,omitempty"`
}

// RelayConfig tunes the relay loop.
type RelayConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	LeaseDuration time.Duration
	// PublishRate caps events per second. Zero or less disables throttling.
	PublishRate float64
}

// RelayConfigFrom maps the outbox config section.
func RelayConfigFrom(cfg config.OutboxConfig) RelayConfig {
	return RelayConfig{
		PollInterval:  cfg.PollInterval,
		BatchSize:     cfg.BatchSize,
		LeaseDuration: cfg.LeaseDuration,
		PublishRate:   cfg.PublishRate,
	}
}

// NewKafkaWriter creates the producer the relay publishes through. Messages
// are hashed by key so a copy's events share a partition.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}
}

// Relay moves committed outbox rows to Kafka.
type Relay struct {
	store   Store
	writer  MessageWriter
	limiter *rate.Limiter
	metrics *observability.Metrics
	logger  zerolog.Logger
	cfg     RelayConfig
}

// NewRelay creates a relay. metrics may be nil.
func NewRelay(store Store, writer MessageWriter, cfg RelayConfig, metrics *observability.Metrics, logger zerolog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 30 * time.Second
	}

	r := &Relay{
		store:   store,
		writer:  writer,
		metrics: metrics,
		logger:  logger.With().Str("component", "outbox_relay").Logger(),
		cfg:     cfg,
	}
	if cfg.PublishRate > 0 {
		// Burst covers a full batch so WaitN never exceeds it.
		r.limiter = rate.NewLimiter(rate.Limit(cfg.PublishRate), cfg.BatchSize)
	}
	return r
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another poll; otherwise the relay sleeps for the poll interval.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().
		Dur("poll_interval", r.cfg.PollInterval).
		Int("batch_size", r.cfg.BatchSize).
		Msg("starting outbox relay")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped via context cancellation")
			return ctx.Err()
		case <-timer.C:
		}

		n, err := r.ProcessBatch(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("outbox relay batch failed")
		}

		next := r.cfg.PollInterval
		if err == nil && n == r.cfg.BatchSize {
			next = 0
		}
		timer.Reset(next)
	}
}

// ProcessBatch claims one batch, publishes it, and records the outcome of
// every event. It returns the number of events claimed.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	events, err := r.store.ClaimPending(ctx, r.cfg.BatchSize, r.cfg.LeaseDuration)
	if err != nil {
		return 0, fmt.Errorf("claim pending events: %w", err)
	}
	if len(events) == 0 {
		r.metrics.RecordOutboxBatch(0, 0, 0)
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msg, err := buildMessage(e)
		if err != nil {
			// Unreachable for rows written by the Emitter.
			return len(events), fmt.Errorf("build message for event %s: %w", e.ID, err)
		}
		msgs = append(msgs, msg)
	}

	if r.limiter != nil {
		if err := r.limiter.WaitN(ctx, len(msgs)); err != nil {
			return len(events), fmt.Errorf("rate limiter: %w", err)
		}
	}

	writeErr := r.writer.WriteMessages(ctx, msgs...)
	failures := perMessageErrors(writeErr, len(msgs))

	published := make([]uuid.UUID, 0, len(events))
	failed := 0
	for i, e := range events {
		if failures[i] == nil {
			published = append(published, e.ID)
			continue
		}
		failed++
		r.logger.Warn().
			Err(failures[i]).
			Str("event_id", e.ID.String()).
			Str("event_type", e.EventType).
			Int("attempts", e.Attempts).
			Int("max_attempts", e.MaxAttempts).
			Msg("failed to publish outbox event")
		if err := r.store.MarkFailed(ctx, e.ID, failures[i].Error()); err != nil {
			r.logger.Error().Err(err).Str("event_id", e.ID.String()).Msg("failed to record publish failure")
		}
	}

	if err := r.store.MarkPublished(ctx, published); err != nil {
		r.metrics.RecordOutboxBatch(len(events), 0, len(events))
		return len(events), fmt.Errorf("mark events published: %w", err)
	}

	r.metrics.RecordOutboxBatch(len(events), len(published), failed)
	r.logger.Debug().
		Int("claimed", len(events)).
		Int("published", len(published)).
		Int("failed", failed).
		Msg("outbox batch processed")
	return len(events), nil
}

// perMessageErrors spreads a WriteMessages error over the batch. kafka-go
// reports partial failures as kafka.WriteErrors indexed like the input.
func perMessageErrors(err error, n int) []error {
	out := make([]error, n)
	if err == nil {
		return out
	}
	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) && len(werrs) == n {
		copy(out, werrs)
		return out
	}
	for i := range out {
		out[i] = err
	}
	return out
}

func buildMessage(e *domain.OutboxEvent) (kafka.Message, error) {
	value, err := jsoniter.ConfigFastest.Marshal(Envelope{
		EventID:       e.ID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		OccurredAt:    e.CreatedAt,
		Payload:       e.Payload,
		Metadata:      e.Metadata,
	})
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(e.PartitionKey),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(e.EventType)},
			{Key: HeaderEventID, Value: []byte(e.ID.String())},
		},
		Time: e.CreatedAt,
	}, nil
}
