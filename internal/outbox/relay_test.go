package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/library-lending-service/internal/config"
	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/observability"
)

type fakeStore struct {
	mu        sync.Mutex
	pending   []*domain.OutboxEvent
	claimErr  error
	published []uuid.UUID
	failed    map[uuid.UUID]string
}

func (s *fakeStore) ClaimPending(_ context.Context, limit int, _ time.Duration) ([]*domain.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	n := min(limit, len(s.pending))
	out := s.pending[:n]
	s.pending = s.pending[n:]
	return out, nil
}

func (s *fakeStore) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = make(map[uuid.UUID]string)
	}
	s.failed[id] = errMsg
	return nil
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	writeFn  func(msgs []kafka.Message) error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeFn != nil {
		if err := w.writeFn(msgs); err != nil {
			return err
		}
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func pendingEvents(t *testing.T, n int) []*domain.OutboxEvent {
	t.Helper()
	emitter := NewEmitter(EmitterConfig{})
	events := make([]*domain.OutboxEvent, 0, n)
	for i := 0; i < n; i++ {
		e, err := emitter.EmitLoanBorrowed(testLoan(), "", "")
		require.NoError(t, err)
		e.Attempts = 1
		events = append(events, e)
	}
	return events
}

func TestRelay_ProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks every event", func(t *testing.T) {
		events := pendingEvents(t, 3)
		store := &fakeStore{pending: events}
		writer := &fakeWriter{}
		metrics := observability.NewMetrics("relay_publish_test")

		relay := NewRelay(store, writer, RelayConfig{BatchSize: 10}, metrics, zerolog.Nop())
		n, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		require.Len(t, writer.messages, 3)
		assert.Len(t, store.published, 3)
		assert.Empty(t, store.failed)
		assert.Equal(t, float64(3), testutil.ToFloat64(metrics.OutboxPublished))

		msg := writer.messages[0]
		assert.Equal(t, events[0].PartitionKey, string(msg.Key))
		assert.Equal(t, HeaderEventType, msg.Headers[0].Key)
		assert.Equal(t, domain.EventTypeLoanBorrowed, string(msg.Headers[0].Value))
		assert.Equal(t, events[0].ID.String(), string(msg.Headers[1].Value))

		var env Envelope
		require.NoError(t, jsoniter.Unmarshal(msg.Value, &env))
		assert.Equal(t, events[0].ID, env.EventID)
		assert.Equal(t, domain.AggregateTypeLoan, env.AggregateType)
		assert.JSONEq(t, string(events[0].Payload), string(env.Payload))
	})

	t.Run("empty batch", func(t *testing.T) {
		relay := NewRelay(&fakeStore{}, &fakeWriter{}, RelayConfig{}, nil, zerolog.Nop())
		n, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("partial write failure marks only failed events", func(t *testing.T) {
		events := pendingEvents(t, 3)
		store := &fakeStore{pending: events}
		writer := &fakeWriter{writeFn: func(msgs []kafka.Message) error {
			return kafka.WriteErrors{nil, errors.New("leader not available"), nil}
		}}

		relay := NewRelay(store, writer, RelayConfig{BatchSize: 10}, nil, zerolog.Nop())
		_, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)

		assert.ElementsMatch(t, []uuid.UUID{events[0].ID, events[2].ID}, store.published)
		require.Contains(t, store.failed, events[1].ID)
		assert.Equal(t, "leader not available", store.failed[events[1].ID])
	})

	t.Run("whole batch failure marks every event failed", func(t *testing.T) {
		events := pendingEvents(t, 2)
		store := &fakeStore{pending: events}
		writer := &fakeWriter{writeFn: func([]kafka.Message) error { return errors.New("dial tcp: connection refused") }}
		metrics := observability.NewMetrics("relay_failure_test")

		relay := NewRelay(store, writer, RelayConfig{BatchSize: 10}, metrics, zerolog.Nop())
		_, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)

		assert.Empty(t, store.published)
		assert.Len(t, store.failed, 2)
		assert.Equal(t, float64(2), testutil.ToFloat64(metrics.OutboxFailures))
	})

	t.Run("claim failure", func(t *testing.T) {
		relay := NewRelay(&fakeStore{claimErr: errors.New("too many connections")}, &fakeWriter{}, RelayConfig{}, nil, zerolog.Nop())
		_, err := relay.ProcessBatch(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "claim pending events")
	})
}

func TestRelay_Run(t *testing.T) {
	store := &fakeStore{pending: pendingEvents(t, 5)}
	writer := &fakeWriter{}
	relay := NewRelay(store, writer, RelayConfig{BatchSize: 2, PollInterval: 10 * time.Millisecond, PublishRate: 1000}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.published) == 5
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
}

func TestRelayConfigFrom(t *testing.T) {
	cfg := RelayConfigFrom(config.OutboxConfig{
		PollInterval:  2 * time.Second,
		BatchSize:     50,
		LeaseDuration: time.Minute,
		PublishRate:   25,
	})
	assert.Equal(t, RelayConfig{PollInterval: 2 * time.Second, BatchSize: 50, LeaseDuration: time.Minute, PublishRate: 25}, cfg)

	relay := NewRelay(&fakeStore{}, &fakeWriter{}, RelayConfig{}, nil, zerolog.Nop())
	assert.Equal(t, time.Second, relay.cfg.PollInterval)
	assert.Equal(t, 100, relay.cfg.BatchSize)
	assert.Nil(t, relay.limiter)
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(config.KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "events.library.loans",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	})
	defer w.Close()

	assert.Equal(t, "events.library.loans", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
