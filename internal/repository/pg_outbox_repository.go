package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/library-lending-service/internal/domain"
)

const outboxColumns = `id, aggregate_type, aggregate_id, partition_key, event_type, event_version,
	payload, metadata, attempts, max_attempts, last_error, locked_until, published_at, created_at`

// PgOutboxRepository stores outbox events and hands them to the relay.
//
// Rows are claimed with FOR UPDATE SKIP LOCKED and leased through
// locked_until, so several relay workers can poll the same table. A claim
// counts as a delivery attempt; rows whose attempts reach max_attempts are
// left unpublished with their last_error for inspection.
type PgOutboxRepository struct {
	db  DBTX
	now func() time.Time
}

// NewPgOutboxRepository creates a new PostgreSQL outbox repository.
func NewPgOutboxRepository(db DBTX) *PgOutboxRepository {
	return &PgOutboxRepository{db: db, now: time.Now}
}

// InsertEvent writes event through q, normally the transaction holding the
// state change the event describes. A nil q uses the repository's handle.
func (r *PgOutboxRepository) InsertEvent(ctx context.Context, q DBTX, event *domain.OutboxEvent) error {
	if event == nil {
		return domain.NewValidationError("event", "event cannot be nil")
	}
	if q == nil {
		q = r.db
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}
	metadata := event.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	query := `
		INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, partition_key, event_type, event_version,
			payload, metadata, max_attempts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := q.Exec(ctx, query,
		event.ID, event.AggregateType, event.AggregateID, event.PartitionKey, event.EventType, event.EventVersion,
		event.Payload, metadata, event.MaxAttempts, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// ClaimPending leases up to limit unpublished events for lease and returns
// them oldest first.
func (r *PgOutboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = defaultFilterLimit
	}
	now := r.now().UTC()

	query := `
		UPDATE outbox_events
		SET locked_until = $2, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE published_at IS NULL
				AND attempts < max_attempts
				AND (locked_until IS NULL OR locked_until < $3)
			ORDER BY created_at ASC, id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	rows, err := r.db.Query(ctx, query, limit, now.Add(lease), now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0)
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(
			&e.ID, &e.AggregateType, &e.AggregateID, &e.PartitionKey, &e.EventType, &e.EventVersion,
			&e.Payload, &e.Metadata, &e.Attempts, &e.MaxAttempts, &e.LastError, &e.LockedUntil,
			&e.PublishedAt, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}

	// RETURNING does not preserve the subquery order.
	slices.SortStableFunc(events, func(a, b *domain.OutboxEvent) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return events, nil
}

// MarkPublished records successful delivery and releases the leases.
func (r *PgOutboxRepository) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE outbox_events
		SET published_at = $2, locked_until = NULL, last_error = NULL
		WHERE id = ANY($1)`

	if _, err := r.db.Exec(ctx, query, ids, r.now().UTC()); err != nil {
		return fmt.Errorf("failed to mark outbox events published: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery and releases the lease so the event
// is retried on a later poll.
func (r *PgOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE outbox_events
		SET last_error = $2, locked_until = NULL
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("outbox_event", id.String())
	}
	return nil
}
