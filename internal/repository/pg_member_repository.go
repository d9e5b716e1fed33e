package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/library-lending-service/internal/domain"
)

// Compile-time interface verification.
var _ MemberRepository = (*PgMemberRepository)(nil)

const memberColumns = `id, name, email, phone, created_at, updated_at`

// PgMemberRepository is a PostgreSQL implementation of MemberRepository.
type PgMemberRepository struct {
	db DBTX
}

// NewPgMemberRepository creates a new PostgreSQL member repository.
func NewPgMemberRepository(db DBTX) *PgMemberRepository {
	return &PgMemberRepository{db: db}
}

// Create inserts a new member.
func (r *PgMemberRepository) Create(ctx context.Context, member *domain.Member) error {
	if member == nil {
		return domain.NewValidationError("member", "member cannot be nil")
	}
	if err := member.Validate(); err != nil {
		return err
	}
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	now := time.Now().UTC()
	member.CreatedAt, member.UpdatedAt = now, now

	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		member.ID, member.Name, member.Email, member.Phone, member.CreatedAt, member.UpdatedAt,
	)
	if err != nil {
		if isPgViolation(err, pgUniqueViolation, constraintMemberEmail) {
			return domain.NewAlreadyExistsError(domain.EntityMember, "email", derefString(member.Email))
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// Get retrieves a member by ID.
func (r *PgMemberRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`

	m, err := scanMember(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityMember, id.String())
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// GetByEmail retrieves a member by email address.
func (r *PgMemberRepository) GetByEmail(ctx context.Context, email string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE email = $1`

	m, err := scanMember(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityMember, email)
		}
		return nil, fmt.Errorf("failed to get member by email: %w", err)
	}
	return m, nil
}

// List returns members ordered by name, then id.
func (r *PgMemberRepository) List(ctx context.Context, filter PageFilter) ([]*domain.Member, error) {
	applyPaginationDefaults(&filter.Limit, &filter.Offset)

	query := `
		SELECT ` + memberColumns + `
		FROM members
		ORDER BY name ASC, id ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]*domain.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

// Update applies the non-nil fields of update.
func (r *PgMemberRepository) Update(ctx context.Context, id uuid.UUID, update domain.MemberUpdate) (*domain.Member, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return r.Get(ctx, id)
	}

	query := `
		UPDATE members SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			updated_at = $5
		WHERE id = $1
		RETURNING ` + memberColumns

	row := r.db.QueryRow(ctx, query, id, update.Name, update.Email, update.Phone, time.Now().UTC())
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityMember, id.String())
		}
		if isPgViolation(err, pgUniqueViolation, constraintMemberEmail) {
			return nil, domain.NewAlreadyExistsError(domain.EntityMember, "email", derefString(update.Email))
		}
		return nil, fmt.Errorf("failed to update member: %w", err)
	}
	return m, nil
}

func scanMember(row pgx.Row) (*domain.Member, error) {
	var m domain.Member
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
