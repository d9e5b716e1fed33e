package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/library-lending-service/internal/domain"
)

// MemberRepository persists library members.
type MemberRepository interface {
	// Create inserts a member. A missing ID is generated.
	// Returns *domain.AlreadyExistsError when the email is taken.
	Create(ctx context.Context, member *domain.Member) error

	// Get returns domain.ErrNotFound when no member has the id.
	Get(ctx context.Context, id uuid.UUID) (*domain.Member, error)

	// GetByEmail looks a member up by email.
	GetByEmail(ctx context.Context, email string) (*domain.Member, error)

	// List returns members ordered by name.
	List(ctx context.Context, filter PageFilter) ([]*domain.Member, error)

	// Update applies a partial update and returns the stored member.
	Update(ctx context.Context, id uuid.UUID, update domain.MemberUpdate) (*domain.Member, error)
}
