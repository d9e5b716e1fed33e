package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/library-lending-service/internal/domain"
)

var memberCols = []string{"id", "name", "email", "phone", "created_at", "updated_at"}

func TestPgMemberRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts member", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgMemberRepository(mock)
		m := &domain.Member{Name: "Alice Nguyen", Email: strPtr("alice.nguyen@example.com"), Phone: strPtr("555-0101")}

		mock.ExpectExec("INSERT INTO members").
			WithArgs(pgxmock.AnyArg(), m.Name, m.Email, m.Phone, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(ctx, m))
		assert.NotEqual(t, uuid.Nil, m.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email is already exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgMemberRepository(mock)
		mock.ExpectExec("INSERT INTO members").
			WithArgs(anyArgs(6)...).
			WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintMemberEmail})

		err = repo.Create(ctx, &domain.Member{Name: "Bob", Email: strPtr("bob@example.com")})

		var ae *domain.AlreadyExistsError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "email", ae.Field)
		assert.Equal(t, "bob@example.com", ae.Value)
	})

	t.Run("nil member", func(t *testing.T) {
		repo := NewPgMemberRepository(nil)
		assert.ErrorIs(t, repo.Create(ctx, nil), domain.ErrInvalidInput)
	})
}

func TestPgMemberRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgMemberRepository(mock)
		id := uuid.New()
		now := time.Now().UTC()
		mock.ExpectQuery(`SELECT .* FROM members WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows(memberCols).AddRow(id, "Carol Okonkwo", strPtr("carol.o@example.com"), nil, now, now))

		m, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Carol Okonkwo", m.Name)
		assert.Nil(t, m.Phone)
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgMemberRepository(mock)
		id := uuid.New()
		mock.ExpectQuery(`SELECT .* FROM members`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

		_, err = repo.Get(ctx, id)
		var nf *domain.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, domain.EntityMember, nf.Entity)
		assert.Equal(t, id.String(), nf.ID)
	})

	t.Run("by email", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgMemberRepository(mock)
		mock.ExpectQuery(`SELECT .* FROM members WHERE email = \$1`).
			WithArgs("dmitri@example.com").
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.GetByEmail(ctx, "dmitri@example.com")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("storage failure is wrapped", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgMemberRepository(mock)
		mock.ExpectQuery(`SELECT .* FROM members`).WithArgs(pgxmock.AnyArg()).WillReturnError(errors.New("connection refused"))

		_, err = repo.Get(ctx, uuid.New())
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
		assert.Contains(t, err.Error(), "failed to get member")
	})
}

func TestPgMemberRepository_List(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgMemberRepository(mock)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM members\s+ORDER BY name ASC, id ASC`).
		WithArgs(10, 5).
		WillReturnRows(pgxmock.NewRows(memberCols).AddRow(uuid.New(), "Erin", nil, nil, now, now))

	members, err := repo.List(ctx, PageFilter{Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Erin", members[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMemberRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("updates phone", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgMemberRepository(mock)
		id := uuid.New()
		now := time.Now().UTC()
		phone := "555-0199"

		mock.ExpectQuery(`UPDATE members SET`).
			WithArgs(id, (*string)(nil), (*string)(nil), &phone, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows(memberCols).AddRow(id, "Bob", nil, &phone, now, now))

		m, err := repo.Update(ctx, id, domain.MemberUpdate{Phone: &phone})
		require.NoError(t, err)
		require.NotNil(t, m.Phone)
		assert.Equal(t, phone, *m.Phone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects blank name", func(t *testing.T) {
		repo := NewPgMemberRepository(nil)
		blank := " "
		_, err := repo.Update(ctx, uuid.New(), domain.MemberUpdate{Name: &blank})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("email taken", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgMemberRepository(mock)
		email := "alice.nguyen@example.com"
		mock.ExpectQuery(`UPDATE members SET`).
			WithArgs(anyArgs(5)...).
			WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintMemberEmail})

		_, err = repo.Update(ctx, uuid.New(), domain.MemberUpdate{Email: &email})
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})
}
