package seed

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/repository"
)

// fakeCatalog is an in-memory repository.CatalogRepository.
type fakeCatalog struct {
	books  []*domain.Book
	copies map[string]*domain.BookCopy
	getErr error
}

var _ repository.CatalogRepository = (*fakeCatalog)(nil)

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{copies: make(map[string]*domain.BookCopy)}
}

func (c *fakeCatalog) CreateBook(_ context.Context, book *domain.Book) error {
	book.ID = uuid.New()
	c.books = append(c.books, book)
	return nil
}

func (c *fakeCatalog) GetBook(_ context.Context, id uuid.UUID) (*domain.Book, error) {
	for _, b := range c.books {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, domain.NewNotFoundError(domain.EntityBook, id.String())
}

func (c *fakeCatalog) ListBooks(_ context.Context, filter repository.PageFilter) ([]*domain.Book, error) {
	sorted := append([]*domain.Book(nil), c.books...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Title < sorted[j].Title })
	if filter.Offset >= len(sorted) {
		return nil, nil
	}
	end := min(filter.Offset+filter.Limit, len(sorted))
	return sorted[filter.Offset:end], nil
}

func (c *fakeCatalog) UpdateBook(context.Context, uuid.UUID, domain.BookUpdate) (*domain.Book, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeCatalog) CreateCopy(_ context.Context, bc *domain.BookCopy) error {
	bc.ID = uuid.New()
	c.copies[bc.CopyCode] = bc
	return nil
}

func (c *fakeCatalog) GetCopy(_ context.Context, id uuid.UUID) (*domain.BookCopy, error) {
	return nil, domain.NewNotFoundError(domain.EntityCopy, id.String())
}

func (c *fakeCatalog) GetCopyByCode(_ context.Context, code string) (*domain.BookCopy, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	if bc, ok := c.copies[code]; ok {
		return bc, nil
	}
	return nil, domain.NewNotFoundError(domain.EntityCopy, code)
}

func (c *fakeCatalog) ListCopies(_ context.Context, bookID uuid.UUID) ([]*domain.BookCopy, error) {
	var out []*domain.BookCopy
	for _, bc := range c.copies {
		if bc.BookID == bookID {
			out = append(out, bc)
		}
	}
	return out, nil
}

// fakeMembers is an in-memory repository.MemberRepository.
type fakeMembers struct {
	byEmail map[string]*domain.Member
}

var _ repository.MemberRepository = (*fakeMembers)(nil)

func newFakeMembers() *fakeMembers {
	return &fakeMembers{byEmail: make(map[string]*domain.Member)}
}

func (m *fakeMembers) Create(_ context.Context, member *domain.Member) error {
	member.ID = uuid.New()
	m.byEmail[*member.Email] = member
	return nil
}

func (m *fakeMembers) Get(_ context.Context, id uuid.UUID) (*domain.Member, error) {
	return nil, domain.NewNotFoundError(domain.EntityMember, id.String())
}

func (m *fakeMembers) GetByEmail(_ context.Context, email string) (*domain.Member, error) {
	if member, ok := m.byEmail[email]; ok {
		return member, nil
	}
	return nil, domain.NewNotFoundError(domain.EntityMember, email)
}

func (m *fakeMembers) List(context.Context, repository.PageFilter) ([]*domain.Member, error) {
	return nil, nil
}

func (m *fakeMembers) Update(context.Context, uuid.UUID, domain.MemberUpdate) (*domain.Member, error) {
	return nil, errors.New("not implemented")
}

func TestDefaultLibrary(t *testing.T) {
	lib, err := DefaultLibrary()
	require.NoError(t, err)

	assert.Len(t, lib.Books, 12)
	assert.Len(t, lib.Members, 5)
	assert.Len(t, lib.Copies, 12)

	titles := make(map[string]bool)
	for _, b := range lib.Books {
		titles[b.Title] = true
	}
	for _, c := range lib.Copies {
		assert.True(t, titles[c.Book], "copy %s references unknown book %q", c.Code, c.Book)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "books:\n  - title: A\n    author: B\n    pages: 3\n", "failed to decode"},
		{"missing author", "books:\n  - title: A\n", "books[0]"},
		{"duplicate title", "books:\n  - {title: A, author: B}\n  - {title: A, author: C}\n", "duplicate title"},
		{"duplicate email", "members:\n  - {name: A, email: a@x.org}\n  - {name: B, email: a@x.org}\n", "duplicate email"},
		{"missing email", "members:\n  - {name: A}\n", "members[0]"},
		{"duplicate copy", "copies:\n  - {book: A, code: X}\n  - {book: A, code: X}\n", "duplicate code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSeeder_Seed(t *testing.T) {
	ctx := context.Background()
	lib, err := DefaultLibrary()
	require.NoError(t, err)

	catalog, members := newFakeCatalog(), newFakeMembers()
	seeder := NewSeeder(catalog, members, zerolog.Nop(), false)

	res, err := seeder.Seed(ctx, lib)
	require.NoError(t, err)
	assert.Equal(t, Result{BooksCreated: 12, MembersCreated: 5, CopiesCreated: 12}, res)

	ddia := catalog.copies["DDIA-002"]
	require.NotNil(t, ddia)
	book, err := catalog.GetBook(ctx, ddia.BookID)
	require.NoError(t, err)
	assert.Equal(t, "Designing Data-Intensive Applications", book.Title)

	t.Run("second run creates nothing", func(t *testing.T) {
		res, err := seeder.Seed(ctx, lib)
		require.NoError(t, err)
		assert.Equal(t, Result{}, res)
		assert.Len(t, catalog.books, 12)
		assert.Len(t, catalog.copies, 12)
		assert.Len(t, members.byEmail, 5)
	})
}

func TestSeeder_DryRun(t *testing.T) {
	lib, err := DefaultLibrary()
	require.NoError(t, err)

	catalog, members := newFakeCatalog(), newFakeMembers()
	res, err := NewSeeder(catalog, members, zerolog.Nop(), true).Seed(context.Background(), lib)
	require.NoError(t, err)

	assert.Equal(t, Result{BooksCreated: 12, MembersCreated: 5, CopiesCreated: 12}, res)
	assert.Empty(t, catalog.books)
	assert.Empty(t, catalog.copies)
	assert.Empty(t, members.byEmail)
}

func TestSeeder_SkipsCopiesOfUnknownBooks(t *testing.T) {
	lib := &Library{
		Books:  []BookSeed{{Title: "Known", Author: "A"}},
		Copies: []CopySeed{{Book: "Known", Code: "K-1"}, {Book: "Missing", Code: "M-1"}},
	}

	catalog := newFakeCatalog()
	res, err := NewSeeder(catalog, newFakeMembers(), zerolog.Nop(), false).Seed(context.Background(), lib)
	require.NoError(t, err)

	assert.Equal(t, 1, res.CopiesCreated)
	assert.Equal(t, 1, res.Skipped)
	assert.Contains(t, catalog.copies, "K-1")
	assert.NotContains(t, catalog.copies, "M-1")
}

func TestSeeder_StorageErrorStops(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.getErr = errors.New("connection reset")
	lib := &Library{Copies: []CopySeed{{Book: "A", Code: "X"}}}

	_, err := NewSeeder(catalog, newFakeMembers(), zerolog.Nop(), false).Seed(context.Background(), lib)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to look up copy "X"`)
}
