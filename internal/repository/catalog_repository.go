package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/library-lending-service/internal/domain"
)

// CatalogRepository persists books and their physical copies.
type CatalogRepository interface {
	// CreateBook inserts a book. A missing ID is generated.
	// Returns *domain.AlreadyExistsError when the ISBN is taken.
	CreateBook(ctx context.Context, book *domain.Book) error

	// GetBook returns domain.ErrNotFound when no book has the id.
	GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, error)

	// ListBooks returns books ordered by title.
	ListBooks(ctx context.Context, filter PageFilter) ([]*domain.Book, error)

	// UpdateBook applies a partial update and returns the stored book.
	UpdateBook(ctx context.Context, id uuid.UUID, update domain.BookUpdate) (*domain.Book, error)

	// CreateCopy inserts a copy. Returns a NotFoundError for an unknown book and
	// an AlreadyExistsError when the copy code is taken.
	CreateCopy(ctx context.Context, bc *domain.BookCopy) error

	// GetCopy returns domain.ErrNotFound when no copy has the id.
	GetCopy(ctx context.Context, id uuid.UUID) (*domain.BookCopy, error)

	// GetCopyByCode looks a copy up by its barcode.
	GetCopyByCode(ctx context.Context, code string) (*domain.BookCopy, error)

	// ListCopies returns every copy of the book ordered by copy code.
	// An unknown book yields an empty slice.
	ListCopies(ctx context.Context, bookID uuid.UUID) ([]*domain.BookCopy, error)
}

// PageFilter holds limit/offset pagination. Zero values select the defaults.
type PageFilter struct {
	Limit  int
	Offset int
}
