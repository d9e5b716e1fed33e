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
var _ CatalogRepository = (*PgCatalogRepository)(nil)

const (
	bookColumns = `id, title, author, description, isbn, created_at, updated_at`
	copyColumns = `id, book_id, copy_code, created_at, updated_at`
)

// PgCatalogRepository is a PostgreSQL implementation of CatalogRepository.
type PgCatalogRepository struct {
	db DBTX
}

// NewPgCatalogRepository creates a new PostgreSQL catalog repository.
func NewPgCatalogRepository(db DBTX) *PgCatalogRepository {
	return &PgCatalogRepository{db: db}
}

// CreateBook inserts a new book.
func (r *PgCatalogRepository) CreateBook(ctx context.Context, book *domain.Book) error {
	if book == nil {
		return domain.NewValidationError("book", "book cannot be nil")
	}
	if err := book.Validate(); err != nil {
		return err
	}
	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	now := time.Now().UTC()
	book.CreatedAt, book.UpdatedAt = now, now

	query := `
		INSERT INTO books (` + bookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		book.ID, book.Title, book.Author, book.Description, book.ISBN,
		book.CreatedAt, book.UpdatedAt,
	)
	if err != nil {
		if isPgViolation(err, pgUniqueViolation, constraintBookISBN) {
			return domain.NewAlreadyExistsError(domain.EntityBook, "isbn", derefString(book.ISBN))
		}
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

// GetBook retrieves a book by ID.
func (r *PgCatalogRepository) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	book, err := scanBook(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityBook, id.String())
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// ListBooks returns books ordered by title, then id.
func (r *PgCatalogRepository) ListBooks(ctx context.Context, filter PageFilter) ([]*domain.Book, error) {
	applyPaginationDefaults(&filter.Limit, &filter.Offset)

	query := `
		SELECT ` + bookColumns + `
		FROM books
		ORDER BY title ASC, id ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	books := make([]*domain.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating books: %w", err)
	}
	return books, nil
}

// UpdateBook applies the non-nil fields of update. An empty update returns the
// stored book unchanged.
func (r *PgCatalogRepository) UpdateBook(ctx context.Context, id uuid.UUID, update domain.BookUpdate) (*domain.Book, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return r.GetBook(ctx, id)
	}

	query := `
		UPDATE books SET
			title = COALESCE($2, title),
			author = COALESCE($3, author),
			description = COALESCE($4, description),
			isbn = COALESCE($5, isbn),
			updated_at = $6
		WHERE id = $1
		RETURNING ` + bookColumns

	row := r.db.QueryRow(ctx, query,
		id, update.Title, update.Author, update.Description, update.ISBN, time.Now().UTC(),
	)
	book, err := scanBook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityBook, id.String())
		}
		if isPgViolation(err, pgUniqueViolation, constraintBookISBN) {
			return nil, domain.NewAlreadyExistsError(domain.EntityBook, "isbn", derefString(update.ISBN))
		}
		return nil, fmt.Errorf("failed to update book: %w", err)
	}
	return book, nil
}

// CreateCopy inserts a new copy of an existing book.
func (r *PgCatalogRepository) CreateCopy(ctx context.Context, bc *domain.BookCopy) error {
	if bc == nil {
		return domain.NewValidationError("copy", "copy cannot be nil")
	}
	if err := bc.Validate(); err != nil {
		return err
	}
	if bc.ID == uuid.Nil {
		bc.ID = uuid.New()
	}
	now := time.Now().UTC()
	bc.CreatedAt, bc.UpdatedAt = now, now

	query := `
		INSERT INTO book_copies (` + copyColumns + `)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, bc.ID, bc.BookID, bc.CopyCode, bc.CreatedAt, bc.UpdatedAt)
	if err != nil {
		switch {
		case isPgViolation(err, pgUniqueViolation, constraintCopyCode):
			return domain.NewAlreadyExistsError(domain.EntityCopy, "copy_code", bc.CopyCode)
		case isPgViolation(err, pgForeignKeyViolation, constraintCopyBookFK):
			return domain.NewNotFoundError(domain.EntityBook, bc.BookID.String())
		}
		return fmt.Errorf("failed to create copy: %w", err)
	}
	return nil
}

// GetCopy retrieves a copy by ID.
func (r *PgCatalogRepository) GetCopy(ctx context.Context, id uuid.UUID) (*domain.BookCopy, error) {
	query := `SELECT ` + copyColumns + ` FROM book_copies WHERE id = $1`

	c, err := scanCopy(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityCopy, id.String())
		}
		return nil, fmt.Errorf("failed to get copy: %w", err)
	}
	return c, nil
}

// GetCopyByCode retrieves a copy by its copy code.
func (r *PgCatalogRepository) GetCopyByCode(ctx context.Context, code string) (*domain.BookCopy, error) {
	query := `SELECT ` + copyColumns + ` FROM book_copies WHERE copy_code = $1`

	c, err := scanCopy(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError(domain.EntityCopy, code)
		}
		return nil, fmt.Errorf("failed to get copy by code: %w", err)
	}
	return c, nil
}

// ListCopies returns the copies of a book ordered by copy code.
func (r *PgCatalogRepository) ListCopies(ctx context.Context, bookID uuid.UUID) ([]*domain.BookCopy, error) {
	query := `
		SELECT ` + copyColumns + `
		FROM book_copies
		WHERE book_id = $1
		ORDER BY copy_code ASC`

	rows, err := r.db.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list copies: %w", err)
	}
	defer rows.Close()

	copies := make([]*domain.BookCopy, 0)
	for rows.Next() {
		c, err := scanCopy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan copy: %w", err)
		}
		copies = append(copies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating copies: %w", err)
	}
	return copies, nil
}

func scanBook(row pgx.Row) (*domain.Book, error) {
	var b domain.Book
	if err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.Description, &b.ISBN, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanCopy(row pgx.Row) (*domain.BookCopy, error) {
	var c domain.BookCopy
	if err := row.Scan(&c.ID, &c.BookID, &c.CopyCode, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
