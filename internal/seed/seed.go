// Package seed loads the starter catalog into the database and exports the
// loan ledger for offline analysis.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/repository"
)

//go:embed data/library.yaml
var defaultLibrary []byte

// listPageSize is the page size used to read existing books.
const listPageSize = 500

// Library is the seed document.
type Library struct {
	Books   []BookSeed   `yaml:"books"`
	Members []MemberSeed `yaml:"members"`
	Copies  []CopySeed   `yaml:"copies"`
}

// BookSeed describes a book, matched by title.
type BookSeed struct {
	Title       string  `yaml:"title"`
	Author      string  `yaml:"author"`
	Description *string `yaml:"description,omitempty"`
	ISBN        *string `yaml:"isbn,omitempty"`
}

// MemberSeed describes a member, matched by email.
type MemberSeed struct {
	Name  string  `yaml:"name"`
	Email string  `yaml:"email"`
	Phone *string `yaml:"phone,omitempty"`
}

// CopySeed describes a copy of the book with the given title, matched by code.
type CopySeed struct {
	Book string `yaml:"book"`
	Code string `yaml:"code"`
}

// DefaultLibrary returns the embedded starter catalog.
func DefaultLibrary() (*Library, error) {
	return Parse(bytes.NewReader(defaultLibrary))
}

// LoadFile reads a seed document from path.
func LoadFile(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a seed document.
func Parse(r io.Reader) (*Library, error) {
	var lib Library
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&lib); err != nil {
		return nil, fmt.Errorf("failed to decode seed document: %w", err)
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return &lib, nil
}

// Validate checks every entry with the domain rules and rejects duplicate keys.
func (l *Library) Validate() error {
	titles := make(map[string]struct{}, len(l.Books))
	for i, b := range l.Books {
		book := domain.Book{Title: b.Title, Author: b.Author, Description: b.Description, ISBN: b.ISBN}
		if err := book.Validate(); err != nil {
			return fmt.Errorf("books[%d]: %w", i, err)
		}
		if _, dup := titles[b.Title]; dup {
			return fmt.Errorf("books[%d]: duplicate title %q", i, b.Title)
		}
		titles[b.Title] = struct{}{}
	}

	emails := make(map[string]struct{}, len(l.Members))
	for i, m := range l.Members {
		email := m.Email
		member := domain.Member{Name: m.Name, Email: &email, Phone: m.Phone}
		if err := member.Validate(); err != nil {
			return fmt.Errorf("members[%d]: %w", i, err)
		}
		if m.Email == "" {
			return fmt.Errorf("members[%d]: %w", i, domain.NewValidationError("email", "is required"))
		}
		if _, dup := emails[m.Email]; dup {
			return fmt.Errorf("members[%d]: duplicate email %q", i, m.Email)
		}
		emails[m.Email] = struct{}{}
	}

	codes := make(map[string]struct{}, len(l.Copies))
	for i, c := range l.Copies {
		if c.Code == "" {
			return fmt.Errorf("copies[%d]: %w", i, domain.NewValidationError("code", "is required"))
		}
		if _, dup := codes[c.Code]; dup {
			return fmt.Errorf("copies[%d]: duplicate code %q", i, c.Code)
		}
		codes[c.Code] = struct{}{}
	}
	return nil
}

// Result counts what a seed run created or skipped.
type Result struct {
	BooksCreated   int
	MembersCreated int
	CopiesCreated  int
	Skipped        int
}

// Seeder inserts the missing parts of a Library.
type Seeder struct {
	catalog repository.CatalogRepository
	members repository.MemberRepository
	logger  zerolog.Logger
	dryRun  bool
}

// NewSeeder creates a seeder. With dryRun set it only reports what it would create.
func NewSeeder(catalog repository.CatalogRepository, members repository.MemberRepository, logger zerolog.Logger, dryRun bool) *Seeder {
	return &Seeder{
		catalog: catalog,
		members: members,
		logger:  logger.With().Str("component", "seed").Bool("dry_run", dryRun).Logger(),
		dryRun:  dryRun,
	}
}

// Seed creates missing books, then members, then copies. Copies whose book
// title is unknown are skipped with a warning.
func (s *Seeder) Seed(ctx context.Context, lib *Library) (Result, error) {
	var res Result

	bookIDs, err := s.existingBooks(ctx)
	if err != nil {
		return res, err
	}

	for _, b := range lib.Books {
		if _, ok := bookIDs[b.Title]; ok {
			continue
		}
		book := &domain.Book{Title: b.Title, Author: b.Author, Description: b.Description, ISBN: b.ISBN}
		if !s.dryRun {
			if err := s.catalog.CreateBook(ctx, book); err != nil {
				return res, fmt.Errorf("failed to create book %q: %w", b.Title, err)
			}
		}
		bookIDs[b.Title] = book
		res.BooksCreated++
		s.logger.Info().Str("title", b.Title).Msg("book created")
	}

	for _, m := range lib.Members {
		_, err := s.members.GetByEmail(ctx, m.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return res, fmt.Errorf("failed to look up member %q: %w", m.Email, err)
		}
		email := m.Email
		member := &domain.Member{Name: m.Name, Email: &email, Phone: m.Phone}
		if !s.dryRun {
			if err := s.members.Create(ctx, member); err != nil {
				return res, fmt.Errorf("failed to create member %q: %w", m.Email, err)
			}
		}
		res.MembersCreated++
		s.logger.Info().Str("name", m.Name).Msg("member created")
	}

	for _, c := range lib.Copies {
		_, err := s.catalog.GetCopyByCode(ctx, c.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return res, fmt.Errorf("failed to look up copy %q: %w", c.Code, err)
		}
		book, ok := bookIDs[c.Book]
		if !ok {
			res.Skipped++
			s.logger.Warn().Str("copy_code", c.Code).Str("title", c.Book).Msg("skipping copy of unknown book")
			continue
		}
		if !s.dryRun {
			if err := s.catalog.CreateCopy(ctx, &domain.BookCopy{BookID: book.ID, CopyCode: c.Code}); err != nil {
				return res, fmt.Errorf("failed to create copy %q: %w", c.Code, err)
			}
		}
		res.CopiesCreated++
		s.logger.Info().Str("copy_code", c.Code).Str("title", c.Book).Msg("copy created")
	}

	s.logger.Info().
		Int("books", res.BooksCreated).
		Int("members", res.MembersCreated).
		Int("copies", res.CopiesCreated).
		Int("skipped", res.Skipped).
		Msg("seed complete")
	return res, nil
}

// existingBooks indexes every stored book by title.
func (s *Seeder) existingBooks(ctx context.Context) (map[string]*domain.Book, error) {
	byTitle := make(map[string]*domain.Book)
	for offset := 0; ; offset += listPageSize {
		books, err := s.catalog.ListBooks(ctx, repository.PageFilter{Limit: listPageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("failed to list books: %w", err)
		}
		for _, b := range books {
			byTitle[b.Title] = b
		}
		if len(books) < listPageSize {
			return byTitle, nil
		}
	}
}
