// Package domain provides the catalog, membership, and loan models of the
// library lending service together with its error taxonomy.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entity names used in NotFoundError and AlreadyExistsError.
const (
	EntityBook   = "book"
	EntityCopy   = "copy"
	EntityMember = "member"
	EntityLoan   = "loan"
)

// Field length limits shared by the schema and request validation.
const (
	MaxTitleLength       = 512
	MaxAuthorLength      = 512
	MaxDescriptionLength = 10000
	MaxISBNLength        = 20
	MaxCopyCodeLength    = 64
	MaxMemberNameLength  = 255
	MaxEmailLength       = 255
	MaxPhoneLength       = 50
)

// Book is a catalog title. Physical items are BookCopy rows.
type Book struct {
	ID          uuid.UUID
	Title       string
	Author      string
	Description *string
	// ISBN is unique across the catalog when present.
	ISBN      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookUpdate carries a partial update. Nil fields are left unchanged.
type BookUpdate struct {
	Title       *string
	Author      *string
	Description *string
	ISBN        *string
}

// IsEmpty reports whether the update changes nothing.
func (u BookUpdate) IsEmpty() bool {
	return u.Title == nil && u.Author == nil && u.Description == nil && u.ISBN == nil
}

// Validate checks the fields that are set.
func (u BookUpdate) Validate() error {
	if u.Title != nil {
		if err := validateRequired("title", *u.Title, MaxTitleLength); err != nil {
			return err
		}
	}
	if u.Author != nil {
		if err := validateRequired("author", *u.Author, MaxAuthorLength); err != nil {
			return err
		}
	}
	if u.Description != nil && len(*u.Description) > MaxDescriptionLength {
		return NewValidationError("description", "must be at most 10000 characters")
	}
	if u.ISBN != nil && len(*u.ISBN) > MaxISBNLength {
		return NewValidationError("isbn", "must be at most 20 characters")
	}
	return nil
}

// Validate checks a book before it is inserted.
func (b *Book) Validate() error {
	return BookUpdate{
		Title:       &b.Title,
		Author:      &b.Author,
		Description: b.Description,
		ISBN:        b.ISBN,
	}.Validate()
}

// BookCopy is a physical, lendable item. It belongs to one book for its lifetime.
type BookCopy struct {
	ID        uuid.UUID
	BookID    uuid.UUID
	CopyCode  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks a copy before it is inserted.
func (c *BookCopy) Validate() error {
	if c.BookID == uuid.Nil {
		return NewValidationError("book_id", "is required")
	}
	return validateRequired("copy_code", c.CopyCode, MaxCopyCodeLength)
}

// Member is a library patron.
type Member struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemberUpdate carries a partial update. Nil fields are left unchanged.
type MemberUpdate struct {
	Name  *string
	Email *string
	Phone *string
}

// IsEmpty reports whether the update changes nothing.
func (u MemberUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil
}

// Validate checks the fields that are set.
func (u MemberUpdate) Validate() error {
	if u.Name != nil {
		if err := validateRequired("name", *u.Name, MaxMemberNameLength); err != nil {
			return err
		}
	}
	if u.Email != nil && len(*u.Email) > MaxEmailLength {
		return NewValidationError("email", "must be at most 255 characters")
	}
	if u.Phone != nil && len(*u.Phone) > MaxPhoneLength {
		return NewValidationError("phone", "must be at most 50 characters")
	}
	return nil
}

// Validate checks a member before it is inserted.
func (m *Member) Validate() error {
	return MemberUpdate{Name: &m.Name, Email: m.Email, Phone: m.Phone}.Validate()
}

func validateRequired(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(field, "is required")
	}
	if len(value) > maxLen {
		return NewValidationError(field, "is too long")
	}
	return nil
}
