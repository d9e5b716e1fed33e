package httpserver

import (
	"time"

	"github.com/helixir/library-lending-service/internal/domain"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeNotFound        = "not_found"
	codeCopyOnLoan      = "copy_on_loan"
	codeAlreadyReturned = "already_returned"
	codeNoCopies        = "no_copies"
	codeAllCopiesOnLoan = "all_copies_on_loan"
	codeAlreadyExists   = "already_exists"
	codeInvalidRequest  = "invalid_request"
	codeRateLimited     = "rate_limited"
	codeInternal        = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Request bodies.

type createBookRequest struct {
	Title       string  `json:"title" validate:"required,max=512"`
	Author      string  `json:"author" validate:"required,max=512"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=10000"`
	ISBN        *string `json:"isbn,omitempty" validate:"omitempty,isbn_format"`
}

type updateBookRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,max=512"`
	Author      *string `json:"author,omitempty" validate:"omitempty,max=512"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=10000"`
	ISBN        *string `json:"isbn,omitempty" validate:"omitempty,isbn_format"`
}

type createCopyRequest struct {
	CopyCode string `json:"copy_code" validate:"required,max=64"`
}

type createMemberRequest struct {
	Name  string  `json:"name" validate:"required,max=255"`
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=50"`
}

type updateMemberRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=50"`
}

type borrowRequest struct {
	MemberID string     `json:"member_id" validate:"required,uuid"`
	CopyID   string     `json:"copy_id" validate:"required,uuid"`
	DueAt    *time.Time `json:"due_at,omitempty"`
}

type borrowByBookRequest struct {
	MemberID string     `json:"member_id" validate:"required,uuid"`
	BookID   string     `json:"book_id" validate:"required,uuid"`
	DueAt    *time.Time `json:"due_at,omitempty"`
}

// Response bodies.

type bookResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description *string   `json:"description,omitempty"`
	ISBN        *string   `json:"isbn,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type listBooksResponse struct {
	Books  []bookResponse `json:"books"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type copyResponse struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	CopyCode  string    `json:"copy_code"`
	CreatedAt time.Time `json:"created_at"`
}

type listCopiesResponse struct {
	Copies []copyResponse `json:"copies"`
}

type memberResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type listMembersResponse struct {
	Members []memberResponse `json:"members"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

type loanResponse struct {
	ID         string     `json:"id"`
	MemberID   string     `json:"member_id"`
	CopyID     string     `json:"copy_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Active     bool       `json:"active"`
	Overdue    bool       `json:"overdue"`
}

type loanDetailsResponse struct {
	loanResponse
	MemberName string `json:"member_name"`
	CopyCode   string `json:"copy_code"`
	BookID     string `json:"book_id"`
	BookTitle  string `json:"book_title"`
	BookAuthor string `json:"book_author"`
}

type listLoansResponse struct {
	Loans  []loanDetailsResponse `json:"loans"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

func toBookResponse(b *domain.Book) bookResponse {
	return bookResponse{
		ID:          b.ID.String(),
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		ISBN:        b.ISBN,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func toCopyResponse(c *domain.BookCopy) copyResponse {
	return copyResponse{
		ID:        c.ID.String(),
		BookID:    c.BookID.String(),
		CopyCode:  c.CopyCode,
		CreatedAt: c.CreatedAt,
	}
}

func toMemberResponse(m *domain.Member) memberResponse {
	return memberResponse{
		ID:        m.ID.String(),
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toLoanResponse(l *domain.Loan, now time.Time) loanResponse {
	return loanResponse{
		ID:         l.ID.String(),
		MemberID:   l.MemberID.String(),
		CopyID:     l.CopyID.String(),
		BorrowedAt: l.BorrowedAt,
		DueAt:      l.DueAt,
		ReturnedAt: l.ReturnedAt,
		Active:     l.IsActive(),
		Overdue:    l.IsOverdue(now),
	}
}

func toLoanDetailsResponse(d *domain.LoanDetails, now time.Time) loanDetailsResponse {
	return loanDetailsResponse{
		loanResponse: toLoanResponse(&d.Loan, now),
		MemberName:   d.MemberName,
		CopyCode:     d.CopyCode,
		BookID:       d.BookID.String(),
		BookTitle:    d.BookTitle,
		BookAuthor:   d.BookAuthor,
	}
}
