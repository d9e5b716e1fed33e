package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/repository"
)

// createBook handles POST /books.
func (s *Server) createBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	book := &domain.Book{
		Title:       strings.TrimSpace(req.Title),
		Author:      strings.TrimSpace(req.Author),
		Description: req.Description,
		ISBN:        req.ISBN,
	}
	if err := book.Validate(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.catalog.CreateBook(r.Context(), book); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookResponse(book))
}

// listBooks handles GET /books.
func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePaginationParams(w, r)
	if !ok {
		return
	}

	books, err := s.catalog.ListBooks(r.Context(), repository.PageFilter{Limit: limit, Offset: offset})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := listBooksResponse{
		Books:  make([]bookResponse, 0, len(books)),
		Limit:  limit,
		Offset: offset,
	}
	for _, b := range books {
		resp.Books = append(resp.Books, toBookResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getBook handles GET /books/{bookID}.
func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := parseUUID(w, chi.URLParam(r, "bookID"), "book_id")
	if !ok {
		return
	}

	book, err := s.catalog.GetBook(r.Context(), bookID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(book))
}

// updateBook handles PUT /books/{bookID}. Omitted fields are left unchanged.
func (s *Server) updateBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := parseUUID(w, chi.URLParam(r, "bookID"), "book_id")
	if !ok {
		return
	}
	var req updateBookRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	update := domain.BookUpdate{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		ISBN:        req.ISBN,
	}
	if update.IsEmpty() {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "at least one field must be provided")
		return
	}
	if err := update.Validate(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	book, err := s.catalog.UpdateBook(r.Context(), bookID, update)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(book))
}

// createCopy handles POST /books/{bookID}/copies.
func (s *Server) createCopy(w http.ResponseWriter, r *http.Request) {
	bookID, ok := parseUUID(w, chi.URLParam(r, "bookID"), "book_id")
	if !ok {
		return
	}
	var req createCopyRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	bc := &domain.BookCopy{BookID: bookID, CopyCode: strings.TrimSpace(req.CopyCode)}
	if err := bc.Validate(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.catalog.CreateCopy(r.Context(), bc); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCopyResponse(bc))
}

// listCopies handles GET /books/{bookID}/copies.
func (s *Server) listCopies(w http.ResponseWriter, r *http.Request) {
	bookID, ok := parseUUID(w, chi.URLParam(r, "bookID"), "book_id")
	if !ok {
		return
	}

	copies, err := s.catalog.ListCopies(r.Context(), bookID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := listCopiesResponse{Copies: make([]copyResponse, 0, len(copies))}
	for _, c := range copies {
		resp.Copies = append(resp.Copies, toCopyResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getCopyByCode handles GET /copies/{copyCode}.
func (s *Server) getCopyByCode(w http.ResponseWriter, r *http.Request) {
	bc, err := s.catalog.GetCopyByCode(r.Context(), chi.URLParam(r, "copyCode"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCopyResponse(bc))
}
