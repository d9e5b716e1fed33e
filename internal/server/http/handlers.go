package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/lending"
	"github.com/helixir/library-lending-service/internal/observability"
)

// Pagination and request size limits.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// borrow handles POST /loans.
func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	// Both ids passed the uuid rule.
	memberID, copyID := uuid.MustParse(req.MemberID), uuid.MustParse(req.CopyID)

	loan, err := s.lending.Borrow(r.Context(), memberID, copyID, s.dueAt(req.DueAt))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanResponse(loan, s.now()))
}

// borrowByBook handles POST /loans/by-book.
func (s *Server) borrowByBook(w http.ResponseWriter, r *http.Request) {
	var req borrowByBookRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	memberID, bookID := uuid.MustParse(req.MemberID), uuid.MustParse(req.BookID)

	loan, err := s.lending.BorrowByBook(r.Context(), memberID, bookID, s.dueAt(req.DueAt))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanResponse(loan, s.now()))
}

// returnLoan handles POST /loans/{loanID}/return.
func (s *Server) returnLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseUUID(w, chi.URLParam(r, "loanID"), "loan_id")
	if !ok {
		return
	}

	loan, err := s.lending.ReturnLoan(r.Context(), loanID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan, s.now()))
}

// getLoan handles GET /loans/{loanID}.
func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseUUID(w, chi.URLParam(r, "loanID"), "loan_id")
	if !ok {
		return
	}

	loan, err := s.lending.GetLoan(r.Context(), loanID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan, s.now()))
}

// listLoans handles GET /loans?member_id=&active_only=&limit=&offset=.
func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePaginationParams(w, r)
	if !ok {
		return
	}
	params := lending.ListLoansParams{Limit: limit, Offset: offset}

	q := r.URL.Query()
	if v := q.Get("member_id"); v != "" {
		memberID, ok := parseUUID(w, v, "member_id")
		if !ok {
			return
		}
		params.MemberID = &memberID
	}
	if v := q.Get("active_only"); v != "" {
		activeOnly, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "active_only must be a boolean")
			return
		}
		params.ActiveOnly = activeOnly
	}

	loans, err := s.lending.ListLoans(r.Context(), params)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	now := s.now()
	resp := listLoansResponse{
		Loans:  make([]loanDetailsResponse, 0, len(loans)),
		Limit:  limit,
		Offset: offset,
	}
	for _, l := range loans {
		resp.Loans = append(resp.Loans, toLoanDetailsResponse(l, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

// dueAt applies the default loan period when the request omits due_at.
func (s *Server) dueAt(requested *time.Time) time.Time {
	if requested != nil {
		return requested.UTC()
	}
	return s.now().UTC().Add(s.loanPeriod)
}

// decodeRequest reads, decodes, and validates a JSON body, writing a 4xx
// response and returning false on failure.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "failed to read request body")
		return false
	}
	if len(body) > maxRequestBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "request body too large")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, validationMessage(err))
		return false
	}
	return true
}

// writeDomainError maps domain errors to HTTP status codes and logs
// unexpected ones. Internal error details are not leaked to clients.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	status, _ := writeDomainError(w, err)
	if status >= http.StatusInternalServerError {
		logger := observability.WithRequestContext(s.logger, r.Context())
		logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
}

// writeDomainError writes the error response for err and returns the status
// and code it chose.
func writeDomainError(w http.ResponseWriter, err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	status, code, message := classifyError(err)
	writeError(w, status, code, message)
	return status, code
}

func classifyError(err error) (status int, code, message string) {
	var (
		nf *domain.NotFoundError
		ve *domain.ValidationError
		ae *domain.AlreadyExistsError
	)
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound, codeNotFound, fmt.Sprintf("%s not found", nf.Entity)
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "resource not found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, codeCopyOnLoan, "copy is already on loan"
	case errors.Is(err, domain.ErrAlreadyReturned):
		return http.StatusConflict, codeAlreadyReturned, "loan already returned"
	case errors.Is(err, domain.ErrNoCopies):
		return http.StatusConflict, codeNoCopies, "book has no copies"
	case errors.Is(err, domain.ErrAllCopiesOnLoan):
		return http.StatusConflict, codeAllCopiesOnLoan, "all copies are currently on loan"
	case errors.As(err, &ae):
		return http.StatusConflict, codeAlreadyExists, fmt.Sprintf("%s with this %s already exists", ae.Entity, ae.Field)
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, codeAlreadyExists, "resource already exists"
	case errors.As(err, &ve):
		return http.StatusBadRequest, codeInvalidRequest, ve.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, codeInvalidRequest, "invalid input"
	default:
		return http.StatusInternalServerError, codeInternal, "internal server error"
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing the input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts limit and offset from query parameters,
// applying the default and maximum page size.
func parsePaginationParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()

	limit = defaultPageSize
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = parsed
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if v := q.Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = parsed
	}

	return limit, offset, true
}
