package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/repository"
)

// createMember handles POST /members.
func (s *Server) createMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	member := &domain.Member{
		Name:  strings.TrimSpace(req.Name),
		Email: req.Email,
		Phone: req.Phone,
	}
	if err := member.Validate(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.members.Create(r.Context(), member); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberResponse(member))
}

// listMembers handles GET /members.
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePaginationParams(w, r)
	if !ok {
		return
	}

	members, err := s.members.List(r.Context(), repository.PageFilter{Limit: limit, Offset: offset})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := listMembersResponse{
		Members: make([]memberResponse, 0, len(members)),
		Limit:   limit,
		Offset:  offset,
	}
	for _, m := range members {
		resp.Members = append(resp.Members, toMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getMember handles GET /members/{memberID}.
func (s *Server) getMember(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseUUID(w, chi.URLParam(r, "memberID"), "member_id")
	if !ok {
		return
	}

	member, err := s.members.Get(r.Context(), memberID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(member))
}

// updateMember handles PUT /members/{memberID}.
func (s *Server) updateMember(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseUUID(w, chi.URLParam(r, "memberID"), "member_id")
	if !ok {
		return
	}
	var req updateMemberRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	update := domain.MemberUpdate{Name: req.Name, Email: req.Email, Phone: req.Phone}
	if update.IsEmpty() {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "at least one field must be provided")
		return
	}
	if err := update.Validate(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	member, err := s.members.Update(r.Context(), memberID, update)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(member))
}
