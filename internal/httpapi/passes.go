package httpapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/axs360/access-engine/internal/axs/service"
	"github.com/axs360/access-engine/internal/axs/types"
)

// canSeePass lets staff see any pass and users only their own.
func canSeePass(p types.Principal, pass types.Pass) bool {
	return p.Staff() || (p.UserID != "" && p.UserID == pass.OwnerID)
}

func (s *Server) handleIssuePass(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req types.IssuePassRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	p := principal(r)
	switch p.Role {
	case types.RoleAdmin:
	case types.RoleUser:
		if req.OwnerID == "" {
			req.OwnerID = p.UserID
		}
		if req.OwnerID != p.UserID {
			s.serviceError(w, r, "IssuePass", service.ErrForbidden)
			return
		}
	default:
		s.serviceError(w, r, "IssuePass", service.ErrForbidden)
		return
	}

	pass, err := s.registry.IssuePass(r.Context(), req)
	if err != nil {
		s.serviceError(w, r, "IssuePass", err)
		return
	}
	writeJSON(w, http.StatusCreated, types.NewPassView(pass))
}

func (s *Server) handleGetPass(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pass, ok := s.visiblePass(w, r, ps.ByName("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, types.NewPassView(pass))
}

// visiblePass loads a pass the caller may see, writing the error response
// otherwise.  Passes belonging to someone else read as not found.
func (s *Server) visiblePass(w http.ResponseWriter, r *http.Request, id string) (types.Pass, bool) {
	pass, err := s.registry.GetPass(r.Context(), id)
	if err == nil && !canSeePass(principal(r), pass) {
		err = service.ErrNotFound
	}
	if err != nil {
		s.serviceError(w, r, "GetPass", err)
		return types.Pass{}, false
	}
	return pass, true
}

func (s *Server) handleRevokePass(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req types.RevokePassRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	id := ps.ByName("id")
	if err := s.registry.RevokePass(r.Context(), id, req.Reason); err != nil {
		s.serviceError(w, r, "RevokePass", err)
		return
	}
	pass, err := s.registry.GetPass(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, "RevokePass", err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewPassView(pass))
}

func (s *Server) handlePassToken(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pass, ok := s.visiblePass(w, r, ps.ByName("id"))
	if !ok {
		return
	}
	if principal(r).UserID != pass.OwnerID {
		s.serviceError(w, r, "PassToken", service.ErrForbidden)
		return
	}
	tok, err := s.tokens.Issue(pass)
	if err != nil {
		s.serviceError(w, r, "PassToken", err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleMyPasses(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	passes, err := s.registry.ListPasses(r.Context(), principal(r).UserID)
	if err != nil {
		s.serviceError(w, r, "ListPasses", err)
		return
	}
	out := make([]types.PassView, 0, len(passes))
	for _, p := range passes {
		out = append(out, types.NewPassView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"passes": out})
}

func (s *Server) handleMyActivity(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := queryLimit(r)
	if err != nil {
		s.serviceError(w, r, "RecentActivity", err)
		return
	}
	page, err := s.reporting.RecentActivity(r.Context(), service.ActivityQuery{
		OwnerID: principal(r).UserID,
		Limit:   limit,
		Cursor:  r.URL.Query().Get("cursor"),
	})
	if err != nil {
		s.serviceError(w, r, "RecentActivity", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
