package httpapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/axs360/access-engine/internal/axs/service"
	"github.com/axs360/access-engine/internal/axs/types"
)

func (s *Server) handleRegisterLocation(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req types.LocationRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	loc, err := s.locations.Register(r.Context(), req)
	if err != nil {
		s.serviceError(w, r, "RegisterLocation", err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	loc, err := s.locations.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		s.serviceError(w, r, "GetLocation", err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	locs, err := s.locations.List(r.Context())
	if err != nil {
		s.serviceError(w, r, "ListLocations", err)
		return
	}
	if locs == nil {
		locs = []types.Location{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locs})
}

func (s *Server) handleOccupancy(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	occ, err := s.capacity.GetOccupancy(r.Context(), ps.ByName("id"))
	if err != nil {
		s.serviceError(w, r, "GetOccupancy", err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	alerts, err := s.alerts(r, ps.ByName("id"))
	if err != nil {
		s.serviceError(w, r, "Alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *Server) handleEvaluateAlerts(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if _, err := s.alerts(r, id); err != nil {
		s.serviceError(w, r, "EvaluateAlerts", err)
		return
	}
	raised, err := s.capacity.EvaluateAlerts(r.Context(), id)
	if err != nil {
		s.serviceError(w, r, "EvaluateAlerts", err)
		return
	}
	if raised == nil {
		raised = []types.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"raised": raised, "active": s.capacity.ActiveAlerts(id)})
}

// alerts returns the active alerts, enforcing that only staff read them.
func (s *Server) alerts(r *http.Request, locationID string) ([]types.Alert, error) {
	if !principal(r).Staff() {
		return nil, service.ErrForbidden
	}
	alerts, err := s.capacity.Alerts(r.Context(), locationID)
	if alerts == nil {
		alerts = []types.Alert{}
	}
	return alerts, err
}

func (s *Server) handleLocationActivity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, err := queryLimit(r)
	if err != nil {
		s.serviceError(w, r, "RecentActivity", err)
		return
	}
	page, err := s.reporting.RecentActivity(r.Context(), service.ActivityQuery{
		LocationID: ps.ByName("id"),
		Limit:      limit,
		Cursor:     r.URL.Query().Get("cursor"),
	})
	if err != nil {
		s.serviceError(w, r, "RecentActivity", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	stats, err := s.reporting.Stats(r.Context(), ps.ByName("id"), types.Period(r.URL.Query().Get("period")))
	if err != nil {
		s.serviceError(w, r, "Stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
