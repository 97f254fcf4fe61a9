package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/axs360/access-engine/internal/axs/service"
	"github.com/axs360/access-engine/internal/axs/types"
)

type recordFunc func(ctx context.Context, req types.ScanRequest) (types.AccessEvent, error)

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.handleRecord(w, r, "RecordEntry", s.tracker.RecordEntry)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.handleRecord(w, r, "RecordExit", s.tracker.RecordExit)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.handleRecord(w, r, "Scan", s.tracker.Scan)
}

// handleRecord serves the three access endpoints.  Denials are answered with
// 200 and granted=false; the event is already in the log.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request, op string, record recordFunc) {
	proto := isProtobuf(r)

	var req types.ScanRequest
	if proto {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		var err error
		if req, err = scanRequestFromProto(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", err.Error())
			return
		}
	} else if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	if err := authorizeRecord(r, op, req); err != nil {
		s.serviceError(w, r, op, err)
		return
	}

	ev, err := record(r.Context(), req)
	status := http.StatusOK
	switch {
	case errors.Is(err, service.ErrTimebound) && ev.ID != "":
		// The timeout was logged as a denial; report it like one.
		status = http.StatusServiceUnavailable
	case err != nil:
		s.serviceError(w, r, op, err)
		return
	}

	resp := types.NewScanResponse(ev, time.Now())
	if proto {
		msg, err := scanResponseToProto(resp)
		if err != nil {
			s.serviceError(w, r, op, err)
			return
		}
		writeProto(w, status, msg)
		return
	}
	writeJSON(w, status, resp)
}

// authorizeRecord keeps pass holders off the scanner endpoint.  Ownership
// and business scoping are enforced by the tracker.
func authorizeRecord(r *http.Request, op string, req types.ScanRequest) error {
	p := principal(r)
	if p.Staff() {
		return nil
	}
	if op == "Scan" || req.PassID == "" {
		return service.ErrForbidden
	}
	return nil
}
