package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/axs360/access-engine/internal/axs/types"
)

// maxProtoBody caps protobuf scan payloads.  A scan encodes to well under
// 1 KiB even with a full token.
const maxProtoBody = 4096

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload.  Gate scanners send "application/x-protobuf".
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "application/x-protobuf" ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

// readProto reads the request body and unmarshals it into msg.
func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxProtoBody))
	if err != nil {
		return err
	}
	return proto.Unmarshal(body, msg)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		// Fall back to a plain-text error if marshalling fails.
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// ── Scan ─────────────────────────────────────────────────────────────────────

// scanRequestFromProto reads the generic Struct scanners send.  Field names
// match the JSON body.
func scanRequestFromProto(s *structpb.Struct) (types.ScanRequest, error) {
	f := s.GetFields()
	str := func(k string) string { return strings.TrimSpace(f[k].GetStringValue()) }

	req := types.ScanRequest{
		PassID:     str("pass_id"),
		Token:      str("token"),
		LocationID: str("location_id"),
		Subject:    str("vehicle_plate"),
		Method:     types.AccessMethod(str("method")),
	}
	if at := str("scanned_at"); at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return types.ScanRequest{}, fmt.Errorf("scanned_at: %w", err)
		}
		req.ScannedAt = t
	}
	return req, nil
}

func scanResponseToProto(r types.ScanResponse) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"ok":             r.OK,
		"granted":        r.Granted,
		"direction":      string(r.Direction),
		"reason":         string(r.Reason),
		"message":        r.Message,
		"event_id":       r.EventID,
		"pass_id":        r.PassID,
		"location_id":    r.LocationID,
		"session_id":     r.SessionID,
		"visit_duration": r.DurationMinutes,
		"server_time":    r.ServerTime,
	})
}
