package types

import "time"

type Direction string

const (
	DirectionEntry Direction = "ENTRY"
	DirectionExit  Direction = "EXIT"
)

type Outcome string

const (
	OutcomeGranted Outcome = "GRANTED"
	OutcomeDenied  Outcome = "DENIED"
)

// DenialReason is the machine-readable cause attached to a DENIED event.
type DenialReason string

const (
	ReasonNone             DenialReason = ""
	ReasonNotFound         DenialReason = "not_found"
	ReasonPassInvalid      DenialReason = "pass_invalid"
	ReasonAlreadyInside    DenialReason = "already_inside"
	ReasonNoOpenSession    DenialReason = "no_open_session"
	ReasonCapacityExceeded DenialReason = "capacity_exceeded"
	ReasonStaleTimestamp   DenialReason = "stale_timestamp"
	ReasonSystemTimeout    DenialReason = "system_timeout"
)

// Message is the human wording shown by presentation clients.
func (r DenialReason) Message() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonNotFound:
		return "pass or location not recognised"
	case ReasonPassInvalid:
		return "pass is not valid here"
	case ReasonAlreadyInside:
		return "already inside"
	case ReasonNoOpenSession:
		return "no matching entry"
	case ReasonCapacityExceeded:
		return "capacity full"
	case ReasonStaleTimestamp:
		return "scan is older than the last recorded scan"
	case ReasonSystemTimeout:
		return "system busy, please retry"
	default:
		return string(r)
	}
}

type AccessMethod string

const (
	MethodQRCode           AccessMethod = "qr_code"
	MethodManual           AccessMethod = "manual"
	MethodPlateRecognition AccessMethod = "plate_recognition"
	MethodNFCTag           AccessMethod = "nfc_tag"
)

func (m AccessMethod) Valid() bool {
	switch m {
	case MethodQRCode, MethodManual, MethodPlateRecognition, MethodNFCTag:
		return true
	}
	return false
}

// AccessEvent is one entry in the append-only access log.  Seq is assigned by
// the store on append and orders events by arrival.
type AccessEvent struct {
	Seq        int64
	ID         string
	PassID     string
	OwnerID    string
	LocationID string
	Subject    string
	Direction  Direction
	Method     AccessMethod
	OccurredAt time.Time
	RecordedAt time.Time
	Outcome    Outcome
	Reason     DenialReason
	SessionID  string
	Duration   time.Duration // exits only
	ScannedBy  string
}

func (e AccessEvent) Granted() bool { return e.Outcome == OutcomeGranted }

// AccessSession pairs an entry with its eventual exit.  ExitAt is nil while
// the holder is inside.
type AccessSession struct {
	ID         string
	PassID     string
	OwnerID    string
	LocationID string
	Subject    string
	EntryAt    time.Time
	ExitAt     *time.Time
}

func (s AccessSession) Open() bool { return s.ExitAt == nil }

// Duration is the length of a closed session, or the time spent inside as of
// now for an open one.
func (s AccessSession) Duration(now time.Time) time.Duration {
	end := now
	if s.ExitAt != nil {
		end = *s.ExitAt
	}
	if end.Before(s.EntryAt) {
		return 0
	}
	return end.Sub(s.EntryAt)
}
