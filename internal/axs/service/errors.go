package service

import (
	"errors"

	"github.com/axs360/access-engine/internal/axs/types"
)

var (
	ErrInvalidAttributes   = errors.New("invalid pass attributes")
	ErrDuplicateActivePass = errors.New("an active pass already covers this target and window")
	ErrPassInvalid         = errors.New("pass is not valid")
	ErrAlreadyInside       = errors.New("already inside")
	ErrNoOpenSession       = errors.New("no open session")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrStaleTimestamp      = errors.New("timestamp precedes last recorded event")
	ErrTimebound           = errors.New("operation did not complete in time")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidToken        = errors.New("invalid pass token")
	ErrInvalidRequest      = errors.New("invalid request")
)

// DenialErr maps the reason on a DENIED event to its sentinel.  It returns
// nil for ReasonNone.
func DenialErr(r types.DenialReason) error {
	switch r {
	case types.ReasonNone:
		return nil
	case types.ReasonNotFound:
		return ErrNotFound
	case types.ReasonPassInvalid:
		return ErrPassInvalid
	case types.ReasonAlreadyInside:
		return ErrAlreadyInside
	case types.ReasonNoOpenSession:
		return ErrNoOpenSession
	case types.ReasonCapacityExceeded:
		return ErrCapacityExceeded
	case types.ReasonStaleTimestamp:
		return ErrStaleTimestamp
	case types.ReasonSystemTimeout:
		return ErrTimebound
	default:
		return ErrPassInvalid
	}
}
