// Package notify publishes user- and business-facing notifications produced
// by the access engine.  Delivery to devices happens elsewhere; this package
// only hands notifications to a broker or a log.
package notify

import (
	"context"
	"errors"
	"time"
)

// Class groups notifications by audience and topic.
type Class string

const (
	ClassAccess   Class = "access"
	ClassCapacity Class = "capacity"
	ClassPass     Class = "pass"
)

// Notification types.  The strings match what the mobile apps switch on.
const (
	TypeEntryGranted = "entry_granted"
	TypeExitGranted  = "exit_granted"
	TypeAccessDenied = "access_denied"
	TypeAlertRaised  = "capacity_alert"
	TypeAlertCleared = "capacity_alert_cleared"
	TypePassIssued   = "pass_issued"
	TypePassRevoked  = "pass_revoked"
)

type Notification struct {
	ID         string            `json:"id"`
	Class      Class             `json:"class"`
	Type       string            `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	BusinessID string            `json:"business_id,omitempty"`
	LocationID string            `json:"location_id,omitempty"`
	PassID     string            `json:"pass_id,omitempty"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Key is the partition key: all notifications for one location (or, failing
// that, one user) stay ordered.
func (n Notification) Key() string {
	switch {
	case n.LocationID != "":
		return n.LocationID
	case n.UserID != "":
		return n.UserID
	default:
		return n.ID
	}
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

var ErrClosed = errors.New("notify: notifier closed")

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) error { return nil }
