// Package payments turns settled payments into passes.  Payment processing
// itself happens upstream; this package only consumes its events.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/axs360/access-engine/internal/axs/service"
	"github.com/axs360/access-engine/internal/axs/types"
)

const RoutingKeySucceeded = "payment.succeeded"

// Products sold by the apps.
const (
	ProductVehicle   = "vehicle_pass"
	ProductLounge    = "lounge_pass"
	ProductLoungeDay = "lounge_day_pass"
)

// passNamespace scopes pass ids derived from payment ids.
var passNamespace = uuid.MustParse("6f1d3c2e-8a4b-4f59-9e7d-2b5c1a0e9d47")

type PaymentSucceeded struct {
	Event   string `json:"event"`
	Version int    `json:"version"`
	Data    struct {
		PaymentID string                `json:"payment_id"`
		UserID    string                `json:"user_id"`
		Product   string                `json:"product"`
		Vehicle   *types.VehicleDetails `json:"vehicle,omitempty"`
		Lounge    *types.LoungeDetails  `json:"lounge,omitempty"`
		ValidDays int                   `json:"valid_days"`
		PaidAt    time.Time             `json:"paid_at"`
	} `json:"data"`
}

// PassID derives the pass id for a payment.  Redelivery of the same payment
// therefore hits the registry's idempotent issue path.
func PassID(paymentID string) string {
	return uuid.NewSHA1(passNamespace, []byte(paymentID)).String()
}

type Issuer interface {
	IssuePass(ctx context.Context, req types.IssuePassRequest) (types.Pass, error)
}

type Outcome int

const (
	Ack     Outcome = iota
	Requeue         // transient failure, try again
	Drop            // poison message, never retry
)

type Handler struct {
	issuer Issuer
	logger *zerolog.Logger
}

func NewHandler(issuer Issuer, logger *zerolog.Logger) *Handler {
	return &Handler{issuer: issuer, logger: logger}
}

// Handle processes one message body and says what to do with it.
func (h *Handler) Handle(ctx context.Context, routingKey string, body []byte) Outcome {
	if routingKey != RoutingKeySucceeded {
		return Ack
	}

	var evt PaymentSucceeded
	if err := json.Unmarshal(body, &evt); err != nil {
		h.logger.Error().Err(err).Msg("payment event unmarshal failed")
		return Drop
	}
	req, err := issueRequest(evt)
	if err != nil {
		h.logger.Warn().Err(err).Str("payment_id", evt.Data.PaymentID).Msg("invalid payment event")
		return Drop
	}

	p, err := h.issuer.IssuePass(ctx, req)
	switch {
	case err == nil:
		h.logger.Info().Str("payment_id", evt.Data.PaymentID).Str("pass_id", p.ID).Msg("pass issued for payment")
		return Ack
	case errors.Is(err, service.ErrDuplicateActivePass):
		// The holder already has cover for this window; nothing to add.
		h.logger.Warn().Err(err).Str("payment_id", evt.Data.PaymentID).Msg("payment overlaps an active pass")
		return Ack
	case errors.Is(err, service.ErrInvalidAttributes), errors.Is(err, service.ErrInvalidRequest):
		h.logger.Warn().Err(err).Str("payment_id", evt.Data.PaymentID).Msg("payment event rejected")
		return Drop
	default:
		h.logger.Error().Err(err).Str("payment_id", evt.Data.PaymentID).Msg("issue pass failed")
		return Requeue
	}
}

func issueRequest(evt PaymentSucceeded) (types.IssuePassRequest, error) {
	d := evt.Data
	if strings.TrimSpace(d.PaymentID) == "" || strings.TrimSpace(d.UserID) == "" {
		return types.IssuePassRequest{}, fmt.Errorf("payment_id and user_id are required")
	}

	req := types.IssuePassRequest{
		ID:        PassID(d.PaymentID),
		OwnerID:   d.UserID,
		ValidFrom: d.PaidAt,
	}
	switch d.Product {
	case ProductVehicle:
		req.Kind = types.PassKindVehicle
		req.Vehicle = d.Vehicle
	case ProductLounge, ProductLoungeDay:
		req.Kind = types.PassKindLounge
		if d.Lounge != nil {
			l := *d.Lounge
			l.SingleUse = d.Product == ProductLoungeDay
			req.Lounge = &l
		}
	default:
		return types.IssuePassRequest{}, fmt.Errorf("unknown product %q", d.Product)
	}

	if d.ValidDays > 0 {
		from := d.PaidAt
		if from.IsZero() {
			from = time.Now().UTC()
			req.ValidFrom = from
		}
		until := from.AddDate(0, 0, d.ValidDays)
		req.ValidUntil = &until
	}
	return req, nil
}

// Serve acknowledges each delivery according to Handle until ctx ends or
// msgs is closed.
func (h *Handler) Serve(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			var err error
			switch h.Handle(ctx, d.RoutingKey, d.Body) {
			case Ack:
				err = d.Ack(false)
			case Requeue:
				err = d.Nack(false, true)
			case Drop:
				err = d.Nack(false, false)
			}
			if err != nil {
				h.logger.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("acknowledge failed")
			}
		}
	}
}
