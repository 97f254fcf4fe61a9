package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
	"github.com/axs360/access-engine/internal/notify"
)

const (
	DefaultOpTimeout    = 2 * time.Second
	DefaultMaxClockSkew = time.Minute
	DefaultMaxScanAge   = 15 * time.Minute
)

// TrackerStore is what the tracker needs from persistence: atomic ledger
// updates plus a standalone append for timeout denials.
type TrackerStore interface {
	store.Ledger
	RecordEvent(ctx context.Context, ev *types.AccessEvent) error
}

// AlertEvaluator is fed every granted transition.
type AlertEvaluator interface {
	EvaluateAlerts(ctx context.Context, locationID string) ([]types.Alert, error)
}

// TokenResolver turns a scanned QR token into a pass id.
type TokenResolver interface {
	Resolve(token string) (string, error)
}

type TrackerConfig struct {
	// OpTimeout bounds each entry/exit decision.  Defaults to 2s.
	OpTimeout time.Duration
	// MaxClockSkew is how far a device timestamp may run ahead of server
	// time.  Timestamps within it are pulled back to server time.  Defaults
	// to 1m.
	MaxClockSkew time.Duration
	// MaxScanAge is how far a device timestamp may trail server time, for
	// scanners uploading buffered scans.  Defaults to 15m.
	MaxScanAge time.Duration
}

// AccessTracker turns pass presentations into session transitions.  Every
// presentation, granted or denied, lands in the access log.
type AccessTracker struct {
	store    TrackerStore
	tokens   TokenResolver
	alerts   AlertEvaluator
	notifier notify.Notifier
	logger   *zerolog.Logger
	timeout  time.Duration
	skew     time.Duration
	maxAge   time.Duration
	now      Clock
}

func NewAccessTracker(
	st TrackerStore,
	tokens TokenResolver,
	alerts AlertEvaluator,
	n notify.Notifier,
	cfg TrackerConfig,
	logger *zerolog.Logger,
) *AccessTracker {
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	skew := cfg.MaxClockSkew
	if skew <= 0 {
		skew = DefaultMaxClockSkew
	}
	maxAge := cfg.MaxScanAge
	if maxAge <= 0 {
		maxAge = DefaultMaxScanAge
	}
	return &AccessTracker{
		store:    st,
		tokens:   tokens,
		alerts:   alerts,
		notifier: n,
		logger:   logger,
		timeout:  timeout,
		skew:     skew,
		maxAge:   maxAge,
		now:      SystemClock,
	}
}

func (t *AccessTracker) WithClock(c Clock) *AccessTracker {
	t.now = c
	return t
}

// RecordEntry opens a session for the pass at the location.  A refused entry
// is returned as a DENIED event with a nil error.
func (t *AccessTracker) RecordEntry(ctx context.Context, req types.ScanRequest) (types.AccessEvent, error) {
	return t.record(ctx, "RecordEntry", req, types.DirectionEntry)
}

// RecordExit closes the oldest matching open session.
func (t *AccessTracker) RecordExit(ctx context.Context, req types.ScanRequest) (types.AccessEvent, error) {
	return t.record(ctx, "RecordExit", req, types.DirectionExit)
}

// Scan resolves req.Token (or uses req.PassID) and records an exit when a
// matching session is open, an entry otherwise.  The choice and the
// transition happen in the same update.
func (t *AccessTracker) Scan(ctx context.Context, req types.ScanRequest) (types.AccessEvent, error) {
	if tok := strings.TrimSpace(req.Token); tok != "" {
		if t.tokens == nil {
			return types.AccessEvent{}, ErrInvalidToken
		}
		passID, err := t.tokens.Resolve(tok)
		if err != nil {
			return types.AccessEvent{}, err
		}
		req.PassID = passID
		if req.Method == "" {
			req.Method = types.MethodQRCode
		}
	}
	return t.record(ctx, "Scan", req, "")
}

func (t *AccessTracker) record(ctx context.Context, op string, req types.ScanRequest, dir types.Direction) (ev types.AccessEvent, err error) {
	ctx, span := tracer.Start(ctx, "AccessTracker."+op)
	defer func() { endSpan(span, err) }()

	ev, err = t.newEvent(ctx, req, dir)
	if err != nil {
		return types.AccessEvent{}, fmt.Errorf("%s: %w", op, err)
	}
	span.SetAttributes(
		attribute.String("pass.id", ev.PassID),
		attribute.String("location.id", ev.LocationID),
	)

	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var pass types.Pass
	err = t.store.Update(opCtx, func(ctx context.Context, tx store.Tx) error {
		e := ev
		p, err := t.decide(ctx, tx, &e, req.Subject)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &e); err != nil {
			return err
		}
		ev, pass = e, p
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			ev = t.recordTimeout(ctx, ev)
			return ev, fmt.Errorf("%s: %w", op, ErrTimebound)
		}
		return types.AccessEvent{}, fmt.Errorf("%s: %w", op, err)
	}

	span.SetAttributes(attribute.String("access.outcome", string(ev.Outcome)), attribute.String("access.reason", string(ev.Reason)))
	t.afterCommit(ctx, ev, pass)
	return ev, nil
}

func (t *AccessTracker) newEvent(ctx context.Context, req types.ScanRequest, dir types.Direction) (types.AccessEvent, error) {
	passID := strings.TrimSpace(req.PassID)
	locationID := strings.TrimSpace(req.LocationID)
	if passID == "" || locationID == "" {
		return types.AccessEvent{}, fmt.Errorf("%w: pass_id and location_id are required", ErrInvalidRequest)
	}
	method := req.Method
	if method == "" {
		method = types.MethodManual
	}
	if !method.Valid() {
		return types.AccessEvent{}, fmt.Errorf("%w: unknown method %q", ErrInvalidRequest, method)
	}

	now := t.now()
	at, err := t.occurredAt(ctx, req.ScannedAt, now)
	if err != nil {
		return types.AccessEvent{}, err
	}

	ev := types.AccessEvent{
		ID:         uuid.NewString(),
		PassID:     passID,
		LocationID: locationID,
		Subject:    strings.ToUpper(strings.TrimSpace(req.Subject)),
		Direction:  dir,
		Method:     method,
		OccurredAt: at.UTC().Truncate(time.Millisecond),
		RecordedAt: now,
	}
	if p, ok := types.PrincipalFrom(ctx); ok {
		ev.ScannedBy = p.UserID
	}
	return ev, nil
}

// occurredAt picks the time a presentation is decided at.  Only staff
// devices and internal callers may supply their own timestamp, and only
// within [now-maxAge, now+skew].  Timestamps ahead of server time are pulled
// back to it so that no event is ever logged in the future.
func (t *AccessTracker) occurredAt(ctx context.Context, scanned, now time.Time) (time.Time, error) {
	if scanned.IsZero() {
		return now, nil
	}
	if p, ok := types.PrincipalFrom(ctx); ok && !p.Staff() {
		return now, nil
	}
	switch {
	case scanned.After(now.Add(t.skew)):
		return time.Time{}, fmt.Errorf("%w: scanned_at is %s ahead of server time", ErrInvalidRequest, scanned.Sub(now).Round(time.Second))
	case scanned.Before(now.Add(-t.maxAge)):
		return time.Time{}, fmt.Errorf("%w: scanned_at is %s behind server time", ErrInvalidRequest, now.Sub(scanned).Round(time.Second))
	case scanned.After(now):
		return now, nil
	}
	return scanned, nil
}

// decide applies the transition rules inside a ledger update.  On a denial it
// fills ev.Reason and leaves the store untouched; the caller still appends ev.
func (t *AccessTracker) decide(ctx context.Context, tx store.Tx, ev *types.AccessEvent, subject string) (types.Pass, error) {
	deny := func(r types.DenialReason) (types.Pass, error) {
		if ev.Direction == "" {
			ev.Direction = types.DirectionEntry
		}
		ev.Outcome = types.OutcomeDenied
		ev.Reason = r
		return types.Pass{}, nil
	}

	loc, err := tx.Location(ctx, ev.LocationID)
	if errors.Is(err, store.ErrNotFound) {
		return deny(types.ReasonNotFound)
	}
	if err != nil {
		return types.Pass{}, err
	}
	if err := authorizeRecorder(ctx, loc); err != nil {
		return types.Pass{}, err
	}

	p, err := tx.Pass(ctx, ev.PassID)
	if errors.Is(err, store.ErrNotFound) {
		return deny(types.ReasonNotFound)
	}
	if err != nil {
		return types.Pass{}, err
	}
	if err := authorizeHolder(ctx, p); err != nil {
		return types.Pass{}, err
	}
	ev.OwnerID = p.OwnerID

	policy := loc.ReentryPolicy
	if policy == "" {
		policy = types.DefaultPolicy(loc.Kind).ReentryPolicy
	}
	if policy == types.ReentryMultiPass && ev.Subject == "" {
		if v, ok := p.Vehicle(); ok {
			ev.Subject = v.Plate
		}
	}

	open, err := tx.OpenSessions(ctx, p.ID, loc.ID)
	if err != nil {
		return types.Pass{}, err
	}
	matching := open
	if policy == types.ReentryMultiPass && ev.Subject != "" {
		matching = matching[:0:0]
		for _, s := range open {
			if s.Subject == ev.Subject {
				matching = append(matching, s)
			}
		}
	}

	if ev.Direction == "" {
		ev.Direction = types.DirectionEntry
		if len(matching) > 0 {
			ev.Direction = types.DirectionExit
		}
	}

	if ev.Direction == types.DirectionEntry && (!p.IsValidAt(ev.OccurredAt) || !p.UsableAt(loc.ID)) {
		return deny(types.ReasonPassInvalid)
	}

	last, err := tx.LastEventAt(ctx, p.ID, loc.ID)
	if err != nil {
		return types.Pass{}, err
	}
	if ev.OccurredAt.Before(last) {
		return deny(types.ReasonStaleTimestamp)
	}

	if ev.Direction == types.DirectionExit {
		if len(matching) == 0 {
			return deny(types.ReasonNoOpenSession)
		}
		return p, t.exit(ctx, tx, ev, p, matching[0])
	}

	if len(matching) > 0 {
		return deny(types.ReasonAlreadyInside)
	}
	if loc.Capacity > 0 && loc.HardCapacity {
		occ, err := tx.Occupancy(ctx, loc.ID)
		if err != nil {
			return types.Pass{}, err
		}
		if occ >= loc.Capacity {
			return deny(types.ReasonCapacityExceeded)
		}
	}
	return p, t.entry(ctx, tx, ev, p)
}

func (t *AccessTracker) entry(ctx context.Context, tx store.Tx, ev *types.AccessEvent, p types.Pass) error {
	sess := types.AccessSession{
		ID:         uuid.NewString(),
		PassID:     p.ID,
		OwnerID:    p.OwnerID,
		LocationID: ev.LocationID,
		Subject:    ev.Subject,
		EntryAt:    ev.OccurredAt,
	}
	if err := tx.InsertSession(ctx, sess); err != nil {
		return err
	}
	if _, err := tx.AdjustOccupancy(ctx, ev.LocationID, 1); err != nil {
		return err
	}
	ev.Outcome = types.OutcomeGranted
	ev.SessionID = sess.ID
	return nil
}

func (t *AccessTracker) exit(ctx context.Context, tx store.Tx, ev *types.AccessEvent, p types.Pass, sess types.AccessSession) error {
	if err := tx.CloseSession(ctx, sess.ID, ev.OccurredAt); err != nil {
		return err
	}
	if _, err := tx.AdjustOccupancy(ctx, ev.LocationID, -1); err != nil {
		return err
	}
	if p.SingleUse() && p.Status == types.PassStatusActive {
		if err := tx.SetPassStatus(ctx, p.ID, types.PassStatusExpired, "single-use pass consumed", ev.RecordedAt); err != nil {
			return err
		}
	}
	ev.Outcome = types.OutcomeGranted
	ev.SessionID = sess.ID
	ev.Subject = sess.Subject
	ev.Duration = ev.OccurredAt.Sub(sess.EntryAt)
	return nil
}

// recordTimeout logs a system_timeout denial for a presentation whose update
// never started.  It runs detached from ctx, which may already be done.
func (t *AccessTracker) recordTimeout(ctx context.Context, ev types.AccessEvent) types.AccessEvent {
	if ev.Direction == "" {
		ev.Direction = types.DirectionEntry
	}
	ev.Outcome = types.OutcomeDenied
	ev.Reason = types.ReasonSystemTimeout

	rctx, cancel := detached(ctx, t.timeout)
	defer cancel()
	if err := t.store.RecordEvent(rctx, &ev); err != nil {
		t.logger.Error().Err(err).Str("pass_id", ev.PassID).Str("location_id", ev.LocationID).Msg("timeout denial not logged")
	}
	t.logger.Warn().Str("pass_id", ev.PassID).Str("location_id", ev.LocationID).Dur("timeout", t.timeout).Msg("access decision timed out")
	return ev
}

func (t *AccessTracker) afterCommit(ctx context.Context, ev types.AccessEvent, p types.Pass) {
	logEv := t.logger.Info()
	if !ev.Granted() {
		logEv = t.logger.Debug()
	}
	logEv.
		Str("event_id", ev.ID).
		Str("pass_id", ev.PassID).
		Str("location_id", ev.LocationID).
		Str("direction", string(ev.Direction)).
		Str("outcome", string(ev.Outcome)).
		Str("reason", string(ev.Reason)).
		Msg("access decision")

	if ev.OwnerID != "" && t.notifier != nil {
		if err := t.notifier.Notify(ctx, accessNotification(ev, p)); err != nil {
			t.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("access notification failed")
		}
	}

	if ev.Granted() && t.alerts != nil {
		if _, err := t.alerts.EvaluateAlerts(ctx, ev.LocationID); err != nil {
			t.logger.Warn().Err(err).Str("location_id", ev.LocationID).Msg("alert evaluation failed")
		}
	}
}

func accessNotification(ev types.AccessEvent, p types.Pass) notify.Notification {
	n := notify.Notification{
		Class:      notify.ClassAccess,
		UserID:     ev.OwnerID,
		LocationID: ev.LocationID,
		PassID:     ev.PassID,
		Data:       map[string]string{"event_id": ev.ID, "direction": string(ev.Direction)},
		CreatedAt:  ev.RecordedAt,
	}
	switch {
	case !ev.Granted():
		n.Type = notify.TypeAccessDenied
		n.Title = "Access denied"
		n.Message = ev.Reason.Message()
		n.Data["reason"] = string(ev.Reason)
	case ev.Direction == types.DirectionEntry:
		n.Type = notify.TypeEntryGranted
		n.Title = "Welcome"
		n.Message = passLabel(p) + " checked in"
	default:
		n.Type = notify.TypeExitGranted
		n.Title = "See you soon"
		n.Message = fmt.Sprintf("%s checked out after %d min", passLabel(p), int(ev.Duration/time.Minute))
	}
	return n
}
