package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

const (
	DefaultActivityLimit = 20
	MaxActivityLimit     = 100
)

// StatsCache stores computed stats.  Keys embed the location's log
// watermark, so an entry never outlives the log state it was computed from.
type StatsCache interface {
	Get(ctx context.Context, key string) (types.Stats, bool, error)
	Set(ctx context.Context, key string, s types.Stats) error
}

type ReportingStore interface {
	store.AccessEventStore
	GetLocation(ctx context.Context, locationID string) (types.Location, error)
}

// ActivityQuery selects activity by location or by owner.  Exactly one of
// LocationID and OwnerID is set.
type ActivityQuery struct {
	LocationID string
	OwnerID    string
	Limit      int
	Cursor     string
}

// Reporting answers read-only questions about the access log.
type Reporting struct {
	store  ReportingStore
	cache  StatsCache
	logger *zerolog.Logger
	now    Clock
}

func NewReporting(st ReportingStore, cache StatsCache, logger *zerolog.Logger) *Reporting {
	return &Reporting{store: st, cache: cache, logger: logger, now: SystemClock}
}

func (r *Reporting) WithClock(c Clock) *Reporting {
	r.now = c
	return r
}

// RecentActivity returns one page of events, newest first.  Passing the
// returned NextCursor continues where the page ended even if new events
// arrive in between.
func (r *Reporting) RecentActivity(ctx context.Context, q ActivityQuery) (types.ActivityPage, error) {
	if (q.LocationID == "") == (q.OwnerID == "") {
		return types.ActivityPage{}, fmt.Errorf("%w: exactly one of location_id or owner_id is required", ErrInvalidRequest)
	}
	if q.LocationID != "" {
		loc, err := r.store.GetLocation(ctx, q.LocationID)
		if err != nil {
			return types.ActivityPage{}, notFound(err)
		}
		if err := authorizeLocation(ctx, loc); err != nil {
			return types.ActivityPage{}, err
		}
	} else if err := authorizeOwner(ctx, q.OwnerID); err != nil {
		return types.ActivityPage{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}

	f := store.EventFilter{LocationID: q.LocationID, OwnerID: q.OwnerID, Limit: limit + 1}
	if q.Cursor != "" {
		c, err := DecodeCursor(q.Cursor)
		if err != nil {
			return types.ActivityPage{}, err
		}
		f.After = &c
	}

	events, err := r.store.ListEvents(ctx, f)
	if err != nil {
		return types.ActivityPage{}, fmt.Errorf("RecentActivity: %w", err)
	}

	page := types.ActivityPage{Events: make([]types.EventView, 0, min(len(events), limit))}
	if len(events) > limit {
		events = events[:limit]
		last := events[len(events)-1]
		page.NextCursor = EncodeCursor(store.EventCursor{OccurredAt: last.OccurredAt, Seq: last.Seq})
	}
	for _, e := range events {
		page.Events = append(page.Events, types.NewEventView(e))
	}
	return page, nil
}

// EncodeCursor renders a cursor as an opaque URL-safe token.
func EncodeCursor(c store.EventCursor) string {
	raw := strconv.FormatInt(c.OccurredAt.UnixMilli(), 10) + ":" + strconv.FormatInt(c.Seq, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (store.EventCursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return store.EventCursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidRequest)
	}
	msPart, seqPart, ok := strings.Cut(string(b), ":")
	if !ok {
		return store.EventCursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidRequest)
	}
	ms, err1 := strconv.ParseInt(msPart, 10, 64)
	seq, err2 := strconv.ParseInt(seqPart, 10, 64)
	if err1 != nil || err2 != nil {
		return store.EventCursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidRequest)
	}
	return store.EventCursor{OccurredAt: time.UnixMilli(ms).UTC(), Seq: seq}, nil
}

// Stats aggregates the access log of a location over a period.
func (r *Reporting) Stats(ctx context.Context, locationID string, period types.Period) (s types.Stats, err error) {
	ctx, span := tracer.Start(ctx, "Reporting.Stats")
	defer func() { endSpan(span, err) }()

	if period == "" {
		period = types.PeriodWeek
	}
	from, to, err := period.Window(r.now())
	if err != nil {
		return types.Stats{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	loc, err := r.store.GetLocation(ctx, locationID)
	if err != nil {
		return types.Stats{}, notFound(err)
	}
	if err := authorizeLocation(ctx, loc); err != nil {
		return types.Stats{}, err
	}

	watermark, err := r.store.Watermark(ctx, locationID)
	if err != nil {
		return types.Stats{}, fmt.Errorf("Stats watermark: %w", err)
	}
	key := statsKey(locationID, period, from, watermark)
	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("stats cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	events, err := r.store.ListEvents(ctx, store.EventFilter{LocationID: locationID, From: from, To: to})
	if err != nil {
		return types.Stats{}, fmt.Errorf("Stats: %w", err)
	}
	s = Aggregate(events)
	s.LocationID = locationID
	s.Period = period
	s.From, s.To = from, to
	s.Watermark = watermark

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, s); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("stats cache write failed")
		}
	}
	return s, nil
}

// statsKey identifies a snapshot by the window start, to the minute, and the
// log watermark.  A new event or a window that has moved on misses the cache.
func statsKey(locationID string, period types.Period, from time.Time, watermark int64) string {
	return fmt.Sprintf("stats:%s:%s:%d:%d", locationID, period, from.Truncate(time.Minute).Unix(), watermark)
}

// Aggregate derives stats from a set of events.  It depends on nothing but
// its input.
func Aggregate(events []types.AccessEvent) types.Stats {
	s := types.Stats{DeniedByReason: map[types.DenialReason]int{}}

	entriesByVisitor := map[string]int{}
	type day struct {
		visits   int
		visitors map[string]struct{}
	}
	days := map[string]*day{}
	methods := map[types.AccessMethod]int{}
	var stayTotal time.Duration

	for _, e := range events {
		if !e.Granted() {
			s.Denied++
			s.DeniedByReason[e.Reason]++
			continue
		}
		if e.Direction == types.DirectionExit {
			s.TotalExits++
			stayTotal += e.Duration
			continue
		}

		s.TotalEntries++
		visitor := e.OwnerID
		if visitor == "" {
			visitor = e.PassID
		}
		entriesByVisitor[visitor]++
		methods[e.Method]++

		date := e.OccurredAt.UTC().Format("2006-01-02")
		d, ok := days[date]
		if !ok {
			d = &day{visitors: map[string]struct{}{}}
			days[date] = d
		}
		d.visits++
		d.visitors[visitor] = struct{}{}
	}

	s.UniqueVisitors = len(entriesByVisitor)
	if s.TotalExits > 0 {
		s.AverageStayMinutes = int((stayTotal / time.Duration(s.TotalExits)) / time.Minute)
	}
	if s.UniqueVisitors > 0 {
		returning := 0
		for _, n := range entriesByVisitor {
			if n > 1 {
				returning++
			}
		}
		s.VisitorReturnRate = round1(float64(returning) / float64(s.UniqueVisitors) * 100)
	}

	s.Daily = make([]types.DailyStats, 0, len(days))
	for date, d := range days {
		s.Daily = append(s.Daily, types.DailyStats{Date: date, Visits: d.visits, UniqueVisitors: len(d.visitors)})
	}
	sort.Slice(s.Daily, func(i, j int) bool { return s.Daily[i].Date < s.Daily[j].Date })

	s.AccessMethods = make([]types.MethodStats, 0, len(methods))
	for m, n := range methods {
		s.AccessMethods = append(s.AccessMethods, types.MethodStats{
			Method:     m,
			Count:      n,
			Percentage: round1(float64(n) / float64(s.TotalEntries) * 100),
		})
	}
	sort.Slice(s.AccessMethods, func(i, j int) bool {
		if s.AccessMethods[i].Count != s.AccessMethods[j].Count {
			return s.AccessMethods[i].Count > s.AccessMethods[j].Count
		}
		return s.AccessMethods[i].Method < s.AccessMethods[j].Method
	})
	return s
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
