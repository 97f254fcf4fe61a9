package types

import (
	"fmt"
	"time"
)

type Period string

const (
	PeriodToday   Period = "today"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// Window returns the [from, to) interval the period covers as of now.
func (p Period) Window(now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	switch p {
	case PeriodToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), now, nil
	case PeriodWeek:
		return now.AddDate(0, 0, -7), now, nil
	case PeriodMonth:
		return now.AddDate(0, 0, -30), now, nil
	case PeriodQuarter:
		return now.AddDate(0, 0, -90), now, nil
	case PeriodYear:
		return now.AddDate(0, 0, -365), now, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", p)
	}
}

type DailyStats struct {
	Date           string `json:"date"`
	Visits         int    `json:"visits"`
	UniqueVisitors int    `json:"unique_visitors"`
}

type MethodStats struct {
	Method     AccessMethod `json:"method"`
	Count      int          `json:"count"`
	Percentage float64      `json:"percentage"`
}

// Stats is an aggregate over the access log for one location and period.
// Every field is recomputable from the log alone.
type Stats struct {
	LocationID         string               `json:"location_id"`
	Period             Period               `json:"period"`
	From               time.Time            `json:"from"`
	To                 time.Time            `json:"to"`
	TotalEntries       int                  `json:"total_visits"`
	TotalExits         int                  `json:"total_exits"`
	Denied             int                  `json:"denied"`
	DeniedByReason     map[DenialReason]int `json:"denied_by_reason,omitempty"`
	UniqueVisitors     int                  `json:"unique_visitors"`
	AverageStayMinutes int                  `json:"average_visit_duration"`
	VisitorReturnRate  float64              `json:"visitor_return_rate"`
	Daily              []DailyStats         `json:"daily_stats"`
	AccessMethods      []MethodStats        `json:"access_method_breakdown"`
	Watermark          int64                `json:"version"`
}

type ActivityPage struct {
	Events     []EventView `json:"events"`
	NextCursor string      `json:"next_cursor,omitempty"`
}
