package audit

import (
	"sort"
	"time"

	"github.com/viant/warden/model/request"
)

// Query holds List criteria.
type Query struct {
	Statuses   []request.Status
	Events     []Event
	RequestIDs []string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Filter configures a Query.
type Filter func(q *Query)

// WithStatus matches records moving a request into any of statuses.
func WithStatus(statuses ...request.Status) Filter {
	return func(q *Query) {
		q.Statuses = append(q.Statuses, statuses...)
	}
}

// WithEvent matches records of any of events.
func WithEvent(events ...Event) Filter {
	return func(q *Query) {
		q.Events = append(q.Events, events...)
	}
}

// WithRequestID matches records of any of ids.
func WithRequestID(ids ...string) Filter {
	return func(q *Query) {
		q.RequestIDs = append(q.RequestIDs, ids...)
	}
}

// WithSince matches records at or after since.
func WithSince(since time.Time) Filter {
	return func(q *Query) {
		q.Since = since
	}
}

// WithUntil matches records strictly before until.
func WithUntil(until time.Time) Filter {
	return func(q *Query) {
		q.Until = until
	}
}

// WithLimit caps the number of returned records.
func WithLimit(limit int) Filter {
	return func(q *Query) {
		q.Limit = limit
	}
}

// NewQuery applies filters.
func NewQuery(filters ...Filter) *Query {
	ret := &Query{}
	for _, filter := range filters {
		filter(ret)
	}
	return ret
}

// Match reports whether record satisfies every criterion except Limit.
func (q *Query) Match(record *Record) bool {
	if len(q.Statuses) > 0 && !contains(q.Statuses, record.To) {
		return false
	}
	if len(q.Events) > 0 && !contains(q.Events, record.Event) {
		return false
	}
	if len(q.RequestIDs) > 0 && !contains(q.RequestIDs, record.RequestID) {
		return false
	}
	if !q.Since.IsZero() && record.Time.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !record.Time.Before(q.Until) {
		return false
	}
	return true
}

// Apply filters, orders and limits records.
func (q *Query) Apply(records []*Record) []*Record {
	ret := make([]*Record, 0, len(records))
	for _, record := range records {
		if q.Match(record) {
			ret = append(ret, record)
		}
	}
	Sort(ret)
	if q.Limit > 0 && len(ret) > q.Limit {
		ret = ret[:q.Limit]
	}
	return ret
}

// Sort orders records by (Time, RequestID, Seq).
func Sort(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.RequestID != b.RequestID {
			return a.RequestID < b.RequestID
		}
		return a.Seq < b.Seq
	})
}

func contains[T comparable](values []T, value T) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}
