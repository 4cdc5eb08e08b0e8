package memory

import (
	"context"
	"sync"

	"github.com/viant/warden/service/audit"
)

// Log keeps audit records in memory.
type Log struct {
	mu      sync.RWMutex
	records map[string][]*audit.Record
}

var _ audit.Log = (*Log)(nil)

// Append links and stores a copy of record.
func (l *Log) Append(_ context.Context, record *audit.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	trail := l.records[record.RequestID]
	var last *audit.Record
	if len(trail) > 0 {
		last = trail[len(trail)-1]
	}
	audit.Link(record, last)
	l.records[record.RequestID] = append(trail, record.Clone())
	return nil
}

// Query returns copies of the request records.
func (l *Log) Query(_ context.Context, requestID string) ([]*audit.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	trail := l.records[requestID]
	ret := make([]*audit.Record, 0, len(trail))
	for _, record := range trail {
		ret = append(ret, record.Clone())
	}
	return ret, nil
}

// List returns copies of matching records.
func (l *Log) List(_ context.Context, filters ...audit.Filter) ([]*audit.Record, error) {
	query := audit.NewQuery(filters...)
	l.mu.RLock()
	var ret []*audit.Record
	for _, trail := range l.records {
		for _, record := range trail {
			if query.Match(record) {
				ret = append(ret, record.Clone())
			}
		}
	}
	l.mu.RUnlock()
	return query.Apply(ret), nil
}

// New creates an in-memory audit log.
func New() *Log {
	return &Log{records: map[string][]*audit.Record{}}
}
