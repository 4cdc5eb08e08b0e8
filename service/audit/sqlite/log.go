package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/audit"
)

// Log stores audit records in the audit_records table keyed (request_id, seq).
type Log struct {
	dsn string

	mu sync.Mutex
	db *sql.DB
}

var _ audit.Log = (*Log)(nil)

const columns = `request_id, seq, event, from_status, to_status, actor, message, detail_json, time_unix_nano, prev_hash, hash`

// New opens (and migrates) the audit table for dsn.
func New(dsn string) (*Log, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing sqlite dsn")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return NewWithDB(db)
}

// NewWithDB uses an already opened database.
func NewWithDB(db *sql.DB) (*Log, error) {
	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Append links and inserts record within a transaction.
func (l *Log) Append(ctx context.Context, record *audit.Record) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.Unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	var last *audit.Record
	var seq int
	var hash string
	err = tx.QueryRowContext(ctx, `SELECT seq, hash FROM audit_records WHERE request_id = ? ORDER BY seq DESC LIMIT 1`, record.RequestID).Scan(&seq, &hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return audit.Unavailable(err)
	default:
		last = &audit.Record{Seq: seq, Hash: hash}
	}
	audit.Link(record, last)
	var detailJSON interface{}
	if record.Detail != nil {
		data, err := json.Marshal(record.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal audit detail: %w", err)
		}
		detailJSON = string(data)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_records (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RequestID, record.Seq, string(record.Event), string(record.From), string(record.To),
		record.Actor, record.Message, detailJSON, record.Time.UnixNano(), record.PrevHash, record.Hash)
	if err != nil {
		return audit.Unavailable(err)
	}
	if err = tx.Commit(); err != nil {
		return audit.Unavailable(err)
	}
	return nil
}

// Query returns the request trail ordered by seq.
func (l *Log) Query(ctx context.Context, requestID string) ([]*audit.Record, error) {
	return l.query(ctx, `SELECT `+columns+` FROM audit_records WHERE request_id = ? ORDER BY seq`, requestID)
}

// List returns matching records ordered by (time, request_id, seq).
func (l *Log) List(ctx context.Context, filters ...audit.Filter) ([]*audit.Record, error) {
	query := audit.NewQuery(filters...)
	var where []string
	var args []interface{}
	in := func(column string, values []string) {
		where = append(where, column+" IN (?"+strings.Repeat(", ?", len(values)-1)+")")
		for _, value := range values {
			args = append(args, value)
		}
	}
	if len(query.Statuses) > 0 {
		in("to_status", statusStrings(query.Statuses))
	}
	if len(query.Events) > 0 {
		in("event", eventStrings(query.Events))
	}
	if len(query.RequestIDs) > 0 {
		in("request_id", query.RequestIDs)
	}
	if !query.Since.IsZero() {
		where = append(where, "time_unix_nano >= ?")
		args = append(args, query.Since.UnixNano())
	}
	if !query.Until.IsZero() {
		where = append(where, "time_unix_nano < ?")
		args = append(args, query.Until.UnixNano())
	}
	SQL := `SELECT ` + columns + ` FROM audit_records`
	if len(where) > 0 {
		SQL += " WHERE " + strings.Join(where, " AND ")
	}
	SQL += " ORDER BY time_unix_nano, request_id, seq"
	if query.Limit > 0 {
		SQL += fmt.Sprintf(" LIMIT %d", query.Limit)
	}
	return l.query(ctx, SQL, args...)
}

// Close closes the database.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}

func (l *Log) query(ctx context.Context, SQL string, args ...interface{}) ([]*audit.Record, error) {
	rows, err := l.db.QueryContext(ctx, SQL, args...)
	if err != nil {
		return nil, audit.Unavailable(err)
	}
	defer rows.Close()
	var ret []*audit.Record
	for rows.Next() {
		var (
			record          audit.Record
			event, from, to string
			detailJSON      sql.NullString
			timeUnixNano    int64
		)
		if err = rows.Scan(&record.RequestID, &record.Seq, &event, &from, &to, &record.Actor, &record.Message,
			&detailJSON, &timeUnixNano, &record.PrevHash, &record.Hash); err != nil {
			return nil, audit.Unavailable(err)
		}
		record.Event = audit.Event(event)
		record.From = request.Status(from)
		record.To = request.Status(to)
		record.Time = time.Unix(0, timeUnixNano).UTC()
		if detailJSON.Valid {
			record.Detail = &audit.Detail{}
			if err = json.Unmarshal([]byte(detailJSON.String), record.Detail); err != nil {
				return nil, fmt.Errorf("invalid audit detail %v/%d: %w", record.RequestID, record.Seq, err)
			}
		}
		ret = append(ret, &record)
	}
	if err = rows.Err(); err != nil {
		return nil, audit.Unavailable(err)
	}
	return ret, nil
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`
CREATE TABLE IF NOT EXISTS audit_records (
  request_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  event TEXT NOT NULL,
  from_status TEXT,
  to_status TEXT NOT NULL,
  actor TEXT,
  message TEXT NOT NULL,
  detail_json TEXT,
  time_unix_nano INTEGER NOT NULL,
  prev_hash TEXT,
  hash TEXT NOT NULL,
  PRIMARY KEY (request_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_audit_records_time ON audit_records(time_unix_nano);
`)
	return err
}

func statusStrings(statuses []request.Status) []string {
	ret := make([]string, 0, len(statuses))
	for _, status := range statuses {
		ret = append(ret, string(status))
	}
	return ret
}

func eventStrings(events []audit.Event) []string {
	ret := make([]string, 0, len(events))
	for _, event := range events {
		ret = append(ret, string(event))
	}
	return ret
}
