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
	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/dao/criteria"
)

// Service implements the request table on SQLite.
type Service struct {
	dsn string

	mu sync.Mutex
	db *sql.DB
}

var _ dao.Service[string, request.OperationRequest] = (*Service)(nil)

const columns = `id, kind, parameters_json, required_permission, risk_level, requester, description,
  created_at_unix_nano, expires_at_unix_nano, updated_at_unix_nano, status, decision_json, result, error`

// New opens (and migrates) the request table for dsn.
func New(dsn string) (*Service, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing sqlite dsn")
	}
	s := &Service{dsn: dsn}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithDB uses an already opened database.
func NewWithDB(db *sql.DB) (*Service, error) {
	s := &Service{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save inserts or replaces a request row.
func (s *Service) Save(ctx context.Context, req *request.OperationRequest) error {
	if req == nil {
		return dao.ErrNilEntity
	}
	if req.ID == "" {
		return dao.ErrInvalidID
	}
	paramsJSON, err := json.Marshal(req.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	var decisionJSON []byte
	if req.Decision != nil {
		if decisionJSON, err = json.Marshal(req.Decision); err != nil {
			return fmt.Errorf("failed to marshal decision: %w", err)
		}
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO operation_requests (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  kind = excluded.kind,
  parameters_json = excluded.parameters_json,
  required_permission = excluded.required_permission,
  risk_level = excluded.risk_level,
  requester = excluded.requester,
  description = excluded.description,
  created_at_unix_nano = excluded.created_at_unix_nano,
  expires_at_unix_nano = excluded.expires_at_unix_nano,
  updated_at_unix_nano = excluded.updated_at_unix_nano,
  status = excluded.status,
  decision_json = excluded.decision_json,
  result = excluded.result,
  error = excluded.error
`, req.ID, req.Kind, string(paramsJSON), req.RequiredPermission.String(), req.RiskLevel.String(),
		req.Requester, req.Description, unixNano(req.CreatedAt), unixNano(req.ExpiresAt), unixNano(req.UpdatedAt),
		string(req.Status), nullString(decisionJSON), req.Result, req.Error)
	if err != nil {
		return fmt.Errorf("failed to save request %v: %w", req.ID, err)
	}
	return nil
}

// Load returns a request or dao.ErrNotFound.
func (s *Service) Load(ctx context.Context, id string) (*request.OperationRequest, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM operation_requests WHERE id = ?`, id)
	ret, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request %v: %w", id, err)
	}
	return ret, nil
}

// Delete removes a request row.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM operation_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete request %v: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return dao.ErrNotFound
	}
	return nil
}

// List returns requests matching Status, Kind and Requester parameters ordered by creation time.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*request.OperationRequest, error) {
	var where []string
	var args []interface{}
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		column := ""
		switch parameter.Name {
		case criteria.Status:
			column = "status"
		case criteria.Kind:
			column = "kind"
		case criteria.Requester:
			column = "requester"
		default:
			continue
		}
		values := criteria.Values(parameter)
		if len(values) == 0 {
			where = append(where, "1 = 0")
			continue
		}
		where = append(where, column+" IN (?"+strings.Repeat(", ?", len(values)-1)+")")
		for _, value := range values {
			args = append(args, value)
		}
	}
	SQL := `SELECT ` + columns + ` FROM operation_requests`
	if len(where) > 0 {
		SQL += " WHERE " + strings.Join(where, " AND ")
	}
	SQL += " ORDER BY created_at_unix_nano, id"
	rows, err := s.db.QueryContext(ctx, SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()
	var ret []*request.OperationRequest
	for rows.Next() {
		req, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		ret = append(ret, req)
	}
	return ret, rows.Err()
}

// Close closes the database.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner) (*request.OperationRequest, error) {
	var (
		ret                             request.OperationRequest
		paramsJSON, requiredPermission  string
		riskLevel, status               string
		createdAt, expiresAt, updatedAt int64
		decisionJSON                    sql.NullString
	)
	err := row.Scan(&ret.ID, &ret.Kind, &paramsJSON, &requiredPermission, &riskLevel, &ret.Requester, &ret.Description,
		&createdAt, &expiresAt, &updatedAt, &status, &decisionJSON, &ret.Result, &ret.Error)
	if err != nil {
		return nil, err
	}
	if ret.RequiredPermission, err = permission.ParseLevel(requiredPermission); err != nil {
		return nil, err
	}
	if ret.RiskLevel, err = permission.ParseRisk(riskLevel); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(paramsJSON), &ret.Parameters); err != nil {
		return nil, fmt.Errorf("invalid parameters of %v: %w", ret.ID, err)
	}
	if decisionJSON.Valid && decisionJSON.String != "" {
		ret.Decision = &request.Decision{}
		if err = json.Unmarshal([]byte(decisionJSON.String), ret.Decision); err != nil {
			return nil, fmt.Errorf("invalid decision of %v: %w", ret.ID, err)
		}
	}
	ret.CreatedAt = fromUnixNano(createdAt)
	ret.ExpiresAt = fromUnixNano(expiresAt)
	ret.UpdatedAt = fromUnixNano(updatedAt)
	ret.Status = request.Status(status)
	return &ret, nil
}

func (s *Service) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	s.db = db
	return s.migrate()
}

func (s *Service) migrate() error {
	if s.db == nil {
		return fmt.Errorf("sqlite db is not open")
	}
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS operation_requests (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  parameters_json TEXT NOT NULL,
  required_permission TEXT NOT NULL,
  risk_level TEXT NOT NULL,
  requester TEXT,
  description TEXT,
  created_at_unix_nano INTEGER NOT NULL,
  expires_at_unix_nano INTEGER NOT NULL,
  updated_at_unix_nano INTEGER NOT NULL,
  status TEXT NOT NULL,
  decision_json TEXT,
  result TEXT,
  error TEXT
);
CREATE INDEX IF NOT EXISTS idx_operation_requests_status ON operation_requests(status);
`)
	return err
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromUnixNano(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

func nullString(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
