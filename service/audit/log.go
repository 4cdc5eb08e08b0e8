package audit

import (
	"context"
	"errors"
	"fmt"
)

// ErrStorageUnavailable is reported when the audit storage cannot be read or written.
var ErrStorageUnavailable = errors.New("audit: storage unavailable")

// Log is an append-only audit log.
type Log interface {
	// Append assigns Seq, PrevHash and Hash and persists the record.
	Append(ctx context.Context, record *Record) error
	// Query returns records of one request ordered by Seq.
	Query(ctx context.Context, requestID string) ([]*Record, error)
	// List returns records matching filters ordered by (Time, RequestID, Seq).
	List(ctx context.Context, filters ...Filter) ([]*Record, error)
}

// Unavailable wraps err as ErrStorageUnavailable.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
