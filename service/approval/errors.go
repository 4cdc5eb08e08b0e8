package approval

import (
	"errors"

	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/service/audit"
	"github.com/viant/warden/service/dao"
)

var (
	// ErrUnknownOperation is returned in strict mode for unclassified kinds.
	ErrUnknownOperation = permission.ErrUnknownOperation
	// ErrInvalidState is returned when an operation does not apply to the request status.
	ErrInvalidState = errors.New("invalid request state")
	// ErrExpired is returned when a decision arrives at or after ExpiresAt.
	ErrExpired = errors.New("request expired")
	// ErrStorageUnavailable is returned when the audit log or the request table cannot be written.
	ErrStorageUnavailable = audit.ErrStorageUnavailable
	// ErrExecutor wraps errors reported by the executor.
	ErrExecutor = errors.New("executor failed")
	// ErrNotFound is returned for unknown request ids.
	ErrNotFound = dao.ErrNotFound
	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPermissionDenied is returned when the decider lacks the required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConditionFailed is returned when an approval condition does not hold at execution time.
	ErrConditionFailed = errors.New("approval condition not satisfied")
)

// ErrorKind is a stable, caller facing error category.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindUnknownOperation   ErrorKind = "UnknownOperation"
	KindInvalidState       ErrorKind = "InvalidState"
	KindExpired            ErrorKind = "Expired"
	KindStorageUnavailable ErrorKind = "StorageUnavailable"
	KindExecutor           ErrorKind = "ExecutorError"
	KindNotFound           ErrorKind = "NotFound"
	KindInvalidArgument    ErrorKind = "InvalidArgument"
	KindPermissionDenied   ErrorKind = "PermissionDenied"
	KindConditionFailed    ErrorKind = "ConditionFailed"
	KindInternal           ErrorKind = "Internal"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrExecutor, KindExecutor},
	{ErrConditionFailed, KindConditionFailed},
	{ErrStorageUnavailable, KindStorageUnavailable},
	{ErrExpired, KindExpired},
	{ErrInvalidState, KindInvalidState},
	{ErrPermissionDenied, KindPermissionDenied},
	{ErrUnknownOperation, KindUnknownOperation},
	{ErrNotFound, KindNotFound},
	{dao.ErrInvalidID, KindInvalidArgument},
	{ErrInvalidArgument, KindInvalidArgument},
}

// Kind maps err to its ErrorKind; unrecognised errors are KindInternal.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return KindInternal
}
