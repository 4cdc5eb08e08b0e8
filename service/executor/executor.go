package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/model/request"
)

// ErrUnknownOperation is returned when no action is bound to a kind.
var ErrUnknownOperation = permission.ErrUnknownOperation

// Executor performs an approved operation.
type Executor interface {
	Execute(ctx context.Context, kind string, parameters request.Parameters) (*Result, error)
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, kind string, parameters request.Parameters) (*Result, error)

func (f Func) Execute(ctx context.Context, kind string, parameters request.Parameters) (*Result, error) {
	return f(ctx, kind, parameters)
}

// Result is the outcome of a successful execution.
type Result struct {
	Summary string      `json:"summary" yaml:"summary"`
	Output  interface{} `json:"output,omitempty" yaml:"output,omitempty"`
}

// Error wraps an action failure with the kind that produced it.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err unless it already is an *Error.
func NewError(kind string, err error) error {
	if err == nil {
		return nil
	}
	var execErr *Error
	if errors.As(err, &execErr) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}
