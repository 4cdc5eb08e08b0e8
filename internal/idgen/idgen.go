package idgen

import "github.com/google/uuid"

// Func returns a new globally unique identifier.
type Func func() string

// New returns a new random UUID as string.
func New() string { return uuid.New().String() }
