package request

// Status is a request lifecycle status.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAutoApproved Status = "auto_approved"
	StatusApproved     Status = "approved"
	StatusDenied       Status = "denied"
	StatusExpired      Status = "expired"
	StatusExecuting    Status = "executing"
	StatusExecuted     Status = "executed"
	StatusFailed       Status = "failed"
)

var transitions = map[Status][]Status{
	"":                 {StatusPending},
	StatusPending:      {StatusAutoApproved, StatusApproved, StatusDenied, StatusExpired, StatusFailed},
	StatusAutoApproved: {StatusExecuting, StatusFailed},
	StatusApproved:     {StatusExecuting, StatusFailed},
	StatusExecuting:    {StatusExecuted, StatusFailed},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDenied, StatusExpired, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// IsApproved reports whether the request was approved by a rule or a human
// and still awaits execution.
func (s Status) IsApproved() bool {
	return s == StatusAutoApproved || s == StatusApproved
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAutoApproved, StatusApproved, StatusExecuting:
		return true
	}
	return s.IsTerminal()
}
