package permission

import (
	"fmt"
	"strings"
)

// Level is an ordered permission level.
type Level int

const (
	Read Level = iota + 1
	Write
	Execute
	Admin
	Root
)

var levelNames = map[Level]string{Read: "read", Write: "write", Execute: "execute", Admin: "admin", Root: "root"}

// Satisfies reports whether granted covers required (granted >= required).
func Satisfies(granted, required Level) bool {
	return granted.Valid() && required.Valid() && granted >= required
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool { return l >= Read && l <= Root }

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(text string) (Level, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	for level, name := range levelNames {
		if name == text {
			return level, nil
		}
	}
	return 0, fmt.Errorf("invalid permission level: %q", text)
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid permission level: %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Risk is an ordered risk level.
type Risk int

const (
	Low Risk = iota + 1
	Medium
	High
	Critical
)

var riskNames = map[Risk]string{Low: "low", Medium: "medium", High: "high", Critical: "critical"}

// Risks lists all risk levels in ascending order.
var Risks = []Risk{Low, Medium, High, Critical}

// Valid reports whether r is a known risk level.
func (r Risk) Valid() bool { return r >= Low && r <= Critical }

// AtMost reports whether r does not exceed max.
func (r Risk) AtMost(max Risk) bool { return r.Valid() && max.Valid() && r <= max }

func (r Risk) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return fmt.Sprintf("risk(%d)", int(r))
}

// ParseRisk parses a case-insensitive risk name.
func ParseRisk(text string) (Risk, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	for risk, name := range riskNames {
		if name == text {
			return risk, nil
		}
	}
	return 0, fmt.Errorf("invalid risk level: %q", text)
}

func (r Risk) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid risk level: %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Risk) UnmarshalText(data []byte) error {
	parsed, err := ParseRisk(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
