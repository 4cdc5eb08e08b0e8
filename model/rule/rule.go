package rule

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/viant/warden/model/constraint"
	"github.com/viant/warden/model/permission"
)

// Rule auto-approves requests matching its kind pattern, risk ceiling,
// window and constraints. Rules never deny.
type Rule struct {
	ID          string                   `json:"id" yaml:"id"`
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Priority    int                      `json:"priority,omitempty" yaml:"priority,omitempty"`
	Kind        string                   `json:"kind" yaml:"kind"`
	MaxRisk     permission.Risk          `json:"maxRisk" yaml:"maxRisk"`
	Constraints []*constraint.Constraint `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Window      *Window                  `json:"window,omitempty" yaml:"window,omitempty"`
	Enabled     *bool                    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled returns true unless the rule was explicitly disabled.
func (r *Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// MatchesKind reports whether kind matches the rule kind pattern; "*" or an
// empty pattern matches all kinds.
func (r *Rule) MatchesKind(kind string) bool {
	pattern := strings.ToLower(r.Kind)
	if pattern == "" || pattern == "*" {
		return true
	}
	matched, err := path.Match(pattern, strings.ToLower(kind))
	return err == nil && matched
}

// Validate checks that the rule is well formed.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id was empty")
	}
	if !r.MaxRisk.Valid() {
		return fmt.Errorf("rule %v: invalid maxRisk: %v", r.ID, r.MaxRisk)
	}
	if _, err := path.Match(strings.ToLower(r.Kind), ""); err != nil {
		return fmt.Errorf("rule %v: invalid kind pattern %q: %w", r.ID, r.Kind, err)
	}
	for _, c := range r.Constraints {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("rule %v: %w", r.ID, err)
		}
	}
	if r.Window != nil {
		if err := r.Window.Validate(); err != nil {
			return fmt.Errorf("rule %v: %w", r.ID, err)
		}
	}
	return nil
}

// Window restricts a rule to hours of the day and days of the week.
// An EndHour lower than StartHour wraps past midnight; equal hours cover the whole day.
type Window struct {
	StartHour int      `json:"startHour" yaml:"startHour"`
	EndHour   int      `json:"endHour" yaml:"endHour"`
	Days      []string `json:"days,omitempty" yaml:"days,omitempty"`
	Location  string   `json:"location,omitempty" yaml:"location,omitempty"`
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// Validate checks hours, day names and location.
func (w *Window) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return fmt.Errorf("window hours out of range: %v-%v", w.StartHour, w.EndHour)
	}
	for _, day := range w.Days {
		if _, ok := weekday(day); !ok {
			return fmt.Errorf("invalid window day: %q", day)
		}
	}
	if w.Location != "" {
		if _, err := time.LoadLocation(w.Location); err != nil {
			return fmt.Errorf("invalid window location: %w", err)
		}
	}
	return nil
}

// Contains reports whether at falls within the window.
func (w *Window) Contains(at time.Time) bool {
	if w == nil {
		return true
	}
	if w.Location != "" {
		if location, err := time.LoadLocation(w.Location); err == nil {
			at = at.In(location)
		}
	}
	if len(w.Days) > 0 {
		found := false
		for _, day := range w.Days {
			if d, ok := weekday(day); ok && d == at.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	hour := at.Hour()
	switch {
	case w.StartHour == w.EndHour:
		return true
	case w.StartHour < w.EndHour:
		return hour >= w.StartHour && hour < w.EndHour
	default:
		return hour >= w.StartHour || hour < w.EndHour
	}
}

func weekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) > 3 {
		name = name[:3]
	}
	ret, ok := weekdays[name]
	return ret, ok
}
