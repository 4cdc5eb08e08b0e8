package permission

import (
	"errors"
	"fmt"

	"github.com/viant/warden/model/constraint"
)

// ErrUnknownOperation is returned in strict mode for kinds without a classification.
var ErrUnknownOperation = errors.New("unknown operation")

// Escalation raises the risk of an operation when its constraint matches.
type Escalation struct {
	When *constraint.Constraint `json:"when" yaml:"when"`
	Risk Risk                   `json:"risk" yaml:"risk"`
}

// Classification describes the permission and base risk of an operation kind.
type Classification struct {
	Kind        string        `json:"kind" yaml:"kind"`
	Permission  Level         `json:"permission" yaml:"permission"`
	Risk        Risk          `json:"risk" yaml:"risk"`
	Escalations []*Escalation `json:"escalations,omitempty" yaml:"escalations,omitempty"`
}

// Table is a classification lookup table.
type Table []*Classification

// Validate checks kinds are unique and levels are known.
func (t Table) Validate() error {
	seen := map[string]bool{}
	for i, item := range t {
		if item == nil || item.Kind == "" {
			return fmt.Errorf("classification[%d]: kind was empty", i)
		}
		if seen[item.Kind] {
			return fmt.Errorf("classification %v: duplicate kind", item.Kind)
		}
		seen[item.Kind] = true
		if !item.Permission.Valid() {
			return fmt.Errorf("classification %v: invalid permission", item.Kind)
		}
		if !item.Risk.Valid() {
			return fmt.Errorf("classification %v: invalid risk", item.Kind)
		}
		for _, escalation := range item.Escalations {
			if escalation == nil || !escalation.Risk.Valid() {
				return fmt.Errorf("classification %v: invalid escalation risk", item.Kind)
			}
			if err := escalation.When.Validate(); err != nil {
				return fmt.Errorf("classification %v: %w", item.Kind, err)
			}
		}
	}
	return nil
}

// Classifier computes required permission and risk for operations.
type Classifier struct {
	kinds             map[string]*Classification
	strict            bool
	defaultRisk       Risk
	defaultPermission Level
}

// ClassifierOption customises a Classifier.
type ClassifierOption func(c *Classifier)

// WithStrict makes unknown kinds fail with ErrUnknownOperation.
func WithStrict(strict bool) ClassifierOption {
	return func(c *Classifier) { c.strict = strict }
}

// WithDefaults sets the fallback classification for unknown kinds. A default
// risk below Medium is ignored.
func WithDefaults(permission Level, risk Risk) ClassifierOption {
	return func(c *Classifier) {
		if permission.Valid() {
			c.defaultPermission = permission
		}
		if risk.Valid() && risk >= Medium {
			c.defaultRisk = risk
		}
	}
}

// NewClassifier creates a classifier for the supplied table.
func NewClassifier(table Table, options ...ClassifierOption) (*Classifier, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	ret := &Classifier{
		kinds:             make(map[string]*Classification, len(table)),
		defaultRisk:       Medium,
		defaultPermission: Execute,
	}
	for _, item := range table {
		ret.kinds[item.Kind] = item
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret, nil
}

// Known reports whether kind has an explicit classification.
func (c *Classifier) Known(kind string) bool {
	_, ok := c.kinds[kind]
	return ok
}

// Classify returns the required permission and the effective risk for kind
// and its parameters. Escalations only ever raise the risk.
func (c *Classifier) Classify(kind string, values constraint.Values) (Level, Risk, error) {
	item, ok := c.kinds[kind]
	if !ok {
		if c.strict {
			return 0, 0, fmt.Errorf("%w: %v", ErrUnknownOperation, kind)
		}
		return c.defaultPermission, c.defaultRisk, nil
	}
	risk := item.Risk
	for _, escalation := range item.Escalations {
		if escalation.Risk > risk && escalation.When.Match(values) {
			risk = escalation.Risk
		}
	}
	return item.Permission, risk, nil
}
