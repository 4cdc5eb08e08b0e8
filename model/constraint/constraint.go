// Package constraint defines the closed set of parameter constraints used by
// auto-approval rules, risk escalations and approval conditions.
package constraint

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/viant/toolbox"
	"gopkg.in/yaml.v3"
)

// Kind is a constraint kind.
type Kind string

const (
	// KindEq requires the parameter to equal Value.
	KindEq Kind = "eq"
	// KindRange requires a numeric parameter within [Min, Max]; either bound may be omitted.
	KindRange Kind = "range"
	// KindIn requires the parameter to be one of Values.
	KindIn Kind = "in"
	// KindGlob requires a string parameter to match the Value pattern.
	KindGlob Kind = "glob"
	// KindNe requires the parameter to differ from Value.
	KindNe Kind = "ne"
	// KindNotIn requires the parameter to be none of Values.
	KindNotIn Kind = "not_in"
	// KindPrefix requires a string parameter to start with Value.
	KindPrefix Kind = "prefix"
	KindLt     Kind = "lt"
	KindLe     Kind = "le"
	KindGt     Kind = "gt"
	KindGe     Kind = "ge"
)

// Values exposes named parameter values.
type Values interface {
	Lookup(name string) (interface{}, bool)
}

// Constraint is a single predicate over one named parameter.
type Constraint struct {
	Param  string        `json:"param" yaml:"param"`
	Kind   Kind          `json:"kind" yaml:"kind"`
	Value  interface{}   `json:"value,omitempty" yaml:"value,omitempty"`
	Values []interface{} `json:"values,omitempty" yaml:"values,omitempty"`
	Min    *float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64      `json:"max,omitempty" yaml:"max,omitempty"`
}

// Eq returns an equality constraint.
func Eq(param string, value interface{}) *Constraint {
	return &Constraint{Param: param, Kind: KindEq, Value: value}
}

// In returns a set membership constraint.
func In(param string, values ...interface{}) *Constraint {
	return &Constraint{Param: param, Kind: KindIn, Values: values}
}

// Between returns an inclusive numeric range constraint.
func Between(param string, min, max float64) *Constraint {
	return &Constraint{Param: param, Kind: KindRange, Min: &min, Max: &max}
}

// Ne returns an inequality constraint.
func Ne(param string, value interface{}) *Constraint {
	return &Constraint{Param: param, Kind: KindNe, Value: value}
}

// NotIn returns a set exclusion constraint.
func NotIn(param string, values ...interface{}) *Constraint {
	return &Constraint{Param: param, Kind: KindNotIn, Values: values}
}

// Prefix returns a string prefix constraint.
func Prefix(param, prefix string) *Constraint {
	return &Constraint{Param: param, Kind: KindPrefix, Value: prefix}
}

// Glob returns a wildcard constraint.
func Glob(param, pattern string) *Constraint {
	return &Constraint{Param: param, Kind: KindGlob, Value: pattern}
}

// Validate checks that the constraint is well formed.
func (c *Constraint) Validate() error {
	if c == nil {
		return fmt.Errorf("constraint was nil")
	}
	if c.Param == "" {
		return fmt.Errorf("constraint param was empty")
	}
	switch c.Kind {
	case KindEq, KindNe:
		if c.Value == nil {
			return fmt.Errorf("constraint %v: %v value was empty", c.Param, c.Kind)
		}
	case KindIn, KindNotIn:
		if len(c.Values) == 0 {
			return fmt.Errorf("constraint %v: %v values were empty", c.Param, c.Kind)
		}
	case KindLt, KindLe, KindGt, KindGe:
		if _, err := toolbox.ToFloat(c.Value); c.Value == nil || err != nil {
			return fmt.Errorf("constraint %v: %v requires a number, got %v", c.Param, c.Kind, c.Value)
		}
	case KindPrefix:
		if prefix, ok := c.Value.(string); !ok || prefix == "" {
			return fmt.Errorf("constraint %v: prefix was empty", c.Param)
		}
	case KindRange:
		if c.Min == nil && c.Max == nil {
			return fmt.Errorf("constraint %v: range requires min or max", c.Param)
		}
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			return fmt.Errorf("constraint %v: range min %v > max %v", c.Param, *c.Min, *c.Max)
		}
	case KindGlob:
		pattern, ok := c.Value.(string)
		if !ok || pattern == "" {
			return fmt.Errorf("constraint %v: glob pattern was empty", c.Param)
		}
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("constraint %v: invalid glob %q: %w", c.Param, pattern, err)
		}
	default:
		return fmt.Errorf("constraint %v: unsupported kind %q", c.Param, c.Kind)
	}
	return nil
}

// Match reports whether values satisfy the constraint. A missing parameter
// never matches.
func (c *Constraint) Match(values Values) bool {
	if c == nil || values == nil {
		return false
	}
	actual, ok := values.Lookup(c.Param)
	if !ok || actual == nil {
		return false
	}
	switch c.Kind {
	case KindEq:
		return equal(actual, c.Value)
	case KindNe:
		return !equal(actual, c.Value)
	case KindIn:
		return contains(c.Values, actual)
	case KindNotIn:
		return !contains(c.Values, actual)
	case KindPrefix:
		prefix, _ := c.Value.(string)
		return strings.HasPrefix(toolbox.AsString(actual), prefix)
	case KindLt, KindLe, KindGt, KindGe:
		number, err := toolbox.ToFloat(actual)
		if err != nil {
			return false
		}
		bound, err := toolbox.ToFloat(c.Value)
		if err != nil {
			return false
		}
		switch c.Kind {
		case KindLt:
			return number < bound
		case KindLe:
			return number <= bound
		case KindGt:
			return number > bound
		}
		return number >= bound
	case KindRange:
		number, err := toolbox.ToFloat(actual)
		if err != nil {
			return false
		}
		if c.Min != nil && number < *c.Min {
			return false
		}
		if c.Max != nil && number > *c.Max {
			return false
		}
		return true
	case KindGlob:
		pattern, _ := c.Value.(string)
		matched, err := path.Match(pattern, toolbox.AsString(actual))
		return err == nil && matched
	}
	return false
}

// String renders the constraint in expression syntax, accepted by Parse.
func (c *Constraint) String() string {
	if c == nil {
		return ""
	}
	switch c.Kind {
	case KindEq:
		return c.Param + " == " + literal(c.Value)
	case KindNe:
		return c.Param + " != " + literal(c.Value)
	case KindGlob:
		return c.Param + " ~ " + literal(c.Value)
	case KindPrefix:
		return c.Param + " ^= " + literal(c.Value)
	case KindLt, KindLe, KindGt, KindGe:
		return c.Param + " " + comparisons[c.Kind] + " " + literal(c.Value)
	case KindIn, KindNotIn:
		items := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			items = append(items, literal(v))
		}
		operator := " in ["
		if c.Kind == KindNotIn {
			operator = " not in ["
		}
		return c.Param + operator + strings.Join(items, ", ") + "]"
	case KindRange:
		var lo, hi string
		if c.Min != nil {
			lo = strconv.FormatFloat(*c.Min, 'f', -1, 64)
		}
		if c.Max != nil {
			hi = strconv.FormatFloat(*c.Max, 'f', -1, 64)
		}
		return c.Param + " in " + lo + ".." + hi
	}
	return c.Param + " ? " + string(c.Kind)
}

// UnmarshalYAML accepts either an expression string or a structured mapping.
func (c *Constraint) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := Parse(node.Value)
		if err != nil {
			return err
		}
		*c = *parsed
		return nil
	}
	type plain Constraint
	var aux plain
	if err := node.Decode(&aux); err != nil {
		return err
	}
	*c = Constraint(aux)
	return c.Validate()
}

// MatchAll reports whether every constraint matches.
func MatchAll(constraints []*Constraint, values Values) bool {
	for _, c := range constraints {
		if !c.Match(values) {
			return false
		}
	}
	return true
}

var comparisons = map[Kind]string{KindLt: "<", KindLe: "<=", KindGt: ">", KindGe: ">="}

func contains(candidates []interface{}, actual interface{}) bool {
	for _, candidate := range candidates {
		if equal(actual, candidate) {
			return true
		}
	}
	return false
}

func equal(actual, expected interface{}) bool {
	if a, err := toolbox.ToFloat(actual); err == nil {
		if e, err := toolbox.ToFloat(expected); err == nil {
			return a == e
		}
	}
	return toolbox.AsString(actual) == toolbox.AsString(expected)
}

func literal(v interface{}) string {
	if number, ok := v.(float64); ok {
		return strconv.FormatFloat(number, 'f', -1, 64)
	}
	text := toolbox.AsString(v)
	if text == "" || strings.ContainsAny(text, " ,[]\"'") {
		return strconv.Quote(text)
	}
	return text
}
