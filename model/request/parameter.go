package request

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/viant/warden/internal/yml"
	"gopkg.in/yaml.v3"
)

// Parameter is a named operation parameter.
type Parameter struct {
	Name  string      `json:"name" yaml:"name"`
	Value interface{} `json:"value" yaml:"value"`
}

// Parameters is an ordered parameter list. It encodes as an ordered JSON/YAML
// object.
type Parameters []*Parameter

// NewParameters builds parameters from alternating name, value pairs.
func NewParameters(pairs ...interface{}) Parameters {
	ret := make(Parameters, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ret = ret.With(fmt.Sprint(pairs[i]), pairs[i+1])
	}
	return ret
}

// Lookup returns a parameter value by name.
func (p Parameters) Lookup(name string) (interface{}, bool) {
	for _, param := range p {
		if param != nil && param.Name == name {
			return param.Value, true
		}
	}
	return nil, false
}

// With returns parameters with name set to value, replacing an existing entry in place.
func (p Parameters) With(name string, value interface{}) Parameters {
	for _, param := range p {
		if param != nil && param.Name == name {
			param.Value = value
			return p
		}
	}
	return append(p, &Parameter{Name: name, Value: value})
}

// Map returns parameters as a map.
func (p Parameters) Map() map[string]interface{} {
	ret := make(map[string]interface{}, len(p))
	for _, param := range p {
		if param != nil {
			ret[param.Name] = param.Value
		}
	}
	return ret
}

// Names returns parameter names in order.
func (p Parameters) Names() []string {
	ret := make([]string, 0, len(p))
	for _, param := range p {
		if param != nil {
			ret = append(ret, param.Name)
		}
	}
	return ret
}

// Clone returns a copy of the list; values are shared.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}
	ret := make(Parameters, 0, len(p))
	for _, param := range p {
		if param != nil {
			ret = append(ret, &Parameter{Name: param.Name, Value: param.Value})
		}
	}
	return ret
}

func (p Parameters) MarshalJSON() ([]byte, error) {
	buf := bytes.Buffer{}
	buf.WriteByte('{')
	for i, param := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(param.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(param.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameter %v: %w", param.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Parameters) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if token == nil {
		*p = nil
		return nil
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected parameters object, but had: %v", token)
	}
	ret := Parameters{}
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return err
		}
		var value interface{}
		if err = decoder.Decode(&value); err != nil {
			return err
		}
		ret = append(ret, &Parameter{Name: keyToken.(string), Value: normalizeNumber(value)})
	}
	*p = ret
	return nil
}

func (p Parameters) MarshalYAML() (interface{}, error) {
	node := yml.NewMap()
	for _, param := range p {
		if err := node.Put(param.Name, param.Value); err != nil {
			return nil, err
		}
	}
	return (*yaml.Node)(node), nil
}

func (p *Parameters) UnmarshalYAML(node *yaml.Node) error {
	ret := Parameters{}
	err := (*yml.Node)(node).Pairs(func(key string, value *yml.Node) error {
		ret = append(ret, &Parameter{Name: key, Value: value.Interface()})
		return nil
	})
	if err != nil {
		return err
	}
	*p = ret
	return nil
}

func normalizeNumber(value interface{}) interface{} {
	switch actual := value.(type) {
	case json.Number:
		if i, err := actual.Int64(); err == nil {
			return int(i)
		}
		f, _ := actual.Float64()
		return f
	case map[string]interface{}:
		for k, v := range actual {
			actual[k] = normalizeNumber(v)
		}
	case []interface{}:
		for i, v := range actual {
			actual[i] = normalizeNumber(v)
		}
	}
	return value
}
