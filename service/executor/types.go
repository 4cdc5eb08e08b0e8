package executor

import (
	"reflect"
	"strings"
	"sync"

	"github.com/viant/x"
)

// Types keeps the input and output types of registered actions.
type Types struct {
	registry *x.Registry
	names    []string
	known    map[string]bool
	mux      sync.Mutex
}

// Register adds a Go type, pointer types are registered by their element.
func (t *Types) Register(rType reflect.Type) *x.Type {
	if rType == nil {
		return nil
	}
	if rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	aType := x.NewType(rType)
	name := typeName(rType)
	t.mux.Lock()
	defer t.mux.Unlock()
	if !t.known[name] {
		t.known[name] = true
		t.names = append(t.names, name)
	}
	t.registry.Register(aType)
	return aType
}

// Lookup returns a registered type by its qualified name (pkgPath.Name).
func (t *Types) Lookup(name string) *x.Type {
	t.mux.Lock()
	defer t.mux.Unlock()
	if !t.known[name] {
		return nil
	}
	return t.registry.Lookup(name)
}

// Names returns qualified type names in registration order.
func (t *Types) Names() []string {
	t.mux.Lock()
	defer t.mux.Unlock()
	return append([]string(nil), t.names...)
}

// NewTypes creates a type registry
func NewTypes() *Types {
	return &Types{registry: x.NewRegistry(), known: map[string]bool{}}
}

func typeName(rType reflect.Type) string {
	if rType.PkgPath() == "" {
		return rType.String()
	}
	return rType.PkgPath() + "." + rType.Name()
}

// fields lists exported field names with their json names when present.
func fields(rType reflect.Type) []string {
	if rType == nil {
		return nil
	}
	if rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	if rType.Kind() != reflect.Struct {
		return nil
	}
	var ret []string
	for i := 0; i < rType.NumField(); i++ {
		field := rType.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			if tagName := strings.Split(tag, ",")[0]; tagName == "-" {
				continue
			} else if tagName != "" {
				name = tagName
			}
		}
		ret = append(ret, name+" "+field.Type.String())
	}
	return ret
}
