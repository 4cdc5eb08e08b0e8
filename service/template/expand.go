package template

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// expand replaces every ${path} reference in text with its value from ctx.
// Unresolved references are left empty and reported in missing.
func expand(text string, ctx map[string]interface{}) (string, []string) {
	var missing []string
	var builder strings.Builder
	for {
		start := strings.Index(text, "${")
		if start == -1 {
			builder.WriteString(text)
			break
		}
		end := strings.IndexByte(text[start:], '}')
		if end == -1 {
			builder.WriteString(text)
			break
		}
		end += start
		builder.WriteString(text[:start])
		expr := strings.TrimSpace(text[start+2 : end])
		value, ok := lookup(expr, ctx)
		if !ok {
			missing = append(missing, expr)
		} else {
			builder.WriteString(stringify(value))
		}
		text = text[end+1:]
	}
	return builder.String(), missing
}

// lookup navigates dot notation through maps and exported struct fields.
func lookup(expr string, from map[string]interface{}) (interface{}, bool) {
	if expr == "" {
		return nil, false
	}
	parts := strings.Split(expr, ".")
	current, ok := from[parts[0]]
	if !ok {
		return nil, false
	}
	for _, part := range parts[1:] {
		if current, ok = property(current, part); !ok {
			return nil, false
		}
	}
	return current, true
}

func property(obj interface{}, name string) (interface{}, bool) {
	if obj == nil {
		return nil, false
	}
	if aMap, ok := obj.(map[string]interface{}); ok {
		value, ok := aMap[name]
		return value, ok
	}
	if aMap, ok := obj.(map[string]string); ok {
		value, ok := aMap[name]
		return value, ok
	}
	val := reflect.ValueOf(obj)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, false
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, false
	}
	field := val.FieldByName(name)
	if !field.IsValid() {
		typ := val.Type()
		for i := 0; i < typ.NumField(); i++ {
			if strings.EqualFold(typ.Field(i).Name, name) {
				field = val.Field(i)
				break
			}
		}
	}
	if !field.IsValid() || !field.CanInterface() {
		return nil, false
	}
	return field.Interface(), true
}

func stringify(val interface{}) string {
	switch actual := val.(type) {
	case nil:
		return ""
	case string:
		return actual
	case time.Time:
		if actual.IsZero() {
			return ""
		}
		return actual.UTC().Format(time.RFC3339)
	case *time.Time:
		if actual == nil {
			return ""
		}
		return stringify(*actual)
	case fmt.Stringer:
		return actual.String()
	case error:
		return actual.Error()
	}
	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	}
	return fmt.Sprintf("%v", val)
}
