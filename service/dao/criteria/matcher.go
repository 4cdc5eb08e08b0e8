package criteria

import (
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/dao"
)

// Request filter parameter names.
const (
	Status    = "Status"
	Kind      = "Kind"
	Requester = "Requester"
)

// Match reports whether the request satisfies every recognised parameter;
// unknown parameter names are ignored.
func Match(req *request.OperationRequest, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		var actual string
		switch parameter.Name {
		case Status:
			actual = string(req.Status)
		case Kind:
			actual = req.Kind
		case Requester:
			actual = req.Requester
		default:
			continue
		}
		if !Contains(parameter, actual) {
			return false
		}
	}
	return true
}

// Contains reports whether value is one of the parameter values.
func Contains(parameter *dao.Parameter, value string) bool {
	for _, candidate := range Values(parameter) {
		if candidate == value {
			return true
		}
	}
	return false
}

// Values returns parameter values as strings.
func Values(parameter *dao.Parameter) []string {
	switch actual := parameter.Value.(type) {
	case string:
		return []string{actual}
	case []string:
		return actual
	case request.Status:
		return []string{string(actual)}
	case []request.Status:
		ret := make([]string, 0, len(actual))
		for _, status := range actual {
			ret = append(ret, string(status))
		}
		return ret
	}
	return nil
}

// WithStatus returns a Status parameter.
func WithStatus(statuses ...request.Status) *dao.Parameter {
	return &dao.Parameter{Name: Status, Value: statuses}
}
