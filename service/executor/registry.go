package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/viant/structology/conv"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/model/types"
)

const defaultSummaryLimit = 512

// Listener observes every action call, including failed ones.
type Listener func(kind string, input, output interface{}, err error)

type binding struct {
	service string
	method  string
}

// Description describes an executable kind.
type Description struct {
	Kind        string   `json:"kind" yaml:"kind"`
	Service     string   `json:"service" yaml:"service"`
	Method      string   `json:"method" yaml:"method"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Input       string   `json:"input,omitempty" yaml:"input,omitempty"`
	Fields      []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Registry dispatches operation kinds to action service methods.
type Registry struct {
	services     map[string]types.Service
	kinds        map[string]*binding
	types        *Types
	converter    *conv.Converter
	listener     Listener
	logger       *slog.Logger
	summaryLimit int
	mux          sync.RWMutex
}

// Types returns the input/output type registry.
func (r *Registry) Types() *Types {
	return r.types
}

// Register adds a service and binds every method name as an operation kind.
func (r *Registry) Register(service types.Service) {
	if service == nil {
		return
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	r.services[service.Name()] = service
	for _, signature := range service.Methods() {
		r.kinds[signature.Name] = &binding{service: service.Name(), method: signature.Name}
		r.types.Register(signature.Input)
		r.types.Register(signature.Output)
	}
}

// Bind maps kind onto a registered service method, overriding the default binding.
func (r *Registry) Bind(kind, serviceName, method string) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	service, ok := r.services[serviceName]
	if !ok {
		return fmt.Errorf("service %v not registered", serviceName)
	}
	if service.Methods().Lookup(method) == nil {
		return types.NewMethodNotFoundError(method)
	}
	r.kinds[kind] = &binding{service: serviceName, method: method}
	return nil
}

// Lookup returns a service by name
func (r *Registry) Lookup(name string) types.Service {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.services[name]
}

// Kinds returns bound kinds in lexical order.
func (r *Registry) Kinds() []string {
	r.mux.RLock()
	defer r.mux.RUnlock()
	ret := make([]string, 0, len(r.kinds))
	for kind := range r.kinds {
		ret = append(ret, kind)
	}
	sort.Strings(ret)
	return ret
}

// Describe lists bound kinds with their input types.
func (r *Registry) Describe() []*Description {
	var ret []*Description
	for _, kind := range r.Kinds() {
		service, signature, err := r.resolve(kind)
		if err != nil {
			continue
		}
		description := &Description{Kind: kind, Service: service.Name(), Method: signature.Name, Description: signature.Description}
		if signature.Input != nil {
			input := signature.Input
			if input.Kind() == reflect.Ptr {
				input = input.Elem()
			}
			description.Input = typeName(input)
			description.Fields = fields(input)
		}
		ret = append(ret, description)
	}
	return ret
}

// Execute runs the action bound to kind.
func (r *Registry) Execute(ctx context.Context, kind string, parameters request.Parameters) (*Result, error) {
	service, signature, err := r.resolve(kind)
	if err != nil {
		return nil, err
	}
	method, err := service.Method(signature.Name)
	if err != nil {
		return nil, NewError(kind, err)
	}
	input := newInstancePtr(signature.Input)
	if err = r.converter.Convert(parameters.Map(), input); err != nil {
		return nil, NewError(kind, fmt.Errorf("invalid parameters: %w", err))
	}
	output := newInstancePtr(signature.Output)
	err = method(ctx, input, output)
	if r.listener != nil {
		r.listener(kind, input, output, err)
	}
	if err != nil {
		r.logger.Debug("action_failed", "kind", kind, "service", service.Name(), "error", err)
		return nil, NewError(kind, err)
	}
	return &Result{Summary: r.summarize(output), Output: output}, nil
}

func (r *Registry) resolve(kind string) (types.Service, *types.Signature, error) {
	r.mux.RLock()
	bound, ok := r.kinds[kind]
	var service types.Service
	if ok {
		service = r.services[bound.service]
	}
	r.mux.RUnlock()
	if service == nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnknownOperation, kind)
	}
	signature := service.Methods().Lookup(bound.method)
	if signature == nil {
		return nil, nil, NewError(kind, types.NewMethodNotFoundError(bound.method))
	}
	return service, signature, nil
}

func (r *Registry) summarize(output interface{}) string {
	if summarizer, ok := output.(types.Summarizer); ok {
		return summarizer.Summary()
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	text := string(data)
	if r.summaryLimit > 0 && len(text) > r.summaryLimit {
		text = text[:r.summaryLimit] + "..."
	}
	return text
}

var empty = map[string]interface{}{}

func newInstancePtr(t reflect.Type) interface{} {
	if t == nil {
		return &empty
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}

// New creates a registry
func New(options ...Option) *Registry {
	convOptions := conv.DefaultOptions()
	convOptions.ClonePointerData = true
	convOptions.IgnoreUnmapped = true
	convOptions.AccessUnexported = true
	ret := &Registry{
		services:     map[string]types.Service{},
		kinds:        map[string]*binding{},
		types:        NewTypes(),
		converter:    conv.NewConverter(convOptions),
		logger:       slog.Default(),
		summaryLimit: defaultSummaryLimit,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}
