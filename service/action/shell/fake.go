package shell

import (
	"context"
	"sync"
)

// Recorder is an in-memory Runner that records requests and replies from a
// script keyed by command text; unscripted commands succeed with no output.
type Recorder struct {
	Requests []*Request
	Script   map[string]*Command
	mux      sync.Mutex
}

// NewRecorder creates a recorder
func NewRecorder() *Recorder {
	return &Recorder{Script: map[string]*Command{}}
}

func (r *Recorder) Run(_ context.Context, request *Request) (*Command, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.Requests = append(r.Requests, request)
	if scripted, ok := r.Script[request.Command]; ok {
		ret := *scripted
		ret.Input = request.Command
		return &ret, nil
	}
	return &Command{Input: request.Command}, nil
}

// Commands returns recorded command texts.
func (r *Recorder) Commands() []string {
	r.mux.Lock()
	defer r.mux.Unlock()
	var ret []string
	for _, request := range r.Requests {
		ret = append(ret, request.Command)
	}
	return ret
}
