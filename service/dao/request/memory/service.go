package memory

import (
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/dao"
	"github.com/viant/warden/service/dao/criteria"
	"github.com/viant/warden/service/dao/store"
)

// Service implements an in-memory request table. It stores and returns
// copies so callers cannot race on shared instances.
type Service struct {
	*store.MemoryStore[string, request.OperationRequest]
}

var _ dao.Service[string, request.OperationRequest] = (*Service)(nil)

// New creates an in-memory request table.
func New() *Service {
	return &Service{MemoryStore: store.NewMemoryStore[string, request.OperationRequest](
		func(r *request.OperationRequest) string { return r.ID },
		store.WithClone[string, request.OperationRequest]((*request.OperationRequest).Clone),
		store.WithFilter[string, request.OperationRequest](criteria.Match),
	)}
}
