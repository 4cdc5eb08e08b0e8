// Package memory assembles an approval engine backed by the in-memory request
// table and audit log.
package memory

import (
	"github.com/viant/warden/service/approval"
	auditmem "github.com/viant/warden/service/audit/memory"
	reqmem "github.com/viant/warden/service/dao/request/memory"
)

// New creates an in-memory engine; options may override any store.
func New(options ...approval.Option) (*approval.Engine, error) {
	defaults := []approval.Option{
		approval.WithRequestDAO(reqmem.New()),
		approval.WithAuditLog(auditmem.New()),
	}
	return approval.New(append(defaults, options...)...)
}
