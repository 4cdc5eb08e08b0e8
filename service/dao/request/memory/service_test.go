package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/model/request"
	"github.com/viant/warden/service/dao/request/requesttest"
)

func TestService(t *testing.T) {
	requesttest.Run(t, New())
}

func TestService_ReturnsCopies(t *testing.T) {
	service := New()
	ctx := context.Background()
	req := &request.OperationRequest{ID: "x", Status: request.StatusPending}
	require.NoError(t, service.Save(ctx, req))
	req.Status = request.StatusDenied

	loaded, err := service.Load(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, loaded.Status)
	loaded.Status = request.StatusExpired

	again, err := service.Load(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, again.Status)
}
