package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Equal(t, zap.Skip(), RequestIDField(ctx))
	assert.Equal(t, ctx, WithRequestID(ctx, ""))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, zap.String("request_id", "req-1"), RequestIDField(ctx))
}
