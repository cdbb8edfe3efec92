package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithSubscriberID(ctx, "sub-1")

	v, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", v)

	v, ok = TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", v)

	v, ok = SubscriberID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "sub-1", v)
}

func TestContextKeys_EmptyValueIsAbsent(t *testing.T) {
	ctx := WithSubscriberID(context.Background(), "")
	_, ok := SubscriberID(ctx)
	assert.False(t, ok)
}
