package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.Same(t, Default(), FromContext(context.Background()))
}

func TestNewContext(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "json")

	FromContext(NewContext(context.Background(), l)).Info("from context")
	assert.NotZero(t, buf.Len())
}

func TestWith_Accumulates(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "json")

	ctx := NewContext(context.Background(), l)
	ctx = With(ctx, "conn_id", "c-3")
	ctx = With(ctx, "session_id", "s-1")
	FromContext(ctx).Info("command")

	entry := decodeLine(t, buf)
	assert.Equal(t, "c-3", entry["conn_id"])
	assert.Equal(t, "s-1", entry["session_id"])
}

func TestWith_ParentUnchanged(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "json")

	parent := NewContext(context.Background(), l)
	_ = With(parent, "conn_id", "c-9")
	FromContext(parent).Info("bare")

	assert.NotContains(t, decodeLine(t, buf), "conn_id")
}
