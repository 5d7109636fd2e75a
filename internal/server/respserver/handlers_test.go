package respserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/gridmesh-go/internal/core/domain"
)

func TestFormatError(t *testing.T) {
	assert.Equal(t, "ERR GRID-LOCK-4090 caller does not hold the lock", formatError(domain.ErrNotLockHolder))
	assert.Equal(t, "ERR GRID-LOCK-4090 caller does not hold the lock: m/k is not locked",
		formatError(domain.ErrNotLockHolder.WithDetails("m/k is not locked")))
	assert.Equal(t, "ERR boom", formatError(errors.New("boom")))
}

func TestOptionalTimeout(t *testing.T) {
	args := [][]byte{[]byte("QUEUE.TAKE"), []byte("q"), []byte("250")}

	d, err := optionalTimeout(args, 2)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = optionalTimeout(args[:2], 2)
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = optionalTimeout([][]byte{nil, nil, []byte("soon")}, 2)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestWaitFor(t *testing.T) {
	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	timedOut, err := waitFor(context.Background(), 10*time.Millisecond, block)
	assert.NoError(t, err)
	assert.True(t, timedOut)

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(domain.ErrSessionExpired)
	timedOut, err = waitFor(ctx, time.Second, block)
	assert.False(t, timedOut)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	ctx, plainCancel := context.WithCancel(context.Background())
	plainCancel()
	_, err = waitFor(ctx, 0, block)
	assert.ErrorIs(t, err, domain.ErrGridClosed)

	_, err = waitFor(context.Background(), 0, func(context.Context) error { return domain.ErrLockReentry })
	assert.ErrorIs(t, err, domain.ErrLockReentry)
}
