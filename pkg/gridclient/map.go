package gridclient

import (
	"context"
	"errors"
	"strconv"

	retry "github.com/avast/retry-go/v5"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Map is a handle to a named map on the server. Values are opaque bytes;
// the Int helpers store decimal integers.
type Map struct {
	c    *Client
	name string
}

// Map returns a handle to the named map. The server creates it on first use.
func (c *Client) Map(name string) *Map {
	return &Map{c: c, name: name}
}

// Name returns the map name.
func (m *Map) Name() string {
	return m.name
}

// PutIfAbsent stores value only if key has no value yet and reports whether
// it did.
func (m *Map) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	ctx, done := m.c.bind(ctx)
	defer done()
	created, err := m.c.do(ctx, m.c.cmd, "MAP.PUTIFABSENT", m.name, key, value).Bool()
	return created, m.c.wrap(ctx, err)
}

// Get returns the last value written for key, or ErrNotFound.
func (m *Map) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, done := m.c.bind(ctx)
	defer done()
	v, err := m.c.do(ctx, m.c.cmd, "MAP.GET", m.name, key).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound.WithDetails(key)
	}
	if err != nil {
		return nil, m.c.wrap(ctx, err)
	}
	return []byte(v), nil
}

// Put stores value unconditionally.
func (m *Map) Put(ctx context.Context, key string, value []byte) error {
	ctx, done := m.c.bind(ctx)
	defer done()
	return m.c.wrap(ctx, m.c.do(ctx, m.c.cmd, "MAP.PUT", m.name, key, value).Err())
}

// CompareAndSwap replaces the value of key with next if it currently equals
// expected. It returns ErrNotFound if key has no value.
func (m *Map) CompareAndSwap(ctx context.Context, key string, expected, next []byte) (bool, error) {
	ctx, done := m.c.bind(ctx)
	defer done()
	swapped, err := m.c.do(ctx, m.c.cmd, "MAP.CAS", m.name, key, expected, next).Bool()
	return swapped, m.c.wrap(ctx, err)
}

// Lock waits until the caller holds the lock on key. Each call is a distinct
// owner, so a second Lock on a key already held through this client waits
// like any other. Release with LockGuard.Unlock.
//
// The wait is sent in PollInterval slices under one token. The server keeps
// the request's place in the queue between slices, so grants stay in
// arrival order however long the wait.
func (m *Map) Lock(ctx context.Context, key string) (*LockGuard, error) {
	ctx, done := m.c.bind(ctx)
	defer done()

	token := ulid.Make().String()
	for queued := false; ; queued = true {
		ms, ok := m.c.slice(ctx)
		if !ok {
			if queued {
				m.abandon(key, token)
			}
			return nil, context.Cause(ctx)
		}
		err := m.c.do(ctx, m.c.blocking, "MAP.LOCK", m.name, key, token, ms).Err()
		switch {
		case err == nil:
			return &LockGuard{m: m, key: key, token: token}, nil
		case errors.Is(err, redis.Nil):
			continue
		}

		err = m.c.wrap(ctx, err)
		if !errors.Is(err, ErrLockReentry) && !errors.Is(err, ErrNotLockHolder) && !errors.Is(err, ErrSessionExpired) {
			// The request may still be queued, or its grant lost with the
			// reply.
			m.abandon(key, token)
		}
		return nil, err
	}
}

// abandon withdraws token's queued request or releases a lock granted to it.
func (m *Map) abandon(key, token string) {
	if m.c.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.c.ctx, m.c.cfg.ReadTimeout)
	defer cancel()
	if given, err := m.c.do(ctx, m.c.cmd, "MAP.ABANDON", m.name, key, token).Bool(); err == nil && given {
		m.c.log.Debug("abandoned lock request", "map", m.name, "key", key)
	}
}

// Unlock releases the lock on key held by token. It fails with
// ErrNotLockHolder unless token is the current holder.
func (m *Map) Unlock(ctx context.Context, key, token string) error {
	ctx, done := m.c.bind(ctx)
	defer done()
	return m.c.wrap(ctx, m.c.do(ctx, m.c.cmd, "MAP.UNLOCK", m.name, key, token).Err())
}

// WithLock runs fn while holding the lock on key. The lock is released on
// every exit path, panics included.
func (m *Map) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (err error) {
	guard, err := m.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, guard.Unlock(context.WithoutCancel(ctx)))
	}()
	return fn(ctx)
}

// Update applies fn to the current value of key and stores the result with
// compare-and-swap, retrying with backoff while concurrent writers win. It
// returns the stored value. Errors from Get or fn end the loop at once.
func (m *Map) Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) ([]byte, error) {
	return retry.NewWithData[[]byte](m.c.retryOptions(ctx)...).Do(func() ([]byte, error) {
		old, err := m.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		next, err := fn(old)
		if err != nil {
			return nil, err
		}
		swapped, err := m.CompareAndSwap(ctx, key, old, next)
		if err != nil {
			return nil, err
		}
		if !swapped {
			return nil, ErrCASConflict
		}
		return next, nil
	})
}

func (c *Client) retryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.cfg.CASAttempts),
		retry.Delay(c.cfg.CASDelay),
		retry.MaxDelay(c.cfg.CASMaxDelay),
		retry.MaxJitter(c.cfg.CASDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrCASConflict) }),
		retry.LastErrorOnly(true),
	}
}

// GetInt returns the decimal integer stored at key.
func (m *Map) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := m.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, ErrBadRequest.WithDetails("value of " + key + " is not an integer").WithCause(err)
	}
	return n, nil
}

// PutInt stores n as a decimal integer.
func (m *Map) PutInt(ctx context.Context, key string, n int64) error {
	return m.Put(ctx, key, formatInt(n))
}

// PutIfAbsentInt stores n only if key has no value yet.
func (m *Map) PutIfAbsentInt(ctx context.Context, key string, n int64) (bool, error) {
	return m.PutIfAbsent(ctx, key, formatInt(n))
}

// UpdateInt is Update over decimal integers.
func (m *Map) UpdateInt(ctx context.Context, key string, fn func(old int64) int64) (int64, error) {
	var n int64
	_, err := m.Update(ctx, key, func(old []byte) ([]byte, error) {
		v, err := strconv.ParseInt(string(old), 10, 64)
		if err != nil {
			return nil, ErrBadRequest.WithDetails("value of " + key + " is not an integer").WithCause(err)
		}
		n = fn(v)
		return formatInt(n), nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func formatInt(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}

// LockGuard is a held lock. Unlock releases it.
type LockGuard struct {
	m     *Map
	key   string
	token string
}

// Key returns the locked key.
func (g *LockGuard) Key() string {
	return g.key
}

// Token returns the owner token the lock is held under.
func (g *LockGuard) Token() string {
	return g.token
}

// Unlock releases the lock. A second Unlock fails with ErrNotLockHolder.
func (g *LockGuard) Unlock(ctx context.Context) error {
	return g.m.Unlock(ctx, g.key, g.token)
}
