package grid

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yndnr/gridmesh-go/internal/core/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestGrid(t *testing.T) *Grid {
	t.Helper()
	g, err := New(Config{ShardCount: 8, DefaultQueueCapacity: 4})
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

func owner(session string, n int) Owner {
	return Owner{Session: session, Token: fmt.Sprintf("%s-%d", session, n)}
}

func itoa(n int64) []byte { return []byte(strconv.FormatInt(n, 10)) }

func atoi(t testing.TB, b []byte) int64 {
	n, err := strconv.ParseInt(string(b), 10, 64)
	require.NoError(t, err)
	return n
}

// waitForLockWaiters blocks until key has n queued lock requests.
func waitForLockWaiters(t *testing.T, m *KeyedMap, key string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		e, ok := m.entries.Get(key)
		if !ok {
			return false
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.waiters) == n
	}, 2*time.Second, time.Millisecond)
}

// waitForAttached blocks until the request queued under token on key is
// attached, or parked when attached is false.
func waitForAttached(t *testing.T, m *KeyedMap, key, token string, attached bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		e, ok := m.entries.Get(key)
		if !ok {
			return false
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		w := e.waiter(token)
		return w != nil && w.attached == attached
	}, 2*time.Second, time.Millisecond)
}

func TestKeyedMap_BasicOperations(t *testing.T) {
	m := newTestGrid(t).Map("distributed-map")

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.True(t, m.PutIfAbsent("k", []byte("v1")))
	assert.False(t, m.PutIfAbsent("k", []byte("v2")))

	v, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	m.Put("k", []byte("v3"))
	v, _ = m.Get("k")
	assert.Equal(t, "v3", string(v))
}

func TestKeyedMap_LockOnAbsentKeyDoesNotCreateValue(t *testing.T) {
	m := newTestGrid(t).Map("m")
	o := owner("s", 1)

	require.NoError(t, m.Lock(context.Background(), "ghost", o))
	_, err := m.Get("ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.CompareAndSwap("ghost", nil, []byte("x"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, m.Unlock("ghost", o))
}

func TestKeyedMap_CompareAndSwap(t *testing.T) {
	m := newTestGrid(t).Map("m")

	_, err := m.CompareAndSwap("k", []byte("0"), []byte("1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	m.Put("k", []byte("0"))
	ok, err := m.CompareAndSwap("k", []byte("9"), []byte("1"))
	require.NoError(t, err)
	assert.False(t, ok)
	v, _ := m.Get("k")
	assert.Equal(t, "0", string(v))

	ok, err = m.CompareAndSwap("k", []byte("0"), []byte("1"))
	require.NoError(t, err)
	assert.True(t, ok)
	v, _ = m.Get("k")
	assert.Equal(t, "1", string(v))
}

func TestKeyedMap_ConcurrentCASOneWinnerPerTransition(t *testing.T) {
	m := newTestGrid(t).Map("m")
	m.Put("k", []byte("0"))

	const contenders = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := m.CompareAndSwap("k", []byte("0"), []byte("1"))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestKeyedMap_PessimisticCounterHasNoLostUpdates(t *testing.T) {
	for _, workers := range []int{1, 2, 8} {
		for _, iterations := range []int{1, 100, 10000} {
			t.Run(fmt.Sprintf("N=%d/K=%d", workers, iterations), func(t *testing.T) {
				m := newTestGrid(t).Map("counter-map")
				m.PutIfAbsent("key", itoa(0))

				var wg sync.WaitGroup
				for w := 0; w < workers; w++ {
					wg.Add(1)
					go func(w int) {
						defer wg.Done()
						ctx := context.Background()
						for i := 0; i < iterations; i++ {
							o := owner(fmt.Sprintf("client-%d", w), i)
							if !assert.NoError(t, m.Lock(ctx, "key", o)) {
								return
							}
							v, err := m.Get("key")
							assert.NoError(t, err)
							m.Put("key", itoa(atoi(t, v)+1))
							assert.NoError(t, m.Unlock("key", o))
						}
					}(w)
				}
				wg.Wait()

				v, err := m.Get("key")
				require.NoError(t, err)
				assert.Equal(t, int64(workers*iterations), atoi(t, v))
			})
		}
	}
}

func TestKeyedMap_OptimisticCounterConverges(t *testing.T) {
	m := newTestGrid(t).Map("counter-map")
	m.PutIfAbsent("key", itoa(0))

	const workers, iterations = 8, 2000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				for {
					old, err := m.Get("key")
					if !assert.NoError(t, err) {
						return
					}
					ok, err := m.CompareAndSwap("key", old, itoa(atoi(t, old)+1))
					if !assert.NoError(t, err) {
						return
					}
					if ok {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	v, _ := m.Get("key")
	assert.Equal(t, int64(workers*iterations), atoi(t, v))
}

func TestKeyedMap_UnsynchronizedCounterNeverOvercounts(t *testing.T) {
	m := newTestGrid(t).Map("counter-map")
	m.PutIfAbsent("key", itoa(0))

	const workers, iterations = 4, 5000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				v, _ := m.Get("key")
				m.Put("key", itoa(atoi(t, v)+1))
			}
		}()
	}
	wg.Wait()

	v, _ := m.Get("key")
	final := atoi(t, v)
	assert.LessOrEqual(t, final, int64(workers*iterations))
	assert.GreaterOrEqual(t, final, int64(iterations))
}

func TestKeyedMap_UnlockByNonHolder(t *testing.T) {
	m := newTestGrid(t).Map("m")
	holder, other := owner("a", 1), owner("b", 1)

	err := m.Unlock("k", other)
	assert.ErrorIs(t, err, domain.ErrNotLockHolder, "unlock of an unknown key")

	m.Put("k", []byte("42"))
	err = m.Unlock("k", other)
	assert.ErrorIs(t, err, domain.ErrNotLockHolder, "unlock of an unheld key")

	require.NoError(t, m.Lock(context.Background(), "k", holder))
	err = m.Unlock("k", other)
	assert.ErrorIs(t, err, domain.ErrNotLockHolder)

	got, ok := m.Holder("k")
	require.True(t, ok)
	assert.Equal(t, holder, got)
	v, _ := m.Get("k")
	assert.Equal(t, "42", string(v))

	require.NoError(t, m.Unlock("k", holder))
	_, ok = m.Holder("k")
	assert.False(t, ok)
}

func TestKeyedMap_Reentry(t *testing.T) {
	m := newTestGrid(t).Map("m")
	o := owner("a", 1)

	require.NoError(t, m.Lock(context.Background(), "k", o))
	err := m.Lock(context.Background(), "k", o)
	assert.ErrorIs(t, err, domain.ErrLockReentry)
	require.NoError(t, m.Unlock("k", o))
}

func TestKeyedMap_LockGrantsInFIFOOrder(t *testing.T) {
	m := newTestGrid(t).Map("m")
	ctx := context.Background()
	first := owner("holder", 0)
	require.NoError(t, m.Lock(ctx, "k", first))

	const waiters = 5
	granted := make(chan int, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		o := owner("w", i)
		go func(i int) {
			defer wg.Done()
			if assert.NoError(t, m.Lock(ctx, "k", o)) {
				granted <- i
				assert.NoError(t, m.Unlock("k", o))
			}
		}(i)
		waitForLockWaiters(t, m, "k", i+1)
	}

	require.NoError(t, m.Unlock("k", first))
	wg.Wait()
	close(granted)

	var order []int
	for i := range granted {
		order = append(order, i)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestKeyedMap_LockDoesNotBlockOtherKeys(t *testing.T) {
	m := newTestGrid(t).Map("m")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, m.Lock(ctx, "a", owner("x", 1)))
	require.NoError(t, m.Lock(ctx, "b", owner("y", 1)))
	m.Put("a", []byte("put while locked"))
	v, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "put while locked", string(v))
}

func TestKeyedMap_LockCancelledWhileWaiting(t *testing.T) {
	m := newTestGrid(t).Map("m")
	holder, next := owner("a", 1), owner("c", 1)
	require.NoError(t, m.Lock(context.Background(), "k", holder))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Lock(ctx, "k", owner("b", 1)) }()
	waitForLockWaiters(t, m, "k", 1)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	waitForLockWaiters(t, m, "k", 0)

	// The cancelled waiter must not be granted the lock later.
	nextCh := make(chan error, 1)
	go func() { nextCh <- m.Lock(context.Background(), "k", next) }()
	waitForLockWaiters(t, m, "k", 1)
	require.NoError(t, m.Unlock("k", holder))
	require.NoError(t, <-nextCh)
	got, _ := m.Holder("k")
	assert.Equal(t, next, got)
}

func TestKeyedMap_LockWithinKeepsPlaceAcrossWaits(t *testing.T) {
	m := newTestGrid(t).Map("m")
	ctx := context.Background()
	holder, a, b := owner("h", 1), owner("a", 1), owner("b", 1)
	require.NoError(t, m.Lock(ctx, "k", holder))

	ok, err := m.LockWithin(ctx, "k", a, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	waitForAttached(t, m, "k", a.Token, false)

	bCh := make(chan error, 1)
	go func() { bCh <- m.Lock(ctx, "k", b) }()
	waitForLockWaiters(t, m, "k", 2)

	// Released while a is between waits: the grant still goes to a.
	require.NoError(t, m.Unlock("k", holder))
	got, _ := m.Holder("k")
	assert.Equal(t, a, got)

	ok, err = m.LockWithin(ctx, "k", a, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "the returning owner collects its grant")
	assert.ErrorIs(t, m.Lock(ctx, "k", a), domain.ErrLockReentry)

	require.NoError(t, m.Unlock("k", a))
	require.NoError(t, <-bCh)
	require.NoError(t, m.Unlock("k", b))
}

func TestKeyedMap_LockWithinResumesAheadOfLaterWaiters(t *testing.T) {
	m := newTestGrid(t).Map("m")
	ctx := context.Background()
	holder, a, b := owner("h", 1), owner("a", 1), owner("b", 1)
	require.NoError(t, m.Lock(ctx, "k", holder))

	ok, err := m.LockWithin(ctx, "k", a, 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)

	granted := make(chan Owner, 2)
	go func() {
		if assert.NoError(t, m.Lock(ctx, "k", b)) {
			granted <- b
		}
	}()
	waitForLockWaiters(t, m, "k", 2)
	go func() {
		ok, err := m.LockWithin(ctx, "k", a, 2*time.Second)
		if assert.NoError(t, err) && assert.True(t, ok) {
			granted <- a
		}
	}()
	waitForAttached(t, m, "k", a.Token, true)

	_, err = m.LockWithin(ctx, "k", a, time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrLockReentry, "one caller per request")

	require.NoError(t, m.Unlock("k", holder))
	assert.Equal(t, a, <-granted)
	require.NoError(t, m.Unlock("k", a))
	assert.Equal(t, b, <-granted)
	require.NoError(t, m.Unlock("k", b))
}

func TestKeyedMap_Abandon(t *testing.T) {
	m := newTestGrid(t).Map("m")
	ctx := context.Background()
	holder, a, b := owner("h", 1), owner("a", 1), owner("b", 1)

	assert.False(t, m.Abandon("k", a), "unknown key")
	require.NoError(t, m.Lock(ctx, "k", holder))

	ok, err := m.LockWithin(ctx, "k", a, 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	assert.True(t, m.Abandon("k", a))
	waitForLockWaiters(t, m, "k", 0)
	assert.False(t, m.Abandon("k", a))

	// A parked request granted the lock gives it up too.
	ok, err = m.LockWithin(ctx, "k", a, 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, m.Unlock("k", holder))
	bCh := make(chan error, 1)
	go func() { bCh <- m.Lock(ctx, "k", b) }()
	waitForLockWaiters(t, m, "k", 1)
	assert.True(t, m.Abandon("k", a))
	require.NoError(t, <-bCh)

	// A request someone is waiting on is left alone.
	aCh := make(chan error, 1)
	go func() { aCh <- m.Lock(ctx, "k", a) }()
	waitForAttached(t, m, "k", a.Token, true)
	assert.False(t, m.Abandon("k", a))
	require.NoError(t, m.Unlock("k", b))
	require.NoError(t, <-aCh)
}

func TestGrid_ReleaseSessionDropsParkedRequests(t *testing.T) {
	g := newTestGrid(t)
	m := g.Map("m")
	ctx := context.Background()
	require.NoError(t, m.Lock(ctx, "k", owner("alive", 1)))

	ok, err := m.LockWithin(ctx, "k", owner("dead", 1), 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	assert.Equal(t, 0, g.ReleaseSession("dead"))
	waitForLockWaiters(t, m, "k", 0)

	require.NoError(t, m.Unlock("k", owner("alive", 1)))
	_, held := m.Holder("k")
	assert.False(t, held)
}

func TestGrid_ReleaseSession(t *testing.T) {
	g := newTestGrid(t)
	m := g.Map("m")
	ctx := context.Background()

	require.NoError(t, m.Lock(ctx, "a", owner("dead", 1)))
	require.NoError(t, m.Lock(ctx, "b", owner("dead", 2)))
	require.NoError(t, m.Lock(ctx, "c", owner("alive", 1)))

	// "dead" also waits on c, "alive" waits on a.
	deadWait := make(chan error, 1)
	go func() { deadWait <- m.Lock(ctx, "c", owner("dead", 3)) }()
	waitForLockWaiters(t, m, "c", 1)
	aliveWait := make(chan error, 1)
	go func() { aliveWait <- m.Lock(ctx, "a", owner("alive", 2)) }()
	waitForLockWaiters(t, m, "a", 1)

	assert.Equal(t, 2, g.ReleaseSession("dead"))

	assert.ErrorIs(t, <-deadWait, domain.ErrSessionExpired)
	require.NoError(t, <-aliveWait)
	h, _ := m.Holder("a")
	assert.Equal(t, owner("alive", 2), h)
	_, held := m.Holder("b")
	assert.False(t, held)
	h, _ = m.Holder("c")
	assert.Equal(t, owner("alive", 1), h)
	assert.Equal(t, 2, g.Stats().LocksHeld)
}

func TestGrid_CloseFailsLockWaiters(t *testing.T) {
	g, err := New(Config{})
	require.NoError(t, err)
	m := g.Map("m")
	require.NoError(t, m.Lock(context.Background(), "k", owner("a", 1)))

	errCh := make(chan error, 1)
	go func() { errCh <- m.Lock(context.Background(), "k", owner("b", 1)) }()
	waitForLockWaiters(t, m, "k", 1)

	g.Close()
	assert.ErrorIs(t, <-errCh, domain.ErrGridClosed)
	assert.ErrorIs(t, m.Lock(context.Background(), "other", owner("c", 1)), domain.ErrGridClosed)

	// Non-blocking operations keep working after close.
	m.Put("k", []byte("1"))
	v, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))
}
