package grid

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/yndnr/gridmesh-go/internal/core/domain"
	"github.com/yndnr/gridmesh-go/pkg/cmap"
)

// Owner identifies a lock holder. Token distinguishes acquisitions made by
// goroutines sharing one client session; Session groups them so that an
// expired session can drop everything it holds at once.
type Owner struct {
	Session string
	Token   string
}

// KeyedMap is a named key/value map with a FIFO exclusive lock per key and
// per-key compare-and-swap.
//
// Values are stored as given and returned without copying; callers must not
// mutate a slice after handing it to the map or after reading it back.
type KeyedMap struct {
	name    string
	entries *cmap.Map[*entry]
	done    <-chan struct{}
}

type entry struct {
	mu      sync.Mutex
	value   []byte
	present bool
	holder  *Owner
	// unclaimed marks a lock granted to a parked request whose owner has
	// not come back for it yet.
	unclaimed bool
	waiters   []*lockWaiter
}

type lockWaiter struct {
	owner   Owner
	ready   chan struct{}
	granted bool
	err     error
	// attached is false while the request is parked between waits.
	attached bool
}

func newKeyedMap(name string, shardCount int, done <-chan struct{}) *KeyedMap {
	return &KeyedMap{
		name:    name,
		entries: cmap.NewWithShards[*entry](shardCount),
		done:    done,
	}
}

// Name returns the map name.
func (m *KeyedMap) Name() string {
	return m.name
}

func (m *KeyedMap) entry(key string) *entry {
	return m.entries.GetOrCreate(key, func() *entry { return &entry{} })
}

// PutIfAbsent stores value under key if the key has never been written.
// It reports whether the write happened.
func (m *KeyedMap) PutIfAbsent(key string, value []byte) bool {
	e := m.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.present {
		return false
	}
	e.value, e.present = value, true
	return true
}

// Get returns the last committed value for key, or domain.ErrNotFound.
func (m *KeyedMap) Get(key string) ([]byte, error) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.present {
		return nil, domain.ErrNotFound
	}
	return e.value, nil
}

// Put overwrites the value for key. It never waits for the key's lock.
func (m *KeyedMap) Put(key string, value []byte) {
	e := m.entry(key)
	e.mu.Lock()
	e.value, e.present = value, true
	e.mu.Unlock()
}

// CompareAndSwap replaces the value for key with newValue iff the current
// value equals expected. It returns domain.ErrNotFound for a key that was
// never written.
func (m *KeyedMap) CompareAndSwap(key string, expected, newValue []byte) (bool, error) {
	e, ok := m.entries.Get(key)
	if !ok {
		return false, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.present {
		return false, domain.ErrNotFound
	}
	if !bytes.Equal(e.value, expected) {
		return false, nil
	}
	e.value = newValue
	return true, nil
}

// Lock blocks until owner holds the lock on key, ctx ends, or the grid
// closes. Contended acquisitions are granted in arrival order. Locking a key
// the owner already holds fails with domain.ErrLockReentry. If ctx ends
// first the request leaves the queue.
func (m *KeyedMap) Lock(ctx context.Context, key string, owner Owner) error {
	_, err := m.LockWithin(ctx, key, owner, 0)
	return err
}

// LockWithin is Lock bounded by wait; wait <= 0 waits indefinitely. When
// wait runs out it reports false and the request stays parked in the queue
// under owner's token: a later call with the same token resumes it in
// place, and if the lock reaches it meanwhile that call returns at once.
// Abandon, session expiry and the grid closing withdraw a parked request.
// If ctx ends first the request leaves the queue, as with Lock.
func (m *KeyedMap) LockWithin(ctx context.Context, key string, owner Owner, wait time.Duration) (bool, error) {
	e := m.entry(key)

	e.mu.Lock()
	select {
	case <-m.done:
		e.mu.Unlock()
		return false, domain.ErrGridClosed
	default:
	}
	switch {
	case e.holder == nil:
		e.holder, e.unclaimed = &owner, false
		e.mu.Unlock()
		return true, nil
	case e.holder.Token == owner.Token && e.unclaimed:
		e.unclaimed = false
		e.mu.Unlock()
		return true, nil
	case e.holder.Token == owner.Token:
		e.mu.Unlock()
		return false, domain.ErrLockReentry.WithDetails(m.name + "/" + key)
	}
	w := e.waiter(owner.Token)
	switch {
	case w == nil:
		w = &lockWaiter{owner: owner, ready: make(chan struct{}), attached: true}
		e.waiters = append(e.waiters, w)
	case w.attached:
		e.mu.Unlock()
		return false, domain.ErrLockReentry.WithDetails(m.name + "/" + key + " is already being waited for")
	default:
		w.attached = true
	}
	e.mu.Unlock()

	var expired <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		expired = t.C
	}

	var err error
	select {
	case <-w.ready:
		return w.err == nil, w.err
	case <-expired:
		e.mu.Lock()
		defer e.mu.Unlock()
		switch {
		case w.granted:
			return true, nil
		case w.err != nil:
			return false, w.err
		}
		w.attached = false
		return false, nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-m.done:
		err = domain.ErrGridClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case w.granted:
		// Granted while we were giving up: pass it straight on.
		e.handOff()
	case w.err != nil:
		err = w.err
	default:
		e.removeWaiter(w)
	}
	return false, err
}

// Abandon withdraws owner's claim on key: a parked request leaves the queue
// and a lock held under owner's token is passed on. A request that is being
// waited on is left to its caller. It reports whether anything changed.
func (m *KeyedMap) Abandon(key string, owner Owner) bool {
	e, ok := m.entries.Get(key)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holder != nil && e.holder.Token == owner.Token {
		e.handOff()
		return true
	}
	if w := e.waiter(owner.Token); w != nil && !w.attached {
		e.removeWaiter(w)
		return true
	}
	return false
}

// Unlock releases the lock on key held by owner and grants it to the
// longest-waiting caller, if any. It fails with domain.ErrNotLockHolder when
// owner is not the holder, leaving lock state untouched.
func (m *KeyedMap) Unlock(key string, owner Owner) error {
	e, ok := m.entries.Get(key)
	if !ok {
		return domain.ErrNotLockHolder.WithDetails(m.name + "/" + key + " is not locked")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holder == nil {
		return domain.ErrNotLockHolder.WithDetails(m.name + "/" + key + " is not locked")
	}
	if e.holder.Token != owner.Token {
		return domain.ErrNotLockHolder.WithDetails(m.name + "/" + key)
	}
	e.handOff()
	return nil
}

// Holder returns the current lock holder of key.
func (m *KeyedMap) Holder(key string) (Owner, bool) {
	e, ok := m.entries.Get(key)
	if !ok {
		return Owner{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holder == nil {
		return Owner{}, false
	}
	return *e.holder, true
}

// releaseSession drops every lock held by session and fails its pending
// lock requests with domain.ErrSessionExpired. It returns the number of
// locks released.
func (m *KeyedMap) releaseSession(session string) int {
	released := 0
	m.entries.Range(func(_ string, e *entry) bool {
		e.mu.Lock()
		kept := e.waiters[:0]
		for _, w := range e.waiters {
			if w.owner.Session == session {
				w.err = domain.ErrSessionExpired
				close(w.ready)
				continue
			}
			kept = append(kept, w)
		}
		clear(e.waiters[len(kept):])
		e.waiters = kept
		if e.holder != nil && e.holder.Session == session {
			e.handOff()
			released++
		}
		e.mu.Unlock()
		return true
	})
	return released
}

// locksHeld counts keys whose lock is currently held.
func (m *KeyedMap) locksHeld() int {
	held := 0
	m.entries.Range(func(_ string, e *entry) bool {
		e.mu.Lock()
		if e.holder != nil {
			held++
		}
		e.mu.Unlock()
		return true
	})
	return held
}

// handOff grants the lock to the head waiter or frees it. e.mu must be held.
func (e *entry) handOff() {
	if len(e.waiters) == 0 {
		e.holder, e.unclaimed = nil, false
		return
	}
	w := e.waiters[0]
	e.waiters[0] = nil
	e.waiters = e.waiters[1:]
	w.granted = true
	e.holder, e.unclaimed = &w.owner, !w.attached
	close(w.ready)
}

// waiter finds the queued request with token. e.mu must be held.
func (e *entry) waiter(token string) *lockWaiter {
	for _, w := range e.waiters {
		if w.owner.Token == token {
			return w
		}
	}
	return nil
}

// removeWaiter drops w from the wait list. e.mu must be held.
func (e *entry) removeWaiter(w *lockWaiter) {
	for i, cur := range e.waiters {
		if cur == w {
			copy(e.waiters[i:], e.waiters[i+1:])
			e.waiters[len(e.waiters)-1] = nil
			e.waiters = e.waiters[:len(e.waiters)-1]
			return
		}
	}
}
