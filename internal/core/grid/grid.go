package grid

import (
	"sort"
	"sync"

	"github.com/yndnr/gridmesh-go/internal/core/domain"
	"github.com/yndnr/gridmesh-go/pkg/cmap"
)

// DefaultQueueCapacity is used for queues without an explicit capacity.
const DefaultQueueCapacity = 10

// Config configures a Grid.
type Config struct {
	// ShardCount is the number of shards per map (power of two).
	ShardCount int
	// DefaultQueueCapacity applies to queues not listed in QueueCapacities.
	DefaultQueueCapacity int
	// QueueCapacities overrides the capacity per queue name.
	QueueCapacities map[string]int
}

// Grid owns every named map and queue. Both are created on first reference
// and live until the process exits.
type Grid struct {
	cfg    Config
	maps   *cmap.Map[*KeyedMap]
	queues *cmap.Map[*BoundedQueue]

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a grid. It fails if any configured capacity is not positive.
func New(cfg Config) (*Grid, error) {
	if cfg.ShardCount == 0 {
		cfg.ShardCount = cmap.DefaultShardCount
	}
	if cfg.DefaultQueueCapacity == 0 {
		cfg.DefaultQueueCapacity = DefaultQueueCapacity
	}
	if cfg.DefaultQueueCapacity < 0 {
		return nil, domain.ErrInvalidCapacity.WithDetails("default")
	}
	for name, c := range cfg.QueueCapacities {
		if c <= 0 {
			return nil, domain.ErrInvalidCapacity.WithDetails(name)
		}
	}

	return &Grid{
		cfg:    cfg,
		maps:   cmap.New[*KeyedMap](),
		queues: cmap.New[*BoundedQueue](),
		done:   make(chan struct{}),
	}, nil
}

// Map returns the named map, creating it if needed.
func (g *Grid) Map(name string) *KeyedMap {
	return g.maps.GetOrCreate(name, func() *KeyedMap {
		return newKeyedMap(name, g.cfg.ShardCount, g.done)
	})
}

// Queue returns the named queue, creating it if needed.
func (g *Grid) Queue(name string) *BoundedQueue {
	return g.queues.GetOrCreate(name, func() *BoundedQueue {
		// Capacities were validated in New.
		q, _ := NewBoundedQueue(name, g.QueueCapacity(name), g.done)
		return q
	})
}

// QueueCapacity returns the capacity a queue with this name has or will have.
func (g *Grid) QueueCapacity(name string) int {
	if c, ok := g.cfg.QueueCapacities[name]; ok {
		return c
	}
	return g.cfg.DefaultQueueCapacity
}

// ReleaseSession releases all locks held by session across every map and
// fails its pending lock requests. It returns the number of locks released.
func (g *Grid) ReleaseSession(session string) int {
	released := 0
	g.maps.Range(func(_ string, m *KeyedMap) bool {
		released += m.releaseSession(session)
		return true
	})
	return released
}

// Close fails all blocked and future lock, put and take calls with
// domain.ErrGridClosed. Non-blocking operations keep working.
func (g *Grid) Close() {
	g.closeOnce.Do(func() { close(g.done) })
}

// Done is closed when the grid shuts down.
func (g *Grid) Done() <-chan struct{} {
	return g.done
}

// QueueStats is a point-in-time view of one queue.
type QueueStats struct {
	Name     string     `json:"name"`
	Capacity int        `json:"capacity"`
	Depth    int        `json:"depth"`
	State    QueueState `json:"state"`
	Takers   int        `json:"blocked_takers"`
	Putters  int        `json:"blocked_putters"`
}

// Stats is a point-in-time view of the grid.
type Stats struct {
	Maps      int          `json:"maps"`
	LocksHeld int          `json:"locks_held"`
	Queues    []QueueStats `json:"queues"`
}

// Stats collects map and queue statistics. Queues are sorted by name.
func (g *Grid) Stats() Stats {
	st := Stats{Maps: g.maps.Count()}
	g.maps.Range(func(_ string, m *KeyedMap) bool {
		st.LocksHeld += m.locksHeld()
		return true
	})
	g.queues.Range(func(name string, q *BoundedQueue) bool {
		q.mu.Lock()
		st.Queues = append(st.Queues, QueueStats{
			Name:     name,
			Capacity: q.capacity,
			Depth:    q.size,
			State:    q.stateLocked(),
			Takers:   len(q.takers),
			Putters:  len(q.putters),
		})
		q.mu.Unlock()
		return true
	})
	sort.Slice(st.Queues, func(i, j int) bool { return st.Queues[i].Name < st.Queues[j].Name })
	return st
}
