package gridclient

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Queue is a handle to a named bounded queue on the server.
type Queue struct {
	c    *Client
	name string
}

// Queue returns a handle to the named queue. The server creates it on first
// use with its configured capacity.
func (c *Client) Queue(name string) *Queue {
	return &Queue{c: c, name: name}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Put appends item, waiting while the queue is full.
func (q *Queue) Put(ctx context.Context, item []byte) error {
	ctx, done := q.c.bind(ctx)
	defer done()
	for {
		ms, ok := q.c.slice(ctx)
		if !ok {
			return context.Cause(ctx)
		}
		accepted, err := q.c.do(ctx, q.c.blocking, "QUEUE.PUT", q.name, item, ms).Bool()
		if err != nil {
			return q.c.wrap(ctx, err)
		}
		if accepted {
			return nil
		}
	}
}

// Take removes and returns the head item, waiting while the queue is empty.
func (q *Queue) Take(ctx context.Context) ([]byte, error) {
	ctx, done := q.c.bind(ctx)
	defer done()
	for {
		ms, ok := q.c.slice(ctx)
		if !ok {
			return nil, context.Cause(ctx)
		}
		item, err := q.c.do(ctx, q.c.blocking, "QUEUE.TAKE", q.name, ms).Text()
		switch {
		case err == nil:
			return []byte(item), nil
		case errors.Is(err, redis.Nil):
			continue
		}
		return nil, q.c.wrap(ctx, err)
	}
}
