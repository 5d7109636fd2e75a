// Package gridclient is the Go client for a GridMesh server.
//
// A Client joins one cluster session, shared by every pooled connection, and
// keeps it alive with heartbeats. Locks belong to the session; each Lock call
// gets its own owner token, so goroutines sharing a Client exclude each other.
//
//	c, err := gridclient.Dial(ctx, gridclient.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer c.Close(ctx)
//
//	counters := c.Map("counter-map")
//	err = counters.WithLock(ctx, "key", func(ctx context.Context) error {
//		n, err := counters.GetInt(ctx, "key")
//		if err != nil {
//			return err
//		}
//		return counters.PutInt(ctx, "key", n+1)
//	})
//
// Blocking calls (Map.Lock, Queue.Put, Queue.Take) wait on the server in
// slices of Config.PollInterval and check the context between slices. A
// waiter gives up its place in line at the end of every slice.
//
// Server errors map back to the exported Err values, so errors.Is works
// across the wire.
package gridclient
