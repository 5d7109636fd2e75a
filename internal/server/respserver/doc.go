// Package respserver serves the grid over RESP2.
//
// Every request is an array of bulk strings (inline commands are accepted
// for telnet-style debugging). Replies use the usual RESP types; errors are
// "ERR <code> <message>" where code is a stable domain error code, so
// clients can map failures back to typed errors.
//
// Supported commands:
//   - PING, QUIT, AUTH, CLIENT
//   - GRID.HELLO, GRID.HEARTBEAT, GRID.BYE
//   - MAP.PUTIFABSENT, MAP.GET, MAP.PUT, MAP.LOCK, MAP.UNLOCK, MAP.ABANDON,
//     MAP.CAS
//   - QUEUE.PUT, QUEUE.TAKE
//
// MAP.LOCK, QUEUE.PUT and QUEUE.TAKE may block. While they do, the
// connection is watched for a disconnect so that an abandoned wait is
// withdrawn instead of holding a lock or consuming an item for nobody.
//
// A MAP.LOCK whose timeout_ms elapses keeps its place in the key's queue
// under its token. Clients wait in slices by re-sending MAP.LOCK with the
// same token, and give up with MAP.ABANDON.
package respserver
