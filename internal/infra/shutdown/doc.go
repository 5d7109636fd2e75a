// Package shutdown provides graceful shutdown for GridMesh.
//
// Components register hooks as they start; on SIGINT, SIGTERM or when the
// run context ends, hooks run in reverse order of registration under a
// shared deadline, so the last component started is the first one stopped.
//
// Usage:
//
//	h := shutdown.NewHandler(10*time.Second, log)
//	h.OnShutdown("resp server", srv.Shutdown)
//	err := h.Wait(ctx)
package shutdown
