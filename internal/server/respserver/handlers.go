package respserver

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/yndnr/gridmesh-go/internal/core/domain"
	"github.com/yndnr/gridmesh-go/internal/core/grid"
	"github.com/yndnr/gridmesh-go/internal/core/service"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

// formatError renders err as "ERR <code> <message>[: details]". Errors
// without a code render as "ERR <message>".
func formatError(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		msg := "ERR " + de.Code + " " + de.Message
		if de.Details != "" {
			msg += ": " + de.Details
		}
		return msg
	}
	return "ERR " + err.Error()
}

// ============================================================================
// Connection commands
// ============================================================================

func (s *Server) cmdPing(_ context.Context, c *conn, args [][]byte) error {
	if len(args) > 1 {
		c.rw.Bulk(args[1])
		return nil
	}
	c.rw.Simple("PONG")
	return nil
}

func (s *Server) cmdQuit(_ context.Context, c *conn, _ [][]byte) error {
	c.quit = true
	c.rw.OK()
	return nil
}

// cmdAuth accepts AUTH <password> and AUTH <user> <password>; the user is
// ignored.
func (s *Server) cmdAuth(ctx context.Context, c *conn, args [][]byte) error {
	password := string(args[len(args)-1])
	if err := s.auth.Verify(password); err != nil {
		logger.FromContext(ctx).Warn("authentication failed", "remote", c.ip)
		return err
	}
	c.authenticated = true
	c.rw.OK()
	return nil
}

// cmdClient answers the CLIENT subcommands client libraries send during
// their handshake.
func (s *Server) cmdClient(_ context.Context, c *conn, args [][]byte) error {
	switch commandName(args[1]) {
	case "SETNAME":
		if len(args) != 3 {
			return domain.ErrBadRequest.WithDetails("CLIENT SETNAME takes one name")
		}
		c.clientName = string(args[2])
	case "GETNAME":
		if c.clientName == "" {
			c.rw.Null()
			return nil
		}
		c.rw.Bulk([]byte(c.clientName))
		return nil
	case "ID":
		c.rw.Bulk([]byte(c.id))
		return nil
	}
	c.rw.OK()
	return nil
}

// ============================================================================
// Session commands
// ============================================================================

func (s *Server) cmdHello(ctx context.Context, c *conn, args [][]byte) error {
	req := &service.HelloRequest{
		ClusterName: string(args[1]),
		ClientName:  c.clientName,
	}
	if len(args) == 3 {
		req.SessionID = string(args[2])
	}
	resp, err := s.sessions.Hello(req)
	if err != nil {
		return err
	}
	c.sessionID = resp.Session.ID
	logger.FromContext(ctx).Debug("connection bound to session", "session_id", c.sessionID, "resumed", resp.Resumed)
	c.rw.Bulk([]byte(resp.Session.ID))
	return nil
}

func (s *Server) cmdHeartbeat(_ context.Context, c *conn, _ [][]byte) error {
	// The session was touched on dispatch.
	c.rw.OK()
	return nil
}

func (s *Server) cmdBye(_ context.Context, c *conn, _ [][]byte) error {
	if c.sessionID != "" {
		s.sessions.Bye(c.sessionID)
		c.sessionID = ""
	}
	c.rw.OK()
	return nil
}

// ============================================================================
// Map commands
// ============================================================================

func (s *Server) cmdPutIfAbsent(_ context.Context, c *conn, args [][]byte) error {
	created := s.grid.Map(string(args[1])).PutIfAbsent(string(args[2]), args[3])
	c.rw.Bool(created)
	return nil
}

func (s *Server) cmdGet(_ context.Context, c *conn, args [][]byte) error {
	v, err := s.grid.Map(string(args[1])).Get(string(args[2]))
	if errors.Is(err, domain.ErrNotFound) {
		c.rw.Null()
		return nil
	}
	if err != nil {
		return err
	}
	c.rw.Bulk(v)
	return nil
}

func (s *Server) cmdPut(_ context.Context, c *conn, args [][]byte) error {
	s.grid.Map(string(args[1])).Put(string(args[2]), args[3])
	c.rw.OK()
	return nil
}

// cmdLock handles MAP.LOCK map key token [timeout_ms]. On timeout the reply
// is a null bulk and the request stays queued under token; MAP.LOCK with the
// same token resumes it in place, MAP.ABANDON withdraws it.
func (s *Server) cmdLock(ctx context.Context, c *conn, args [][]byte) error {
	owner, err := lockOwner(c, args[3])
	if err != nil {
		return err
	}
	timeout, err := optionalTimeout(args, 4)
	if err != nil {
		return err
	}

	m := s.grid.Map(string(args[1]))
	start := time.Now()
	var acquired bool
	if _, err := waitFor(ctx, 0, func(ctx context.Context) error {
		var err error
		acquired, err = m.LockWithin(ctx, string(args[2]), owner, timeout)
		return err
	}); err != nil {
		return err
	}
	if !acquired {
		c.rw.Null()
		return errWaitTimeout
	}
	if s.metrics != nil {
		s.metrics.LockWait.Observe(time.Since(start).Seconds())
	}
	c.rw.OK()
	return nil
}

func (s *Server) cmdUnlock(_ context.Context, c *conn, args [][]byte) error {
	owner, err := lockOwner(c, args[3])
	if err != nil {
		return err
	}
	if err := s.grid.Map(string(args[1])).Unlock(string(args[2]), owner); err != nil {
		return err
	}
	c.rw.OK()
	return nil
}

// cmdAbandon handles MAP.ABANDON map key token. The reply is 1 if a queued
// request or a held lock was given up.
func (s *Server) cmdAbandon(_ context.Context, c *conn, args [][]byte) error {
	owner, err := lockOwner(c, args[3])
	if err != nil {
		return err
	}
	c.rw.Bool(s.grid.Map(string(args[1])).Abandon(string(args[2]), owner))
	return nil
}

func (s *Server) cmdCompareAndSwap(_ context.Context, c *conn, args [][]byte) error {
	swapped, err := s.grid.Map(string(args[1])).CompareAndSwap(string(args[2]), args[3], args[4])
	if err != nil {
		return err
	}
	c.rw.Bool(swapped)
	return nil
}

func lockOwner(c *conn, token []byte) (grid.Owner, error) {
	if len(token) == 0 {
		return grid.Owner{}, domain.ErrBadRequest.WithDetails("empty lock token")
	}
	return grid.Owner{Session: c.sessionID, Token: string(token)}, nil
}

// ============================================================================
// Queue commands
// ============================================================================

// cmdQueuePut handles QUEUE.PUT queue item [timeout_ms]. The reply is 1
// once the item is accepted and 0 if the timeout elapsed first.
func (s *Server) cmdQueuePut(ctx context.Context, c *conn, args [][]byte) error {
	timeout, err := optionalTimeout(args, 3)
	if err != nil {
		return err
	}
	q := s.grid.Queue(string(args[1]))
	timedOut, err := waitFor(ctx, timeout, func(ctx context.Context) error {
		return q.Put(ctx, args[2])
	})
	if err != nil {
		return err
	}
	if timedOut {
		c.rw.Int(0)
		return errWaitTimeout
	}
	c.rw.Int(1)
	return nil
}

// cmdQueueTake handles QUEUE.TAKE queue [timeout_ms]. The reply is the
// head item, or a null bulk if the timeout elapsed first.
func (s *Server) cmdQueueTake(ctx context.Context, c *conn, args [][]byte) error {
	timeout, err := optionalTimeout(args, 2)
	if err != nil {
		return err
	}
	q := s.grid.Queue(string(args[1]))
	var item []byte
	timedOut, err := waitFor(ctx, timeout, func(ctx context.Context) error {
		var err error
		item, err = q.Take(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if timedOut {
		c.rw.Null()
		return errWaitTimeout
	}
	c.rw.Bulk(item)
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

// optionalTimeout parses args[i] as milliseconds. A missing argument or 0
// means wait without limit.
func optionalTimeout(args [][]byte, i int) (time.Duration, error) {
	if len(args) <= i {
		return 0, nil
	}
	ms, err := strconv.ParseInt(string(args[i]), 10, 64)
	if err != nil || ms < 0 {
		return 0, domain.ErrBadRequest.WithDetails("timeout_ms must be a non-negative integer")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// waitFor runs a blocking grid call under an optional timeout. timedOut
// reports that the timeout, not the caller going away, ended the wait. A
// cancelled ctx is reported as its cause: session expiry, disconnect, or
// shutdown.
func waitFor(ctx context.Context, timeout time.Duration, fn func(context.Context) error) (timedOut bool, err error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err = fn(waitCtx)
	if err == nil {
		return false, nil
	}
	if timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return true, nil
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		var de *domain.DomainError
		if errors.As(context.Cause(ctx), &de) {
			return false, de
		}
		return false, domain.ErrGridClosed.WithDetails("server shutting down")
	}
	return false, err
}
