package respserver

import (
	"context"
	"errors"
	"time"

	"github.com/yndnr/gridmesh-go/internal/core/domain"
	"github.com/yndnr/gridmesh-go/internal/core/service"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/internal/telemetry/metric"
)

// errWaitTimeout is returned by handlers whose timeout_ms elapsed. The
// handler has already written the timeout reply.
var errWaitTimeout = errors.New("wait timed out")

// errPeerGone cancels a blocking command whose client disconnected.
var errPeerGone = domain.ErrConnection.WithDetails("client disconnected")

type handlerFunc func(ctx context.Context, c *conn, args [][]byte) error

type command struct {
	// Argument counts include the command name. maxArgs < 0 is unbounded.
	minArgs, maxArgs int
	// public commands are allowed before AUTH.
	public bool
	// session commands need GRID.HELLO first.
	session bool
	// blocking commands run under the disconnect watcher.
	blocking bool
	fn       handlerFunc
}

func (s *Server) commandTable() map[string]command {
	return map[string]command{
		"PING":   {minArgs: 1, maxArgs: 2, public: true, fn: s.cmdPing},
		"QUIT":   {minArgs: 1, maxArgs: 1, public: true, fn: s.cmdQuit},
		"AUTH":   {minArgs: 2, maxArgs: 3, public: true, fn: s.cmdAuth},
		"CLIENT": {minArgs: 2, maxArgs: -1, public: true, fn: s.cmdClient},

		"GRID.HELLO":     {minArgs: 2, maxArgs: 3, fn: s.cmdHello},
		"GRID.HEARTBEAT": {minArgs: 1, maxArgs: 1, session: true, fn: s.cmdHeartbeat},
		"GRID.BYE":       {minArgs: 1, maxArgs: 1, fn: s.cmdBye},

		"MAP.PUTIFABSENT": {minArgs: 4, maxArgs: 4, fn: s.cmdPutIfAbsent},
		"MAP.GET":         {minArgs: 3, maxArgs: 3, fn: s.cmdGet},
		"MAP.PUT":         {minArgs: 4, maxArgs: 4, fn: s.cmdPut},
		"MAP.LOCK":        {minArgs: 4, maxArgs: 5, session: true, blocking: true, fn: s.cmdLock},
		"MAP.UNLOCK":      {minArgs: 4, maxArgs: 4, session: true, fn: s.cmdUnlock},
		"MAP.ABANDON":     {minArgs: 4, maxArgs: 4, session: true, fn: s.cmdAbandon},
		"MAP.CAS":         {minArgs: 5, maxArgs: 5, fn: s.cmdCompareAndSwap},

		"QUEUE.PUT":  {minArgs: 3, maxArgs: 4, blocking: true, fn: s.cmdQueuePut},
		"QUEUE.TAKE": {minArgs: 2, maxArgs: 3, blocking: true, fn: s.cmdQueueTake},
	}
}

// dispatch runs one command and writes its reply.
func (s *Server) dispatch(ctx context.Context, c *conn, args [][]byte) {
	name := commandName(args[0])
	cmd, ok := s.commands[name]
	if !ok {
		// Not counted: arbitrary names would blow up label cardinality.
		c.rw.Error("ERR unknown command '" + name + "'")
		return
	}

	start := time.Now()
	result := s.execute(ctx, c, name, cmd, args)
	if s.metrics != nil {
		s.metrics.ObserveCommand(name, result, time.Since(start))
	}
}

func (s *Server) execute(ctx context.Context, c *conn, name string, cmd command, args [][]byte) string {
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		c.rw.Error("ERR wrong number of arguments for '" + name + "' command")
		return metric.ResultError
	}
	if !cmd.public && s.auth.Required() && !c.authenticated {
		c.rw.Error(formatError(domain.ErrAuthFailed.WithDetails("authentication required")))
		return metric.ResultError
	}
	if s.limiter != nil && !s.limiter.allow(c.ip) {
		if s.metrics != nil {
			s.metrics.RateLimited.Inc()
		}
		c.rw.Error(formatError(domain.ErrRateLimited))
		return metric.ResultError
	}

	// Any traffic on a bound session keeps it alive.
	var sess *service.Session
	if c.sessionID != "" && name != "GRID.HELLO" && name != "GRID.BYE" {
		var err error
		sess, err = s.sessions.Touch(c.sessionID)
		if err != nil {
			c.sessionID = ""
			if cmd.session {
				c.rw.Error(formatError(err))
				return metric.ResultError
			}
		}
	}
	if cmd.session && sess == nil {
		c.rw.Error(formatError(domain.ErrSessionRequired))
		return metric.ResultError
	}
	if sess != nil {
		ctx = logger.With(ctx, "session_id", sess.ID)
	}

	if cmd.blocking {
		var cancel context.CancelCauseFunc
		ctx, cancel = context.WithCancelCause(ctx)
		defer cancel(nil)
		if sess != nil {
			stopAfter := context.AfterFunc(sess.Context(), func() { cancel(domain.ErrSessionExpired.WithDetails(sess.ID)) })
			defer stopAfter()
		}
		stopWatch := c.watchPeer(func() { cancel(errPeerGone) })
		defer stopWatch()
	}

	err := cmd.fn(ctx, c, args)
	switch {
	case err == nil:
		return metric.ResultOK
	case errors.Is(err, errWaitTimeout):
		return metric.ResultTimeout
	}

	if code := domain.CodeOf(err); code == "" {
		logger.FromContext(ctx).Warn("command failed", "command", name, "error", err)
	} else {
		logger.FromContext(ctx).Debug("command rejected", "command", name, "code", code)
	}
	c.rw.Error(formatError(err))
	return metric.ResultError
}
