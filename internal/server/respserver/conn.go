package respserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

// conn is one client connection. Its fields are only touched by the
// goroutine serving it, except the disconnect watcher which only peeks.
type conn struct {
	id string
	nc net.Conn
	ip string
	br *bufio.Reader
	rw replyWriter

	authenticated bool
	clientName    string
	sessionID     string
	quit          bool

	closed atomic.Bool
}

func newConn(nc net.Conn) *conn {
	return &conn{
		id: ulid.Make().String(),
		nc: nc,
		ip: remoteIP(nc.RemoteAddr()),
		br: bufio.NewReader(nc),
		rw: replyWriter{w: bufio.NewWriter(nc)},
	}
}

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.nc.Close()
}

func (s *Server) serveConn(ctx context.Context, c *conn) {
	log := s.logger.With("conn_id", c.id)
	ctx = logger.NewContext(ctx, log)
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	log.Debug("connection opened", "remote", c.nc.RemoteAddr().String())
	defer log.Debug("connection closed", "remote", c.nc.RemoteAddr().String())

	for {
		// Idle between commands, then a tighter deadline once a command starts.
		if err := c.nc.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}
		if _, err := c.br.Peek(1); err != nil {
			if !errors.Is(err, io.EOF) && !c.closed.Load() {
				log.Debug("connection read ended", "error", err)
			}
			return
		}
		if err := c.nc.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}

		args, err := ReadCommand(c.br)
		if err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				return
			}
			if errors.Is(err, ErrLimitExceeded) {
				log.Warn("protocol limit exceeded", "error", err)
				c.rw.Error("ERR protocol limit exceeded")
			} else {
				c.rw.Error("ERR protocol error: " + err.Error())
			}
			_ = c.nc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			_ = c.rw.Flush()
			return
		}

		if len(args) == 0 {
			c.rw.Error("ERR no command")
		} else {
			s.dispatch(ctx, c, args)
		}

		if err := c.nc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return
		}
		if err := c.rw.Flush(); err != nil {
			return
		}
		if c.quit {
			return
		}
	}
}

// watchPeer calls onGone if the peer closes the connection while a blocking
// command is in flight. The returned stop must be called before the
// connection is read again.
func (c *conn) watchPeer(onGone func()) (stop func()) {
	_ = c.nc.SetReadDeadline(time.Time{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Pipelined input makes Peek return at once, which is fine: only a
		// read error means the peer is gone.
		if _, err := c.br.Peek(1); err != nil && !isTimeout(err) {
			onGone()
		}
	}()

	return func() {
		_ = c.nc.SetReadDeadline(time.Now())
		<-done
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
