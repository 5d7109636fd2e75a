package respserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/gridmesh-go/internal/core/grid"
	"github.com/yndnr/gridmesh-go/internal/core/service"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/internal/telemetry/metric"
)

// Config holds the RESP server configuration.
type Config struct {
	// Addr is the plaintext listener address. Empty disables it.
	Addr string
	// TLSAddr is the TLS listener address. Empty disables it.
	TLSAddr string
	// TLSConfig is required when TLSAddr is set.
	TLSConfig *tls.Config
	// UnixSocket is a local socket path. Its connections skip AUTH; access
	// is controlled by the socket's 0600 file mode. Empty disables it.
	UnixSocket string
	// ReadTimeout bounds reading one command once its first byte arrived.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing one reply.
	WriteTimeout time.Duration
	// IdleTimeout closes connections with no traffic between commands.
	IdleTimeout time.Duration
	// MaxConnections caps concurrent connections. 0 means unlimited.
	MaxConnections int
	// RateLimit is commands per second per client IP. 0 disables limiting.
	RateLimit int
	// RateBurst defaults to RateLimit.
	RateBurst int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:           "127.0.0.1:5701",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    5 * time.Minute,
		MaxConnections: 10000,
	}
}

// Deps are the services a Server dispatches to.
type Deps struct {
	Grid     *grid.Grid
	Sessions *service.SessionService
	// Auth may be nil to accept every connection.
	Auth *service.Authenticator
	// Metrics may be nil.
	Metrics *metric.Registry
	Logger  logger.Logger
}

// Server serves the grid over RESP.
type Server struct {
	cfg      Config
	grid     *grid.Grid
	sessions *service.SessionService
	auth     *service.Authenticator
	metrics  *metric.Registry
	logger   logger.Logger
	limiter  *rateLimiter
	commands map[string]command

	mu      sync.Mutex
	plainLn net.Listener
	tlsLn   net.Listener
	unixLn  net.Listener
	cancel  context.CancelFunc

	active  atomic.Int64
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a RESP server.
func New(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.Auth == nil {
		deps.Auth, _ = service.NewAuthenticator("")
	}

	def := DefaultConfig()
	c := *cfg
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}

	s := &Server{
		cfg:      c,
		grid:     deps.Grid,
		sessions: deps.Sessions,
		auth:     deps.Auth,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With("component", "resp"),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	s.commands = s.commandTable()
	return s
}

// Start opens the listeners and serves in the background. Connections are
// bound to ctx: cancelling it aborts every blocked command.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Addr == "" && s.cfg.TLSAddr == "" && s.cfg.UnixSocket == "" {
		return errors.New("respserver: no listen address configured")
	}
	if s.cfg.TLSAddr != "" && s.cfg.TLSConfig == nil {
		return errors.New("respserver: TLS address set without TLS config")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Addr != "" {
		ln, err := net.Listen("tcp", s.cfg.Addr)
		if err != nil {
			return fmt.Errorf("respserver: listen %s: %w", s.cfg.Addr, err)
		}
		s.plainLn = ln
	}
	if s.cfg.TLSAddr != "" {
		ln, err := tls.Listen("tcp", s.cfg.TLSAddr, s.cfg.TLSConfig)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("respserver: listen tls %s: %w", s.cfg.TLSAddr, err)
		}
		s.tlsLn = ln
	}
	if s.cfg.UnixSocket != "" {
		ln, err := listenUnix(s.cfg.UnixSocket)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("respserver: listen unix %s: %w", s.cfg.UnixSocket, err)
		}
		s.unixLn = ln
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)
	for _, ln := range []net.Listener{s.plainLn, s.tlsLn, s.unixLn} {
		if ln == nil {
			continue
		}
		trusted := ln == s.unixLn
		s.logger.Info("resp server listening", "address", ln.Addr().String(), "trusted", trusted)
		s.wg.Add(1)
		go func(ln net.Listener) {
			defer s.wg.Done()
			if err := s.acceptLoop(ctx, ln, trusted); err != nil {
				s.logger.Error("resp accept loop stopped", "address", ln.Addr().String(), "error", err)
			}
		}(ln)
	}
	return nil
}

// listenUnix replaces a stale socket file left by an earlier run and
// restricts the new one to the owner.
func listenUnix(path string) (net.Listener, error) {
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("%s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, err
	}
	return ln, nil
}

// closeListeners closes every open listener. Callers hold s.mu.
func (s *Server) closeListeners() []error {
	var errs []error
	for _, ln := range []net.Listener{s.plainLn, s.tlsLn, s.unixLn} {
		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

// Addr returns the plaintext listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plainLn == nil {
		return nil
	}
	return s.plainLn.Addr()
}

// TLSAddr returns the TLS listener address, or nil if TLS is disabled.
func (s *Server) TLSAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tlsLn == nil {
		return nil
	}
	return s.tlsLn.Addr()
}

// UnixAddr returns the local socket address, or nil if it is disabled.
func (s *Server) UnixAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unixLn == nil {
		return nil
	}
	return s.unixLn.Addr()
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

// Shutdown stops accepting and closes every connection, aborting blocked
// commands. It waits for connection goroutines to exit or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	errs := s.closeListeners()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return errors.Join(errs...)
}

// acceptLoop serves ln until it closes. Connections from a trusted listener
// start authenticated.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, trusted bool) error {
	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				s.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		if limit := s.cfg.MaxConnections; limit > 0 && s.active.Load() >= int64(limit) {
			s.logger.Warn("connection rejected, limit reached", "remote", nc.RemoteAddr().String(), "max_connections", limit)
			_ = nc.SetWriteDeadline(time.Now().Add(time.Second))
			_, _ = nc.Write([]byte("-ERR max number of clients reached\r\n"))
			_ = nc.Close()
			continue
		}

		c := newConn(nc)
		c.authenticated = trusted
		s.active.Add(1)
		if s.metrics != nil {
			s.metrics.ConnectionsActive.Inc()
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				_ = c.Close()
				s.active.Add(-1)
				if s.metrics != nil {
					s.metrics.ConnectionsActive.Dec()
				}
			}()
			s.serveConn(ctx, c)
		}()
	}
}
