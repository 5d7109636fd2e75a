package gridclient

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures a Client.
type Config struct {
	// Network is "tcp" (default) or "unix".
	Network string
	// Addr is the server's RESP address, or a socket path for "unix".
	Addr string
	// ClusterName must match the server's grid.cluster_name.
	ClusterName string
	// ClientName is reported to the server for diagnostics.
	ClientName string
	// Password is sent with AUTH when non-empty.
	Password string
	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PoolSize caps connections per pool. 0 uses the go-redis default.
	PoolSize int

	// PollInterval is the longest single server-side wait of a blocking call.
	PollInterval time.Duration
	// HeartbeatInterval must be well below the server's session TTL.
	HeartbeatInterval time.Duration
	// MaxMissedHeartbeats consecutive failures mark the client lost.
	MaxMissedHeartbeats int

	// CASAttempts bounds Map.Update. 0 retries until success or ctx ends.
	CASAttempts uint
	// CASDelay is the first backoff delay of Map.Update; it doubles up to
	// CASMaxDelay with random jitter.
	CASDelay    time.Duration
	CASMaxDelay time.Duration

	// Logger defaults to discarding output.
	Logger *slog.Logger
}

// DefaultConfig returns a configuration for a local development server.
func DefaultConfig() Config {
	return Config{
		Addr:                "127.0.0.1:5701",
		ClusterName:         "dev",
		DialTimeout:         5 * time.Second,
		ReadTimeout:         3 * time.Second,
		WriteTimeout:        3 * time.Second,
		PollInterval:        time.Second,
		HeartbeatInterval:   5 * time.Second,
		MaxMissedHeartbeats: 3,
		CASAttempts:         100,
		CASDelay:            time.Millisecond,
		CASMaxDelay:         50 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ClusterName == "" {
		c.ClusterName = d.ClusterName
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.MaxMissedHeartbeats <= 0 {
		c.MaxMissedHeartbeats = d.MaxMissedHeartbeats
	}
	if c.CASDelay <= 0 {
		c.CASDelay = d.CASDelay
	}
	if c.CASMaxDelay < c.CASDelay {
		c.CASMaxDelay = max(d.CASMaxDelay, c.CASDelay)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Client is a connection to one GridMesh cluster. It is safe for concurrent
// use.
type Client struct {
	cfg Config
	log *slog.Logger

	// cmd serves non-blocking commands. blocking serves lock, put and take,
	// whose replies may take up to one PollInterval.
	cmd      *redis.Client
	blocking *redis.Client

	helloMu   sync.Mutex
	sessionID string

	// ctx ends when the client is closed or lost; its cause is the error
	// every later call returns.
	ctx    context.Context
	cancel context.CancelCauseFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Dial connects to the server, joins the cluster and starts heartbeats.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg: cfg,
		log: cfg.Logger.With("component", "gridclient", "addr", cfg.Addr),
	}
	c.ctx, c.cancel = context.WithCancelCause(context.Background())

	c.cmd = redis.NewClient(c.options(cfg.ReadTimeout, true))
	c.blocking = redis.NewClient(c.options(cfg.ReadTimeout+cfg.PollInterval, false))

	// The first connection creates the session; later ones resume it.
	if err := c.cmd.Ping(ctx).Err(); err != nil {
		c.cancel(ErrClosed)
		_ = c.cmd.Close()
		_ = c.blocking.Close()
		return nil, mapError(err)
	}
	c.log.Debug("joined cluster", "cluster", cfg.ClusterName, "session_id", c.Session())

	c.wg.Add(1)
	go c.heartbeatLoop()
	return c, nil
}

func (c *Client) options(readTimeout time.Duration, ctxDeadlines bool) *redis.Options {
	return &redis.Options{
		Network:         c.cfg.Network,
		Addr:            c.cfg.Addr,
		ClientName:      c.cfg.ClientName,
		Protocol:        2,
		DisableIdentity: true,
		TLSConfig:       c.cfg.TLSConfig,
		DialTimeout:     c.cfg.DialTimeout,
		ReadTimeout:     readTimeout,
		WriteTimeout:    c.cfg.WriteTimeout,
		PoolSize:        c.cfg.PoolSize,
		// Lock, put and take are not idempotent.
		MaxRetries: -1,
		// Blocking replies must be read past the caller's deadline, or an
		// item taken on the server would be dropped on the floor.
		ContextTimeoutEnabled: ctxDeadlines,
		OnConnect:             c.onConnect,
	}
}

// onConnect authenticates a new pooled connection and binds it to the
// client's session.
func (c *Client) onConnect(ctx context.Context, cn *redis.Conn) error {
	if c.cfg.Password != "" {
		if err := cn.Do(ctx, "AUTH", c.cfg.Password).Err(); err != nil {
			return mapError(err)
		}
	}

	c.helloMu.Lock()
	defer c.helloMu.Unlock()
	args := []any{"GRID.HELLO", c.cfg.ClusterName}
	if c.sessionID != "" {
		args = append(args, c.sessionID)
	}
	id, err := cn.Do(ctx, args...).Text()
	if err != nil {
		err = mapError(err)
		if errors.Is(err, ErrSessionExpired) {
			c.markLost(err)
		}
		return err
	}
	c.sessionID = id
	return nil
}

// Session returns the cluster session ID.
func (c *Client) Session() string {
	c.helloMu.Lock()
	defer c.helloMu.Unlock()
	return c.sessionID
}

// Err returns nil while the client is usable, ErrClosed after Close, or the
// ErrConnection that marked it lost.
func (c *Client) Err() error {
	if c.ctx.Err() == nil {
		return nil
	}
	return context.Cause(c.ctx)
}

// Ping round-trips to the server.
func (c *Client) Ping(ctx context.Context) error {
	ctx, done := c.bind(ctx)
	defer done()
	return c.wrap(ctx, c.do(ctx, c.cmd, "PING").Err())
}

// do runs one command on pool unless the client is already closed or lost.
func (c *Client) do(ctx context.Context, pool *redis.Client, args ...any) *redis.Cmd {
	if err := c.Err(); err != nil {
		cmd := redis.NewCmd(ctx, args...)
		cmd.SetErr(err)
		return cmd
	}
	return pool.Do(ctx, args...)
}

func (c *Client) markLost(err error) {
	if c.ctx.Err() != nil {
		return
	}
	c.log.Error("connection to grid lost", "error", err)
	c.cancel(ErrConnection.WithCause(err))
}

func (c *Client) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.ReadTimeout+c.cfg.WriteTimeout)
		err := c.cmd.Do(ctx, "GRID.HEARTBEAT").Err()
		cancel()
		if err == nil {
			missed = 0
			continue
		}
		if c.ctx.Err() != nil {
			return
		}

		err = mapError(err)
		missed++
		c.log.Warn("heartbeat failed", "missed", missed, "error", err)
		if errors.Is(err, ErrSessionExpired) || missed >= c.cfg.MaxMissedHeartbeats {
			c.markLost(err)
			return
		}
	}
}

// bind derives a context that also ends when the client is closed or lost.
func (c *Client) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(c.ctx, func() { cancel(context.Cause(c.ctx)) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}

// wrap maps err for a call made under ctx from bind.
func (c *Client) wrap(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return mapError(err)
}

// slice returns how long the next server-side wait may last, or false when
// ctx is already done.
func (c *Client) slice(ctx context.Context) (int64, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	d := c.cfg.PollInterval
	if deadline, ok := ctx.Deadline(); ok {
		d = min(d, time.Until(deadline))
		if d <= 0 {
			return 0, false
		}
	}
	// timeout_ms 0 means no limit on the server.
	return max(d.Milliseconds(), 1), true
}

// Close ends the session, which releases its locks, and closes both pools.
func (c *Client) Close(ctx context.Context) error {
	err := ErrClosed
	c.closeOnce.Do(func() {
		err = nil
		if c.ctx.Err() == nil {
			if byeErr := c.cmd.Do(ctx, "GRID.BYE").Err(); byeErr != nil {
				err = mapError(byeErr)
			}
		}
		c.cancel(ErrClosed)
		c.wg.Wait()
		err = errors.Join(err, c.cmd.Close(), c.blocking.Close())
	})
	return err
}
