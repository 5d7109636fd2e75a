package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"

	"github.com/yndnr/gridmesh-go/internal/core/domain"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/pkg/cmap"
)

// SessionReleaser frees everything a session owns in the grid.
type SessionReleaser interface {
	ReleaseSession(session string) int
}

// Session is one client's lease on the grid. Locks are owned by sessions, so
// a client that stops heartbeating eventually gives its locks back.
type Session struct {
	ID         string
	ClientName string
	CreatedAt  time.Time

	lastSeen atomic.Int64 // unix nanos
	ctx      context.Context
	cancel   context.CancelFunc
}

// Context is cancelled when the session ends.
func (s *Session) Context() context.Context {
	return s.ctx
}

// LastSeen returns the time of the last hello, heartbeat or command.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// SessionServiceConfig holds configuration for SessionService.
type SessionServiceConfig struct {
	// ClusterName must match the name a client sends in GRID.HELLO.
	ClusterName string
	// TTL is how long a session survives without any traffic.
	TTL time.Duration
	// ReapSchedule is the cron schedule of the expiry sweep.
	ReapSchedule string
}

// DefaultSessionServiceConfig returns default configuration.
func DefaultSessionServiceConfig() *SessionServiceConfig {
	return &SessionServiceConfig{
		ClusterName:  "dev",
		TTL:          15 * time.Second,
		ReapSchedule: "@every 1s",
	}
}

// SessionService tracks client sessions.
type SessionService struct {
	cfg      SessionServiceConfig
	sessions *cmap.Map[*Session]
	releaser SessionReleaser
	log      logger.Logger
	sched    *cron.Cron
	now      func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(releaser SessionReleaser, config *SessionServiceConfig, log logger.Logger) *SessionService {
	if config == nil {
		config = DefaultSessionServiceConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	return &SessionService{
		cfg:      *config,
		sessions: cmap.New[*Session](),
		releaser: releaser,
		log:      log.With("component", "sessions"),
		sched:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:      time.Now,
	}
}

// ============================================================================
// Session Operations
// ============================================================================

// HelloRequest contains parameters for opening or resuming a session.
type HelloRequest struct {
	ClusterName string
	SessionID   string // Optional: resume an existing session
	ClientName  string
}

// HelloResponse contains the result of a hello.
type HelloResponse struct {
	Session *Session
	Resumed bool
}

// Hello opens a new session, or resumes req.SessionID if it is still alive.
// Resuming an unknown or expired session fails with ErrSessionExpired so the
// client learns that its locks are gone.
func (s *SessionService) Hello(req *HelloRequest) (*HelloResponse, error) {
	if req.ClusterName != s.cfg.ClusterName {
		return nil, domain.ErrClusterMismatch.WithDetails("server cluster is " + s.cfg.ClusterName)
	}

	now := s.now()
	if req.SessionID != "" {
		sess, err := s.Get(req.SessionID)
		if err != nil {
			return nil, err
		}
		sess.touch(now)
		return &HelloResponse{Session: sess, Resumed: true}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:         ulid.Make().String(),
		ClientName: req.ClientName,
		CreatedAt:  now,
		ctx:        ctx,
		cancel:     cancel,
	}
	sess.touch(now)
	s.sessions.Set(sess.ID, sess)
	s.log.Info("session opened", "session_id", sess.ID, "client", req.ClientName)
	return &HelloResponse{Session: sess}, nil
}

// Get returns a live session. A session past its TTL is ended on the spot.
func (s *SessionService) Get(id string) (*Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionExpired.WithDetails(id)
	}
	if s.expired(sess, s.now()) {
		s.end(sess, "expired")
		return nil, domain.ErrSessionExpired.WithDetails(id)
	}
	return sess, nil
}

// Heartbeat extends the session's lease.
func (s *SessionService) Heartbeat(id string) error {
	_, err := s.Touch(id)
	return err
}

// Touch extends the session's lease and returns it. Commands issued on a
// session count as activity.
func (s *SessionService) Touch(id string) (*Session, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	sess.touch(s.now())
	return sess, nil
}

// Bye ends the session immediately. It returns the number of locks released.
func (s *SessionService) Bye(id string) int {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return 0
	}
	return s.end(sess, "closed by client")
}

// Count returns the number of tracked sessions.
func (s *SessionService) Count() int {
	return s.sessions.Count()
}

// ============================================================================
// Expiry
// ============================================================================

// Reap ends every session past its TTL and returns how many were ended.
func (s *SessionService) Reap() int {
	now := s.now()
	var stale []*Session
	s.sessions.Range(func(_ string, sess *Session) bool {
		if s.expired(sess, now) {
			stale = append(stale, sess)
		}
		return true
	})
	for _, sess := range stale {
		s.end(sess, "expired")
	}
	return len(stale)
}

// Start schedules the periodic expiry sweep.
func (s *SessionService) Start() error {
	if _, err := s.sched.AddFunc(s.cfg.ReapSchedule, func() { s.Reap() }); err != nil {
		return domain.ErrBadRequest.WithDetails("invalid reap schedule " + s.cfg.ReapSchedule).WithCause(err)
	}
	s.sched.Start()
	return nil
}

// Stop halts the sweep and ends all sessions. It waits for a running sweep
// to finish or for ctx to end.
func (s *SessionService) Stop(ctx context.Context) error {
	done := s.sched.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, id := range s.sessions.Keys() {
		s.Bye(id)
	}
	return nil
}

func (s *SessionService) expired(sess *Session, now time.Time) bool {
	return now.Sub(sess.LastSeen()) > s.cfg.TTL
}

func (s *SessionService) end(sess *Session, reason string) int {
	// Only the caller that removes the entry releases it.
	if _, ok := s.sessions.Remove(sess.ID); !ok {
		return 0
	}
	sess.cancel()
	released := 0
	if s.releaser != nil {
		released = s.releaser.ReleaseSession(sess.ID)
	}
	s.log.Info("session ended", "session_id", sess.ID, "reason", reason, "locks_released", released)
	return released
}
