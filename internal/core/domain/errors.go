package domain

import (
	"errors"
	"strings"
)

// DomainError is a grid failure identified by a stable GRID-* code. The code
// travels unchanged over RESP, so a client can rebuild the same sentinel.
type DomainError struct {
	Code    string
	Message string
	// Details names the map, key, queue or session involved.
	Details string
	Cause   error
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString("[" + e.Code + "] " + e.Message)
	if e.Details != "" {
		b.WriteString(": " + e.Details)
	}
	return b.String()
}

func (e *DomainError) Unwrap() error { return e.Cause }

// Is matches any DomainError with the same code, whatever its details.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy carrying details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

var catalogue = make(map[string]*DomainError)

// define registers a sentinel so that FromCode can find it.
func define(code, message string) *DomainError {
	if _, dup := catalogue[code]; dup {
		panic("domain: duplicate error code " + code)
	}
	e := &DomainError{Code: code, Message: message}
	catalogue[code] = e
	return e
}

// FromCode returns the sentinel registered for code, or nil.
func FromCode(code string) *DomainError {
	return catalogue[code]
}

// Map and lock.
var (
	// ErrNotFound is a get or compare-and-swap on a key never written.
	ErrNotFound = define("GRID-MAP-4040", "key not found")
	// ErrNotLockHolder is an unlock of a key the caller does not hold, or
	// that nobody holds.
	ErrNotLockHolder = define("GRID-LOCK-4090", "caller does not hold the lock")
	// ErrLockReentry is a lock request by the current holder.
	ErrLockReentry = define("GRID-LOCK-4091", "lock already held by caller")
)

// Queue.
var ErrInvalidCapacity = define("GRID-QUEUE-4001", "queue capacity must be positive")

// Session, cluster and auth.
var (
	ErrSessionRequired = define("GRID-SESS-4010", "session required, send GRID.HELLO first")
	ErrSessionExpired  = define("GRID-SESS-4041", "session expired")
	ErrClusterMismatch = define("GRID-CLUS-4010", "cluster name mismatch")
	ErrAuthFailed      = define("GRID-AUTH-4010", "invalid credentials")
)

// Transport and server. ErrConnection is raised on the client side only.
var (
	ErrConnection  = define("GRID-CONN-5030", "connection to grid lost")
	ErrGridClosed  = define("GRID-SYS-5031", "grid is shutting down")
	ErrRateLimited = define("GRID-SYS-4290", "rate limit exceeded")
	ErrBadRequest  = define("GRID-ARG-4000", "bad request")
)
