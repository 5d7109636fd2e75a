package gridclient

import (
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/gridmesh-go/internal/core/domain"
)

// Errors returned by the server. Compare with errors.Is.
var (
	ErrNotFound        = domain.ErrNotFound
	ErrNotLockHolder   = domain.ErrNotLockHolder
	ErrLockReentry     = domain.ErrLockReentry
	ErrSessionRequired = domain.ErrSessionRequired
	ErrSessionExpired  = domain.ErrSessionExpired
	ErrClusterMismatch = domain.ErrClusterMismatch
	ErrAuthFailed      = domain.ErrAuthFailed
	ErrConnection      = domain.ErrConnection
	ErrGridClosed      = domain.ErrGridClosed
	ErrRateLimited     = domain.ErrRateLimited
	ErrBadRequest      = domain.ErrBadRequest
)

var (
	// ErrClosed is returned by calls on a closed Client.
	ErrClosed = errors.New("gridclient: client closed")

	// ErrCASConflict is returned by Update when every attempt lost to a
	// concurrent writer.
	ErrCASConflict = errors.New("gridclient: compare-and-swap lost to a concurrent update")
)

// IsIllegalState reports whether err is a lock ownership violation.
func IsIllegalState(err error) bool {
	return errors.Is(err, ErrNotLockHolder) || errors.Is(err, ErrLockReentry)
}

// mapError converts a go-redis error into a domain error. Server replies of
// the form "ERR <code> <message>[: details]" become the catalogued error;
// transport failures become ErrConnection.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return parseServerError(rerr)
	}
	return ErrConnection.WithCause(err)
}

func parseServerError(err redis.Error) error {
	msg := err.Error()
	rest, ok := strings.CutPrefix(msg, "ERR ")
	if !ok {
		return ErrBadRequest.WithDetails(msg).WithCause(err)
	}
	code, text, _ := strings.Cut(rest, " ")
	de := domain.FromCode(code)
	if de == nil {
		return ErrBadRequest.WithDetails(rest).WithCause(err)
	}
	if details, ok := strings.CutPrefix(text, de.Message+": "); ok {
		return de.WithDetails(details)
	}
	return de
}
