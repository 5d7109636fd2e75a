package respserver

import (
	"net"

	"golang.org/x/time/rate"

	"github.com/yndnr/gridmesh-go/pkg/cmap"
)

// rateLimiter keeps one token bucket per client IP, shared by all of that
// client's connections.
type rateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *cmap.Map[*rate.Limiter]
}

func newRateLimiter(perSecond, burst int) *rateLimiter {
	if burst <= 0 {
		burst = perSecond
	}
	return &rateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: cmap.New[*rate.Limiter](),
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	return rl.buckets.GetOrCreate(ip, func() *rate.Limiter {
		return rate.NewLimiter(rl.limit, rl.burst)
	}).Allow()
}

func remoteIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
