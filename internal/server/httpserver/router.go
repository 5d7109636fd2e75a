package httpserver

import (
	"net/http"

	"github.com/yndnr/gridmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Status supplies /ready and /status.
	Status handler.StatusSource
	// Metrics backs /metrics. Nil disables the endpoint.
	Metrics *metric.Registry
	Logger  logger.Logger
}

// NewRouter mounts the probes and /metrics behind the middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	mux := http.NewServeMux()
	handler.NewProbes(cfg.Status).Register(mux)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}
	return wrap(mux, requestScope(log), recoverPanic, accessLog)
}
