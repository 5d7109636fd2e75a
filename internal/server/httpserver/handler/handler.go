package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/gridmesh-go/internal/core/grid"
	"github.com/yndnr/gridmesh-go/internal/infra/buildinfo"
)

// StatusSource reports the state exposed on /ready and /status.
type StatusSource interface {
	ClusterName() string
	Ready() bool
	GridStats() grid.Stats
	SessionCount() int
}

// Probes serves the health, readiness and status endpoints.
type Probes struct {
	source  StatusSource
	started time.Time
}

// NewProbes creates the probe handlers. Uptime counts from this call.
func NewProbes(source StatusSource) *Probes {
	return &Probes{source: source, started: time.Now()}
}

// Register mounts the probes on mux.
func (p *Probes) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", p.health)
	mux.HandleFunc("GET /ready", p.ready)
	mux.HandleFunc("GET /status", p.status)
}

func (p *Probes) health(w http.ResponseWriter, r *http.Request) {
	WriteData(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

func (p *Probes) ready(w http.ResponseWriter, r *http.Request) {
	if !p.source.Ready() {
		WriteError(w, r, http.StatusServiceUnavailable, "GRID-SYS-5031", "grid is shutting down")
		return
	}
	WriteData(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (p *Probes) status(w http.ResponseWriter, r *http.Request) {
	info := buildinfo.Get()
	WriteData(w, r, http.StatusOK, StatusBody{
		Version:     info.Version,
		Commit:      info.Commit,
		ClusterName: p.source.ClusterName(),
		Uptime:      time.Since(p.started).Round(time.Second).String(),
		Sessions:    p.source.SessionCount(),
		Grid:        p.source.GridStats(),
	})
}
