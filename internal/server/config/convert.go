package config

import (
	"crypto/tls"
	"maps"

	"github.com/yndnr/gridmesh-go/internal/core/grid"
	"github.com/yndnr/gridmesh-go/internal/core/service"
	"github.com/yndnr/gridmesh-go/internal/server/respserver"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

// GridConfig returns the grid settings.
func (c *ServerConfig) GridConfig() grid.Config {
	return grid.Config{
		ShardCount:           c.Grid.ShardCount,
		DefaultQueueCapacity: c.Grid.Queue.DefaultCapacity,
		QueueCapacities:      maps.Clone(c.Grid.Queue.Capacities),
	}
}

// SessionConfig returns the session service settings.
func (c *ServerConfig) SessionConfig() *service.SessionServiceConfig {
	return &service.SessionServiceConfig{
		ClusterName:  c.Grid.ClusterName,
		TTL:          c.Grid.Session.TTL,
		ReapSchedule: c.Grid.Session.ReapSchedule,
	}
}

// LoggerConfig returns the logger settings.
func (c *ServerConfig) LoggerConfig() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = c.Log.Format
	cfg.File = logger.FileConfig{
		Path:       c.Log.File.Path,
		MaxSizeMB:  c.Log.File.MaxSizeMB,
		MaxBackups: c.Log.File.MaxBackups,
		MaxAgeDays: c.Log.File.MaxAgeDays,
		Compress:   c.Log.File.Compress,
	}
	return cfg
}

// RESPServerConfig returns the RESP listener settings. tlsConfig serves
// server.resp.tls_addr and may be nil when TLS is disabled.
func (c *ServerConfig) RESPServerConfig(tlsConfig *tls.Config) *respserver.Config {
	r := c.Server.RESP
	return &respserver.Config{
		Addr:           r.Addr,
		TLSAddr:        r.TLSAddr,
		TLSConfig:      tlsConfig,
		UnixSocket:     r.UnixSocket,
		ReadTimeout:    r.ReadTimeout,
		WriteTimeout:   r.WriteTimeout,
		IdleTimeout:    r.IdleTimeout,
		MaxConnections: r.MaxConnections,
		RateLimit:      r.RateLimit,
		RateBurst:      r.RateBurst,
	}
}
