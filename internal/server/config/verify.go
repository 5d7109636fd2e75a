package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/yndnr/gridmesh-go/internal/core/service"
	"github.com/yndnr/gridmesh-go/pkg/cmap"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyGrid(&cfg.Grid); err != nil {
		return err
	}
	if _, err := service.NewAuthenticator(cfg.Security.PasswordHash); err != nil {
		return fmt.Errorf("security.password_hash: %w", err)
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if err := verifyAddr("server.resp.addr", cfg.RESP.Addr, true); err != nil {
		return err
	}
	if cfg.RESP.TLSAddr != "" {
		if err := verifyAddr("server.resp.tls_addr", cfg.RESP.TLSAddr, true); err != nil {
			return err
		}
		if cfg.RESP.TLSCertFile == "" || cfg.RESP.TLSKeyFile == "" {
			return errors.New("server.resp.tls_cert_file and tls_key_file are required with tls_addr")
		}
	}
	if cfg.RESP.ReadTimeout < 0 || cfg.RESP.WriteTimeout < 0 || cfg.RESP.IdleTimeout < 0 {
		return errors.New("server.resp timeouts must not be negative")
	}
	if cfg.RESP.MaxConnections < 0 {
		return errors.New("server.resp.max_connections must not be negative")
	}
	if cfg.RESP.RateLimit < 0 || cfg.RESP.RateBurst < 0 {
		return errors.New("server.resp.rate_limit and rate_burst must not be negative")
	}
	return verifyAddr("server.http.addr", cfg.HTTP.Addr, false)
}

func verifyGrid(cfg *GridSection) error {
	if cfg.ClusterName == "" {
		return errors.New("grid.cluster_name is required")
	}
	if !cmap.ValidShardCount(cfg.ShardCount) {
		return fmt.Errorf("grid.shard_count must be a power of two, got %d", cfg.ShardCount)
	}
	if cfg.Queue.DefaultCapacity <= 0 {
		return fmt.Errorf("grid.queue.default_capacity must be positive, got %d", cfg.Queue.DefaultCapacity)
	}
	for name, c := range cfg.Queue.Capacities {
		if c <= 0 {
			return fmt.Errorf("grid.queue.capacities.%s must be positive, got %d", name, c)
		}
	}
	if cfg.Session.TTL <= 0 {
		return errors.New("grid.session.ttl must be positive")
	}
	if _, err := cron.ParseStandard(cfg.Session.ReapSchedule); err != nil {
		return fmt.Errorf("grid.session.reap_schedule: %w", err)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
	}
	if cfg.File.MaxSizeMB < 0 || cfg.File.MaxBackups < 0 || cfg.File.MaxAgeDays < 0 {
		return errors.New("log.file limits must not be negative")
	}
	return nil
}

func verifyAddr(field, addr string, required bool) error {
	if addr == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
