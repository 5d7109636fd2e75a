package config

import "time"

// ServerConfig is the root configuration for gridmesh-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Grid     GridSection     `koanf:"grid"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	RESP RESPConfig `koanf:"resp"`
	HTTP HTTPConfig `koanf:"http"`
}

// RESPConfig configures the RESP protocol server.
type RESPConfig struct {
	Addr string `koanf:"addr"`

	// TLSAddr enables a second, TLS-only listener when set.
	TLSAddr     string `koanf:"tls_addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// UnixSocket enables a local listener whose clients skip AUTH.
	UnixSocket string `koanf:"unix_socket"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	MaxConnections int `koanf:"max_connections"`

	// RateLimit is commands per second per client IP. 0 disables limiting.
	RateLimit int `koanf:"rate_limit"`
	RateBurst int `koanf:"rate_burst"`
}

// HTTPConfig configures the health and metrics endpoint. An empty address
// disables it.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// GridSection configures the data grid.
type GridSection struct {
	// ClusterName must match the name clients send in GRID.HELLO.
	ClusterName string         `koanf:"cluster_name"`
	ShardCount  int            `koanf:"shard_count"`
	Queue       QueueSection   `koanf:"queue"`
	Session     SessionSection `koanf:"session"`
}

// QueueSection configures bounded queues.
type QueueSection struct {
	DefaultCapacity int            `koanf:"default_capacity"`
	Capacities      map[string]int `koanf:"capacities"`
}

// SessionSection configures client sessions.
type SessionSection struct {
	TTL          time.Duration `koanf:"ttl"`
	ReapSchedule string        `koanf:"reap_schedule"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// PasswordHash is an Argon2id PHC string. Empty disables AUTH.
	PasswordHash string `koanf:"password_hash"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string         `koanf:"level"`
	Format string         `koanf:"format"`
	File   LogFileSection `koanf:"file"`
}

// LogFileSection configures rotating log files. An empty path logs to stderr.
type LogFileSection struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}
