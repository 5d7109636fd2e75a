package config

import "time"

// Default configuration values.
const (
	DefaultRESPAddr = "127.0.0.1:5701"
	DefaultHTTPAddr = "127.0.0.1:5780"

	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultMaxConnections = 10000

	DefaultClusterName     = "dev"
	DefaultShardCount      = 16
	DefaultQueueCapacity   = 10
	DefaultSessionTTL      = 15 * time.Second
	DefaultReapSchedule    = "@every 1s"
	DefaultDemoQueue       = "bounded-queue"
	DefaultDemoQueueLength = 10

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 5
	DefaultLogMaxAgeDays = 30
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			RESP: RESPConfig{
				Addr:           DefaultRESPAddr,
				ReadTimeout:    DefaultReadTimeout,
				WriteTimeout:   DefaultWriteTimeout,
				IdleTimeout:    DefaultIdleTimeout,
				MaxConnections: DefaultMaxConnections,
			},
			HTTP: HTTPConfig{
				Addr: DefaultHTTPAddr,
			},
		},
		Grid: GridSection{
			ClusterName: DefaultClusterName,
			ShardCount:  DefaultShardCount,
			Queue: QueueSection{
				DefaultCapacity: DefaultQueueCapacity,
				Capacities:      map[string]int{DefaultDemoQueue: DefaultDemoQueueLength},
			},
			Session: SessionSection{
				TTL:          DefaultSessionTTL,
				ReapSchedule: DefaultReapSchedule,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			File: LogFileSection{
				MaxSizeMB:  DefaultLogMaxSizeMB,
				MaxBackups: DefaultLogMaxBackups,
				MaxAgeDays: DefaultLogMaxAgeDays,
			},
		},
	}
}
