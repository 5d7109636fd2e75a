package config

import "maps"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Grid.Queue.Capacities = maps.Clone(cfg.Grid.Queue.Capacities)

	if sanitized.Security.PasswordHash != "" {
		sanitized.Security.PasswordHash = "****"
	}

	return &sanitized
}
