// Package config provides server configuration for GridMesh.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (addresses, capacities, schedules, hash format)
//   - sanitize.go: Log sanitization (hide sensitive values)
//
// Configuration is loaded via internal/infra/confloader from a YAML file and
// GRIDMESH_ environment variables.
package config
