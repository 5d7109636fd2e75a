package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/gridmesh-go/internal/infra/confloader"
)

// EnvPrefix prefixes environment overrides, e.g. GRIDMESH_CLI_SERVER or
// GRIDMESH_CLI_POLL__INTERVAL.
const EnvPrefix = "GRIDMESH_CLI_"

// CLIConfig is the configuration for gridmesh-cli.
type CLIConfig struct {
	Server   string `koanf:"server" yaml:"server"`
	Cluster  string `koanf:"cluster" yaml:"cluster"`
	Password string `koanf:"password" yaml:"password"`
	// TLS dials the server over TLS. CAFile implies it.
	TLS    bool   `koanf:"tls" yaml:"tls"`
	CAFile string `koanf:"ca_file" yaml:"ca_file"`
	// Output is table, json or yaml.
	Output       string        `koanf:"output" yaml:"output"`
	PollInterval time.Duration `koanf:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `koanf:"timeout" yaml:"timeout"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:       "127.0.0.1:5701",
		Cluster:      "dev",
		Output:       "table",
		PollInterval: time.Second,
		Timeout:      5 * time.Second,
	}
}

// DefaultConfigPath returns ~/.gridmesh/cli.yaml, or a relative path when
// the home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gridmesh", "cli.yaml")
	}
	return filepath.Join(home, ".gridmesh", "cli.yaml")
}

// Load reads the configuration. An empty path means the default file, which
// may be absent. A path given explicitly must exist. overrides holds keys
// such as "server" set on the command line; they win over file and
// environment.
func Load(path string, overrides map[string]any) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg := Default()
	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithEnvPrefix(EnvPrefix),
		confloader.WithOverrides(overrides),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
