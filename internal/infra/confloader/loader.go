package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment prefix of gridmesh-server.
const DefaultEnvPrefix = "GRIDMESH_"

// Loader merges configuration layers into a struct that already holds the
// defaults. Layers apply in order: YAML file, environment, overrides.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile names a YAML file that must exist. Empty skips the layer.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithOverrides adds a last layer of dotted keys, such as values taken from
// command-line flags.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) { l.overrides = values }
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{k: koanf.New("."), envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load applies every layer and decodes the result into target using koanf
// struct tags. Fields that no layer mentions keep their values.
func (l *Loader) Load(target any) error {
	if err := l.LoadFile(l.filePath); err != nil {
		return err
	}
	if err := l.LoadEnv(); err != nil {
		return err
	}
	if len(l.overrides) > 0 {
		if err := l.LoadMap(l.overrides); err != nil {
			return err
		}
	}
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// LoadFile merges a YAML file. An empty path is a no-op.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges variables carrying the loader's prefix.
//
// GRIDMESH_SERVER_RESP_ADDR maps to server.resp.addr. A double underscore
// stands for a literal underscore inside a key, so
// GRIDMESH_GRID_CLUSTER__NAME maps to grid.cluster_name.
func (l *Loader) LoadEnv() error {
	provider := env.Provider(l.envPrefix, ".", func(s string) string {
		return envKey(l.envPrefix, s)
	})
	if err := l.k.Load(provider, nil); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	return nil
}

func envKey(prefix, s string) string {
	words := strings.Split(strings.ToLower(strings.TrimPrefix(s, prefix)), "__")
	for i, w := range words {
		words[i] = strings.ReplaceAll(w, "_", ".")
	}
	return strings.Join(words, "_")
}

// LoadMap merges dotted keys from values.
func (l *Loader) LoadMap(values map[string]any) error {
	if err := l.k.Load(mapProvider(values), nil); err != nil {
		return fmt.Errorf("read overrides: %w", err)
	}
	return nil
}
