package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridmesh-go/internal/cli/config"
	"github.com/yndnr/gridmesh-go/internal/cli/output"
	"github.com/yndnr/gridmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/gridmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/pkg/gridclient"
)

const settingsKey = "settings"

// closeTimeout bounds the GRID.BYE sent when a command finishes.
const closeTimeout = 3 * time.Second

// App creates the CLI application.
func App() *cli.App {
	info := buildinfo.Get()
	return &cli.App{
		Name:    "gridmesh-cli",
		Usage:   "Command-line client for a gridmesh grid",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PingCommand(),
			MapCommand(),
			QueueCommand(),
			DemoCommand(),
		},
		Before: loadSettings,
	}
}

// globalFlags returns the global CLI flags. They carry no defaults of their
// own so that the config file and environment apply when a flag is unset.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "grid server address, or unix:///path/to/socket (default 127.0.0.1:5701)",
		},
		&cli.StringFlag{
			Name:  "cluster",
			Usage: "cluster name to join (default dev)",
		},
		&cli.StringFlag{
			Name:  "password",
			Usage: "server password",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:  "tls",
			Usage: "connect over TLS, verified against the system roots",
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "PEM file of the CA that signed the server certificate (implies --tls)",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "config file (default ~/.gridmesh/cli.yaml)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "log client activity to stderr",
		},
	}
}

// flagKeys maps global flags to their config keys.
var flagKeys = map[string]string{
	"server":   "server",
	"cluster":  "cluster",
	"password": "password",
	"output":   "output",
	"tls":      "tls",
	"ca-file":  "ca_file",
}

// loadSettings merges the config file, environment and flags, in that order.
func loadSettings(c *cli.Context) error {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			overrides[key] = c.Value(flag)
		}
	}
	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return err
	}
	if _, err := output.ParseFormat(cfg.Output); err != nil {
		return err
	}
	c.App.Metadata[settingsKey] = cfg
	return nil
}

func settings(c *cli.Context) *config.CLIConfig {
	if cfg, ok := c.App.Metadata[settingsKey].(*config.CLIConfig); ok {
		return cfg
	}
	return config.Default()
}

// cliLogger writes warnings to stderr, or everything with --verbose.
func cliLogger(c *cli.Context) logger.Logger {
	level := "warn"
	if c.Bool("verbose") {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "text", Output: c.App.ErrWriter})
	if err != nil {
		return logger.NewNop()
	}
	return log
}

// connect dials the grid named by the current settings. opts adjust the
// client config last.
func connect(c *cli.Context, opts ...func(*gridclient.Config)) (*gridclient.Client, error) {
	s := settings(c)
	cfg := gridclient.DefaultConfig()
	cfg.Addr = s.Server
	if path, ok := strings.CutPrefix(s.Server, "unix://"); ok {
		cfg.Network = "unix"
		cfg.Addr = path
	}
	cfg.ClusterName = s.Cluster
	cfg.Password = s.Password
	cfg.ClientName = c.App.Name
	cfg.PollInterval = s.PollInterval
	cfg.DialTimeout = s.Timeout
	cfg.Logger = logger.Slog(cliLogger(c))
	if s.TLS || s.CAFile != "" {
		var caFiles []string
		if s.CAFile != "" {
			caFiles = append(caFiles, s.CAFile)
		}
		tlsConfig, err := tlsroots.ClientConfig("", caFiles...)
		if err != nil {
			return nil, err
		}
		cfg.TLSConfig = tlsConfig
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := gridclient.Dial(c.Context, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", s.Server, err)
	}
	return client, nil
}

// withClient runs fn with a connected client and closes it afterwards.
func withClient(c *cli.Context, fn func(ctx context.Context, client *gridclient.Client) error, opts ...func(*gridclient.Config)) (err error) {
	client, err := connect(c, opts...)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), closeTimeout)
		defer cancel()
		if cerr := client.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(c.Context, client)
}

// render writes data to stdout in the selected output format.
func render(c *cli.Context, data any) error {
	format, err := output.ParseFormat(settings(c).Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(c.App.Writer, data)
}

// requireArgs returns the positional arguments, or a usage error when their
// count differs from names.
func requireArgs(c *cli.Context, names ...string) ([]string, error) {
	if c.NArg() != len(names) {
		return nil, fmt.Errorf("%s: expected arguments %s, got %d",
			c.Command.FullName(), strings.ToUpper(strings.Join(names, " ")), c.NArg())
	}
	return c.Args().Slice(), nil
}
