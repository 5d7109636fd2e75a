package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/gridmesh-go/internal/core/grid"
	"github.com/yndnr/gridmesh-go/internal/core/service"
	"github.com/yndnr/gridmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/gridmesh-go/internal/infra/confloader"
	"github.com/yndnr/gridmesh-go/internal/infra/shutdown"
	"github.com/yndnr/gridmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/gridmesh-go/internal/server/config"
	"github.com/yndnr/gridmesh-go/internal/server/httpserver"
	"github.com/yndnr/gridmesh-go/internal/server/respserver"
	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
	"github.com/yndnr/gridmesh-go/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile   = flag.String("config", "", "Path to configuration file")
		showVersion  = flag.Bool("version", false, "Show version information")
		hashPassword = flag.Bool("hash-password", false, "Read a password from stdin and print its security.password_hash")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("gridmesh-server " + buildinfo.String())
		return nil
	}
	if *hashPassword {
		return printPasswordHash(os.Stdin, os.Stdout)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	defer logger.Close(log)

	info := buildinfo.Get()
	log.Info("starting gridmesh-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile,
		"settings", config.Sanitize(cfg),
	)

	return serve(context.Background(), cfg, *configFile, log)
}

// serve starts every component and blocks until a termination signal or a
// component failure, then shuts everything down in reverse order.
func serve(ctx context.Context, cfg *config.ServerConfig, configFile string, log logger.Logger) error {
	shutdownHandler := shutdown.NewHandler(shutdownTimeout, log)
	group, gctx := errgroup.WithContext(ctx)
	// Registered first so that the watchers stop after everything else.
	watchCtx, stopWatching := context.WithCancel(gctx)
	defer stopWatching()
	shutdownHandler.OnShutdown("watchers", func(context.Context) error {
		stopWatching()
		return nil
	})

	auth, err := service.NewAuthenticator(cfg.Security.PasswordHash)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	g, err := grid.New(cfg.GridConfig())
	if err != nil {
		return fmt.Errorf("init grid: %w", err)
	}

	sessions := service.NewSessionService(g, cfg.SessionConfig(), log)
	if err := sessions.Start(); err != nil {
		return fmt.Errorf("start sessions: %w", err)
	}
	shutdownHandler.OnShutdown("sessions", sessions.Stop)
	shutdownHandler.OnShutdown("grid", func(context.Context) error {
		g.Close()
		return nil
	})

	metrics := metric.NewRegistry()
	metrics.MustRegister(metric.NewGridCollector(g, sessions))

	var tlsConfig *tls.Config
	if cfg.Server.RESP.TLSAddr != "" {
		certs, err := tlsroots.NewReloader(cfg.Server.RESP.TLSCertFile, cfg.Server.RESP.TLSKeyFile, log)
		if err != nil {
			return fmt.Errorf("load tls certificate: %w", err)
		}
		tlsConfig = certs.ServerTLSConfig()
		group.Go(func() error {
			if err := certs.Run(watchCtx); err != nil {
				log.Warn("certificate hot reload disabled", "error", err)
			}
			return nil
		})
	}

	resp := respserver.New(cfg.RESPServerConfig(tlsConfig), respserver.Deps{
		Grid:     g,
		Sessions: sessions,
		Auth:     auth,
		Metrics:  metrics,
		Logger:   log,
	})
	if err := resp.Start(ctx); err != nil {
		_ = shutdownHandler.Shutdown()
		return err
	}
	// Registered after the grid so that it runs first: connections close
	// before the grid fails the remaining waiters.
	shutdownHandler.OnShutdown("resp", resp.Shutdown)

	if cfg.Server.HTTP.Addr != "" {
		router := httpserver.NewRouter(&httpserver.RouterConfig{
			Status:  &statusSource{cluster: cfg.Grid.ClusterName, grid: g, sessions: sessions},
			Metrics: metrics,
			Logger:  log,
		})
		httpSrv := httpserver.New(cfg.Server.HTTP.Addr, router, log)
		if err := httpSrv.Start(); err != nil {
			_ = shutdownHandler.Shutdown()
			return err
		}
		shutdownHandler.OnShutdown("http", httpSrv.Shutdown)
	}

	if configFile != "" {
		watcher := watchConfig(configFile, log)
		group.Go(func() error {
			if err := watcher.Run(watchCtx); err != nil {
				log.Warn("config hot reload disabled", "error", err)
			}
			return nil
		})
	}

	log.Info("server started, press Ctrl+C to stop")
	group.Go(func() error {
		return shutdownHandler.Wait(gctx)
	})
	if err := group.Wait(); err != nil {
		_ = shutdownHandler.Shutdown()
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// watchConfig re-reads the config file on change and applies log.level.
// Other settings need a restart.
func watchConfig(path string, log logger.Logger) *confloader.Watcher {
	watcher := confloader.NewWatcher(log, confloader.DefaultSettle)
	watcher.Watch(path)
	watcher.OnChange(func(string) {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Warn("ignoring invalid configuration change", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	return watcher
}

func printPasswordHash(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

// statusSource adapts the grid and sessions to the HTTP status handler.
type statusSource struct {
	cluster  string
	grid     *grid.Grid
	sessions *service.SessionService
}

func (s *statusSource) ClusterName() string   { return s.cluster }
func (s *statusSource) GridStats() grid.Stats { return s.grid.Stats() }
func (s *statusSource) SessionCount() int     { return s.sessions.Count() }

func (s *statusSource) Ready() bool {
	select {
	case <-s.grid.Done():
		return false
	default:
		return true
	}
}
