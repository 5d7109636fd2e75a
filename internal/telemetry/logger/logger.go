package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface used across gridmesh.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// Config selects the level, encoding and destination of a Logger.
type Config struct {
	// Level is debug, info, warn or error. Unknown values mean info.
	Level string
	// Format is json or text.
	Format string
	// Output defaults to stderr. File.Path takes precedence.
	Output    io.Writer
	AddSource bool
	File      FileConfig
}

// FileConfig enables lumberjack rotation when Path is set.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig logs info and above as JSON to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

// level is shared by every Logger built with New, so a config reload can
// change verbosity in place.
var level slog.LevelVar

type slogger struct {
	*slog.Logger
	file io.Closer
}

func (l *slogger) With(args ...any) Logger {
	return &slogger{Logger: l.Logger.With(args...), file: l.file}
}

// New builds a Logger and sets the process-wide level to cfg.Level.
func New(cfg Config) (Logger, error) {
	level.Set(parseLevel(cfg.Level))

	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	var file io.Closer
	if cfg.File.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
			LocalTime:  true,
		}
		w, file = lj, lj
	}

	opts := &slog.HandlerOptions{Level: &level, AddSource: cfg.AddSource, ReplaceAttr: redact}
	var h slog.Handler
	if f := strings.ToLower(cfg.Format); f == "text" || f == "console" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return &slogger{Logger: slog.New(h), file: file}, nil
}

// NewNop returns a Logger that drops everything.
func NewNop() Logger {
	return &slogger{Logger: slog.New(slog.DiscardHandler)}
}

// Close closes the log file of l, if it writes to one.
func Close(l Logger) error {
	if s, ok := l.(*slogger); ok && s.file != nil {
		return s.file.Close()
	}
	return nil
}

// Slog exposes l as a *slog.Logger for libraries that take one, such as
// pkg/gridclient. Foreign Logger implementations get a discarding logger.
func Slog(l Logger) *slog.Logger {
	if s, ok := l.(*slogger); ok {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// SetLevel changes the level of every Logger built with New.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

// GetLevel reports the current level name.
func GetLevel() string {
	switch l := level.Level(); {
	case l <= slog.LevelDebug:
		return "debug"
	case l <= slog.LevelInfo:
		return "info"
	case l <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

func parseLevel(name string) slog.Level {
	var l slog.Level
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

var defaultLogger atomic.Pointer[slogger]

func init() {
	l, _ := New(DefaultConfig())
	defaultLogger.Store(l.(*slogger))
}

// SetDefault replaces the logger returned by Default. Loggers not built by
// this package are ignored.
func SetDefault(l Logger) {
	if s, ok := l.(*slogger); ok {
		defaultLogger.Store(s)
	}
}

// Default returns the process logger.
func Default() Logger {
	return defaultLogger.Load()
}
