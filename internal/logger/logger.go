package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/eduvox/internal/env"
)

type options struct {
	output     io.Writer
	logFile    string
	level      slog.Level
	maxSizeMB  int
	maxBackups int
	logToFile  bool
}

// Option configures the logger.
type Option func(*options)

// WithLogToFile enables or disables the rotating file sink.
func WithLogToFile(enabled bool) Option {
	return func(o *options) { o.logToFile = enabled }
}

// WithLogFile sets the path of the rotating log file.
func WithLogFile(path string) Option {
	return func(o *options) { o.logFile = path }
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *options) { o.level = level }
}

// WithOutput replaces the console writer (stderr by default).
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// New builds a logger for the given environment.
// Development logs are colored through tint, production logs are JSON.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		output:     os.Stderr,
		logFile:    "logs/eduvox.log",
		level:      slog.LevelInfo,
		maxSizeMB:  50,
		maxBackups: 5,
	}
	if !environment.IsProduction() {
		o.level = slog.LevelDebug
	}
	for _, opt := range opts {
		opt(o)
	}

	var console slog.Handler
	if environment.IsProduction() {
		console = slog.NewJSONHandler(o.output, &slog.HandlerOptions{Level: o.level})
	} else {
		console = tint.NewHandler(o.output, &tint.Options{
			Level:      o.level,
			TimeFormat: time.Kitchen,
		})
	}

	if !o.logToFile || o.logFile == "" {
		return slog.New(console)
	}

	file := &lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    o.maxSizeMB,
		MaxBackups: o.maxBackups,
		Compress:   true,
	}

	return slog.New(slogmulti.Fanout(
		console,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.level}),
	))
}
