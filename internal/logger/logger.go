// Package logger wraps zerolog with the process-wide defaults used by the
// CLI and web entrypoints.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger.
type Options struct {
	Level   string
	Format  string
	Service string
	Writer  io.Writer
}

// Logger is the project-wide logging type.
type Logger = zerolog.Logger

var (
	once   sync.Once
	root   atomic.Pointer[zerolog.Logger]
	inited atomic.Bool
)

// Init builds the root logger. Only the first call has an effect.
func Init(opt Options) {
	once.Do(func() {
		log := New(opt)
		root.Store(&log)
		inited.Store(true)
	})
}

// New builds a standalone logger from opt without touching the root logger.
func New(opt Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if strings.ToLower(opt.Format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(ParseLevel(opt.Level)).With().Timestamp()
	if opt.Service != "" {
		ctx = ctx.Str("service", opt.Service)
	}
	return ctx.Logger()
}

// Get returns the root logger, initializing it with defaults on first use.
func Get() *Logger {
	if !inited.Load() {
		Init(Options{Level: "info"})
	}
	return root.Load()
}

// Named returns a child logger tagged with a component field.
func Named(component string) zerolog.Logger {
	if component == "" {
		return *Get()
	}
	return Get().With().Str("component", component).Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
