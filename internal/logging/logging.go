package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/dental-agenda/internal/config"
)

// New builds the process logger: JSON on stdout, or a console writer when
// pretty output is requested.
func New(cfg config.Config, service string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(ParseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("service", service).
		Str("env", cfg.Env).
		Logger()
}

// Setup builds the logger with New and installs it as the global and the
// default context logger, so zerolog.Ctx on a bare context still logs.
func Setup(cfg config.Config, service string) zerolog.Logger {
	logger := New(cfg, service)
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger
}

func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
