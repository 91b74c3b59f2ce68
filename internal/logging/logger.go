package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/timeoff/internal/config"
)

// NewLogger creates a structured zerolog.Logger tagged with the service name
// from the config, at the configured level.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.MailTransport != "" {
		ctx = ctx.Str("mail_transport", cfg.MailTransport)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return ctx.Logger().Level(level)
}
