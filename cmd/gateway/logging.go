package main

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"throttle-gateway/config"
)

func newLogger(w io.Writer, cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(cfg.LogLevel).With().Timestamp().Logger()
}
