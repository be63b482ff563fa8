package logger

import (
    "os"

    "github.com/vantage-run/optigate/config"
    "github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger. Development gets a
// human-readable console writer; any other environment logs JSON.
func New(cfg *config.Config) zerolog.Logger {
    lvl, err := zerolog.ParseLevel(cfg.LogLevel)
    if err != nil {
        lvl = zerolog.InfoLevel
    }
    if cfg.IsDevelopment() && lvl > zerolog.DebugLevel {
        lvl = zerolog.DebugLevel
    }
    zerolog.SetGlobalLevel(lvl)

    if cfg.IsDevelopment() {
        out := zerolog.ConsoleWriter{Out: os.Stderr}
        return zerolog.New(out).With().Timestamp().Logger()
    }
    return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
