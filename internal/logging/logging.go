// Package logging builds the structured loggers used across podds.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the level, format and destination of a logger.
type Config struct {
	Level     string    `yaml:"level" json:"level"`
	Format    string    `yaml:"format" json:"format"` // json or text
	AddSource bool      `yaml:"add_source" json:"add_source"`
	Output    io.Writer `yaml:"-" json:"-"`
}

// DefaultConfig returns an info level text logger on stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", Output: os.Stderr}
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
}

// New builds a logger from cfg. A nil Output writes to stderr.
func New(cfg Config) (*slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := ParseLevel(cfg.Level)
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
