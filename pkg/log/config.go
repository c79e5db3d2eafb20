package log

import (
	"fmt"
	"io"
	"os"
)

// Config is the declarative logger configuration.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	// Output is stdout, stderr, null or a file path. Empty means stderr.
	Output string `json:"output" yaml:"output"`
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var format Format
	switch cfg.Format {
	case "", "json":
		format = FormatJSON
	case "text", "console":
		format = FormatText
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	return NewLogger(WithLevel(level), WithFormat(format), WithOutput(out)), nil
}

func openOutput(name string) (io.Writer, error) {
	switch name {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "null":
		return io.Discard, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}
	return f, nil
}
