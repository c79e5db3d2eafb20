// Package log provides flolog's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. It is backed by zap, so output is
// either JSON (production) or a human-friendly console encoding.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormat(log.FormatText),
//	    log.WithOutput(os.Stderr),
//	)
//	l = l.With(log.Component("server"), log.Str("log", "orders"))
//	l.Info("server started", log.Int("port", 8080))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config (level, format
// and output: stdout, stderr, null or a file path).
//
// # Interop
//
// RedirectStdLog routes the standard library logger (used by a few
// dependencies) into a facade logger.
package log
