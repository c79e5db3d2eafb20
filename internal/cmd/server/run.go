package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	cfgpkg "github.com/rzbill/flolog/internal/config"
	"github.com/rzbill/flolog/internal/runtime"
	httpserver "github.com/rzbill/flolog/internal/server/http"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// Options for Run. Empty DataDir and HTTPAddr fall back to the config and
// then to the built-in defaults.
type Options struct {
	Config   cfgpkg.Config
	DataDir  string
	HTTPAddr string
}

// resolve applies the option overrides and fallbacks onto the config.
func (o Options) resolve() cfgpkg.Config {
	cfg := o.Config
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	if o.HTTPAddr != "" {
		cfg.HTTPAddr = o.HTTPAddr
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = cfgpkg.Default().HTTPAddr
	}
	return cfg
}

// Run opens the runtime, serves the HTTP API and blocks until ctx is
// cancelled or a termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.resolve()
	logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	// Redirect stdlib logs to our logger
	restore := logpkg.RedirectStdLog(logger)
	defer restore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger, Registerer: reg})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("Starting flolog server",
		logpkg.Str("backend", cfg.Backend),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	hsrv := httpserver.New(rt, logger, reg)
	if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
		return fmt.Errorf("http: %w", err)
	}
	logger.Info("flolog server stopped")
	return nil
}
