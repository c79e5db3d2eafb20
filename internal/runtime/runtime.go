package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/rzbill/flolog/internal/config"
	"github.com/rzbill/flolog/internal/cyclelog"
	"github.com/rzbill/flolog/internal/kafkalog"
	"github.com/rzbill/flolog/internal/metrics"
	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
	"github.com/rzbill/flolog/internal/streamlog"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// Registerer receives the engine metrics. Nil keeps them unregistered.
	Registerer prometheus.Registerer
	// Now overrides the disk backend clock.
	Now func() time.Time
}

// Runtime wires config, logging, metrics and the log manager of one
// instance.
type Runtime struct {
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics
	manager *streamlog.Manager
}

// Open builds the backend selected by the configuration and the manager on
// top of it.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			return nil, fmt.Errorf("runtime: logger: %w", err)
		}
	}
	m := metrics.New(opts.Registerer)

	backend, err := openBackend(cfg, logger, m, opts.Now)
	if err != nil {
		return nil, err
	}
	mgr := streamlog.NewManager(backend, streamlog.WithLogger(logger), streamlog.WithObserver(m))
	if opts.Registerer != nil {
		if err := opts.Registerer.Register(metrics.NewLagCollector(mgr, logger)); err != nil {
			_ = mgr.Close()
			return nil, fmt.Errorf("runtime: register lag collector: %w", err)
		}
	}
	logger.Info("runtime opened", logpkg.Str("backend", backend.Kind()))
	return &Runtime{config: cfg, logger: logger, metrics: m, manager: mgr}, nil
}

func openBackend(cfg cfgpkg.Config, logger logpkg.Logger, m *metrics.Metrics, now func() time.Time) (streamlog.Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case cfgpkg.BackendKafka:
		return kafkalog.Open(kafkalog.Options{
			Brokers:           cfg.Kafka.Brokers,
			TopicPrefix:       cfg.Kafka.TopicPrefix,
			ReplicationFactor: int16(cfg.Kafka.ReplicationFactor),
			ClientID:          cfg.Kafka.ClientID,
			Logger:            logger,
		})
	default:
		fsync, err := pebblestore.ParseFsyncMode(cfg.Disk.Fsync)
		if err != nil {
			return nil, err
		}
		return cyclelog.Open(cyclelog.Options{
			Root:      cfgpkg.LogsDir(cfg.DataDir),
			Retention: cfg.Disk.Retention,
			Fsync:     fsync,
			Now:       now,
			Logger:    logger,
			Metrics:   m,
		})
	}
}

// Close closes the manager, every handle it vended and the backend.
func (r *Runtime) Close() error {
	if r.manager == nil {
		return nil
	}
	err := r.manager.Close()
	r.manager = nil
	_ = r.logger.Sync()
	return err
}

// CheckHealth verifies the backend answers a listing request.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.manager == nil {
		return errors.New("runtime closed")
	}
	done := make(chan error, 1)
	go func() {
		_, err := r.manager.ListAll()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager returns the log manager.
func (r *Runtime) Manager() *streamlog.Manager { return r.manager }

// Logger returns the runtime logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// Metrics returns the engine metrics.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
