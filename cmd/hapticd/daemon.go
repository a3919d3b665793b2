package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hapticd/internal/actuator"
	"github.com/fyrsmithlabs/hapticd/internal/bundle"
	"github.com/fyrsmithlabs/hapticd/internal/config"
	"github.com/fyrsmithlabs/hapticd/internal/engine"
	"github.com/fyrsmithlabs/hapticd/internal/generate"
	httpserver "github.com/fyrsmithlabs/hapticd/internal/http"
	"github.com/fyrsmithlabs/hapticd/internal/ingest"
	"github.com/fyrsmithlabs/hapticd/internal/kv"
	"github.com/fyrsmithlabs/hapticd/internal/logging"
	"github.com/fyrsmithlabs/hapticd/internal/rules"
	"github.com/fyrsmithlabs/hapticd/internal/telemetry"
)

const tracerName = "github.com/fyrsmithlabs/hapticd"

// daemon holds every long-lived component.
type daemon struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	registry  *prometheus.Registry

	nc         *nats.Conn
	backend    kv.Backend
	store      *rules.KVStore
	recorder   *actuator.Recorder
	engine     *engine.Engine
	generator  *generate.Client
	subscriber *ingest.Subscriber
	watcher    *bundle.Watcher
	server     *httpserver.Server
}

func newDaemon(ctx context.Context, cfg *config.Config) (_ *daemon, err error) {
	d := &daemon{cfg: cfg, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d.telemetry, err = telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	d.logger, err = newLogger(cfg, d)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := d.logger.Underlying()

	zl.Info("Starting hapticd",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
		zap.Bool("telemetry_enabled", d.telemetry.IsEnabled()))

	if cfg.NATS.Enabled {
		d.nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("hapticd"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		zl.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
	}

	d.backend, err = openBackend(cfg.Store, d.nc)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule store: %w", err)
	}
	d.store = rules.NewKVStore(d.backend, zl.Named("rules"))

	d.recorder = actuator.NewRecorder(cfg.Engine.RecentWaveforms)
	act, err := newActuator(cfg.NATS, d.nc, d.recorder, zl.Named("actuator"))
	if err != nil {
		return nil, err
	}

	d.engine, err = engine.New(d.store, act,
		engine.WithLogger(zl.Named("engine")),
		engine.WithMetrics(engine.NewMetrics(d.registry)),
		engine.WithTracer(d.telemetry.Tracer(tracerName)),
		engine.WithIgnorePackages(cfg.Engine.IgnorePackages...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	if cfg.Bundle.Path != "" {
		if err := d.applyBundle(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Generator.Enabled {
		d.generator, err = generate.New(generate.Config{
			BaseURL:        cfg.Generator.BaseURL,
			Model:          cfg.Generator.Model,
			APIKey:         cfg.Generator.APIKey.Value(),
			AttemptTimeout: cfg.Generator.AttemptTimeout.Duration(),
			RateLimit:      cfg.Generator.RateLimit,
			Burst:          cfg.Generator.Burst,
		}, zl.Named("generate"), d.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to create generator: %w", err)
		}
		zl.Info("Pattern generator enabled",
			zap.String("base_url", cfg.Generator.BaseURL),
			zap.String("model", cfg.Generator.Model),
			logging.Secret("api_key", cfg.Generator.APIKey))
	}

	if d.nc != nil {
		d.subscriber, err = ingest.NewSubscriber(d.nc, cfg.NATS.EventsSubject, d.engine, zl.Named("ingest"))
		if err != nil {
			return nil, fmt.Errorf("failed to create subscriber: %w", err)
		}
	}

	deps := httpserver.Deps{
		Store:     d.store,
		Resolver:  d.engine,
		Recorder:  d.recorder,
		Telemetry: d.telemetry,
		Gatherer:  d.registry,
		Metrics:   httpserver.NewHTTPMetrics(d.telemetry.Meter(tracerName), zl.Named("http")),
	}
	if d.generator != nil {
		deps.Generator = d.generator
	}
	if d.subscriber != nil {
		deps.Ingest = d.subscriber
	}

	d.server, err = httpserver.NewServer(deps, zl.Named("http"), &httpserver.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP server: %w", err)
	}

	return d, nil
}

// applyBundle applies the configured bundle once and, when watching, sets
// up the watcher that re-applies it on change.
func (d *daemon) applyBundle(ctx context.Context) error {
	zl := d.logger.Underlying().Named("bundle")
	path, err := config.ExpandPath(d.cfg.Bundle.Path)
	if err != nil {
		return err
	}

	report, err := bundle.ApplyFile(ctx, d.store, path)
	if err != nil {
		return fmt.Errorf("failed to apply bundle %s: %w", path, err)
	}
	zl.Info("Applied rule bundle",
		zap.String("path", path),
		zap.Int("apps", report.Apps),
		zap.Int("senders", report.Senders),
		zap.Int("mutes", report.Mutes),
		zap.Int("failures", len(report.Failures)))
	for _, f := range report.Failures {
		zl.Warn("Bundle entry rejected", zap.String("entry", f.Entry), zap.String("error", f.Error))
	}

	if d.cfg.Bundle.Watch {
		d.watcher, err = bundle.NewWatcher(path, d.store,
			bundle.WithDebounce(d.cfg.Bundle.Debounce.Duration()),
			bundle.WithWatcherLogger(zl),
		)
		if err != nil {
			return fmt.Errorf("failed to watch bundle: %w", err)
		}
	}
	return nil
}

// Serve runs ingestion, the bundle watcher and the HTTP server until ctx is
// cancelled, then shuts them down.
func (d *daemon) Serve(ctx context.Context) error {
	zl := d.logger.Underlying()

	if d.subscriber != nil {
		if err := d.subscriber.Start(ctx); err != nil {
			return fmt.Errorf("failed to start subscriber: %w", err)
		}
		zl.Info("Listening for events", zap.String("subject", d.cfg.NATS.EventsSubject))
	}

	watchDone := make(chan struct{})
	if d.watcher != nil {
		go func() {
			defer close(watchDone)
			if err := d.watcher.Run(ctx); err != nil {
				zl.Error("Bundle watcher stopped", zap.Error(err))
			}
		}()
	} else {
		close(watchDone)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- serveErr(d.server.Start())
	}()

	var runErr error
	select {
	case <-ctx.Done():
		zl.Info("Shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			zl.Error("HTTP server failed", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := d.server.Shutdown(shutdownCtx); err != nil {
		zl.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	if d.subscriber != nil {
		if err := d.subscriber.Stop(); err != nil {
			zl.Warn("Subscriber stop failed", zap.Error(err))
		}
	}
	<-watchDone
	if err := d.telemetry.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Telemetry shutdown failed", zap.Error(err))
	}

	zl.Info("Shutdown complete")
	return runErr
}

// Close releases infrastructure resources.
func (d *daemon) Close() {
	if d.backend != nil {
		_ = d.backend.Close()
	}
	if d.nc != nil {
		d.nc.Close()
	}
	if d.logger != nil {
		_ = d.logger.Sync() // Best-effort sync
	}
}

// openBackend opens the configured kv backend. nc is required for the nats
// backend.
func openBackend(cfg config.StoreConfig, nc *nats.Conn) (kv.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return kv.NewMemory(), nil
	case config.BackendSQLite:
		path, err := config.ExpandPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		return kv.OpenSQLite(path)
	case config.BackendNATS:
		return kv.OpenNATS(nc, cfg.Bucket)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// newActuator always records; with NATS it also publishes.
func newActuator(cfg config.NATSConfig, nc *nats.Conn, rec *actuator.Recorder, logger *zap.Logger) (actuator.Actuator, error) {
	if nc == nil {
		return actuator.Multi{rec, actuator.NewLog(logger)}, nil
	}
	pub, err := actuator.NewNATS(nc, cfg.HapticsPrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS actuator: %w", err)
	}
	return actuator.Multi{rec, pub}, nil
}
