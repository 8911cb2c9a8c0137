// Package app wires the Orrery subsystems into a running serve process.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems (telemetry, manifest store, registry, MCP server, HTTP
// surface), Run blocks serving traffic, and Shutdown tears everything down
// in order.
//
// For testing, inject replacements via functional options (WithStore,
// WithLogic, …). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orreryhq/orrery/internal/baseurl"
	"github.com/orreryhq/orrery/internal/config"
	"github.com/orreryhq/orrery/internal/health"
	"github.com/orreryhq/orrery/internal/observe"
	"github.com/orreryhq/orrery/internal/registry"
	"github.com/orreryhq/orrery/internal/server"
	"github.com/orreryhq/orrery/internal/tools/solar"
)

// Version is the reported server version. Overridden at release time via
// -ldflags.
var Version = "dev"

// App owns all subsystem lifetimes for the serve process.
type App struct {
	cfg      *config.Config
	resolver *baseurl.Resolver
	store    registry.Store
	registry *registry.Registry
	logic    *server.LogicRegistry
	metrics  *observe.Metrics
	srv      *server.Server
	httpSrv  *http.Server

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for [New]. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a manifest store instead of creating one from config.
func WithStore(s registry.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLogic injects a logic registry instead of the built-in one.
func WithLogic(l *server.LogicRegistry) Option {
	return func(a *App) { a.logic = l }
}

// WithMetrics injects a metrics instance instead of the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New wires all serve-side subsystems together. It loads the latest
// committed generation from the manifest store (falling back to scanning the
// output directory when no manifest exists), publishes it to the registry,
// and constructs the MCP server over it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, registry: registry.New()}
	for _, o := range opts {
		o(a)
	}

	var err error
	a.resolver, err = baseurl.New(cfg.Assets.BaseURL)
	if err != nil {
		return nil, err
	}

	if a.metrics == nil {
		shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    "orrery",
			ServiceVersion: Version,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.closers = append(a.closers, shutdownOTel)
		a.metrics = observe.DefaultMetrics()
	}

	if a.store == nil {
		a.store, err = newStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	if err := a.loadRegistry(ctx); err != nil {
		return nil, err
	}

	if a.logic == nil {
		a.logic = server.NewLogicRegistry()
		a.logic.Register("solar", solar.Logic)
	}

	a.srv, err = server.New(server.Config{
		Name:      "orrery",
		Version:   Version,
		Registry:  a.registry,
		Resolver:  a.resolver,
		OutputDir: cfg.Assets.OutputDir,
		Logic:     a.logic,
		Metrics:   a.metrics,
	})
	if err != nil {
		return nil, err
	}

	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newStore creates the manifest store selected by the config.
func newStore(ctx context.Context, cfg *config.Config) (registry.Store, error) {
	switch cfg.Registry.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Registry.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: connect postgres: %w", err)
		}
		store := registry.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return registry.NewFileStore(cfg.Registry.ManifestPath), nil
	}
}

// loadRegistry publishes the latest committed generation. Without a
// manifest it falls back to rebuilding one from the output directory's
// filename convention.
func (a *App) loadRegistry(ctx context.Context) error {
	gen, err := a.store.Load(ctx)
	if err != nil {
		return err
	}
	if gen == nil {
		slog.Warn("no manifest found, scanning output directory",
			"output_dir", a.cfg.Assets.OutputDir)
		gen, err = registry.ScanOutputDir(a.cfg.Assets.OutputDir, a.cfg.Assets.PublicPath)
		if err != nil {
			return err
		}
	}
	if len(gen.Widgets) == 0 {
		return fmt.Errorf("app: no published widgets in %q, run \"orrery build\" first", a.cfg.Assets.OutputDir)
	}
	a.registry.Publish(gen)
	a.metrics.RegistryGeneration.Record(ctx, gen.ID)
	slog.Info("registry loaded", "generation", gen.ID, "widgets", len(gen.Widgets))
	return nil
}

// buildHandler assembles the HTTP surface: MCP endpoint, static artifacts,
// metrics, and health probes, all behind the observability middleware.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()
	a.srv.Register(mux, a.cfg.Assets.PublicPath)
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(
		health.Checker{Name: "registry", Check: func(context.Context) error {
			if a.registry.Current() == nil {
				return errors.New("no published generation")
			}
			return nil
		}},
		health.Checker{Name: "assets", Check: func(context.Context) error {
			_, err := os.Stat(a.cfg.Assets.OutputDir)
			return err
		}},
	)
	h.Register(mux)

	return observe.Middleware(a.metrics)(mux)
}

// Run serves HTTP until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server listening",
		"addr", a.cfg.Server.ListenAddr,
		"base_url", a.resolver.Origin(),
		"widgets", len(a.registry.Widgets()),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown stops the HTTP server and tears down subsystems in order. Safe to
// call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		for _, closer := range a.closers {
			if err := closer(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
