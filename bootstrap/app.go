// Package bootstrap assembles the telemetry core: configuration, logging,
// the bounded store, distribution hub, topology builder, spool adapter and
// the HTTP API, in dependency order.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guardian/api"
	"guardian/config"
	"guardian/core"
	"guardian/graph"
	"guardian/hub"
	"guardian/ingest"
	"guardian/service"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// App holds the application's components and lifecycle state
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Store   *core.EventStore
	Hub     *hub.Hub
	Graph   *graph.Builder
	Rate    *ingest.RateController
	Adapter *ingest.Adapter
	Service *service.TelemetryService
	API     *api.Server
}

// NewApp creates the application and wires all components.
// Nothing runs until Start is called.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, sugar, err := InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sugar.Info("Guardian telemetry hub starting...")

	app := &App{
		Config: cfg,
		Logger: logger,
		Sugar:  sugar,
	}

	app.Store = core.NewEventStore(cfg.Store.MaxEvents, sugar)
	app.Graph = graph.NewBuilder(sugar)
	app.Hub = hub.NewHub(app.Store, cfg.Hub.DebounceWindow, cfg.Hub.ReconcileEvery, sugar)
	app.Hub.AddObserver(app.Graph.Observe)

	rate, err := ingest.NewRateController(ingest.RateConfig{
		MinInterval:       cfg.Rate.MinInterval,
		MaxInterval:       cfg.Rate.MaxInterval,
		ThrottledInterval: cfg.Rate.ThrottledInterval,
		LowThreshold:      cfg.Rate.LowThreshold,
		HighThreshold:     cfg.Rate.HighThreshold,
		BurstThreshold:    cfg.Rate.BurstThreshold,
		BurstWindow:       cfg.Rate.BurstWindow,
		Cooldown:          cfg.Rate.Cooldown,
		ActivityWindow:    cfg.Rate.ActivityWindow,
	}, sugar)
	if err != nil {
		return nil, err
	}
	app.Rate = rate

	// The sink is the single seam between ingestion and distribution:
	// insert first, then notify, so subscribers always recompute against
	// a store that already contains the event.
	sink := func(event *core.Event) {
		app.Store.Insert(event)
		app.Hub.NotifyChange(event)
	}

	adapter, err := ingest.NewAdapter(ingest.AdapterConfig{
		Dir:             cfg.Spool.Dir,
		Backend:         ingest.Backend(cfg.Spool.Backend),
		SeenCacheSize:   cfg.Spool.SeenCacheSize,
		NotifyRateLimit: cfg.Spool.NotifyRateLimit,
	}, rate, sink, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create spool adapter: %w", err)
	}
	app.Adapter = adapter

	app.Service = service.NewTelemetryService(app.Store, app.Hub, app.Graph, adapter, rate, sugar)

	if cfg.API.Enabled {
		app.API = api.NewServer(cfg.API.Host, cfg.API.Port, app.Service, sugar)
	}

	return app, nil
}

// Start launches the hub, the spool adapter and the API server
func (a *App) Start(ctx context.Context) error {
	a.Hub.Start()

	if err := a.Adapter.Start(); err != nil {
		return fmt.Errorf("failed to start spool adapter: %w", err)
	}

	if a.API != nil {
		if err := a.API.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	a.Sugar.Infow("Guardian telemetry hub started",
		"spool", a.Config.Spool.Dir,
		"backend", a.Config.Spool.Backend,
		"store_capacity", a.Store.Capacity())
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM
func (a *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	a.Sugar.Infof("Received signal %s, shutting down", sig)
}

// Shutdown stops the components in reverse dependency order
func (a *App) Shutdown() {
	if a.API != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.API.Stop(ctx); err != nil {
			a.Sugar.Warnf("API server did not shut down cleanly: %v", err)
		}
		cancel()
	}

	a.Adapter.Stop()
	a.Hub.Stop()

	a.Sugar.Info("Guardian telemetry hub stopped")
	_ = a.Logger.Sync()
}
