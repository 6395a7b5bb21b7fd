// Package app assembles the hub: registry, adapters, lifecycle
// controller, health scheduler and HTTP API, wired from configuration.
package app

import (
	"context"
	"time"

	"mcphub/internal/adapter"
	"mcphub/internal/api"
	"mcphub/internal/config"
	"mcphub/internal/controller"
	"mcphub/internal/health"
	"mcphub/internal/hub"
	"mcphub/internal/registry"
	"mcphub/internal/status"
	"mcphub/pkg/logging"
)

// shutdownTimeout bounds the drain of the HTTP API and the stop sweep
// over managed servers during hub shutdown.
const shutdownTimeout = 30 * time.Second

// App is the assembled hub.
type App struct {
	cfg        config.HubConfig
	registry   *registry.Registry
	controller *controller.Controller
	scheduler  *health.Scheduler
	api        *api.Server
}

// New wires an App from configuration. The listen address from the config
// can be overridden, e.g. by a CLI flag.
func New(cfg config.HubConfig, listenOverride string) (*App, error) {
	adapters := adapter.NewRegistry()
	if err := adapters.Register("command", adapter.NewCommandFactory()); err != nil {
		return nil, err
	}
	if err := adapters.Register("mcp", adapter.NewMCPFactory()); err != nil {
		return nil, err
	}
	if err := adapters.Register("static", adapter.NewStaticFactory()); err != nil {
		return nil, err
	}

	reg := registry.New()
	ctrl := controller.New(reg, adapters, controller.Options{
		GracePeriod: cfg.Hub.StopGracePeriod,
	})
	sched := health.New(reg, ctrl.Adapter, health.Options{
		Interval:       cfg.Hub.ProbeInterval,
		ProbeTimeout:   cfg.Hub.ProbeTimeout,
		StartupTimeout: cfg.Hub.StartupTimeout,
	})
	views := status.New(reg, nil)

	addr := cfg.API.ListenAddress
	if listenOverride != "" {
		addr = listenOverride
	}

	return &App{
		cfg:        cfg,
		registry:   reg,
		controller: ctrl,
		scheduler:  sched,
		api:        api.New(addr, ctrl, views),
	}, nil
}

// Run registers the configured servers, starts the enabled ones, then
// serves the API with health monitoring running until the context is
// cancelled. On cancellation the API drains and every server is stopped.
func (a *App) Run(ctx context.Context) error {
	// Every configured server gets a record up front so the API can
	// address it by id before its first start.
	for _, def := range a.cfg.Servers {
		a.registry.CreateIfAbsent(hub.NewServerRecord(def.ToServerConfig(), time.Now()))
	}

	for _, def := range a.cfg.Servers {
		if !def.Enabled {
			continue
		}
		rec, err := a.controller.Start(ctx, def.ToServerConfig())
		if err != nil {
			logging.Error("App", err, "Failed to start server %s", def.ID)
			continue
		}
		if rec.Status == hub.StatusError {
			logging.Warn("App", "Server %s failed to start: %s", def.ID, rec.ErrorMessage)
		}
	}

	schedCtx, stopSched := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		a.scheduler.Run(schedCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.api.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
		logging.Info("App", "Shutdown requested")
	case err = <-serveErr:
		if err != nil {
			logging.Error("App", err, "HTTP API failed")
		}
	}

	stopSched()
	<-schedDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if serr := a.api.Shutdown(shutdownCtx); serr != nil {
		logging.Error("App", serr, "HTTP API shutdown failed")
	}
	a.controller.StopAll(shutdownCtx)

	logging.Info("App", "Hub stopped")
	return err
}
