package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lcalzada-xor/geotrack/internal/adapters/notify"
	"github.com/lcalzada-xor/geotrack/internal/adapters/platform/simulated"
	"github.com/lcalzada-xor/geotrack/internal/adapters/storage"
	"github.com/lcalzada-xor/geotrack/internal/adapters/web/middleware"
	webserver "github.com/lcalzada-xor/geotrack/internal/adapters/web/server"
	web "github.com/lcalzada-xor/geotrack/internal/adapters/web/websocket"
	"github.com/lcalzada-xor/geotrack/internal/config"
	"github.com/lcalzada-xor/geotrack/internal/core/domain"
	"github.com/lcalzada-xor/geotrack/internal/core/ports"
	"github.com/lcalzada-xor/geotrack/internal/core/services/audit"
	"github.com/lcalzada-xor/geotrack/internal/core/services/gate"
	"github.com/lcalzada-xor/geotrack/internal/core/services/locator"
	"github.com/lcalzada-xor/geotrack/internal/core/services/poller"
	"github.com/lcalzada-xor/geotrack/internal/geo"
	"github.com/lcalzada-xor/geotrack/internal/telemetry"
)

// Application wires the provider to the simulated platform, the audit store
// and the operations surface.
type Application struct {
	Config       *config.Config
	Device       *simulated.Device
	Store        *storage.SQLiteAdapter
	AuditService *audit.AuditService
	WSManager    *web.WSManager
	Notifier     *notify.Notifier
	WebServer    *webserver.Server

	// Exactly one of these is set, depending on the mode.
	Locator *locator.Provider
	Poller  *poller.Poller

	service locator.Holder[ports.LocationService]
}

// New creates a new Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{
		Config: cfg,
	}

	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	store, err := app.initStorage()
	if err != nil {
		return err
	}
	app.Store = store
	app.AuditService = audit.NewAuditService(store)

	app.WSManager = web.NewWSManager(app.Config.AllowedOrigins)
	app.Notifier = notify.New(slog.Default(), app.WSManager)
	app.Device = simulated.NewDevice(simulated.Options{
		Coarse:         app.Config.Coarse,
		Fine:           app.Config.Fine,
		NetworkEnabled: app.Config.NetworkEnabled,
		GPSEnabled:     app.Config.GPSEnabled,
		Drive:          true,
		Position:       app.position(),
	})

	svc, err := app.LocationService()
	if err != nil {
		store.Close()
		return err
	}

	if app.Config.Addr != "" {
		app.WebServer = webserver.NewServer(app.Config.Addr, svc, app.AuditService, app.WSManager)
		if app.Config.ControlRate > 0 {
			app.WebServer.ControlLimiter = middleware.NewRateLimiter(app.Config.ControlRate, time.Minute)
		}
	}
	return nil
}

func (app *Application) initStorage() (*storage.SQLiteAdapter, error) {
	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init audit storage: %w", err)
	}
	return store, nil
}

func (app *Application) position() geo.Provider {
	start := geo.Location{Latitude: app.Config.Latitude, Longitude: app.Config.Longitude}
	if app.Config.Speed <= 0 {
		return geo.NewStaticProvider(start.Latitude, start.Longitude)
	}
	return geo.NewWalkProvider(start, app.Config.Bearing, app.Config.Speed)
}

func (app *Application) platform() ports.Platform {
	return ports.Platform{
		Permissions: app.Device,
		Manager:     app.Device.Manager(),
		Fused:       app.Device.Fused(),
		Notifier:    app.Notifier,
	}
}

// LocationService returns the provider for the configured mode, building it
// on first use. Every call returns the same instance.
func (app *Application) LocationService() (ports.LocationService, error) {
	return app.service.Get(func() (ports.LocationService, error) {
		switch app.Config.Mode {
		case config.ModePoll:
			p, err := poller.New(app.platform(),
				poller.WithPolicy(app.Config.Policy()),
				poller.WithAudit(app.AuditService),
				poller.WithEvents(app.WSManager),
			)
			if err != nil {
				return nil, err
			}
			app.Poller = p
			return p, nil
		default:
			p, err := locator.New(app.platform(), ports.ObserverFunc(logSample),
				locator.WithRequest(app.Config.Request()),
				locator.WithPolicy(app.Config.Policy()),
				locator.WithAudit(app.AuditService),
				locator.WithEvents(app.WSManager),
				locator.WithStreamBuffer(app.Config.StreamBuffer),
			)
			if err != nil {
				return nil, err
			}
			app.Locator = p
			return p, nil
		}
	})
}

func logSample(s domain.Sample) {
	slog.Info("location update received", "source", s.Source, "accuracy", s.Accuracy)
	slog.Debug("location update coordinates", "lat", s.Latitude, "lng", s.Longitude)
}

// Run starts location updates and the web server, and blocks until ctx is
// done or the server fails.
func (app *Application) Run(ctx context.Context) error {
	svc, err := app.LocationService()
	if err != nil {
		return err
	}

	if _, err := app.startUpdates(ctx, svc); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	if app.WebServer != nil {
		go func() {
			if err := app.WebServer.Run(ctx); err != nil {
				errChan <- fmt.Errorf("web server error: %w", err)
			}
		}()
	}

	if app.Poller != nil {
		go app.runPollLoop(ctx)
	}

	slog.Info("geotrack ready", "mode", app.Config.Mode)

	select {
	case <-ctx.Done():
		slog.Info("termination signal received")
	case err := <-errChan:
		app.cleanup()
		return err
	}

	return app.cleanup()
}

// startUpdates routes the initial start through the permission and
// location-enabled checks. Only domain.ErrClosed is returned; partial source
// failures are logged.
func (app *Application) startUpdates(ctx context.Context, svc ports.LocationService) (gate.Outcome, error) {
	var startErr error
	start := func(ctx context.Context) {
		report, err := svc.StartLocationUpdates(ctx)
		switch {
		case errors.Is(err, domain.ErrClosed):
			startErr = err
		case err != nil:
			slog.Warn("location updates started with errors", "error", err)
		case !report.PermissionGranted:
			slog.Warn("location updates not started, permission missing", "policy", app.Config.Policy())
		}
	}

	platform := app.platform()
	outcome := gate.Handle(ctx, platform.Permissions, platform.Manager, app.Config.Policy(), gate.Actions{
		OnReady: start,
		OnNotEnabled: func(ctx context.Context) {
			slog.Warn("location updates not started, positioning is switched off",
				"gps", app.Config.GPSEnabled, "network", app.Config.NetworkEnabled)
			platform.Notifier.Notify(ctx, domain.LocationDisabledMessage)
		},
		// the provider notifies the denial and records it
		OnNotGranted: start,
	})
	return outcome, startErr
}

// runPollLoop reads the poll cache the way a foreground caller would.
func (app *Application) runPollLoop(ctx context.Context) {
	interval := app.Config.PollLogInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c := app.Poller.Coordinates()
			slog.Debug("cached location", "lat", c.Latitude, "lng", c.Longitude)
		}
	}
}

func (app *Application) cleanup() error {
	slog.Info("cleaning up resources")

	var errs []error
	if svc, err := app.LocationService(); err == nil {
		if err := svc.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("provider shutdown: %w", err))
		}
	}
	if app.Device != nil {
		app.Device.Close()
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	return errors.Join(errs...)
}
