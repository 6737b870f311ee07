package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"availwatch/internal/alerting"
	"availwatch/internal/api"
	"availwatch/internal/checker"
	"availwatch/internal/config"
	"availwatch/internal/logging"
	"availwatch/internal/monitor"
	"availwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
	Clock  clockwork.Clock
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logging.Component(logger, "app"),
		Out:    os.Stdout,
		Clock:  clockwork.NewRealClock(),
	}
}

// runtime is the wired object graph for one command.
type runtime struct {
	backend   storage.Backend
	gateway   *storage.Gateway
	checker   *checker.Checker
	escalator *alerting.Escalator
	monitor   *monitor.Monitor
}

func (r *runtime) close() {
	if r.monitor != nil {
		r.monitor.Close()
	}
	if r.escalator != nil {
		r.escalator.Wait()
	}
	if r.backend != nil {
		_ = r.backend.Close()
	}
}

func (a *App) openStore(ctx context.Context) (storage.Backend, error) {
	backend, err := storage.Open(ctx, a.Config)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", a.Config.StorageDriver(), err)
	}
	return backend, nil
}

func (a *App) newChecker() *checker.Checker {
	steam := a.Config.Steam
	source := checker.NewSteamSource(checker.SteamOptions{
		BaseURL:   steam.BaseURL,
		Country:   steam.Country,
		Language:  steam.Language,
		Timeout:   steam.RequestTimeout,
		UserAgent: steam.UserAgent,
	}, a.Logger)
	return checker.New(source, steam.AppID, a.Logger)
}

func (a *App) newEscalator() (*alerting.Escalator, error) {
	fan, err := alerting.FromConfig(a.Config.Alerting, a.Logger)
	if err != nil {
		return nil, err
	}
	cfg := a.Config.Alerting
	opts := alerting.DefaultOptions()
	if cfg.StandardSpacing > 0 {
		opts.StandardSpacing = cfg.StandardSpacing
	}
	if cfg.UrgentDeliveries > 0 {
		opts.UrgentDeliveries = cfg.UrgentDeliveries
	}
	if cfg.UrgentSpacing > 0 {
		opts.UrgentSpacing = cfg.UrgentSpacing
	}
	content := alerting.Content{
		ProductName: a.Config.Steam.ProductName,
		StoreURL:    a.Config.Steam.StoreURL,
	}
	return alerting.NewEscalator(fan, fan, opts, content, a.Clock, a.Logger), nil
}

func (a *App) monitorOptions() monitor.Options {
	m := a.Config.Monitor
	return monitor.Options{
		ContinuousThresholdMinutes: m.ContinuousThresholdMinutes,
		SuccessDelay:               m.SuccessDelay,
		FailureDelay:               m.FailureDelay,
		BackupTimers:               m.BackupTimers,
		BackupStagger:              m.BackupStagger,
		MaxAttempts:                m.MaxAttempts,
		RetryDelay:                 m.RetryDelay,
		ReconcileInterval:          m.ReconcileInterval,
		AlignScheduled:             m.AlignScheduled,
		UseAdvisoryLock:            m.UseAdvisoryLock,
		LockKey:                    a.Config.Database.LockKey,
	}
}

// build wires storage, checker, escalator and monitor.
func (a *App) build(ctx context.Context) (*runtime, error) {
	backend, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	rt := &runtime{backend: backend, gateway: storage.NewGateway(backend)}

	rt.escalator, err = a.newEscalator()
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.checker = a.newChecker()

	var probe checker.Probe
	if a.Config.Connectivity.ProbeURL != "" {
		probe = checker.NewHTTPProbe(a.Config.Connectivity.ProbeURL, a.Config.Connectivity.Timeout)
	}
	rt.monitor = monitor.New(rt.gateway, rt.checker, probe, rt.escalator, a.Clock, a.monitorOptions(), a.Logger)
	return rt, nil
}

// Run executes the long-running monitoring service and, when enabled, the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	a.Logger.Info().
		Str("storage", a.Config.StorageDriver()).
		Str("app_id", a.Config.Steam.AppID).
		Bool("api", a.Config.API.Enabled).
		Msg("starting monitoring service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.monitor.Run(gctx)
	})
	if a.Config.API.Enabled {
		handlers := api.NewHandlers(gctx, rt.gateway, rt.monitor, rt.escalator, a.Logger)
		engine := api.NewEngine(handlers, a.Logger)
		g.Go(func() error {
			return api.Serve(gctx, a.Config.API.Addr, engine, a.Logger)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}
