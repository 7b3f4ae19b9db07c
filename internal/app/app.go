// Package app orchestrates startup: load config, build dependencies, serve.
package app

import (
	"context"
	"fmt"
	"time"

	"notary/internal/config"
	"notary/internal/logger"
	"notary/internal/scheduler"
	"notary/internal/store/auditlog"
	"notary/internal/store/permstore"
	"notary/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App owns the built process and its shutdown order.
type App struct {
	cfg    *config.Config
	svc    *Service
	server *api.Server
	store  *permstore.Store
	audit  *auditlog.Store
}

// NewApp builds the application from config without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves HTTP and the retention pruner until ctx cancels.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		a.runPruner(ctx)
		return nil
	})
	logger.Infof("✓ notary listening on %s", a.server.Addr())
	return group.Wait()
}

func (a *App) runPruner(ctx context.Context) {
	interval := time.Duration(a.cfg.Permission.PruneIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(a.cfg.Permission.RetentionDays) * 24 * time.Hour
	scheduler.RunEvery(ctx, interval, func() {
		cutoff := time.Now().UTC().Add(-retention)
		if err := a.store.Prune(ctx, cutoff); err != nil {
			logger.Warnf("history prune failed: %v", err)
		}
		if err := a.audit.Prune(ctx, cutoff); err != nil {
			logger.Warnf("audit prune failed: %v", err)
		}
	})
}

// Service exposes the pipeline for test harnesses.
func (a *App) Service() *Service {
	if a == nil {
		return nil
	}
	return a.svc
}

// Close releases the stores.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
}
