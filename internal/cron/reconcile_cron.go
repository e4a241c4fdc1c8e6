package cron

import (
	"context"

	"emperror.dev/errors"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/metrics"
	"github.com/mcmanager/minimanager/proxy"
	"github.com/mcmanager/minimanager/server"
	"github.com/mcmanager/minimanager/system"
)

type reconcileCron struct {
	mu      *system.AtomicBool
	manager *server.Manager
	backend proxy.Backend
}

// Run executes one reconciliation tick: a watchdog sweep, making sure the
// proxy process is alive, then applying the routes derived from the servers
// that currently hold a port. A proxy that cannot be launched ends the tick
// early, it is retried on the next one.
func (rc *reconcileCron) Run(ctx context.Context) error {
	if !rc.mu.SwapIf(true) {
		return errors.WithStack(ErrCronRunning)
	}
	defer rc.mu.Store(false)

	rc.manager.Refresh()

	if err := rc.backend.EnsureRunning(ctx); err != nil {
		metrics.ReconcileErrors.WithLabelValues("ensure_running").Inc()
		return errors.WrapIf(err, "cron: failed to ensure proxy is running")
	}

	routes := proxy.Compute(rc.manager.All(), config.Get().Proxy.BackendHost)
	if err := rc.backend.Reconcile(ctx, routes); err != nil {
		metrics.ReconcileErrors.WithLabelValues("reconcile").Inc()
		return errors.WrapIf(err, "cron: failed to reconcile proxy routes")
	}
	return nil
}
