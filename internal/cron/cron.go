package cron

import (
	"context"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/go-co-op/gocron"
	"gorm.io/gorm"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/proxy"
	"github.com/mcmanager/minimanager/server"
	"github.com/mcmanager/minimanager/system"
)

const ErrCronRunning = errors.Sentinel("cron: job already running")

var o system.AtomicBool

// Scheduler configures the background jobs of the daemon and returns the
// scheduler instance to the caller. This should only be called once per
// application lifecycle, additional calls will result in an error being
// returned. Activity is only sent when both a database and a control plane
// client are available.
func Scheduler(ctx context.Context, m *server.Manager, backend proxy.Backend, db *gorm.DB) (*gocron.Scheduler, error) {
	if !o.SwapIf(true) {
		return nil, errors.New("cron: cannot call scheduler more than once in application lifecycle")
	}
	cfg := config.Get()
	l, err := time.LoadLocation(cfg.System.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "cron: failed to parse configured system timezone")
	}

	reconcile := reconcileCron{
		mu:      system.NewAtomicBool(false),
		manager: m,
		backend: backend,
	}
	activity := activityCron{
		mu:      system.NewAtomicBool(false),
		manager: m,
		db:      db,
		max:     cfg.System.ActivitySendCount,
	}

	s := gocron.NewScheduler(l)
	_, _ = s.Tag("watchdog").Every(cfg.System.WatchdogInterval).Seconds().Do(func() {
		if n := m.Refresh(); n > 0 {
			log.WithField("cron", "watchdog").WithField("reclaimed", n).Debug("cron: reclaimed exited worlds")
		}
	})
	_, _ = s.Tag("reconcile").Every(cfg.Proxy.ReconcileInterval).Seconds().Do(func() {
		run("reconcile", reconcile.Run(ctx))
	})
	_, _ = s.Tag("states").Every(cfg.System.StatesInterval).Seconds().Do(func() {
		run("states", m.PersistStates())
	})
	if db != nil && m.Client() != nil {
		_, _ = s.Tag("activity").Every(cfg.System.ActivitySendInterval).Seconds().Do(func() {
			run("activity", activity.Run(ctx))
		})
	}

	return s, nil
}

// run logs the result of a job. Jobs never fail the scheduler, they are
// retried on their next tick.
func run(name string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrCronRunning) {
		log.WithField("cron", name).Warn("cron: process is already running, skipping...")
		return
	}
	log.WithField("cron", name).WithField("error", err).Error("cron: job failed")
}
