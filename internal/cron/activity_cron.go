package cron

import (
	"context"

	"emperror.dev/errors"
	"gorm.io/gorm"

	"github.com/mcmanager/minimanager/internal/models"
	"github.com/mcmanager/minimanager/server"
	"github.com/mcmanager/minimanager/system"
)

type activityCron struct {
	mu      *system.AtomicBool
	manager *server.Manager
	db      *gorm.DB
	max     int
}

// Run sends the oldest stored activity to the control plane and deletes it
// from the local database once it was accepted.
func (ac *activityCron) Run(ctx context.Context) error {
	// Don't execute this cron if there is currently one running. Once this task is completed
	// go ahead and mark it as no longer running.
	if !ac.mu.SwapIf(true) {
		return errors.WithStack(ErrCronRunning)
	}
	defer ac.mu.Store(false)

	var activity []models.Activity
	tx := ac.db.WithContext(ctx).Order("timestamp").Limit(ac.max).Find(&activity)
	if tx.Error != nil {
		return errors.Wrap(tx.Error, "cron: failed to query activity logs")
	}
	if len(activity) == 0 {
		return nil
	}

	if err := ac.manager.Client().SendActivityLogs(ctx, activity); err != nil {
		return errors.WrapIf(err, "cron: failed to send activity events to control plane")
	}

	ids := make([]int, len(activity))
	for i, a := range activity {
		ids[i] = a.ID
	}
	tx = ac.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Activity{})
	return errors.WithStack(tx.Error)
}
