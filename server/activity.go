package server

import (
	"context"
	"time"

	"github.com/mcmanager/minimanager/internal/models"
)

const ActivityPowerPrefix = "server:power."

const (
	ActivityCrash          = models.Event("server:crash")
	ActivityUpdate         = models.Event("server:update")
	ActivityRemove         = models.Event("server:remove")
	ActivityConsoleCommand = models.Event("server:console.command")
	ActivityFileWrite      = models.Event("server:file.write")
	ActivityFileDelete     = models.Event("server:file.delete")
	ActivityProperties     = models.Event("server:properties.update")
)

// RequestActivity carries the request specific metadata of every event a
// single caller triggers. Events raised by the daemon itself have no IP.
type RequestActivity struct {
	world string
	ip    string
}

// Event returns the activity for the event with the request metadata set.
func (ra RequestActivity) Event(event models.Event, metadata models.ActivityMeta) *models.Activity {
	return &models.Activity{World: ra.world, IP: ra.ip, Event: event, Metadata: metadata}
}

func (s *Server) NewRequestActivity(ip string) RequestActivity {
	return RequestActivity{world: s.ID(), ip: ip}
}

// SaveActivity stores an activity entry in a background routine. Errors are
// logged but never returned. Servers without a database drop the event.
func (s *Server) SaveActivity(a RequestActivity, event models.Event, metadata models.ActivityMeta) {
	if s.db == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
		defer cancel()
		if tx := s.db.WithContext(ctx).Create(a.Event(event, metadata)); tx.Error != nil {
			s.Log().WithField("error", tx.Error).WithField("event", event).Error("activity: failed to save event")
		}
	}()
}
