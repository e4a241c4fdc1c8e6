package models

import (
	"net"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Event string

type ActivityMeta map[string]interface{}

// Activity is a lifecycle event for a managed world. Events are kept in the
// local database until they have been delivered to the control plane.
type Activity struct {
	ID int `gorm:"primaryKey;not null" json:"-"`
	// World is the id of the world this event belongs to.
	World string `gorm:"index;not null" json:"world"`
	// Event describes what happened, for example "server:power.start".
	Event    Event        `gorm:"index;not null" json:"event"`
	Metadata ActivityMeta `gorm:"serializer:json" json:"metadata"`
	// IP of the API caller that triggered the event, empty for events raised by
	// the daemon itself.
	IP        string    `gorm:"not null" json:"ip"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

// BeforeCreate trims the port off the IP address and normalizes the timestamp
// to UTC.
func (a *Activity) BeforeCreate(_ *gorm.DB) error {
	if ip, _, err := net.SplitHostPort(strings.TrimSpace(a.IP)); err == nil {
		a.IP = ip
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	a.Timestamp = a.Timestamp.UTC()
	if a.Metadata == nil {
		a.Metadata = ActivityMeta{}
	}
	return nil
}
