package config

import (
	"os"
	"path/filepath"

	"github.com/apex/log"
)

// SystemConfiguration defines where the daemon keeps its data and how often
// its background jobs run.
type SystemConfiguration struct {
	// The root directory where all of the daemon data is stored.
	RootDirectory string `default:"/var/lib/minimanager" json:"-" yaml:"root_directory"`

	// Directory where daemon logs are written.
	LogDirectory string `default:"/var/log/minimanager" json:"-" yaml:"log_directory"`

	// Directory holding one sub-directory per version id, each containing the
	// server artifact and any files every world of that version starts with.
	VersionsDirectory string `default:"/var/lib/minimanager/versions" json:"-" yaml:"versions_directory"`

	// Directory holding world data, laid out as <owner>/<world>.
	WorldsDirectory string `default:"/var/lib/minimanager/worlds" json:"-" yaml:"worlds_directory"`

	Timezone string `default:"UTC" json:"timezone" yaml:"timezone"`

	// Seconds between watchdog sweeps.
	WatchdogInterval int `default:"1" json:"watchdog_interval" yaml:"watchdog_interval"`

	// Seconds between writes of the world states file.
	StatesInterval int `default:"60" json:"states_interval" yaml:"states_interval"`

	// Seconds between deliveries of stored activity to the control plane, and
	// how many entries are sent at most per delivery.
	ActivitySendInterval int `default:"60" json:"activity_send_interval" yaml:"activity_send_interval"`
	ActivitySendCount    int `default:"100" json:"activity_send_count" yaml:"activity_send_count"`
}

// ConfigureDirectories creates every directory the daemon writes to.
func (sc *SystemConfiguration) ConfigureDirectories() error {
	for _, dir := range []string{sc.RootDirectory, sc.LogDirectory, sc.VersionsDirectory, sc.WorldsDirectory} {
		log.WithField("path", dir).Debug("ensuring directory exists")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// StatesPath returns the file used to persist world states between restarts.
func (sc *SystemConfiguration) StatesPath() string {
	return filepath.Join(sc.RootDirectory, "states.json")
}

// DatabasePath returns the location of the local sqlite database.
func (sc *SystemConfiguration) DatabasePath() string {
	return filepath.Join(sc.RootDirectory, "minimanager.db")
}
