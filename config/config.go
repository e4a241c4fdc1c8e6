package config

import (
	"os"
	"path/filepath"
	"sync"

	"emperror.dev/errors"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v2"
)

const DefaultLocation = "/etc/minimanager/config.yml"

var (
	mu      sync.RWMutex
	_config *Configuration
)

// Configuration is the full set of options understood by the daemon. It is
// read from a YAML file on boot; every field has a sensible default.
type Configuration struct {
	// The location from which this configuration instance was instantiated.
	path string

	// Determines if the daemon runs in debug mode. Ignored when the debug flag
	// is passed on the command line.
	Debug bool `json:"debug" yaml:"debug" default:"false"`

	Api     ApiConfiguration     `json:"api" yaml:"api"`
	System  SystemConfiguration  `json:"system" yaml:"system"`
	World   WorldConfiguration   `json:"world" yaml:"world"`
	Proxy   ProxyConfiguration   `json:"proxy" yaml:"proxy"`
	Remote  RemoteConfiguration  `json:"remote" yaml:"remote"`
	Metrics MetricsConfiguration `json:"metrics" yaml:"metrics"`
}

// ApiConfiguration defines the node-local control API.
type ApiConfiguration struct {
	Host string `default:"127.0.0.1" json:"host" yaml:"host"`
	Port int    `default:"8090" json:"port" yaml:"port"`

	// Bearer token every request must present.
	Token string `json:"-" yaml:"token"`

	// Requests per second allowed from a single address. Bursts of ten times
	// this amount are tolerated.
	RateLimit float64 `default:"20" json:"rate_limit" yaml:"rate_limit"`
}

// RemoteConfiguration points at the control plane that owns World records.
type RemoteConfiguration struct {
	// Base URL of the control plane. When empty the daemon boots with an empty
	// registry and only acts on API calls.
	Url   string `json:"url" yaml:"url"`
	Token string `json:"-" yaml:"token"`

	// Timeout in seconds for a single request.
	Timeout int `default:"30" json:"timeout" yaml:"timeout"`

	// Number of worlds requested per page when booting.
	BootWorldsPerPage int `default:"50" json:"boot_worlds_per_page" yaml:"boot_worlds_per_page"`
}

type MetricsConfiguration struct {
	Enabled bool   `default:"false" json:"enabled" yaml:"enabled"`
	Bind    string `default:"127.0.0.1:9101" json:"bind" yaml:"bind"`
}

// NewAtPath returns a new configuration with defaults applied that will be
// written to the given path.
func NewAtPath(path string) (*Configuration, error) {
	var c Configuration
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}
	c.path = path
	return &c, nil
}

// Set replaces the global configuration.
func Set(c *Configuration) {
	mu.Lock()
	_config = c
	mu.Unlock()
}

// Get returns a copy of the global configuration. Mutating the copy has no
// effect, use Update for that.
func Get() *Configuration {
	mu.RLock()
	defer mu.RUnlock()
	if _config == nil {
		c, _ := NewAtPath(DefaultLocation)
		return c
	}
	c := *_config
	c.World.ConfigurationFiles = append([]ConfigurationFile(nil), _config.World.ConfigurationFiles...)
	return &c
}

// Update runs the callback against the global configuration while holding
// the write lock.
func Update(callback func(c *Configuration)) {
	mu.Lock()
	defer mu.Unlock()
	if _config != nil {
		callback(_config)
	}
}

// Path returns the location of the configuration file in use.
func (c *Configuration) Path() string {
	return c.path
}

// FromFile reads the configuration at the given path, applies defaults and
// environment expansion, and stores it globally.
func FromFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c, err := NewAtPath(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), c); err != nil {
		return errors.Wrap(err, "config: could not parse configuration file")
	}
	if err := c.validate(); err != nil {
		return err
	}
	Set(c)
	return nil
}

// WriteToDisk writes the configuration to the path it was loaded from.
func WriteToDisk(c *Configuration) error {
	if c.path == "" {
		return errors.New("config: cannot write configuration, no path defined")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, b, 0o600)
}

func (c *Configuration) validate() error {
	r := c.World.PortRange
	if r.Start <= 0 || r.End < r.Start || r.End > 65535 {
		return errors.Errorf("config: invalid world port range %d-%d", r.Start, r.End)
	}
	switch c.Proxy.Type {
	case ProxyInfrarust, ProxyVelocity, ProxyNone:
	default:
		return errors.Errorf("config: unknown proxy type %q", c.Proxy.Type)
	}
	return nil
}
