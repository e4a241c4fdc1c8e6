package config

const (
	ProxyInfrarust = "infrarust"
	ProxyVelocity  = "velocity"
	ProxyNone      = "none"
)

// ProxyConfiguration defines the reverse proxy that routes public hostnames
// to the ports of running worlds.
type ProxyConfiguration struct {
	// One of "infrarust", "velocity" or "none".
	Type string `default:"infrarust" json:"type" yaml:"type"`

	// Public domain that world hostnames are prefixed to, for example
	// "play.example.com" gives "<world>.play.example.com".
	Hostname string `default:"localhost" json:"hostname" yaml:"hostname"`

	// Port the proxy listens on. It is never handed out to a world even if it
	// falls inside the world port range.
	Port int `default:"25565" json:"port" yaml:"port"`

	// Address the proxy uses to reach worlds.
	BackendHost string `default:"127.0.0.1" json:"backend_host" yaml:"backend_host"`

	// Directory holding the proxy executable and its configuration.
	Directory string `default:"/var/lib/minimanager/proxy" json:"directory" yaml:"directory"`

	// Executable inside Directory. For velocity this is the jar launched with
	// "java -jar".
	Executable string `default:"infrarust" json:"executable" yaml:"executable"`

	// Command used to launch velocity. %jar% is replaced with the path of the
	// executable. Unused for infrarust, which is run directly.
	LaunchCommand string `default:"java -jar %jar%" json:"launch_command" yaml:"launch_command"`

	// Shared secret for modern player info forwarding. When set it is written
	// to forwarding.secret in every world directory before the world starts.
	ForwardingSecret string `json:"-" yaml:"forwarding_secret"`

	// Seconds between reconciliation ticks.
	ReconcileInterval int `default:"60" json:"reconcile_interval" yaml:"reconcile_interval"`
}
