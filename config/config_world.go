package config

// PortRange is an inclusive range of ports.
type PortRange struct {
	Start int `default:"25565" json:"start" yaml:"start"`
	End   int `default:"25575" json:"end" yaml:"end"`
}

// Contains reports whether the port falls inside the range.
func (r PortRange) Contains(port int) bool {
	return port >= r.Start && port <= r.End
}

// WorldConfiguration controls how every managed world process is launched
// and stopped.
type WorldConfiguration struct {
	PortRange PortRange `json:"port_range" yaml:"port_range"`

	// Launch command template. %jar%, %min_mem% and %max_mem% are replaced with
	// the artifact path and the JVM heap flags.
	LaunchCommand string `default:"java %min_mem% %max_mem% -jar %jar% nogui" json:"launch_command" yaml:"launch_command"`

	// Initial heap size in MiB passed through %min_mem%.
	MinMemory int `default:"512" json:"min_memory" yaml:"min_memory"`

	// Name of the server artifact inside a version directory.
	Artifact string `default:"server.jar" json:"artifact" yaml:"artifact"`

	// Line written to a world's console to ask it to shut down.
	StopCommand string `default:"stop" json:"stop_command" yaml:"stop_command"`

	// Seconds to wait for a graceful stop before the process is killed.
	StopTimeout int `default:"60" json:"stop_timeout" yaml:"stop_timeout"`

	// Extra files patched before every start, in addition to
	// server.properties and eula.txt.
	ConfigurationFiles []ConfigurationFile `json:"configuration_files" yaml:"configuration_files"`
}

// ConfigurationFile describes a file inside a world directory that should
// have some of its values replaced before the world starts. Values may
// reference "{{server.*}}" and "{{config.*}}" placeholders.
type ConfigurationFile struct {
	File    string                         `json:"file" yaml:"file"`
	Parser  string                         `json:"parser" yaml:"parser"`
	Replace []ConfigurationFileReplacement `json:"replace" yaml:"replace"`
}

type ConfigurationFileReplacement struct {
	Match   string `json:"match" yaml:"match"`
	IfValue string `json:"if_value,omitempty" yaml:"if_value"`
	Value   string `json:"value" yaml:"value"`
}
