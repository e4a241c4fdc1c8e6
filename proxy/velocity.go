package proxy

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"emperror.dev/errors"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/environment"
	"github.com/mcmanager/minimanager/metrics"
)

//go:embed defaults/velocity_config.toml
var defaultVelocityTemplate string

const (
	VelocityTemplateFile = "velocity_config.toml"
	VelocityConfigFile   = "velocity.toml"
	velocityReload       = "velocity reload"
)

// Velocity drives a velocity process configured through one velocity.toml
// rendered from a template. Every change rewrites the whole file and asks
// the running process to reload it.
type Velocity struct {
	supervisor

	dir     string
	jar     string
	command string
	domain  string
	bind    string
	secret  string

	mu      sync.Mutex
	applied Routes
	// Set when the process was (re)launched and the rendered file may not
	// match the snapshot anymore.
	stale bool
}

var _ Backend = (*Velocity)(nil)

func NewVelocity(cfg config.ProxyConfiguration) *Velocity {
	return &Velocity{
		supervisor: supervisor{name: config.ProxyVelocity},
		dir:        cfg.Directory,
		jar:        filepath.Join(cfg.Directory, cfg.Executable),
		command:    cfg.LaunchCommand,
		domain:     cfg.Hostname,
		bind:       net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)),
		secret:     cfg.ForwardingSecret,
		stale:      true,
	}
}

func (v *Velocity) Name() string {
	return config.ProxyVelocity
}

func (v *Velocity) EnsureRunning(_ context.Context) error {
	launched, err := v.ensure(v.prepare)
	if launched {
		v.mu.Lock()
		v.stale = true
		v.mu.Unlock()
	}
	return err
}

func (v *Velocity) prepare() (environment.Settings, error) {
	if _, err := os.Stat(v.jar); err != nil {
		return environment.Settings{}, errors.Wrapf(ErrProxyLaunchFailed, "proxy: velocity jar %s not found", v.jar)
	}
	template := filepath.Join(v.dir, VelocityTemplateFile)
	if _, err := os.Stat(template); errors.Is(err, os.ErrNotExist) {
		forwarding := "NONE"
		if v.secret != "" {
			forwarding = "MODERN"
		}
		r := strings.NewReplacer("$bind", v.bind, "$forwarding", forwarding)
		v.log().WithField("path", template).Info("writing default velocity configuration template")
		if err := os.WriteFile(template, []byte(r.Replace(defaultVelocityTemplate)), 0o644); err != nil {
			return environment.Settings{}, errors.WithStack(err)
		}
	}
	if v.secret != "" {
		if err := os.WriteFile(filepath.Join(v.dir, "forwarding.secret"), []byte(v.secret), 0o600); err != nil {
			return environment.Settings{}, errors.WithStack(err)
		}
	}

	fields := strings.Fields(v.command)
	args := make([]string, 0, len(fields))
	for _, f := range fields {
		args = append(args, strings.ReplaceAll(f, "%jar%", v.jar))
	}
	return environment.Settings{Dir: v.dir, Args: args}, nil
}

func (v *Velocity) Reconcile(_ context.Context, routes Routes) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.stale && v.applied.Equal(routes) {
		return nil
	}

	p := v.process()
	if p == nil {
		return errors.WithStack(ErrProxyProcessMissing)
	}
	if err := v.render(routes); err != nil {
		return err
	}
	if err := p.SendCommand(velocityReload); err != nil {
		return errors.WrapIf(err, "proxy: failed to signal velocity")
	}

	v.applied = routes.Clone()
	v.stale = false
	metrics.ProxyRoutes.Set(float64(len(routes)))
	metrics.ProxyReloads.Inc()
	v.log().WithField("routes", len(routes)).Info("reloaded velocity with new routes")
	return nil
}

// render writes velocity.toml from the template with the routes substituted.
func (v *Velocity) render(routes Routes) error {
	template, err := os.ReadFile(filepath.Join(v.dir, VelocityTemplateFile))
	if err != nil {
		return errors.WithStack(err)
	}
	var servers, hosts bytes.Buffer
	for _, host := range routes.Hosts() {
		fmt.Fprintf(&servers, "%s = %q\n", host, routes[host])
		fmt.Fprintf(&hosts, "%q = [\n    %q\n]\n", host+"."+v.domain, host)
	}
	out := strings.NewReplacer("$servers", servers.String(), "$hosts", hosts.String()).Replace(string(template))

	path := filepath.Join(v.dir, VelocityConfigFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out), 0o644); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, path))
}

func (v *Velocity) Applied() Routes {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.applied.Clone()
}
