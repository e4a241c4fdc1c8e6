package proxy

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"emperror.dev/errors"
	"gopkg.in/yaml.v3"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/environment"
	"github.com/mcmanager/minimanager/metrics"
)

const infrarustRouteDir = "proxies"

// Infrarust drives an infrarust process that watches a directory with one
// route file per hostname. Routes are applied by adding, replacing and
// deleting those files, infrarust picks them up without a reload.
type Infrarust struct {
	supervisor

	dir        string
	executable string
	domain     string
	bind       string

	mu      sync.Mutex
	applied Routes
}

var _ Backend = (*Infrarust)(nil)

func NewInfrarust(cfg config.ProxyConfiguration) *Infrarust {
	return &Infrarust{
		supervisor: supervisor{name: config.ProxyInfrarust},
		dir:        cfg.Directory,
		executable: cfg.Executable,
		domain:     cfg.Hostname,
		bind:       net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)),
	}
}

func (i *Infrarust) Name() string {
	return config.ProxyInfrarust
}

type infrarustConfig struct {
	Bind         string `yaml:"bind"`
	FileProvider struct {
		ProxiesPath []string `yaml:"proxies_path"`
		FileType    string   `yaml:"file_type"`
		Watch       bool     `yaml:"watch"`
	} `yaml:"file_provider"`
}

type infrarustRoute struct {
	Domains   []string `yaml:"domains"`
	Addresses []string `yaml:"addresses"`
}

func (i *Infrarust) EnsureRunning(_ context.Context) error {
	_, err := i.ensure(i.prepare)
	return err
}

// prepare makes sure the executable exists, writes a default config.yaml if
// there is none and loads the routes already on disk as the applied snapshot.
func (i *Infrarust) prepare() (environment.Settings, error) {
	executable := filepath.Join(i.dir, i.executable)
	if _, err := os.Stat(executable); err != nil {
		return environment.Settings{}, errors.Wrapf(ErrProxyLaunchFailed, "proxy: infrarust executable %s not found", executable)
	}
	if err := os.MkdirAll(filepath.Join(i.dir, infrarustRouteDir), 0o755); err != nil {
		return environment.Settings{}, errors.WithStack(err)
	}

	cfgPath := filepath.Join(i.dir, "config.yaml")
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		var c infrarustConfig
		c.Bind = i.bind
		c.FileProvider.ProxiesPath = []string{"./" + infrarustRouteDir}
		c.FileProvider.FileType = "yaml"
		c.FileProvider.Watch = true
		b, err := yaml.Marshal(&c)
		if err != nil {
			return environment.Settings{}, errors.WithStack(err)
		}
		i.log().WithField("path", cfgPath).Info("writing default infrarust configuration")
		if err := os.WriteFile(cfgPath, b, 0o644); err != nil {
			return environment.Settings{}, errors.WithStack(err)
		}
	}

	routes, err := i.readRoutes()
	if err != nil {
		return environment.Settings{}, err
	}
	i.mu.Lock()
	i.applied = routes
	i.mu.Unlock()

	return environment.Settings{Dir: i.dir, Args: []string{executable}}, nil
}

// readRoutes loads every route file in the proxies directory.
func (i *Infrarust) readRoutes() (Routes, error) {
	entries, err := os.ReadDir(filepath.Join(i.dir, infrarustRouteDir))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	routes := make(Routes, len(entries))
	for _, e := range entries {
		host, ok := strings.CutSuffix(e.Name(), ".yml")
		if !ok || e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(i.dir, infrarustRouteDir, e.Name()))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		var r infrarustRoute
		if err := yaml.Unmarshal(b, &r); err != nil || len(r.Addresses) == 0 {
			i.log().WithField("file", e.Name()).Warn("ignoring unreadable route file")
			continue
		}
		routes[host] = r.Addresses[0]
	}
	return routes, nil
}

func (i *Infrarust) Reconcile(_ context.Context, routes Routes) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.applied == nil {
		// Not launched yet, start from whatever is on disk.
		current, err := i.readRoutes()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		i.applied = current
	}
	if i.applied.Equal(routes) {
		return nil
	}

	for _, host := range routes.Hosts() {
		addr := routes[host]
		if cur, ok := i.applied[host]; ok && cur == addr {
			continue
		}
		if err := i.writeRoute(host, addr); err != nil {
			return err
		}
		i.log().WithField("hostname", host).WithField("address", addr).Debug("wrote route")
	}
	for _, host := range i.applied.Hosts() {
		if _, ok := routes[host]; ok {
			continue
		}
		if err := os.Remove(i.routePath(host)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.WithStack(err)
		}
		i.log().WithField("hostname", host).Debug("removed route")
	}

	i.applied = routes.Clone()
	metrics.ProxyRoutes.Set(float64(len(routes)))
	metrics.ProxyReloads.Inc()
	i.log().WithField("routes", len(routes)).Info("applied proxy routes")
	return nil
}

func (i *Infrarust) routePath(host string) string {
	return filepath.Join(i.dir, infrarustRouteDir, host+".yml")
}

func (i *Infrarust) writeRoute(host, addr string) error {
	b, err := yaml.Marshal(&infrarustRoute{
		Domains:   []string{fmt.Sprintf("%s.%s", host, i.domain)},
		Addresses: []string{addr},
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Join(i.dir, infrarustRouteDir), 0o755); err != nil {
		return errors.WithStack(err)
	}
	// Written under a temporary name so the watcher never reads half a file.
	tmp := i.routePath(host) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, i.routePath(host)))
}

func (i *Infrarust) Applied() Routes {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.applied.Clone()
}
