package proxy

import (
	"net"
	"sort"
	"strconv"

	"github.com/apex/log"
)

// Routes maps a hostname label to the "host:port" address serving it.
type Routes map[string]string

// Equal reports whether both sets contain the same routes. Order never
// matters and a nil set equals an empty one.
func (r Routes) Equal(o Routes) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (r Routes) Clone() Routes {
	out := make(Routes, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Hosts returns the hostnames in ascending order.
func (r Routes) Hosts() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Target is anything that can be routed to.
type Target interface {
	ID() string
	Hostname() string
	Port() int
}

// Compute derives the routes for every target that has both a port and a
// hostname. When two targets claim the same hostname the first one wins, so
// callers should pass targets in a stable order.
func Compute[T Target](targets []T, backendHost string) Routes {
	routes := make(Routes, len(targets))
	owners := make(map[string]string, len(targets))
	for _, t := range targets {
		port := t.Port()
		host := t.Hostname()
		if port <= 0 || host == "" {
			continue
		}
		if owner, ok := owners[host]; ok {
			log.WithFields(log.Fields{"hostname": host, "world": t.ID(), "owner": owner}).
				Warn("hostname is already routed to another world, skipping")
			continue
		}
		owners[host] = t.ID()
		routes[host] = net.JoinHostPort(backendHost, strconv.Itoa(port))
	}
	return routes
}
