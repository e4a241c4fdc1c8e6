// Package proxy keeps a reverse proxy in front of the managed worlds so that
// every public hostname resolves to the address currently serving its world.
// A Backend owns the proxy process and the configuration it reads. It is
// driven by a single reconciliation loop and never touched by anything else.
package proxy

import (
	"context"

	"emperror.dev/errors"

	"github.com/mcmanager/minimanager/config"
)

var (
	ErrProxyProcessMissing = errors.Sentinel("proxy: no proxy process to signal")
	ErrProxyLaunchFailed   = errors.Sentinel("proxy: failed to launch proxy")
)

// Backend is a reverse proxy implementation.
type Backend interface {
	Name() string
	// EnsureRunning launches the proxy process if it is absent or has exited.
	EnsureRunning(ctx context.Context) error
	// Reconcile makes the proxy serve exactly the given routes. Nothing is
	// written when they equal the last applied snapshot.
	Reconcile(ctx context.Context, routes Routes) error
	// Applied returns a copy of the last applied snapshot.
	Applied() Routes
	// Close stops the proxy process.
	Close() error
}

// New returns the backend selected by the configuration.
func New(cfg config.ProxyConfiguration) (Backend, error) {
	switch cfg.Type {
	case config.ProxyInfrarust:
		return NewInfrarust(cfg), nil
	case config.ProxyVelocity:
		return NewVelocity(cfg), nil
	case config.ProxyNone:
		return &None{}, nil
	}
	return nil, errors.Errorf("proxy: unknown proxy type %q", cfg.Type)
}

// None is used when routing is handled outside of the daemon. It only keeps
// the snapshot so the API can report it.
type None struct {
	applied Routes
}

var _ Backend = (*None)(nil)

func (n *None) Name() string                         { return config.ProxyNone }
func (n *None) EnsureRunning(_ context.Context) error { return nil }
func (n *None) Close() error                         { return nil }
func (n *None) Applied() Routes                      { return n.applied.Clone() }

func (n *None) Reconcile(_ context.Context, routes Routes) error {
	n.applied = routes.Clone()
	return nil
}
