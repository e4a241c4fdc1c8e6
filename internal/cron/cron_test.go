package cron

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/internal/database"
	"github.com/mcmanager/minimanager/internal/models"
	"github.com/mcmanager/minimanager/ports"
	"github.com/mcmanager/minimanager/proxy"
	"github.com/mcmanager/minimanager/remote"
	"github.com/mcmanager/minimanager/server"
	"github.com/mcmanager/minimanager/system"
)

type recordingBackend struct {
	mu         sync.Mutex
	ensureErr  error
	ensured    int
	reconciled []proxy.Routes
}

func (b *recordingBackend) Name() string { return "recording" }
func (b *recordingBackend) Close() error { return nil }

func (b *recordingBackend) EnsureRunning(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensured++
	return b.ensureErr
}

func (b *recordingBackend) Reconcile(_ context.Context, routes proxy.Routes) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconciled = append(b.reconciled, routes)
	return nil
}

func (b *recordingBackend) Applied() proxy.Routes {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.reconciled) == 0 {
		return proxy.Routes{}
	}
	return b.reconciled[len(b.reconciled)-1]
}

type recordingClient struct {
	mu   sync.Mutex
	sent []models.Activity
	err  error
}

func (c *recordingClient) GetEnabledWorlds(_ context.Context, _ int) ([]remote.World, error) {
	return nil, nil
}

func (c *recordingClient) GetWorld(_ context.Context, _ string) (remote.World, error) {
	return remote.World{}, errors.New("not found")
}

func (c *recordingClient) SendActivityLogs(_ context.Context, a []models.Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, a...)
	return nil
}

func setup(t *testing.T, client remote.Client) *server.Manager {
	root := t.TempDir()
	c, err := config.NewAtPath(filepath.Join(root, "config.yml"))
	require.NoError(t, err)
	c.System.RootDirectory = root
	c.System.VersionsDirectory = filepath.Join(root, "versions")
	c.System.WorldsDirectory = filepath.Join(root, "worlds")
	c.World.LaunchCommand = "/bin/sh %jar%"
	c.World.Artifact = "server.sh"
	c.Proxy.BackendHost = "10.0.0.5"
	config.Set(c)

	dir := filepath.Join(root, "versions", "v1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	script := "while read line; do\n  [ \"$line\" = stop ] && exit 0\n  [ \"$line\" = crash ] && exit 2\ndone\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.sh"), []byte(script), 0o755))

	alloc, err := ports.New(25565, 25575, 25565)
	require.NoError(t, err)
	m := server.NewManager(client, alloc, nil)
	t.Cleanup(func() { m.StopAll(context.Background()) })
	return m
}

func addWorld(t *testing.T, m *server.Manager, id, name string) *server.Server {
	s, err := m.Add(remote.World{ID: id, OwnerID: "o", Name: name, VersionID: "v1", AllocatedMemory: 512, Enabled: true})
	require.NoError(t, err)
	return s
}

func TestReconcileCron(t *testing.T) {
	ctx := context.Background()

	t.Run("applies routes of running worlds", func(t *testing.T) {
		m := setup(t, &recordingClient{})
		lobby := addWorld(t, m, "w1", "Lobby")
		addWorld(t, m, "w2", "Stopped")
		require.NoError(t, lobby.Start(ctx))

		b := &recordingBackend{}
		rc := reconcileCron{mu: system.NewAtomicBool(false), manager: m, backend: b}
		require.NoError(t, rc.Run(ctx))

		assert.Equal(t, 1, b.ensured)
		require.Len(t, b.reconciled, 1)
		assert.Equal(t, proxy.Routes{"lobby": "10.0.0.5:25566"}, b.reconciled[0])
	})

	t.Run("drops the route of a crashed world within one tick", func(t *testing.T) {
		m := setup(t, &recordingClient{})
		s := addWorld(t, m, "w1", "Lobby")
		require.NoError(t, s.Start(ctx))
		require.NoError(t, s.SendCommand(ctx, "crash"))

		p, _, err := s.Console(1)
		require.NoError(t, err)
		select {
		case <-waitClosed(p):
		case <-time.After(time.Second * 5):
			t.Fatal("world did not exit")
		}

		b := &recordingBackend{}
		rc := reconcileCron{mu: system.NewAtomicBool(false), manager: m, backend: b}
		require.NoError(t, rc.Run(ctx))

		assert.Equal(t, server.Exited(2), s.Status())
		assert.Equal(t, proxy.Routes{}, b.reconciled[0])
		assert.Empty(t, m.Ports().Taken())
	})

	t.Run("skips reconciling when the proxy cannot be launched", func(t *testing.T) {
		m := setup(t, &recordingClient{})
		b := &recordingBackend{ensureErr: proxy.ErrProxyLaunchFailed}
		rc := reconcileCron{mu: system.NewAtomicBool(false), manager: m, backend: b}

		err := rc.Run(ctx)
		assert.ErrorIs(t, err, proxy.ErrProxyLaunchFailed)
		assert.Empty(t, b.reconciled)

		// The next tick tries again.
		b.ensureErr = nil
		assert.NoError(t, rc.Run(ctx))
		assert.Equal(t, 2, b.ensured)
		assert.Len(t, b.reconciled, 1)
	})

	t.Run("does not run twice at once", func(t *testing.T) {
		m := setup(t, &recordingClient{})
		rc := reconcileCron{mu: system.NewAtomicBool(true), manager: m, backend: &recordingBackend{}}
		assert.ErrorIs(t, rc.Run(ctx), ErrCronRunning)
	})
}

func waitClosed(ch <-chan []byte) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	return done
}

func TestActivityCron(t *testing.T) {
	ctx := context.Background()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	client := &recordingClient{}
	m := setup(t, client)
	ac := activityCron{mu: system.NewAtomicBool(false), manager: m, db: db, max: 2}

	for _, e := range []models.Event{"server:power.start", "server:crash", "server:power.stop"} {
		require.NoError(t, db.Create(&models.Activity{World: "w1", Event: e}).Error)
		time.Sleep(time.Millisecond * 5)
	}

	client.err = errors.New("unreachable")
	assert.Error(t, ac.Run(ctx))
	var count int64
	db.Model(&models.Activity{}).Count(&count)
	assert.Equal(t, int64(3), count)

	client.err = nil
	require.NoError(t, ac.Run(ctx))
	require.Len(t, client.sent, 2)
	assert.Equal(t, models.Event("server:power.start"), client.sent[0].Event)
	assert.Equal(t, models.Event("server:crash"), client.sent[1].Event)

	require.NoError(t, ac.Run(ctx))
	require.NoError(t, ac.Run(ctx))
	assert.Len(t, client.sent, 3)
	db.Model(&models.Activity{}).Count(&count)
	assert.Equal(t, int64(0), count)
}
