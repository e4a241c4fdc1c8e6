package server

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"emperror.dev/errors"
	. "github.com/franela/goblin"

	"github.com/mcmanager/minimanager/internal/models"
	"github.com/mcmanager/minimanager/remote"
)

type fakeClient struct {
	worlds []remote.World
}

func (c *fakeClient) GetEnabledWorlds(_ context.Context, _ int) ([]remote.World, error) {
	return c.worlds, nil
}

func (c *fakeClient) GetWorld(_ context.Context, id string) (remote.World, error) {
	for _, w := range c.worlds {
		if w.ID == id {
			return w, nil
		}
	}
	return remote.World{}, errors.New("not found")
}

func (c *fakeClient) SendActivityLogs(_ context.Context, _ []models.Activity) error {
	return nil
}

func world(id, version string) remote.World {
	return remote.World{ID: id, OwnerID: "owner", Name: id, VersionID: version, AllocatedMemory: 512, Enabled: true}
}

func TestManager(t *testing.T) {
	g := Goblin(t)
	ctx := context.Background()

	g.Describe("Manager", func() {
		var env *testEnv
		var m *Manager

		g.BeforeEach(func() {
			env = newTestEnv(t, 25565, 25575, 25565)
			env.version("v1", gameServer)
			m = NewManager(&fakeClient{}, env.alloc, nil)
		})

		g.AfterEach(func() {
			m.StopAll(ctx)
		})

		g.It("creates each server exactly once under concurrent access", func() {
			var calls int32
			var wg sync.WaitGroup
			results := make([]*Server, 20)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					s, err := m.GetOrCreate("w1", func() (*Server, error) {
						atomic.AddInt32(&calls, 1)
						return New(world("w1", "v1"), env.alloc)
					})
					if err != nil {
						panic(err)
					}
					results[i] = s
				}(i)
			}
			wg.Wait()

			g.Assert(atomic.LoadInt32(&calls)).Equal(int32(1))
			for _, s := range results {
				g.Assert(s == results[0]).IsTrue()
			}
			g.Assert(m.Len()).Equal(1)
		})

		g.It("does not insert when the factory fails", func() {
			_, err := m.GetOrCreate("bad", func() (*Server, error) {
				return nil, errors.New("boom")
			})
			g.Assert(err == nil).IsFalse()
			_, ok := m.Get("bad")
			g.Assert(ok).IsFalse()
		})

		g.It("lists servers as a sorted snapshot", func() {
			_, _ = m.Add(world("b", "v1"))
			_, _ = m.Add(world("a", "v1"))
			g.Assert(m.Keys()).Equal([]string{"a", "b"})

			all := m.All()
			_, _ = m.Add(world("c", "v1"))
			g.Assert(len(all)).Equal(2)
			g.Assert(all[0].ID()).Equal("a")
		})

		g.It("reclaims crashed servers on refresh", func() {
			s, _ := m.Add(world("w1", "v1"))
			other, _ := m.Add(world("w2", "v1"))
			g.Assert(s.Start(ctx)).IsNil()
			g.Assert(other.Start(ctx)).IsNil()
			g.Assert(s.SendCommand(ctx, "crash")).IsNil()

			g.Assert(waitFor(func() bool { return m.Refresh() == 1 })).IsTrue()
			g.Assert(s.Status()).Equal(Exited(3))
			g.Assert(other.Status()).Equal(Running)
			g.Assert(env.alloc.Taken()).Equal([]int{other.Port()})
		})

		g.Describe("Remove", func() {
			g.It("refuses a running server", func() {
				s, _ := m.Add(world("w1", "v1"))
				g.Assert(s.Start(ctx)).IsNil()

				err := m.Remove(ctx, "w1")
				g.Assert(errors.Is(err, ErrServerIsRunning)).IsTrue()
				_, ok := m.Get("w1")
				g.Assert(ok).IsTrue()
			})

			g.It("removes a stopped server and its directory", func() {
				s, _ := m.Add(world("w1", "v1"))
				g.Assert(s.Start(ctx)).IsNil()
				g.Assert(s.Stop(ctx)).IsNil()
				dir := s.Filesystem().Path()

				g.Assert(m.Remove(ctx, "w1")).IsNil()
				_, ok := m.Get("w1")
				g.Assert(ok).IsFalse()
				_, err := os.Stat(dir)
				g.Assert(os.IsNotExist(err)).IsTrue()
			})

			g.It("prevents held handles from starting a removed server", func() {
				_, _ = m.Add(world("w1", "v1"))
				held, _ := m.Get("w1")
				g.Assert(m.Remove(ctx, "w1")).IsNil()

				g.Assert(errors.Is(held.Start(ctx), ErrNotFound)).IsTrue()
				g.Assert(errors.Is(held.Restart(ctx), ErrNotFound)).IsTrue()
				g.Assert(errors.Is(held.Sync(ctx, world("w1", "v1")), ErrNotFound)).IsTrue()
				g.Assert(errors.Is(held.Update(ctx, world("w1", "v1")), ErrNotFound)).IsTrue()
				g.Assert(held.IsRunning()).IsFalse()
				g.Assert(held.Port()).Equal(0)
				g.Assert(env.alloc.Taken()).Equal([]int{})
				g.Assert(m.Len()).Equal(0)
			})

			g.It("returns not found for unknown ids", func() {
				g.Assert(errors.Is(m.Remove(ctx, "nope"), ErrNotFound)).IsTrue()
			})
		})

		g.It("boots every enabled world", func() {
			m = NewManager(&fakeClient{worlds: []remote.World{world("a", "v1"), world("b", "v1"), world("c", "missing")}}, env.alloc, nil)
			g.Assert(m.Boot(ctx)).IsNil()

			g.Assert(m.Len()).Equal(3)
			a, _ := m.Get("a")
			b, _ := m.Get("b")
			c, _ := m.Get("c")
			g.Assert(a.IsRunning()).IsTrue()
			g.Assert(b.IsRunning()).IsTrue()
			g.Assert(c.IsRunning()).IsFalse()
			g.Assert(a.Port() != b.Port()).IsTrue()
		})

		g.It("persists and reads states", func() {
			s, _ := m.Add(world("w1", "v1"))
			_, _ = m.Add(world("w2", "v1"))
			g.Assert(s.Start(ctx)).IsNil()

			g.Assert(m.PersistStates()).IsNil()
			states, err := m.ReadStates()
			g.Assert(err).IsNil()
			g.Assert(states["w1"]).Equal(Running)
			g.Assert(states["w2"]).Equal(Exited(0))
		})

		g.It("stops every server", func() {
			a, _ := m.Add(world("a", "v1"))
			b, _ := m.Add(world("b", "v1"))
			g.Assert(a.Start(ctx)).IsNil()
			g.Assert(b.Start(ctx)).IsNil()

			m.StopAll(ctx)
			g.Assert(a.IsRunning()).IsFalse()
			g.Assert(b.IsRunning()).IsFalse()
			g.Assert(env.alloc.Taken()).Equal([]int{})
		})
	})
}
