package server

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"emperror.dev/errors"
	. "github.com/franela/goblin"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/parser"
	"github.com/mcmanager/minimanager/ports"
	"github.com/mcmanager/minimanager/remote"
)

// A stand-in for a game server: prints a ready line, echoes input and exits
// cleanly on "stop" or with code 3 on "crash".
const gameServer = `echo "Done (ready)"
while read line; do
  case "$line" in
    stop) echo "stopping"; exit 0 ;;
    crash) exit 3 ;;
    *) echo "$line" ;;
  esac
done
`

// Ignores the stop command entirely.
const stubbornServer = `while read line; do :; done
sleep 60
`

type testEnv struct {
	root  string
	alloc *ports.Allocator
}

func newTestEnv(t *testing.T, start, end int, reserved ...int) *testEnv {
	root := t.TempDir()
	c, err := config.NewAtPath(filepath.Join(root, "config.yml"))
	if err != nil {
		t.Fatal(err)
	}
	c.System.RootDirectory = root
	c.System.VersionsDirectory = filepath.Join(root, "versions")
	c.System.WorldsDirectory = filepath.Join(root, "worlds")
	c.World.LaunchCommand = "/bin/sh %jar%"
	c.World.Artifact = "server.sh"
	c.World.StopTimeout = 2
	c.World.PortRange = config.PortRange{Start: start, End: end}
	config.Set(c)

	alloc, err := ports.New(start, end, reserved...)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{root: root, alloc: alloc}
}

func (e *testEnv) version(id, script string) {
	dir := filepath.Join(e.root, "versions", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		panic(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "server.sh"), []byte(script), 0o755); err != nil {
		panic(err)
	}
}

func (e *testEnv) server(id, version string) *Server {
	s, err := New(remote.World{
		ID:              id,
		OwnerID:         "owner",
		Name:            "World " + id,
		VersionID:       version,
		AllocatedMemory: 1024,
		Enabled:         true,
	}, e.alloc)
	if err != nil {
		panic(err)
	}
	return s
}

// waitFor polls fn until it returns true or a few seconds pass.
func waitFor(fn func() bool) bool {
	for i := 0; i < 100; i++ {
		if fn() {
			return true
		}
		time.Sleep(time.Millisecond * 50)
	}
	return false
}

func TestServer(t *testing.T) {
	g := Goblin(t)
	ctx := context.Background()

	g.Describe("Server", func() {
		var env *testEnv

		g.BeforeEach(func() {
			env = newTestEnv(t, 25565, 25575, 25565)
			env.version("v1", gameServer)
		})

		g.It("starts as exited with code zero", func() {
			s := env.server("w1", "v1")
			g.Assert(s.Status()).Equal(Exited(0))
			g.Assert(s.Port()).Equal(0)
			g.Assert(s.IsRunning()).IsFalse()
		})

		g.It("refuses invalid worlds", func() {
			_, err := New(remote.World{ID: "../x", OwnerID: "o", VersionID: "v1"}, env.alloc)
			g.Assert(err == nil).IsFalse()
		})

		g.It("derives the hostname from the name when none is set", func() {
			s := env.server("w1", "v1")
			g.Assert(s.Hostname()).Equal("world-w1")
		})

		g.Describe("Start", func() {
			g.It("fails when the version artifact is missing", func() {
				s := env.server("w1", "missing")
				err := s.Start(ctx)
				g.Assert(errors.Is(err, ErrMissingArtifact)).IsTrue()
				g.Assert(s.Port()).Equal(0)
				g.Assert(env.alloc.Taken()).Equal([]int{})
			})

			g.It("releases the port when the process cannot be spawned", func() {
				c := config.Get()
				c.World.LaunchCommand = "/nonexistent/java %jar%"
				config.Set(c)

				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx) == nil).IsFalse()
				g.Assert(s.Status()).Equal(Exited(1))
				g.Assert(s.Port()).Equal(0)
				g.Assert(s.IsRunning()).IsFalse()
				g.Assert(env.alloc.Taken()).Equal([]int{})
			})

			g.It("allocates the first free port and runs the process", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()
				defer s.Stop(ctx)

				g.Assert(s.Status()).Equal(Running)
				g.Assert(s.Port()).Equal(25566)
				g.Assert(env.alloc.InUse(25566)).IsTrue()
			})

			g.It("rejects a second start", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()
				defer s.Stop(ctx)

				err := s.Start(ctx)
				g.Assert(errors.Is(err, ErrAlreadyRunning)).IsTrue()
				g.Assert(env.alloc.Taken()).Equal([]int{25566})
			})

			g.It("initialises the world files", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()
				defer s.Stop(ctx)

				dir := s.Filesystem().Path()
				b, err := os.ReadFile(filepath.Join(dir, "eula.txt"))
				g.Assert(err).IsNil()
				g.Assert(string(b)).Equal("eula=true\n")

				props, err := parser.ReadProperties(filepath.Join(dir, "server.properties"))
				g.Assert(err).IsNil()
				g.Assert(props["server-port"]).Equal("25566")
				g.Assert(props["query.port"]).Equal("25566")
				g.Assert(props["motd"]).Equal("A Minecraft Server")

				_, err = os.Stat(filepath.Join(dir, "server.sh"))
				g.Assert(err).IsNil()
			})

			g.It("keeps existing properties", func() {
				s := env.server("w1", "v1")
				dir := s.Filesystem().Path()
				g.Assert(os.MkdirAll(dir, 0o755)).IsNil()
				g.Assert(os.WriteFile(filepath.Join(dir, "server.properties"), []byte("motd=Mine\nserver-port=1\n"), 0o644)).IsNil()

				g.Assert(s.Start(ctx)).IsNil()
				defer s.Stop(ctx)

				props, err := s.Properties(ctx)
				g.Assert(err).IsNil()
				g.Assert(props["motd"]).Equal("Mine")
				g.Assert(props["server-port"]).Equal("25566")
			})

			g.It("returns NoFreePorts without leaking when the range is exhausted", func() {
				env = newTestEnv(t, 30000, 30001)
				env.version("v1", gameServer)

				servers := []*Server{env.server("a", "v1"), env.server("b", "v1"), env.server("c", "v1"), env.server("d", "v1")}
				errs := make([]error, len(servers))
				var wg sync.WaitGroup
				for i, s := range servers {
					wg.Add(1)
					go func(i int, s *Server) {
						defer wg.Done()
						errs[i] = s.Start(ctx)
					}(i, s)
				}
				wg.Wait()
				defer func() {
					for _, s := range servers {
						_ = s.Stop(ctx)
					}
				}()

				var failed int
				seen := map[int]bool{}
				for i, err := range errs {
					if err != nil {
						g.Assert(errors.Is(err, ports.ErrNoFreePorts)).IsTrue()
						g.Assert(servers[i].Port()).Equal(0)
						failed++
						continue
					}
					p := servers[i].Port()
					g.Assert(seen[p]).IsFalse()
					seen[p] = true
				}
				g.Assert(failed).Equal(2)
				g.Assert(env.alloc.Taken()).Equal([]int{30000, 30001})
			})

			g.It("expands the launch command template", func() {
				args := launchArguments("java %min_mem% %max_mem% -jar %jar% nogui", "/v/server.jar", 512, 2048)
				g.Assert(args).Equal([]string{"java", "-Xms512M", "-Xmx2048M", "-jar", "/v/server.jar", "nogui"})
			})
		})

		g.Describe("Stop", func() {
			g.It("is a no-op without a process", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Stop(ctx)).IsNil()
				g.Assert(s.Status()).Equal(Exited(0))
			})

			g.It("stops gracefully and releases the port", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()
				g.Assert(s.Stop(ctx)).IsNil()

				g.Assert(s.Status()).Equal(Exited(0))
				g.Assert(s.Port()).Equal(0)
				g.Assert(s.IsRunning()).IsFalse()
				g.Assert(env.alloc.InUse(25566)).IsFalse()
			})

			g.It("kills a process that ignores the stop command", func() {
				env.version("stubborn", stubbornServer)
				config.Update(func(c *config.Configuration) {
					c.World.StopTimeout = 1
				})
				s := env.server("w1", "stubborn")
				g.Assert(s.Start(ctx)).IsNil()
				g.Assert(s.Stop(ctx)).IsNil()

				g.Assert(s.Status()).Equal(Exited(1))
				g.Assert(s.Port()).Equal(0)
				g.Assert(env.alloc.Taken()).Equal([]int{})
			})

			g.It("kills the process when the stop command cannot be written", func() {
				env.version("closed", "exec 0<&-\nsleep 60\n")
				s := env.server("w1", "closed")
				g.Assert(s.Start(ctx)).IsNil()
				// Give the shell time to close its input.
				time.Sleep(time.Millisecond * 200)
				g.Assert(s.Stop(ctx)).IsNil()

				g.Assert(s.Status().IsRunning()).IsFalse()
				g.Assert(s.Port()).Equal(0)
				g.Assert(env.alloc.Taken()).Equal([]int{})
			})
		})

		g.Describe("Refresh", func() {
			g.It("reclaims a process that exited on its own", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()
				g.Assert(s.SendCommand(ctx, "crash")).IsNil()

				g.Assert(waitFor(s.Refresh)).IsTrue()
				g.Assert(s.Status()).Equal(Exited(3))
				g.Assert(s.Port()).Equal(0)
				g.Assert(env.alloc.Taken()).Equal([]int{})
			})

			g.It("does nothing while the process is alive", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()
				defer s.Stop(ctx)

				g.Assert(s.Refresh()).IsFalse()
				g.Assert(s.Status()).Equal(Running)
			})

			g.It("does not block while another operation holds the lock", func() {
				s := env.server("w1", "v1")
				g.Assert(s.locker.Acquire()).IsNil()
				defer s.locker.Release()

				done := make(chan bool)
				go func() { done <- s.Refresh() }()
				select {
				case v := <-done:
					g.Assert(v).IsFalse()
				case <-time.After(time.Second):
					g.Fail("refresh blocked on a locked server")
				}
			})
		})

		g.Describe("Console", func() {
			g.It("fails without a process", func() {
				s := env.server("w1", "v1")
				err := s.WriteConsole(ctx, []byte("hello\n"))
				g.Assert(errors.Is(err, ErrNotRunning)).IsTrue()
				_, _, err = s.Console(1)
				g.Assert(errors.Is(err, ErrNotRunning)).IsTrue()
			})

			g.It("streams output until the process exits", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()

				ch, cancel, err := s.Console(16)
				g.Assert(err).IsNil()
				defer cancel()

				g.Assert(s.SendCommand(ctx, "hello")).IsNil()
				var lines [][]byte
				timeout := time.After(time.Second * 5)
			loop:
				for {
					select {
					case l, ok := <-ch:
						if !ok {
							break loop
						}
						lines = append(lines, l)
						if bytes.Equal(l, []byte("hello")) {
							g.Assert(s.Stop(ctx)).IsNil()
						}
					case <-timeout:
						g.Fail("console did not close")
					}
				}
				g.Assert(bytes.Equal(lines[len(lines)-1], []byte("stopping"))).IsTrue()
			})
		})

		g.Describe("Update", func() {
			g.It("restarts on the new version", func() {
				env.version("v2", gameServer)
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()
				defer s.Stop(ctx)

				w := s.World()
				w.VersionID = "v2"
				g.Assert(s.Update(ctx, w)).IsNil()
				g.Assert(s.World().VersionID).Equal("v2")
				g.Assert(s.Status()).Equal(Running)
				g.Assert(env.alloc.Taken()).Equal([]int{s.Port()})
			})

			g.It("leaves a disabled world stopped", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()

				w := s.World()
				w.Enabled = false
				g.Assert(s.Update(ctx, w)).IsNil()
				g.Assert(s.IsRunning()).IsFalse()
				g.Assert(s.Status()).Equal(Exited(0))
			})

			g.It("refuses a world with another id", func() {
				s := env.server("w1", "v1")
				w := s.World()
				w.ID = "w2"
				g.Assert(s.Update(ctx, w) == nil).IsFalse()
			})
		})

		g.Describe("Sync", func() {
			g.It("starts an enabled world", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Sync(ctx, s.World())).IsNil()
				defer s.Stop(ctx)
				g.Assert(s.Status()).Equal(Running)
			})

			g.It("does not restart for a rename", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()
				defer s.Stop(ctx)
				pid := s.process().Pid()

				w := s.World()
				w.Name = "Renamed"
				g.Assert(s.Sync(ctx, w)).IsNil()
				g.Assert(s.process().Pid()).Equal(pid)
				g.Assert(s.Hostname()).Equal("renamed")
			})

			g.It("stops a disabled world", func() {
				s := env.server("w1", "v1")
				g.Assert(s.Start(ctx)).IsNil()
				w := s.World()
				w.Enabled = false
				g.Assert(s.Sync(ctx, w)).IsNil()
				g.Assert(s.IsRunning()).IsFalse()
			})
		})

		g.Describe("Kill", func() {
			g.It("forcefully stops the process", func() {
				env.version("stubborn", stubbornServer)
				s := env.server("w1", "stubborn")
				g.Assert(s.Start(ctx)).IsNil()
				g.Assert(s.Kill()).IsNil()
				g.Assert(s.Status()).Equal(Exited(1))
				g.Assert(env.alloc.Taken()).Equal([]int{})
			})

			g.It("reaps the process before its port is handed out again", func() {
				env.version("stubborn", stubbornServer)
				s := env.server("w1", "stubborn")
				g.Assert(s.Start(ctx)).IsNil()
				p := s.process()

				reaped := make(chan bool, 1)
				go func() {
					for len(env.alloc.Taken()) > 0 {
						time.Sleep(time.Millisecond)
					}
					_, exited := p.Poll()
					reaped <- exited
				}()

				g.Assert(s.Kill()).IsNil()
				g.Assert(<-reaped).IsTrue()
			})
		})

		g.Describe("Files", func() {
			g.It("reads, writes and removes files in the world directory", func() {
				s := env.server("w1", "v1")
				g.Assert(s.WriteFile(ctx, "config/test.txt", bytes.NewBufferString("hello"))).IsNil()

				b, err := s.ReadFile(ctx, "config/test.txt")
				g.Assert(err).IsNil()
				g.Assert(string(b)).Equal("hello")

				g.Assert(s.RemoveFile(ctx, "config/test.txt")).IsNil()
				_, err = s.ReadFile(ctx, "config/test.txt")
				g.Assert(err == nil).IsFalse()
			})

			g.It("refuses paths outside the world directory", func() {
				s := env.server("w1", "v1")
				err := s.WriteFile(ctx, "../../escape.txt", bytes.NewBufferString("x"))
				g.Assert(err == nil).IsFalse()
			})

			g.It("sets properties", func() {
				s := env.server("w1", "v1")
				g.Assert(s.SetProperties(ctx, map[string]string{"motd": "hi"})).IsNil()
				props, err := s.Properties(ctx)
				g.Assert(err).IsNil()
				g.Assert(props["motd"]).Equal("hi")
			})
		})
	})
}
