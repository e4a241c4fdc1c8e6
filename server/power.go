package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/environment"
	"github.com/mcmanager/minimanager/internal/models"
	"github.com/mcmanager/minimanager/metrics"
	"github.com/mcmanager/minimanager/remote"
	"github.com/mcmanager/minimanager/system"
)

type PowerAction string

// The power actions that can be performed for a given server. Every action
// except kill waits for the server's lock, so sending two "start" actions
// back to back processes the second only once the first has finished.
const (
	PowerActionStart     = "start"
	PowerActionStop      = "stop"
	PowerActionRestart   = "restart"
	PowerActionTerminate = "kill"
)

// IsValid checks if the power action being received is valid.
func (pa PowerAction) IsValid() bool {
	return pa == PowerActionStart ||
		pa == PowerActionStop ||
		pa == PowerActionTerminate ||
		pa == PowerActionRestart
}

func (pa PowerAction) IsStart() bool {
	return pa == PowerActionStart || pa == PowerActionRestart
}

// HandlePowerAction runs the action against the server. The context bounds
// how long the action waits for an operation already in progress.
func (s *Server) HandlePowerAction(ctx context.Context, action PowerAction) error {
	switch action {
	case PowerActionStart:
		return s.Start(ctx)
	case PowerActionStop:
		return s.Stop(ctx)
	case PowerActionRestart:
		return s.Restart(ctx)
	case PowerActionTerminate:
		return s.Kill()
	}
	return errors.New("server: unknown power action")
}

// exclusive runs fn while holding the server lock.
func (s *Server) exclusive(ctx context.Context, fn func() error) error {
	if err := s.locker.Do(ctx, fn); err != nil {
		if errors.Is(err, system.ErrLockerLocked) {
			return errors.WithStack(ErrIsBusy)
		}
		return err
	}
	return nil
}

// Start launches the world process. It fails with ErrMissingArtifact when the
// version has no artifact on disk, ErrAlreadyRunning when a process is
// attached and ports.ErrNoFreePorts when the port range is exhausted.
func (s *Server) Start(ctx context.Context) error {
	return s.exclusive(ctx, s.start)
}

// Stop asks the world to shut down and waits for it, killing the process if
// it does not exit in time. Stopping a server without a process is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	return s.exclusive(ctx, s.stop)
}

// Restart stops the server and starts it again.
func (s *Server) Restart(ctx context.Context) error {
	return s.exclusive(ctx, func() error {
		if err := s.stop(); err != nil {
			return err
		}
		return s.start()
	})
}

// Kill forcefully stops the process. If another operation holds the server
// lock the process is only signalled and that operation observes the exit.
func (s *Server) Kill() error {
	if err := s.locker.Acquire(); err != nil {
		if p := s.process(); p != nil {
			return p.Kill()
		}
		return nil
	}
	defer s.locker.Release()

	p := s.process()
	if p == nil {
		return nil
	}
	err := forceStop(p)
	_ = p.Close()
	s.detach(Exited(1))
	metrics.SetWorldRunning(s.ID(), false)
	s.Log().Info("killed world process")
	return err
}

// Update stops the server, replaces its world and starts it again if the new
// world is enabled. If stopping fails the update is aborted and the old world
// is kept. A failed start is not rolled back.
func (s *Server) Update(ctx context.Context, w remote.World) error {
	if err := s.checkWorld(w); err != nil {
		return err
	}
	return s.exclusive(ctx, func() error {
		if s.isRemoved() {
			return errors.WithStack(ErrNotFound)
		}
		if err := s.stop(); err != nil {
			return errors.WrapIf(err, "server: failed to stop before update")
		}
		s.setWorld(w)
		s.SaveActivity(s.NewRequestActivity(""), ActivityUpdate, models.ActivityMeta{"version_id": w.VersionID})
		if !w.Enabled {
			return nil
		}
		return s.start()
	})
}

// Sync applies a new world snapshot with as little disruption as possible. A
// running server is only restarted when its version or memory changed, or it
// is stopped when the world was disabled. An enabled server without a
// process is started.
func (s *Server) Sync(ctx context.Context, w remote.World) error {
	if err := s.checkWorld(w); err != nil {
		return err
	}
	return s.exclusive(ctx, func() error {
		if s.isRemoved() {
			return errors.WithStack(ErrNotFound)
		}
		s.refresh()
		old := s.World()
		restart := old.VersionID != w.VersionID ||
			old.AllocatedMemory != w.AllocatedMemory ||
			old.OwnerID != w.OwnerID
		if s.process() != nil && (restart || !w.Enabled) {
			if err := s.stop(); err != nil {
				return errors.WrapIf(err, "server: failed to stop before sync")
			}
		}
		if old != w {
			s.setWorld(w)
			s.SaveActivity(s.NewRequestActivity(""), ActivityUpdate, models.ActivityMeta{"version_id": w.VersionID})
		}
		if w.Enabled && s.process() == nil {
			return s.start()
		}
		return nil
	})
}

func (s *Server) checkWorld(w remote.World) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.ID != s.ID() {
		return errors.Errorf("server: cannot apply world %s to server %s", w.ID, s.ID())
	}
	return nil
}

// Refresh polls the process for an exit without blocking. If it exited the
// process handle is cleared, the exit code recorded and the port released.
// When another operation holds the server lock the poll is skipped, that
// operation owns the process until it finishes. Returns true if an exit was
// reclaimed.
func (s *Server) Refresh() bool {
	if err := s.locker.Acquire(); err != nil {
		return false
	}
	defer s.locker.Release()
	return s.refresh()
}

func (s *Server) refresh() bool {
	p := s.process()
	if p == nil {
		return false
	}
	code, exited := p.Poll()
	if !exited {
		return false
	}
	_ = p.Close()
	s.detach(Exited(code))

	id := s.ID()
	metrics.SetWorldRunning(id, false)
	metrics.WorldCrashes.WithLabelValues(id).Inc()
	s.Log().WithField("exit_code", code).Warn("world process exited without being stopped")
	s.SaveActivity(s.NewRequestActivity(""), ActivityCrash, models.ActivityMeta{"exit_code": code})
	return true
}

func (s *Server) start() error {
	if s.isRemoved() {
		return errors.WithStack(ErrNotFound)
	}
	s.refresh()

	cfg := config.Get()
	w := s.World()
	artifact := filepath.Join(cfg.System.VersionsDirectory, w.VersionID, cfg.World.Artifact)
	if st, err := os.Stat(artifact); err != nil || st.IsDir() {
		s.Log().WithField("artifact", artifact).Error("version artifact does not exist")
		return errors.WithStack(ErrMissingArtifact)
	}
	if s.process() != nil {
		return errors.WithStack(ErrAlreadyRunning)
	}

	port, err := s.ports.Allocate()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	if err := s.initialiseFiles(filepath.Dir(artifact), port); err != nil {
		s.detach(s.Status())
		return errors.WrapIf(err, "server: failed to initialise world files")
	}

	log := s.Log().WithField("port", port)
	log.Debug("starting world process")
	p, err := environment.Spawn(environment.Settings{
		Dir:  s.Filesystem().Path(),
		Args: launchArguments(cfg.World.LaunchCommand, artifact, cfg.World.MinMemory, w.AllocatedMemory),
		Env:  s.environmentVariables(port),
	})
	if err != nil {
		s.detach(Exited(1))
		return err
	}

	s.mu.Lock()
	s.proc = p
	s.status = Running
	s.mu.Unlock()
	metrics.SetWorldRunning(w.ID, true)
	log.WithField("pid", p.Pid()).Info("started world process")
	return nil
}

func (s *Server) stop() error {
	p := s.process()
	if p == nil {
		return nil
	}
	cfg := config.Get().World
	log := s.Log()

	var err error
	st := Exited(1)
	if werr := p.SendCommand(cfg.StopCommand); werr != nil {
		log.WithField("error", werr).Warn("failed to send stop command, killing world process")
		err = forceStop(p)
	} else if code, werr := p.Wait(time.Second * time.Duration(cfg.StopTimeout)); werr != nil {
		log.WithField("timeout", cfg.StopTimeout).Warn("world did not stop in time, killing world process")
		err = forceStop(p)
	} else {
		st = Exited(code)
	}

	_ = p.Close()
	s.detach(st)
	metrics.SetWorldRunning(s.ID(), false)
	if err != nil {
		log.WithField("error", err).Error("failed to stop world process")
		return err
	}
	log.WithField("status", st.String()).Info("stopped world process")
	return nil
}

// forceStop kills the process, falling back to SIGTERM if that fails.
func forceStop(p *environment.Process) error {
	if err := p.Kill(); err != nil {
		if err := p.Terminate(); err != nil {
			return errors.WithStack(ErrCannotTerminate)
		}
	}
	return nil
}

// launchArguments expands the launch command template into an argument
// list. Placeholders are replaced per argument so paths with spaces survive.
func launchArguments(command, jar string, minMemory, maxMemory int) []string {
	r := strings.NewReplacer(
		"%jar%", jar,
		"%min_mem%", fmt.Sprintf("-Xms%dM", minMemory),
		"%max_mem%", fmt.Sprintf("-Xmx%dM", maxMemory),
	)
	fields := strings.Fields(command)
	args := make([]string, 0, len(fields))
	for _, f := range fields {
		args = append(args, r.Replace(f))
	}
	return args
}

// Returns the environment variables assigned to a running world process.
func (s *Server) environmentVariables(port int) []string {
	w := s.World()
	return []string{
		fmt.Sprintf("TZ=%s", config.Get().System.Timezone),
		fmt.Sprintf("WORLD_ID=%s", w.ID),
		fmt.Sprintf("SERVER_MEMORY=%d", w.AllocatedMemory),
		fmt.Sprintf("SERVER_PORT=%d", port),
	}
}
