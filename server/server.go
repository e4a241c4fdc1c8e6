package server

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/apex/log"
	"gorm.io/gorm"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/environment"
	"github.com/mcmanager/minimanager/ports"
	"github.com/mcmanager/minimanager/remote"
	"github.com/mcmanager/minimanager/server/filesystem"
	"github.com/mcmanager/minimanager/system"
)

// Server supervises the process of a single world. Every lifecycle, console
// and file operation runs while holding the server's locker, so two
// operations on the same world never interleave.
type Server struct {
	// Guards the fields below for point in time reads. It is only held for
	// short assignments and never across blocking work.
	mu     sync.RWMutex
	world  remote.World
	status Status
	port   int
	proc   *environment.Process

	// Set once the server has been removed from its manager. A removed
	// server never spawns a process again.
	removed bool

	locker *system.Locker
	fs     *filesystem.Filesystem
	ports  *ports.Allocator
	db     *gorm.DB
}

type Option func(s *Server)

// WithDatabase stores lifecycle activity for the server in db.
func WithDatabase(db *gorm.DB) Option {
	return func(s *Server) {
		s.db = db
	}
}

// New returns a stopped server for the world. Ports for the process are
// taken from alloc. Nothing is written to disk until the server is started.
func New(w remote.World, alloc *ports.Allocator, opts ...Option) (*Server, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		world:  w,
		status: Exited(0),
		locker: system.NewLocker(),
		ports:  alloc,
		fs:     filesystem.New(WorldPath(w)),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// WorldPath returns the private working directory of the world.
func WorldPath(w remote.World) string {
	return filepath.Join(config.Get().System.WorldsDirectory, w.OwnerID, w.ID)
}

// ID returns the id of the world supervised by this server.
func (s *Server) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world.ID
}

// World returns a copy of the current world snapshot.
func (s *Server) World() remote.World {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world
}

func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Port returns the port allocated to the running process, or 0.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// IsRunning reports whether a process is attached to the server.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proc != nil
}

// Hostname returns the label the world is routed under, or an empty string
// when none can be derived.
func (s *Server) Hostname() string {
	w := s.World()
	return system.FirstNotEmpty(system.SanitizeHostname(w.Hostname), system.SanitizeHostname(w.Name))
}

// Filesystem returns the filesystem scoped to the world directory.
func (s *Server) Filesystem() *filesystem.Filesystem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fs
}

func (s *Server) Log() *log.Entry {
	return log.WithField("world", s.ID())
}

func (s *Server) process() *environment.Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proc
}

func (s *Server) setWorld(w remote.World) {
	s.mu.Lock()
	s.world = w
	if p := WorldPath(w); p != s.fs.Path() {
		s.fs = filesystem.New(p)
	}
	s.mu.Unlock()
}

// detach clears the process and port and records the new status. The port is
// returned to the allocator.
func (s *Server) isRemoved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.removed
}

func (s *Server) detach(st Status) {
	s.mu.Lock()
	port := s.port
	s.proc = nil
	s.port = 0
	s.status = st
	s.mu.Unlock()
	if port != 0 {
		s.ports.Release(port)
	}
}

// Snapshot is the JSON representation of a server used by the API and the
// states file.
type Snapshot struct {
	World    remote.World `json:"world"`
	Status   Status       `json:"status"`
	Port     int          `json:"port,omitempty"`
	Hostname string       `json:"hostname,omitempty"`
}

func (s *Server) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{World: s.world, Status: s.status, Port: s.port}
	s.mu.RUnlock()
	snap.Hostname = s.Hostname()
	return snap
}

func (s *Server) String() string {
	st := s.Status()
	return fmt.Sprintf("%s (%s)", s.ID(), st)
}
