package server

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/gammazero/workerpool"
	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/internal/models"
	"github.com/mcmanager/minimanager/metrics"
	"github.com/mcmanager/minimanager/ports"
	"github.com/mcmanager/minimanager/remote"
)

// Manager is the registry of every server on this node, keyed by world id.
// Its lock only guards the map and is never held while a server does work.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*Server

	client remote.Client
	ports  *ports.Allocator
	db     *gorm.DB
}

// NewManager returns an empty registry. Servers created through it take their
// ports from alloc and store activity in db, which may be nil.
func NewManager(client remote.Client, alloc *ports.Allocator, db *gorm.DB) *Manager {
	return &Manager{
		servers: make(map[string]*Server),
		client:  client,
		ports:   alloc,
		db:      db,
	}
}

// Client returns the control plane client.
func (m *Manager) Client() remote.Client {
	return m.client
}

// Ports returns the allocator shared by every server of the manager.
func (m *Manager) Ports() *ports.Allocator {
	return m.ports
}

// Len returns the count of servers stored in the manager instance.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.servers)
}

// Keys returns the ids of every server, sorted.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.servers))
	for k := range m.servers {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// All returns a point in time copy of every server, ordered by id.
func (m *Manager) All() []*Server {
	m.mu.RLock()
	out := make([]*Server, 0, len(m.servers))
	for _, s := range m.servers {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Get returns a single server instance and a boolean value indicating if it
// was found.
func (m *Manager) Get(id string) (*Server, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.servers[id]
	return s, ok
}

// GetOrCreate returns the server for id, constructing and inserting it with
// factory if it does not exist yet. The check and the insert happen under one
// lock so concurrent callers always get the same instance. The factory must
// not block.
func (m *Manager) GetOrCreate(id string, factory func() (*Server, error)) (*Server, error) {
	if s, ok := m.Get(id); ok {
		return s, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.servers[id]; ok {
		return s, nil
	}
	s, err := factory()
	if err != nil {
		return nil, err
	}
	m.servers[id] = s
	return s, nil
}

// Add returns the server for the world, creating a stopped one if none
// exists. An existing server keeps its current world, use Sync or Update to
// change it.
func (m *Manager) Add(w remote.World) (*Server, error) {
	return m.GetOrCreate(w.ID, func() (*Server, error) {
		return New(w, m.ports, WithDatabase(m.db))
	})
}

// Remove deletes a stopped server from the registry together with its world
// directory. Running servers are refused with ErrServerIsRunning. Handles to
// the server that callers still hold can no longer start it.
func (m *Manager) Remove(ctx context.Context, id string) error {
	s, ok := m.Get(id)
	if !ok {
		return errors.WithStack(ErrNotFound)
	}
	return s.exclusive(ctx, func() error {
		s.refresh()
		if s.process() != nil {
			return errors.WithStack(ErrServerIsRunning)
		}
		s.mu.Lock()
		s.removed = true
		s.mu.Unlock()
		m.mu.Lock()
		delete(m.servers, id)
		m.mu.Unlock()

		s.SaveActivity(s.NewRequestActivity(""), ActivityRemove, nil)
		metrics.DeleteWorld(id)
		s.Log().Info("removing world directory")
		return errors.WithStack(os.RemoveAll(s.Filesystem().Path()))
	})
}

// Refresh runs one watchdog sweep: every server is polled for an exit and
// ports of exited processes are reclaimed. It never blocks on a busy server
// and never starts or stops anything. Returns how many exits were reclaimed.
func (m *Manager) Refresh() int {
	n := 0
	for _, s := range m.All() {
		if s.Refresh() {
			n++
		}
	}
	metrics.PortsAllocated.Set(float64(len(m.ports.Taken())))
	return n
}

// Boot registers every enabled world the control plane knows about and starts
// them in parallel. Failures are logged per world.
func (m *Manager) Boot(ctx context.Context) error {
	log.Info("fetching list of worlds from control plane")
	worlds, err := m.client.GetEnabledWorlds(ctx, config.Get().Remote.BootWorldsPerPage)
	if err != nil {
		return errors.WrapIf(err, "server: failed to retrieve worlds from control plane")
	}
	log.WithField("total_worlds", len(worlds)).Debug("starting enabled worlds")

	states, err := m.ReadStates()
	if err != nil {
		log.WithField("error", err).Warn("failed to read world states file")
	}

	pool := workerpool.New(runtime.NumCPU())
	for _, w := range worlds {
		w := w
		s, err := m.Add(w)
		if err != nil {
			log.WithField("world", w.ID).WithField("error", err).Error("failed to register world")
			continue
		}
		if st, ok := states[w.ID]; ok && !st.IsRunning() {
			s.Log().WithField("previous_state", st.String()).Debug("world was not running before the last shutdown")
		}
		pool.Submit(func() {
			if err := s.Sync(ctx, w); err != nil {
				s.Log().WithField("error", err).Error("failed to start world on boot")
			}
		})
	}
	pool.StopWait()
	return nil
}

// StopAll stops every running server in parallel and waits for them.
func (m *Manager) StopAll(ctx context.Context) {
	pool := workerpool.New(runtime.NumCPU())
	for _, s := range m.All() {
		s := s
		if !s.IsRunning() {
			continue
		}
		pool.Submit(func() {
			if err := s.Stop(ctx); err != nil {
				s.Log().WithField("error", err).Error("failed to stop world")
			}
		})
	}
	pool.StopWait()
}

// Close kills every remaining process without waiting for a graceful stop.
func (m *Manager) Close() {
	for _, s := range m.All() {
		if p := s.process(); p != nil {
			_ = p.Close()
		}
	}
}

type storedState struct {
	Running  bool `json:"running"`
	ExitCode int  `json:"exit_code"`
}

// PersistStates writes the status of every server to the states file.
func (m *Manager) PersistStates() error {
	states := make(map[string]storedState, m.Len())
	for _, s := range m.All() {
		st := s.Status()
		states[s.ID()] = storedState{Running: st.IsRunning(), ExitCode: st.ExitCode()}
	}
	data, err := json.Marshal(states)
	if err != nil {
		return errors.WithStack(err)
	}
	path := config.Get().System.StatesPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.WithStack(err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, path))
}

// ReadStates returns the statuses saved by the last PersistStates. A missing
// file yields an empty map.
func (m *Manager) ReadStates() (map[string]Status, error) {
	out := make(map[string]Status)
	b, err := os.ReadFile(config.Get().System.StatesPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return out, errors.WithStack(err)
	}
	var states map[string]storedState
	if err := json.Unmarshal(b, &states); err != nil {
		return out, errors.WithStack(err)
	}
	for id, st := range states {
		if st.Running {
			out[id] = Running
		} else {
			out[id] = Exited(st.ExitCode)
		}
	}
	return out, nil
}

// RecentActivity returns the newest activity entries of a world that are
// still waiting to be sent to the control plane.
func (m *Manager) RecentActivity(ctx context.Context, id string, limit int) ([]models.Activity, error) {
	if m.db == nil {
		return nil, nil
	}
	var out []models.Activity
	tx := m.db.WithContext(ctx).Where("world = ?", id).Order("timestamp DESC").Limit(limit).Find(&out)
	return out, errors.WithStack(tx.Error)
}

