package proxy

import (
	"sync"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/mcmanager/minimanager/environment"
	"github.com/mcmanager/minimanager/metrics"
)

// supervisor owns the proxy process of a backend.
type supervisor struct {
	name string

	mu   sync.Mutex
	proc *environment.Process
}

func (s *supervisor) log() *log.Entry {
	return log.WithField("proxy", s.name)
}

// ensure launches the process when there is none or the previous one exited.
// launch prepares the directory and returns how to run the process. Returns
// true when a new process was started.
func (s *supervisor) ensure(launch func() (environment.Settings, error)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		code, exited := s.proc.Poll()
		if !exited {
			return false, nil
		}
		s.log().WithField("exit_code", code).Error("proxy process exited, restarting it")
		_ = s.proc.Close()
		s.proc = nil
	}

	settings, err := launch()
	if err != nil {
		return false, err
	}
	settings.OnOutput = func(line []byte) {
		s.log().Debug(string(line))
	}
	p, err := environment.Spawn(settings)
	if err != nil {
		return false, errors.Wrapf(ErrProxyLaunchFailed, "proxy: %s", err)
	}
	s.proc = p
	metrics.ProxyLaunches.Inc()
	s.log().WithField("pid", p.Pid()).Info("launched proxy process")
	return true, nil
}

func (s *supervisor) process() *environment.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// Close kills the proxy process.
func (s *supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return nil
	}
	err := s.proc.Close()
	s.proc = nil
	return err
}
