package server

import (
	"context"

	"emperror.dev/errors"

	"github.com/mcmanager/minimanager/internal/models"
)

// WriteConsole writes raw bytes to the standard input of the world process.
func (s *Server) WriteConsole(ctx context.Context, b []byte) error {
	return s.exclusive(ctx, func() error {
		p := s.process()
		if p == nil {
			return errors.WithStack(ErrNotRunning)
		}
		_, err := p.Write(b)
		return err
	})
}

// SendCommand writes a single console command followed by a newline.
func (s *Server) SendCommand(ctx context.Context, command string) error {
	return s.WriteConsole(ctx, []byte(command+"\n"))
}

// SendCommands sends each command and records it in the activity log.
func (s *Server) SendCommands(ctx context.Context, a RequestActivity, commands []string) error {
	for _, c := range commands {
		if err := s.SendCommand(ctx, c); err != nil {
			return err
		}
		s.SaveActivity(a, ActivityConsoleCommand, models.ActivityMeta{"command": c})
	}
	return nil
}

// Console subscribes to the output of the current process. Each subscription
// only sees lines produced after it was made. The channel is closed when the
// process exits or the returned function is called.
func (s *Server) Console(size int) (<-chan []byte, func(), error) {
	p := s.process()
	if p == nil {
		return nil, nil, errors.WithStack(ErrNotRunning)
	}
	ch, cancel := p.Subscribe(size)
	return ch, cancel, nil
}
