package server

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"emperror.dev/errors"

	"github.com/mcmanager/minimanager/parser"
)

// ReadFile returns the contents of a file inside the world directory.
func (s *Server) ReadFile(ctx context.Context, p string) ([]byte, error) {
	var buf bytes.Buffer
	err := s.exclusive(ctx, func() error {
		return s.Filesystem().Readfile(p, &buf)
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile replaces a file inside the world directory, creating any missing
// parent directories.
func (s *Server) WriteFile(ctx context.Context, p string, r io.Reader) error {
	return s.exclusive(ctx, func() error {
		return s.Filesystem().Writefile(p, r)
	})
}

// RemoveFile deletes a file or directory inside the world directory.
func (s *Server) RemoveFile(ctx context.Context, p string) error {
	return s.exclusive(ctx, func() error {
		return s.Filesystem().Delete(p)
	})
}

// Properties returns every key of the world's server.properties. A world
// that has never been started has no properties.
func (s *Server) Properties(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := s.exclusive(ctx, func() error {
		var err error
		out, err = parser.ReadProperties(filepath.Join(s.Filesystem().Path(), PropertiesFile))
		return err
	})
	return out, err
}

// SetProperties sets keys in server.properties, keeping all others. Changes
// apply on the next start of the world.
func (s *Server) SetProperties(ctx context.Context, values map[string]string) error {
	return s.exclusive(ctx, func() error {
		return s.setProperties(values)
	})
}

func (s *Server) setProperties(values map[string]string) error {
	path, err := s.Filesystem().SafePath(PropertiesFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	return parser.WriteProperties(path, values)
}
