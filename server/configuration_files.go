package server

import (
	"bytes"
	_ "embed"
	"os"
	"path/filepath"
	"strconv"

	"emperror.dev/errors"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/parser"
	"github.com/mcmanager/minimanager/server/filesystem"
)

//go:embed defaults/server.properties
var defaultProperties []byte

const (
	PropertiesFile = "server.properties"
	EulaFile       = "eula.txt"
	SecretFile     = "forwarding.secret"
)

// initialiseFiles prepares the world directory for a start on the given port.
// Files from the version directory are copied in without replacing anything
// the world already has, server.properties is pinned to the port and the
// EULA is accepted. Configured configuration files are patched last.
func (s *Server) initialiseFiles(versionDir string, port int) error {
	fs := s.Filesystem()
	log := s.Log().WithField("path", fs.Path())

	log.WithField("version_dir", versionDir).Debug("copying version files into world directory")
	if err := fs.CopyFrom(versionDir); err != nil {
		return err
	}

	if _, err := fs.Stat(PropertiesFile); err != nil {
		if !filesystem.IsNotExist(err) {
			return err
		}
		log.Debug("writing default server.properties")
		if err := fs.Writefile(PropertiesFile, bytes.NewReader(defaultProperties)); err != nil {
			return err
		}
	}

	p := strconv.Itoa(port)
	if err := s.setProperties(map[string]string{"server-port": p, "query.port": p}); err != nil {
		return err
	}

	log.Debug("writing eula.txt")
	if err := fs.Writefile(EulaFile, bytes.NewBufferString("eula=true\n")); err != nil {
		return err
	}

	if secret := config.Get().Proxy.ForwardingSecret; secret != "" {
		if err := fs.Writefile(SecretFile, bytes.NewBufferString(secret)); err != nil {
			return err
		}
	}

	return s.parseConfigurationFiles(port)
}

// parseConfigurationFiles applies the configured file replacements. Values
// may reference "{{server.port}}", "{{server.memory}}" and friends, as well
// as "{{config.*}}" for the daemon configuration.
func (s *Server) parseConfigurationFiles(port int) error {
	cfg := config.Get()
	if len(cfg.World.ConfigurationFiles) == 0 {
		return nil
	}
	w := s.World()
	vars, err := parser.NewVariables(map[string]interface{}{
		"server": map[string]interface{}{
			"id":       w.ID,
			"owner_id": w.OwnerID,
			"name":     w.Name,
			"hostname": s.Hostname(),
			"version":  w.VersionID,
			"memory":   w.AllocatedMemory,
			"port":     port,
		},
		"config": cfg,
	})
	if err != nil {
		return err
	}

	fs := s.Filesystem()
	for _, f := range cfg.World.ConfigurationFiles {
		path, err := fs.SafePath(f.File)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.WithStack(err)
		}
		pf := parser.ConfigurationFile{FileName: f.File, Parser: parser.Parser(f.Parser)}
		for _, r := range f.Replace {
			pf.Replace = append(pf.Replace, parser.Replacement{Match: r.Match, IfValue: r.IfValue, Value: r.Value})
		}
		if err := pf.Parse(path, vars); err != nil {
			return errors.WrapIf(err, "server: failed to parse "+f.File)
		}
	}
	return nil
}
