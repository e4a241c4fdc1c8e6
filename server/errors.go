package server

import (
	"emperror.dev/errors"
)

var (
	ErrMissingArtifact = errors.Sentinel("server: version artifact does not exist")
	ErrAlreadyRunning  = errors.Sentinel("server: process is already running")
	ErrNotRunning      = errors.Sentinel("server: process is not running")
	ErrCannotTerminate = errors.Sentinel("server: process could not be killed or terminated")
	ErrServerIsRunning = errors.Sentinel("server: cannot remove a running server")
	ErrIsBusy          = errors.Sentinel("server: another operation is in progress")
	ErrNotFound        = errors.Sentinel("server: no server with that id")
)
