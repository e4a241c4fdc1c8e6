// Package environment runs and supervises the native processes backing
// managed worlds and the routing proxy. A Process owns its child for its
// whole life: output is fanned out to console subscribers, exits are
// observed without blocking, and Close guarantees the child is killed.
package environment

import (
	"emperror.dev/errors"
)

var (
	ErrWaitTimeout    = errors.Sentinel("environment: timed out waiting for process to exit")
	ErrProcessExited  = errors.Sentinel("environment: process has already exited")
	ErrMissingCommand = errors.Sentinel("environment: no command to run")
)

// Settings describe how a process is launched.
type Settings struct {
	// Working directory of the process.
	Dir string
	// Program and arguments. The program is resolved through PATH.
	Args []string
	// Additional KEY=value pairs appended to the daemon's environment.
	Env []string
	// Called for every line of output, in addition to console subscribers.
	OnOutput func(line []byte)
}
