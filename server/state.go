package server

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Status is the state of a world process: either running, or exited with
// the last observed exit code. New servers start as Exited(0).
type Status struct {
	running  bool
	exitCode int
}

// Running is the status of a server with a live process.
var Running = Status{running: true}

// Exited returns the status of a server whose process ended with code.
func Exited(code int) Status {
	return Status{exitCode: code}
}

func (st Status) IsRunning() bool {
	return st.running
}

// ExitCode returns the last exit code. It is meaningless while running.
func (st Status) ExitCode() int {
	return st.exitCode
}

func (st Status) String() string {
	if st.running {
		return "running"
	}
	return fmt.Sprintf("exited(%d)", st.exitCode)
}

func (st Status) MarshalJSON() ([]byte, error) {
	if st.running {
		return json.Marshal(map[string]interface{}{"state": "running"})
	}
	return json.Marshal(map[string]interface{}{"state": "exited", "exit_code": st.exitCode})
}
