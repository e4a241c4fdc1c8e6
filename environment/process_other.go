//go:build !linux

package environment

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	return p.Signal(sig)
}
