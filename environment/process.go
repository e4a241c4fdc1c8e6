package environment

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/mcmanager/minimanager/system"
)

// Process is a running child with piped standard streams.
type Process struct {
	cmd   *exec.Cmd
	sinks *system.SinkPool

	mu    sync.Mutex
	stdin io.WriteCloser

	done     chan struct{}
	exitCode int
}

// Spawn starts the process described by the settings. Standard output and
// standard error are merged into one line stream.
func Spawn(s Settings) (*Process, error) {
	if len(s.Args) == 0 {
		return nil, ErrMissingCommand
	}
	cmd := exec.Command(s.Args[0], s.Args[1:]...)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = time.Second * 5

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = pw.Close()
		return nil, errors.Wrap(err, "environment: failed to spawn process")
	}

	p := &Process{
		cmd:   cmd,
		sinks: system.NewSinkPool(),
		stdin: stdin,
		done:  make(chan struct{}),
	}
	go p.scan(pr, s.OnOutput)
	go p.wait(pw)
	return p, nil
}

func (p *Process) scan(r io.Reader, fn func([]byte)) {
	defer p.sinks.Destroy()
	err := system.ScanReader(r, func(line []byte) {
		if fn != nil {
			fn(line)
		}
		p.sinks.Push(line)
	})
	if err != nil {
		log.WithField("pid", p.Pid()).WithField("error", err).Warn("error while reading process output")
	}
}

func (p *Process) wait(pw *io.PipeWriter) {
	_ = p.cmd.Wait()
	code := 1
	if ps := p.cmd.ProcessState; ps != nil && ps.ExitCode() >= 0 {
		code = ps.ExitCode()
	}
	p.exitCode = code
	close(p.done)
	// Closing the writer ends the scanner, which in turn closes every console
	// subscription. By then the exit is already observable.
	_ = pw.Close()
}

// Pid returns the operating system id of the process.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Exited returns a channel that is closed once the process has exited and
// been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.done
}

// Poll returns the exit code and true if the process has exited. It never
// blocks.
func (p *Process) Poll() (int, bool) {
	select {
	case <-p.done:
		return p.exitCode, true
	default:
		return 0, false
	}
}

// Wait blocks until the process exits or the timeout elapses, in which case
// ErrWaitTimeout is returned.
func (p *Process) Wait(timeout time.Duration) (int, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.done:
		return p.exitCode, nil
	case <-t.C:
		return 0, ErrWaitTimeout
	}
}

// Write sends raw bytes to the standard input of the process.
func (p *Process) Write(b []byte) (int, error) {
	if _, exited := p.Poll(); exited {
		return 0, ErrProcessExited
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.stdin.Write(b)
	if err != nil {
		return n, errors.Wrap(err, "environment: failed to write to process input")
	}
	return n, nil
}

// SendCommand writes the line followed by a newline.
func (p *Process) SendCommand(line string) error {
	_, err := p.Write([]byte(line + "\n"))
	return err
}

// Subscribe registers a console subscriber. The channel is closed when the
// process output ends or when the returned function is called.
func (p *Process) Subscribe(size int) (<-chan []byte, func()) {
	return p.sinks.Subscribe(size)
}

// Signal delivers the signal to the process group. Signalling a process that
// has already exited is not an error.
func (p *Process) Signal(sig syscall.Signal) error {
	if _, exited := p.Poll(); exited {
		return nil
	}
	if err := signalGroup(p.cmd.Process, sig); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return errors.Wrapf(err, "environment: failed to send %s", sig)
	}
	return nil
}

// Kill forcefully stops the process.
func (p *Process) Kill() error {
	return p.Signal(syscall.SIGKILL)
}

// Terminate asks the process to stop with SIGTERM.
func (p *Process) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

// Close kills the process if it is still alive and waits briefly for it to
// be reaped. It is safe to call any number of times and is what every owner
// defers to guarantee the child never outlives it.
func (p *Process) Close() error {
	if _, exited := p.Poll(); exited {
		return nil
	}
	if err := p.Kill(); err != nil {
		return err
	}
	_, err := p.Wait(time.Second * 5)
	return err
}
