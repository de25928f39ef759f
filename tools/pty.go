package tools

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// StartupError reports that the OS refused to start a session subprocess or
// allocate its pseudo-terminal. It stays distinguishable from ordinary
// command failures so descriptor exhaustion shows up as what it is.
type StartupError struct {
	Op  string
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("session startup failed (%s): %v", e.Op, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Outcome classifies how a session submit ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeTimedOut
	OutcomeInterrupted
)

// waitOutcome classifies how readUntil stopped.
type waitOutcome int

const (
	waitFound waitOutcome = iota
	waitTimedOut
	waitInterrupted
	waitEOF
)

// readPollInterval bounds how long a blocked read can delay noticing an
// interrupt or timeout.
const readPollInterval = 200 * time.Millisecond

// ptyProcess is a subprocess attached to a pseudo-terminal. The shell and
// Python sessions build on it.
type ptyProcess struct {
	cmd    *exec.Cmd
	f      *os.File // controller side of the pty
	waitCh chan struct{}
	closed bool
}

// startPty launches name with args on a fresh pty. The child becomes the
// leader of its own process group so terminate can signal descendants too.
func startPty(name string, args ...string) (*ptyProcess, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), "TERM=dumb")

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, &StartupError{Op: name, Err: err}
	}

	p := &ptyProcess{cmd: cmd, f: f, waitCh: make(chan struct{})}
	go func() {
		cmd.Wait()
		close(p.waitCh)
	}()
	return p, nil
}

func (p *ptyProcess) write(data []byte) error {
	_, err := p.f.Write(data)
	return err
}

// readChunk reads whatever is available within one poll interval. A nil
// chunk with nil error means nothing arrived in time.
func (p *ptyProcess) readChunk() ([]byte, error) {
	if err := p.f.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
		return nil, err
	}
	buf := make([]byte, 8192)
	n, err := p.f.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		// Reading the controller side fails with EIO once the child exits.
		return nil, err
	}
	return nil, nil
}

// readUntil accumulates output until marker appears, the timeout elapses,
// the interrupt fires, or the process goes away. It returns everything read
// so far along with the marker's index when found.
func (p *ptyProcess) readUntil(marker []byte, timeout time.Duration, interrupt func() bool) (buf []byte, markerAt int, outcome waitOutcome, err error) {
	deadline := time.Now().Add(timeout)
	for {
		if idx := bytes.Index(buf, marker); idx >= 0 {
			return buf, idx, waitFound, nil
		}
		if interrupt != nil && interrupt() {
			return buf, -1, waitInterrupted, nil
		}
		if time.Now().After(deadline) {
			return buf, -1, waitTimedOut, nil
		}
		chunk, rerr := p.readChunk()
		if rerr != nil {
			return buf, -1, waitEOF, rerr
		}
		buf = append(buf, chunk...)
	}
}

// drainQuiet discards buffered output until one poll interval passes with
// nothing arriving, bounded by max.
func (p *ptyProcess) drainQuiet(max time.Duration) {
	deadline := time.Now().Add(max)
	for time.Now().Before(deadline) {
		chunk, err := p.readChunk()
		if err != nil || len(chunk) == 0 {
			return
		}
	}
}

// terminate stops the subprocess and its whole process group, escalating
// from SIGTERM to SIGKILL.
func (p *ptyProcess) terminate() {
	if p.cmd.Process == nil {
		return
	}
	pid := p.cmd.Process.Pid
	syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-p.waitCh:
		return
	case <-time.After(500 * time.Millisecond):
	}
	syscall.Kill(-pid, syscall.SIGKILL)
	select {
	case <-p.waitCh:
	case <-time.After(time.Second):
	}
}

// Close terminates the process and releases the pty descriptor. The
// descriptor is closed even when the process refuses to die, so repeated
// session churn cannot leak terminals.
func (p *ptyProcess) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.terminate()
	return p.f.Close()
}
