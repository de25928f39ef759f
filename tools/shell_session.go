package tools

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The sentinel is assembled at runtime so a command that happens to print
// this source file cannot terminate its own read early.
var shellSentinel = "<<" + "exit" + ">>"

// shellReadyMarker is emitted by the init line. The quote split keeps the
// echoed command (echo is still on at that point) from matching.
const shellReadyMarker = "__ready__"

const shellInitLine = "stty -echo; export PS1= PS2=; echo __'ready'__\n"

// ShellSession is a persistent bash process on a pty. Commands submitted to
// the same session share working directory, environment, and shell state.
// A timed-out or interrupted command leaves the process in an unknowable
// state, so the session terminates it and the next Submit starts fresh.
type ShellSession struct {
	proc *ptyProcess
}

// NewShellSession creates a session without starting the shell; the process
// is launched lazily on first Submit.
func NewShellSession() *ShellSession {
	return &ShellSession{}
}

// Alive reports whether the underlying shell process is currently running.
func (s *ShellSession) Alive() bool {
	return s.proc != nil
}

// Start launches bash on a fresh pty. Echo is disabled and the prompt
// cleared so submitted commands come back as pure output. Start on a live
// session is a no-op.
func (s *ShellSession) Start() error {
	if s.proc != nil {
		return nil
	}
	proc, err := startPty("/bin/bash", "--noprofile", "--norc")
	if err != nil {
		return err
	}
	if err := proc.write([]byte(shellInitLine)); err != nil {
		proc.Close()
		return &StartupError{Op: "shell init", Err: err}
	}
	_, _, outcome, rerr := proc.readUntil([]byte(shellReadyMarker), 5*time.Second, nil)
	if outcome != waitFound {
		proc.Close()
		if rerr == nil {
			rerr = fmt.Errorf("shell did not become ready")
		}
		return &StartupError{Op: "shell init", Err: rerr}
	}
	proc.drainQuiet(500 * time.Millisecond)
	s.proc = proc
	return nil
}

// Submit runs one command and collects its output until the shell reports
// completion, the timeout elapses, or the interrupt fires. In the latter two
// cases the partial output read so far is returned, the process is killed,
// and the session resets. The returned error reports session-level failures
// only; a failing command is a completed submit with a non-zero exit code.
func (s *ShellSession) Submit(command string, timeout time.Duration, interrupt func() bool) (output string, exitCode int, outcome Outcome, err error) {
	if err := s.Start(); err != nil {
		return "", 0, OutcomeCompleted, err
	}

	full := fmt.Sprintf("%s; echo \"%s$?\"\n", command, shellSentinel)
	if werr := s.proc.write([]byte(full)); werr != nil {
		s.reset()
		return "", 0, OutcomeCompleted, fmt.Errorf("shell session write: %w", werr)
	}

	buf, idx, w, rerr := s.proc.readUntil([]byte(shellSentinel), timeout, interrupt)
	switch w {
	case waitFound:
		buf = s.awaitExitLine(buf, idx)
		code, perr := parseExitCode(buf[idx+len(shellSentinel):])
		if perr != nil {
			s.reset()
			return normalizeOutput(buf[:idx]), 0, OutcomeCompleted, perr
		}
		return normalizeOutput(buf[:idx]), code, OutcomeCompleted, nil
	case waitTimedOut:
		s.reset()
		return normalizeOutput(buf), 0, OutcomeTimedOut, nil
	case waitInterrupted:
		s.reset()
		return normalizeOutput(buf), 0, OutcomeInterrupted, nil
	default:
		s.reset()
		return normalizeOutput(buf), 0, OutcomeCompleted, fmt.Errorf("shell session ended unexpectedly: %w", rerr)
	}
}

// awaitExitLine keeps reading briefly until the newline closing the exit
// status line has arrived, since the sentinel and the status can land in
// separate reads.
func (s *ShellSession) awaitExitLine(buf []byte, idx int) []byte {
	deadline := time.Now().Add(2 * time.Second)
	for !bytes.Contains(buf[idx+len(shellSentinel):], []byte("\n")) && time.Now().Before(deadline) {
		chunk, err := s.proc.readChunk()
		if err != nil {
			break
		}
		buf = append(buf, chunk...)
	}
	return buf
}

// Close terminates the shell and releases its pty. Safe to call repeatedly.
func (s *ShellSession) Close() error {
	if s.proc == nil {
		return nil
	}
	err := s.proc.Close()
	s.proc = nil
	return err
}

func (s *ShellSession) reset() {
	if s.proc != nil {
		s.proc.Close()
		s.proc = nil
	}
}

func parseExitCode(tail []byte) (int, error) {
	line := string(tail)
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	code, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("unparseable exit status %q", line)
	}
	return code, nil
}

// normalizeOutput converts pty line endings back to plain newlines and trims
// the trailing newline the final echo leaves behind.
func normalizeOutput(buf []byte) string {
	out := strings.ReplaceAll(string(buf), "\r\n", "\n")
	return strings.TrimSuffix(out, "\n")
}
