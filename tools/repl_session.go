package tools

import (
	"fmt"
	"strings"
	"time"
)

// replPrompt replaces sys.ps1 so completed statements are detectable in the
// output stream. Assembled at runtime for the same reason as shellSentinel.
var replPrompt = "<<" + "py-ready" + ">>"

// replInitLine disables terminal echo from inside the interpreter and
// installs the detection prompt. The prompt string is concatenated in Python
// so the echoed init line (echo is still on while it is typed) cannot match.
const replInitLine = "import sys,termios; _t=termios.tcgetattr(0); _t[3]&=~termios.ECHO; " +
	"termios.tcsetattr(0,termios.TCSANOW,_t); sys.ps1='<<'+'py-ready'+'>>'; sys.ps2=''\n"

// ReplSession is a persistent interactive Python interpreter on a pty.
// Variables, imports, and definitions persist across submits. Like
// ShellSession, a timed-out or interrupted submit kills the interpreter and
// the next Submit starts a fresh one.
type ReplSession struct {
	proc *ptyProcess

	// StartupCode runs once in every fresh interpreter, before user code.
	StartupCode string
}

// NewReplSession creates a session without starting the interpreter.
func NewReplSession(startupCode string) *ReplSession {
	return &ReplSession{StartupCode: startupCode}
}

// Alive reports whether the interpreter process is currently running.
func (s *ReplSession) Alive() bool {
	return s.proc != nil
}

// Start launches python3 in interactive mode and waits for the detection
// prompt, then runs StartupCode if configured.
func (s *ReplSession) Start() error {
	if s.proc != nil {
		return nil
	}
	proc, err := startPty("python3", "-u", "-i", "-q")
	if err != nil {
		return err
	}
	if err := proc.write([]byte(replInitLine)); err != nil {
		proc.Close()
		return &StartupError{Op: "python init", Err: err}
	}
	_, _, outcome, rerr := proc.readUntil([]byte(replPrompt), 10*time.Second, nil)
	if outcome != waitFound {
		proc.Close()
		if rerr == nil {
			rerr = fmt.Errorf("interpreter did not become ready")
		}
		return &StartupError{Op: "python init", Err: rerr}
	}
	proc.drainQuiet(300 * time.Millisecond)
	s.proc = proc

	if s.StartupCode != "" {
		if _, _, err := s.Submit(s.StartupCode, 30*time.Second, nil); err != nil {
			s.reset()
			return &StartupError{Op: "python startup code", Err: err}
		}
	}
	return nil
}

// Submit executes a block of Python code and returns everything it printed.
// Multi-line code is wrapped in an if True: block so the interactive
// interpreter treats it as a single unit. On timeout or interrupt the
// partial output is returned and the interpreter is killed.
func (s *ReplSession) Submit(code string, timeout time.Duration, interrupt func() bool) (output string, outcome Outcome, err error) {
	if err := s.Start(); err != nil {
		return "", OutcomeCompleted, err
	}

	if werr := s.proc.write([]byte(wrapReplBlock(code))); werr != nil {
		s.reset()
		return "", OutcomeCompleted, fmt.Errorf("python session write: %w", werr)
	}

	buf, idx, w, rerr := s.proc.readUntil([]byte(replPrompt), timeout, interrupt)
	switch w {
	case waitFound:
		return normalizeOutput(buf[:idx]), OutcomeCompleted, nil
	case waitTimedOut:
		s.reset()
		return normalizeOutput(buf), OutcomeTimedOut, nil
	case waitInterrupted:
		s.reset()
		return normalizeOutput(buf), OutcomeInterrupted, nil
	default:
		s.reset()
		return normalizeOutput(buf), OutcomeCompleted, fmt.Errorf("python session ended unexpectedly: %w", rerr)
	}
}

// Close terminates the interpreter and releases its pty.
func (s *ReplSession) Close() error {
	if s.proc == nil {
		return nil
	}
	err := s.proc.Close()
	s.proc = nil
	return err
}

func (s *ReplSession) reset() {
	if s.proc != nil {
		s.proc.Close()
		s.proc = nil
	}
}

// wrapReplBlock indents the code under an if True: header. Blank lines are
// dropped because a blank line ends a block at the interactive prompt; the
// trailing blank line then closes the whole wrapped block.
func wrapReplBlock(code string) string {
	lines := []string{"if True:"}
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, "    "+line)
	}
	return strings.Join(lines, "\n") + "\n\n"
}
