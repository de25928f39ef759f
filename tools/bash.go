package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/calebreed/agentdesk/llm"
)

const (
	defaultBashTimeout = 30 * time.Second
	maxBashTimeout     = 10 * time.Minute
)

// BashTool runs commands in a persistent shell session.
type BashTool struct {
	session        *ShellSession
	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

type bashInput struct {
	Command  string `json:"command"`
	Restart  bool   `json:"restart"`
	TimeoutS int    `json:"timeout_s"`
}

// NewBashTool creates a BashTool with its own shell session. Zero durations
// select the package defaults.
func NewBashTool(defaultTimeout, maxTimeout time.Duration) *BashTool {
	if defaultTimeout <= 0 {
		defaultTimeout = defaultBashTimeout
	}
	if maxTimeout <= 0 {
		maxTimeout = maxBashTimeout
	}
	return &BashTool{
		session:        NewShellSession(),
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
	}
}

func (t *BashTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name: "bash",
		Description: "Run a command in a persistent bash session. Working directory, " +
			"environment variables, and background jobs persist between calls. " +
			"Use restart to discard the session and start clean.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The command to run.",
				},
				"restart": map[string]any{
					"type":        "boolean",
					"description": "Discard the current session and start a fresh one.",
				},
				"timeout_s": map[string]any{
					"type":        "integer",
					"description": "Seconds to wait before giving up on the command.",
				},
			},
		},
	}
}

func (t *BashTool) Execute(ctx context.Context, inv Invocation) (Result, error) {
	var in bashInput
	if err := decodeInput(inv.Input, &in); err != nil {
		return Result{}, err
	}

	if in.Restart {
		t.session.Close()
		return Result{
			Status:   StatusOK,
			Segments: []Segment{TextSegment("Shell session restarted.")},
		}, nil
	}
	if in.Command == "" {
		return Result{}, fmt.Errorf("bash: command is required")
	}

	timeout := t.clampTimeout(in.TimeoutS)
	output, exitCode, outcome, err := t.session.Submit(in.Command, timeout, inv.Interrupt)
	if err != nil {
		segs := []Segment{}
		if output != "" {
			segs = append(segs, TextSegment(truncateFor("bash", output)))
		}
		segs = append(segs, TextSegment(err.Error()))
		return Result{Status: StatusError, Segments: segs}, nil
	}

	var segs []Segment
	if output != "" {
		segs = append(segs, TextSegment(truncateFor("bash", output)))
	}

	switch outcome {
	case OutcomeTimedOut:
		segs = append(segs, TextSegment(fmt.Sprintf(
			"Command timed out after %s. The process was killed and the shell session restarted.", timeout)))
		return Result{Status: StatusTimedOut, Segments: segs}, nil
	case OutcomeInterrupted:
		segs = append(segs, TextSegment(
			"Command interrupted by the user. The process was killed and the shell session restarted."))
		return Result{Status: StatusInterrupted, Segments: segs}, nil
	}

	if exitCode != 0 {
		segs = append(segs, TextSegment(fmt.Sprintf("Exit code: %d", exitCode)))
	}
	return Result{Status: StatusOK, Segments: segs}, nil
}

func (t *BashTool) clampTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return t.defaultTimeout
	}
	d := time.Duration(seconds) * time.Second
	if d > t.maxTimeout {
		return t.maxTimeout
	}
	return d
}

func (t *BashTool) Cleanup() error {
	return t.session.Close()
}
