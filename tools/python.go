package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/calebreed/agentdesk/llm"
)

const (
	defaultPythonTimeout = 30 * time.Second
	maxPythonTimeout     = 10 * time.Minute
)

// PythonTool runs code in a persistent interactive interpreter.
type PythonTool struct {
	session        *ReplSession
	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

type pythonInput struct {
	Code     string `json:"code"`
	Restart  bool   `json:"restart"`
	TimeoutS int    `json:"timeout_s"`
}

// NewPythonTool creates a PythonTool. startupCode runs once in every fresh
// interpreter before any user code, typically imports and helpers.
func NewPythonTool(startupCode string, defaultTimeout, maxTimeout time.Duration) *PythonTool {
	if defaultTimeout <= 0 {
		defaultTimeout = defaultPythonTimeout
	}
	if maxTimeout <= 0 {
		maxTimeout = maxPythonTimeout
	}
	return &PythonTool{
		session:        NewReplSession(startupCode),
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
	}
}

func (t *PythonTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name: "python",
		Description: "Run code in a persistent Python interpreter. Variables, imports, " +
			"and definitions persist between calls. Output is whatever the code " +
			"prints. Use restart to discard interpreter state.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python code to execute.",
				},
				"restart": map[string]any{
					"type":        "boolean",
					"description": "Discard the interpreter and start a fresh one.",
				},
				"timeout_s": map[string]any{
					"type":        "integer",
					"description": "Seconds to wait before giving up on the code.",
				},
			},
		},
	}
}

func (t *PythonTool) Execute(ctx context.Context, inv Invocation) (Result, error) {
	var in pythonInput
	if err := decodeInput(inv.Input, &in); err != nil {
		return Result{}, err
	}

	if in.Restart {
		t.session.Close()
		return Result{
			Status:   StatusOK,
			Segments: []Segment{TextSegment("Python interpreter restarted.")},
		}, nil
	}
	if in.Code == "" {
		return Result{}, fmt.Errorf("python: code is required")
	}

	timeout := t.clampTimeout(in.TimeoutS)
	output, outcome, err := t.session.Submit(in.Code, timeout, inv.Interrupt)
	if err != nil {
		segs := []Segment{}
		if output != "" {
			segs = append(segs, TextSegment(truncateFor("python", output)))
		}
		segs = append(segs, TextSegment(err.Error()))
		return Result{Status: StatusError, Segments: segs}, nil
	}

	var segs []Segment
	if output != "" {
		segs = append(segs, TextSegment(truncateFor("python", output)))
	}

	switch outcome {
	case OutcomeTimedOut:
		segs = append(segs, TextSegment(fmt.Sprintf(
			"Execution timed out after %s. The interpreter was killed; the next call starts fresh.", timeout)))
		return Result{Status: StatusTimedOut, Segments: segs}, nil
	case OutcomeInterrupted:
		segs = append(segs, TextSegment(
			"Execution interrupted by the user. The interpreter was killed; the next call starts fresh."))
		return Result{Status: StatusInterrupted, Segments: segs}, nil
	}

	if len(segs) == 0 {
		segs = append(segs, TextSegment("(no output)"))
	}
	return Result{Status: StatusOK, Segments: segs}, nil
}

func (t *PythonTool) clampTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return t.defaultTimeout
	}
	d := time.Duration(seconds) * time.Second
	if d > t.maxTimeout {
		return t.maxTimeout
	}
	return d
}

func (t *PythonTool) Cleanup() error {
	return t.session.Close()
}
