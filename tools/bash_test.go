package tools

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"
)

func bashExec(t *testing.T, tool *BashTool, input map[string]any) Result {
	t.Helper()
	raw, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	r := NewRegistry()
	r.Register(tool)
	return r.Dispatch(context.Background(), Invocation{ID: "toolu_bash", Name: "bash", Input: raw})
}

func newTestBashTool(t *testing.T) *BashTool {
	t.Helper()
	if _, err := os.Stat("/bin/bash"); err != nil {
		t.Skip("bash not available")
	}
	tool := NewBashTool(0, 0)
	t.Cleanup(func() { tool.Cleanup() })
	return tool
}

func TestBashToolRunsCommand(t *testing.T) {
	tool := newTestBashTool(t)

	res := bashExec(t, tool, map[string]any{"command": "echo 'scale=4; sqrt(101)' | bc -l || awk 'BEGIN{print sqrt(101)}'"})
	if res.Status != StatusOK {
		t.Fatalf("expected ok status, got %q: %s", res.Status, res.Text())
	}
	if !strings.Contains(res.Text(), "10.049") {
		t.Errorf("expected sqrt output, got %q", res.Text())
	}
}

func TestBashToolMissingCommand(t *testing.T) {
	tool := newTestBashTool(t)

	res := bashExec(t, tool, map[string]any{})
	if res.Status != StatusError {
		t.Errorf("missing command must be an error result, got %q", res.Status)
	}
}

func TestBashToolTimeoutStatus(t *testing.T) {
	tool := newTestBashTool(t)

	res := bashExec(t, tool, map[string]any{"command": "sleep 30", "timeout_s": 2})
	if res.Status != StatusTimedOut {
		t.Errorf("expected timed_out status, not error or ok, got %q", res.Status)
	}
	if !strings.Contains(res.Text(), "timed out") {
		t.Errorf("timeout note missing: %q", res.Text())
	}
}

func TestBashToolInterruptStatus(t *testing.T) {
	if _, err := os.Stat("/bin/bash"); err != nil {
		t.Skip("bash not available")
	}
	tool := NewBashTool(0, 0)
	t.Cleanup(func() { tool.Cleanup() })

	start := time.Now()
	interrupt := func() bool { return time.Since(start) > time.Second }
	raw, _ := json.Marshal(map[string]any{"command": "for i in 1 2 3 4 5; do echo tick $i; sleep 2; done"})

	res, err := tool.Execute(context.Background(), Invocation{ID: "toolu_int", Input: raw, Interrupt: interrupt})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusInterrupted {
		t.Fatalf("expected interrupted status, got %q", res.Status)
	}
	if !strings.Contains(res.Text(), "tick 1") {
		t.Errorf("output before the interrupt missing: %q", res.Text())
	}
	if strings.Contains(res.Text(), "tick 5") {
		t.Errorf("ticks after the interrupt should not appear: %q", res.Text())
	}
}

func TestBashToolRestart(t *testing.T) {
	tool := newTestBashTool(t)

	if res := bashExec(t, tool, map[string]any{"command": "STATE_VAR=set"}); res.Status != StatusOK {
		t.Fatalf("setup failed: %s", res.Text())
	}
	if res := bashExec(t, tool, map[string]any{"restart": true}); res.Status != StatusOK {
		t.Fatalf("restart failed: %s", res.Text())
	}
	res := bashExec(t, tool, map[string]any{"command": `echo "var=[$STATE_VAR]"`})
	if !strings.Contains(res.Text(), "var=[]") {
		t.Errorf("restart must discard session state: %q", res.Text())
	}
}
