package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/calebreed/agentdesk/llm"
)

// fakeTool records calls for registry tests.
type fakeTool struct {
	name       string
	executed   int
	cleaned    int
	cleanupErr error
	result     Result
	err        error
	panicWith  any
}

func (f *fakeTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: f.name, InputSchema: map[string]any{"type": "object"}}
}

func (f *fakeTool) Execute(ctx context.Context, inv Invocation) (Result, error) {
	f.executed++
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.result, f.err
}

func (f *fakeTool) Cleanup() error {
	f.cleaned++
	return f.cleanupErr
}

func TestRegistryDispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Dispatch(context.Background(), Invocation{ID: "toolu_1", Name: "missing"})
	if res.Status != StatusError {
		t.Errorf("expected error status, got %q", res.Status)
	}
	if res.InvocationID != "toolu_1" {
		t.Errorf("result must carry the invocation id, got %q", res.InvocationID)
	}
}

func TestRegistryDispatchMalformedInput(t *testing.T) {
	r := NewRegistry()
	r.Register(NewBashTool(0, 0))

	res := r.Dispatch(context.Background(), Invocation{
		ID:    "toolu_2",
		Name:  "bash",
		Input: json.RawMessage(`{"command": 42}`),
	})
	if res.Status != StatusError {
		t.Errorf("malformed input should produce an error result, got %q", res.Status)
	}
}

func TestRegistryDispatchExecutionError(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "broken", err: errors.New("something failed")})

	res := r.Dispatch(context.Background(), Invocation{ID: "toolu_3", Name: "broken"})
	if res.Status != StatusError {
		t.Errorf("expected error status, got %q", res.Status)
	}
	if res.Text() != "something failed" {
		t.Errorf("error message not surfaced: %q", res.Text())
	}
}

func TestRegistryDispatchRecoverPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "bomb", panicWith: "boom"})

	res := r.Dispatch(context.Background(), Invocation{ID: "toolu_4", Name: "bomb"})
	if res.Status != StatusError {
		t.Errorf("a panicking tool must yield an error result, got %q", res.Status)
	}
	if res.InvocationID != "toolu_4" {
		t.Errorf("result must carry the invocation id, got %q", res.InvocationID)
	}
}

func TestRegistryDispatchFillsResult(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "echoer", result: Result{Segments: []Segment{TextSegment("hi")}}})

	res := r.Dispatch(context.Background(), Invocation{ID: "toolu_5", Name: "echoer"})
	if res.Status != StatusOK {
		t.Errorf("empty status should default to ok, got %q", res.Status)
	}
	if res.InvocationID != "toolu_5" || res.ToolName != "echoer" {
		t.Errorf("dispatch did not stamp identity: %+v", res)
	}
}

func TestRegistryDefinitionsOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(&fakeTool{name: name})
	}

	defs := r.Definitions()
	want := []string{"zeta", "alpha", "mid"}
	if len(defs) != len(want) {
		t.Fatalf("expected %d definitions, got %d", len(want), len(defs))
	}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Errorf("definition %d: expected %q, got %q", i, want[i], d.Name)
		}
	}
}

func TestRegistryCleanupReachesAllTools(t *testing.T) {
	first := &fakeTool{name: "first", cleanupErr: errors.New("close failed")}
	second := &fakeTool{name: "second"}

	r := NewRegistry()
	r.Register(first)
	r.Register(second)

	err := r.Cleanup()
	if err == nil {
		t.Error("expected the first cleanup error to propagate")
	}
	if first.cleaned != 1 || second.cleaned != 1 {
		t.Errorf("cleanup must reach every tool despite failures: %d, %d", first.cleaned, second.cleaned)
	}
}

func TestResultBlockRendering(t *testing.T) {
	res := Result{
		InvocationID: "toolu_6",
		Status:       StatusError,
		Segments: []Segment{
			TextSegment("it broke"),
			ImageSegment("image/png", "aGVsbG8="),
		},
	}

	block := res.Block()
	if block.Type != llm.BlockToolResult {
		t.Fatalf("expected tool_result block, got %q", block.Type)
	}
	if block.ToolUseID != "toolu_6" {
		t.Errorf("tool_use_id mismatch: %q", block.ToolUseID)
	}
	if !block.IsError {
		t.Error("error status must mark the block as error")
	}
	if len(block.Content) != 2 {
		t.Fatalf("expected 2 nested blocks, got %d", len(block.Content))
	}
	if block.Content[1].Type != llm.BlockImage {
		t.Errorf("image segment must render as an image block, got %q", block.Content[1].Type)
	}
}

func TestResultBlockNeverEmpty(t *testing.T) {
	block := Result{InvocationID: "toolu_7", Status: StatusOK}.Block()
	if len(block.Content) == 0 {
		t.Error("a result with no segments must still render content")
	}
}
