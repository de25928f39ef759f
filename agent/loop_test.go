package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/calebreed/agentdesk/llm"
	"github.com/calebreed/agentdesk/tools"
)

// scriptedClient replays canned responses and errors in order.
type scriptedClient struct {
	responses []*llm.Response
	errs      []error
	calls     int
	onCall    func(i int, req llm.Request)
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	i := c.calls
	c.calls++
	if c.onCall != nil {
		c.onCall(i, req)
	}
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return textResponse("done"), nil
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Content:    []llm.Block{llm.TextBlock(text)},
		StopReason: llm.StopEndTurn,
		Usage:      llm.Usage{InputTokens: 5, OutputTokens: 5},
	}
}

// scriptedTool counts executions and delegates to fn when set.
type scriptedTool struct {
	name     string
	executed int
	fn       func(inv tools.Invocation) (tools.Result, error)
}

func (t *scriptedTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: t.name, InputSchema: map[string]any{"type": "object"}}
}

func (t *scriptedTool) Execute(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	t.executed++
	if t.fn != nil {
		return t.fn(inv)
	}
	return tools.Result{Status: tools.StatusOK, Segments: []tools.Segment{tools.TextSegment("ran")}}, nil
}

func (t *scriptedTool) Cleanup() error { return nil }

func newTestLoop(client llm.Client, toolset ...tools.Tool) *Loop {
	registry := tools.NewRegistry()
	for _, tl := range toolset {
		registry.Register(tl)
	}
	return NewLoop(client, registry, NewSignal(), nil, Config{Model: "test-model"})
}

func turnKinds(l *Loop) []TurnKind {
	var kinds []TurnKind
	for _, turn := range l.History() {
		kinds = append(kinds, turn.Kind)
	}
	return kinds
}

func TestLoopSimpleExchange(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("hello there")}}
	l := newTestLoop(client)

	if err := l.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kinds := turnKinds(l)
	want := []TurnKind{TurnUser, TurnAssistant}
	if len(kinds) != len(want) {
		t.Fatalf("expected turns %v, got %v", want, kinds)
	}
	if l.State() != StateAwaitingInput {
		t.Errorf("expected awaiting input, got %q", l.State())
	}
	if client.calls != 1 {
		t.Errorf("expected 1 model call, got %d", client.calls)
	}
}

func TestLoopToolRoundTrip(t *testing.T) {
	tool := &scriptedTool{name: "probe"}
	client := &scriptedClient{responses: []*llm.Response{
		{
			Content: []llm.Block{
				llm.TextBlock("checking"),
				llm.ToolUseBlock("toolu_1", "probe", json.RawMessage(`{}`)),
			},
			StopReason: llm.StopToolUse,
		},
		textResponse("all good"),
	}}
	l := newTestLoop(client, tool)

	if err := l.Submit(context.Background(), "check the thing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kinds := turnKinds(l)
	want := []TurnKind{TurnUser, TurnAssistant, TurnToolResults, TurnAssistant}
	if len(kinds) != len(want) {
		t.Fatalf("expected turns %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("turn %d: expected %q, got %q", i, want[i], kinds[i])
		}
	}
	if tool.executed != 1 {
		t.Errorf("expected 1 tool execution, got %d", tool.executed)
	}

	results := l.History()[2]
	if results.Blocks[0].ToolUseID != "toolu_1" {
		t.Errorf("tool_result must answer toolu_1, got %q", results.Blocks[0].ToolUseID)
	}
}

func TestLoopBatchCancellationAnswersEveryRequest(t *testing.T) {
	// The first tool raises the stop request mid-execution; the remaining
	// two requests must be answered without running.
	var l *Loop
	first := &scriptedTool{name: "first", fn: func(inv tools.Invocation) (tools.Result, error) {
		l.Stop()
		if !inv.Interrupt() {
			return tools.Result{}, errors.New("interrupt not visible to the running tool")
		}
		return tools.Result{
			Status:   tools.StatusInterrupted,
			Segments: []tools.Segment{tools.TextSegment("partial output")},
		}, nil
	}}
	second := &scriptedTool{name: "second"}
	third := &scriptedTool{name: "third"}

	client := &scriptedClient{responses: []*llm.Response{{
		Content: []llm.Block{
			llm.ToolUseBlock("toolu_1", "first", nil),
			llm.ToolUseBlock("toolu_2", "second", nil),
			llm.ToolUseBlock("toolu_3", "third", nil),
		},
		StopReason: llm.StopToolUse,
	}}}
	l = newTestLoop(client, first, second, third)

	if err := l.Submit(context.Background(), "do three things"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.executed != 0 || third.executed != 0 {
		t.Errorf("tools after the interrupt must not run: %d, %d", second.executed, third.executed)
	}
	if client.calls != 1 {
		t.Errorf("no further model call after an interrupted batch, got %d", client.calls)
	}

	history := l.History()
	resultsTurn := history[2]
	if resultsTurn.Kind != TurnToolResults {
		t.Fatalf("expected tool results turn, got %q", resultsTurn.Kind)
	}
	if len(resultsTurn.Blocks) != 3 {
		t.Fatalf("every request needs an answer: expected 3 results, got %d", len(resultsTurn.Blocks))
	}
	answered := map[string]bool{}
	for _, b := range resultsTurn.Blocks {
		answered[b.ToolUseID] = true
	}
	for _, id := range []string{"toolu_1", "toolu_2", "toolu_3"} {
		if !answered[id] {
			t.Errorf("tool_use %q left unanswered", id)
		}
	}

	// The synthetic acknowledgement keeps alternation valid for the next
	// user input.
	last := history[len(history)-1]
	if last.Kind != TurnAssistant {
		t.Errorf("expected trailing assistant turn, got %q", last.Kind)
	}
	if err := l.Submit(context.Background(), "ok, skip it"); err != nil {
		t.Errorf("conversation must continue after an interrupt: %v", err)
	}
}

func TestLoopDiscardsResponseOnInterruptDuringCall(t *testing.T) {
	tool := &scriptedTool{name: "probe"}
	var l *Loop
	client := &scriptedClient{
		responses: []*llm.Response{{
			Content: []llm.Block{
				llm.TextBlock("about to act"),
				llm.ToolUseBlock("toolu_1", "probe", nil),
			},
			StopReason: llm.StopToolUse,
		}},
		onCall: func(i int, req llm.Request) {
			// The stop lands while the call is in flight.
			l.Stop()
		},
	}
	l = newTestLoop(client, tool)

	if err := l.Submit(context.Background(), "do it"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tool.executed != 0 {
		t.Errorf("discarded response must not trigger tools, got %d executions", tool.executed)
	}
	for _, turn := range l.History() {
		if len(turn.ToolUses()) > 0 {
			t.Error("discarded tool_use blocks must not enter the history")
		}
	}
	last, _ := l.store.Last()
	if last.Kind != TurnAssistant {
		t.Errorf("expected trailing assistant turn, got %q", last.Kind)
	}
}

func TestLoopEmptyResponsePlaceholder(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{{StopReason: llm.StopEndTurn}}}
	l := newTestLoop(client)

	if err := l.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last, _ := l.store.Last()
	if last.Text() != emptyResponsePlaceholder {
		t.Errorf("expected placeholder text, got %q", last.Text())
	}
}

func TestLoopRoundLimit(t *testing.T) {
	tool := &scriptedTool{name: "spin"}
	client := &scriptedClient{}
	client.onCall = func(i int, req llm.Request) {
		client.responses = append(client.responses, &llm.Response{
			Content:    []llm.Block{llm.ToolUseBlock(llmID(i), "spin", nil)},
			StopReason: llm.StopToolUse,
		})
	}

	registry := tools.NewRegistry()
	registry.Register(tool)
	l := NewLoop(client, registry, NewSignal(), nil, Config{Model: "m", MaxToolRounds: 3})

	if err := l.Submit(context.Background(), "loop forever"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tool.executed != 3 {
		t.Errorf("expected exactly 3 tool rounds, got %d", tool.executed)
	}
	last, _ := l.store.Last()
	if !strings.Contains(last.Text(), "round limit") {
		t.Errorf("round limit note missing: %q", last.Text())
	}
}

func llmID(i int) string {
	return "toolu_" + string(rune('a'+i))
}

func TestLoopContinuesAfterUnknownTool(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{
			Content:    []llm.Block{llm.ToolUseBlock("toolu_1", "no_such_tool", nil)},
			StopReason: llm.StopToolUse,
		},
		textResponse("sorry, wrong tool"),
	}}
	l := newTestLoop(client)

	if err := l.Submit(context.Background(), "use the mystery tool"); err != nil {
		t.Fatalf("unknown tool must not fail the conversation: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("loop must return to the model after an unknown tool, got %d calls", client.calls)
	}

	resultsTurn := l.History()[2]
	if resultsTurn.Kind != TurnToolResults {
		t.Fatalf("expected tool results turn, got %q", resultsTurn.Kind)
	}
	if !resultsTurn.Blocks[0].IsError {
		t.Error("unknown tool must be answered with an error result")
	}
}

func TestLoopSurvivesModelError(t *testing.T) {
	client := &scriptedClient{
		errs: []error{&llm.InvalidRequestError{APIError: llm.APIError{
			ClientError: llm.ClientError{Message: "bad request"},
		}}},
		responses: []*llm.Response{nil, textResponse("recovered")},
	}
	l := newTestLoop(client)

	err := l.Submit(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected the model error to surface")
	}
	last, _ := l.store.Last()
	if last.Kind != TurnAssistant || !strings.Contains(last.Text(), "bad request") {
		t.Errorf("error must be recorded as an assistant turn: %+v", last)
	}
	if l.State() != StateAwaitingInput {
		t.Errorf("loop must return to awaiting input, got %q", l.State())
	}

	if err := l.Submit(context.Background(), "try again"); err != nil {
		t.Errorf("conversation must continue after a model error: %v", err)
	}
}

func TestLoopClearsStaleStopRequest(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("hello")}}
	l := newTestLoop(client)

	// A stop pressed while nothing is running must not cancel the next turn.
	l.Stop()
	if err := l.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last, _ := l.store.Last()
	if last.Text() != "hello" {
		t.Errorf("stale stop request cancelled a fresh turn: %q", last.Text())
	}
}

func TestLoopCancelledContextClosesConversation(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("never sent")}}
	l := newTestLoop(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Submit(ctx, "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.calls != 0 {
		t.Errorf("no model call after cancellation, got %d", client.calls)
	}
	if l.State() != StateTerminal {
		t.Errorf("cancellation must leave the loop terminal, got %q", l.State())
	}

	// The history must not end on the dangling user turn.
	last, ok := l.store.Last()
	if !ok || last.Kind != TurnAssistant {
		t.Errorf("expected trailing assistant turn, got %+v", last)
	}

	if err := l.Submit(context.Background(), "still there?"); err == nil {
		t.Error("submit on a closed conversation must fail")
	} else if !strings.Contains(err.Error(), "closed") {
		t.Errorf("expected a closed-conversation error, got %v", err)
	}
}

func TestLoopUsageAccumulates(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("a"), textResponse("b")}}
	l := newTestLoop(client)

	if err := l.Submit(context.Background(), "one"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := l.Submit(context.Background(), "two"); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	usage := l.Usage()
	if usage.InputTokens != 10 || usage.OutputTokens != 10 {
		t.Errorf("usage not accumulated across turns: %+v", usage)
	}
}

func TestLoopCloseReleasesTools(t *testing.T) {
	tool := &scriptedTool{name: "probe"}
	cleanupCalls := 0
	wrapped := &cleanupCounter{Tool: tool, calls: &cleanupCalls}

	registry := tools.NewRegistry()
	registry.Register(wrapped)
	l := NewLoop(&scriptedClient{}, registry, NewSignal(), nil, Config{Model: "m"})

	if err := l.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if cleanupCalls != 1 {
		t.Errorf("expected tool cleanup on close, got %d calls", cleanupCalls)
	}
	if err := l.Submit(context.Background(), "hi"); err == nil {
		t.Error("submit on a closed loop must fail")
	}
}

type cleanupCounter struct {
	tools.Tool
	calls *int
}

func (c *cleanupCounter) Cleanup() error {
	*c.calls++
	return c.Tool.Cleanup()
}
