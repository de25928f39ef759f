package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/calebreed/agentdesk/llm"
)

// Invocation is one tool_use request to execute.
type Invocation struct {
	ID    string
	Name  string
	Input json.RawMessage

	// Interrupt reports whether the user has asked to abandon this
	// invocation. Long-running tools poll it between units of work. May be
	// nil, meaning never interrupted.
	Interrupt func() bool
}

func (inv Invocation) interrupted() bool {
	return inv.Interrupt != nil && inv.Interrupt()
}

// Tool is one capability the agent can invoke. Execute returns an error only
// for failures the caller should render as an error-status result; partial
// or unusual outcomes (timeout, interrupt) are expressed through the Result
// status instead.
type Tool interface {
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, inv Invocation) (Result, error)
	// Cleanup releases any long-lived resources the tool holds, such as
	// subprocess sessions. Safe to call multiple times.
	Cleanup() error
}

// Registry holds the tool instances for one conversation. Instances are not
// shared between conversations because tools carry session state.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool. Registration order is preserved so the
// definitions sent to the model are stable.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Definition().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns a registered tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all tool definitions in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Names returns the names of all registered tools in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Dispatch resolves and executes one invocation. It never returns a failure
// to the caller: unknown tools, execution errors, and panics all become
// error-status results so the conversation can continue.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation) (result Result) {
	tool := r.Get(inv.Name)
	if tool == nil {
		return errorResult(inv.ID, inv.Name, fmt.Sprintf("unknown tool: %s", inv.Name))
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = errorResult(inv.ID, inv.Name,
				fmt.Sprintf("tool %s panicked: %v\n%s", inv.Name, rec, debug.Stack()))
		}
	}()

	res, err := tool.Execute(ctx, inv)
	if err != nil {
		return errorResult(inv.ID, inv.Name, err.Error())
	}
	res.InvocationID = inv.ID
	res.ToolName = inv.Name
	if res.Status == "" {
		res.Status = StatusOK
	}
	return res
}

// Cleanup releases the resources of every registered tool. All tools are
// attempted even if some fail; the first error is returned.
func (r *Registry) Cleanup() error {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()

	var first error
	for _, name := range names {
		if t := r.Get(name); t != nil {
			if err := t.Cleanup(); err != nil && first == nil {
				first = fmt.Errorf("cleanup %s: %w", name, err)
			}
		}
	}
	return first
}

// decodeInput unmarshals tool input into dst, mapping malformed JSON to an
// error the dispatcher renders as an error result.
func decodeInput(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}
