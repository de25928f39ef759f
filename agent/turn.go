package agent

import (
	"time"

	"github.com/calebreed/agentdesk/llm"
	"github.com/calebreed/agentdesk/tools"
)

// TurnKind discriminates between turn types. User and tool-results turns
// both travel with the user role on the wire.
type TurnKind string

const (
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
)

// Turn is one entry in the conversation history.
type Turn struct {
	Kind      TurnKind    `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Blocks    []llm.Block `json:"blocks"`

	// assistant turns only
	StopReason llm.StopReason `json:"stop_reason,omitempty"`
	Usage      *llm.Usage     `json:"usage,omitempty"`
}

// NewUserTurn creates a turn from the user's text input.
func NewUserTurn(text string) Turn {
	return Turn{
		Kind:      TurnUser,
		Timestamp: time.Now(),
		Blocks:    []llm.Block{llm.TextBlock(text)},
	}
}

// NewAssistantTurn records a model response as a turn.
func NewAssistantTurn(resp *llm.Response) Turn {
	usage := resp.Usage
	return Turn{
		Kind:       TurnAssistant,
		Timestamp:  time.Now(),
		Blocks:     resp.Content,
		StopReason: resp.StopReason,
		Usage:      &usage,
	}
}

// NewAssistantTextTurn creates a synthetic assistant turn holding only text.
// Used for error surfacing and for acknowledging interrupted tool batches,
// where a real model response is unavailable but alternation must hold.
func NewAssistantTextTurn(text string) Turn {
	return Turn{
		Kind:       TurnAssistant,
		Timestamp:  time.Now(),
		Blocks:     []llm.Block{llm.TextBlock(text)},
		StopReason: llm.StopEndTurn,
	}
}

// NewToolResultsTurn creates the turn answering a batch of tool_use requests.
func NewToolResultsTurn(results []tools.Result) Turn {
	blocks := make([]llm.Block, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, r.Block())
	}
	return Turn{
		Kind:      TurnToolResults,
		Timestamp: time.Now(),
		Blocks:    blocks,
	}
}

// Role returns the wire role this turn is sent with.
func (t Turn) Role() llm.Role {
	if t.Kind == TurnAssistant {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}

// Message converts the turn to its wire message.
func (t Turn) Message() llm.Message {
	return llm.Message{Role: t.Role(), Content: t.Blocks}
}

// ToolUses returns the tool_use blocks in this turn.
func (t Turn) ToolUses() []llm.Block {
	var uses []llm.Block
	for _, b := range t.Blocks {
		if b.Type == llm.BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// Text returns the concatenated text blocks of the turn.
func (t Turn) Text() string {
	var out string
	for _, b := range t.Blocks {
		if b.Type == llm.BlockText {
			if out != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}
