package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/calebreed/agentdesk/llm"
)

// redactedImagePlaceholder replaces image payloads in persisted transcripts.
// Screenshots dominate transcript size and are reproducible, so they are not
// worth keeping on disk.
const redactedImagePlaceholder = "<image redacted>"

// Store holds one conversation's turns and enforces the wire protocol's
// shape on every append: roles alternate, and every tool_use request is
// answered exactly once by the immediately following turn.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	turns     []Turn
	usage     llm.Usage
}

// NewStore creates an empty Store for the given session.
func NewStore(sessionID string) *Store {
	return &Store{sessionID: sessionID}
}

// SessionID returns the conversation's identifier.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Append validates the turn against the current history and adds it.
func (s *Store) Append(turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(turn); err != nil {
		return err
	}
	s.turns = append(s.turns, turn)
	if turn.Usage != nil {
		s.usage = s.usage.Add(*turn.Usage)
	}
	return nil
}

func (s *Store) validate(turn Turn) error {
	if len(s.turns) == 0 {
		if turn.Kind != TurnUser {
			return fmt.Errorf("conversation must open with a user turn, got %s", turn.Kind)
		}
		return nil
	}

	last := s.turns[len(s.turns)-1]
	if last.Role() == turn.Role() {
		return fmt.Errorf("turn roles must alternate: %s turn cannot follow %s turn", turn.Kind, last.Kind)
	}

	pending := last.ToolUses()
	switch turn.Kind {
	case TurnToolResults:
		if len(pending) == 0 {
			return fmt.Errorf("tool results turn must answer a tool-using assistant turn")
		}
		return matchToolResults(pending, turn.Blocks)
	case TurnUser:
		if len(pending) > 0 {
			return fmt.Errorf("assistant turn has %d unanswered tool_use requests; a tool results turn must come first", len(pending))
		}
	}
	return nil
}

// matchToolResults checks that the results answer the requests one-to-one.
func matchToolResults(requests, results []llm.Block) error {
	wanted := make(map[string]bool, len(requests))
	for _, req := range requests {
		wanted[req.ID] = false
	}
	for _, res := range results {
		if res.Type != llm.BlockToolResult {
			return fmt.Errorf("tool results turn may only contain tool_result blocks, got %s", res.Type)
		}
		answered, ok := wanted[res.ToolUseID]
		if !ok {
			return fmt.Errorf("tool_result answers unknown tool_use id %q", res.ToolUseID)
		}
		if answered {
			return fmt.Errorf("tool_use id %q answered more than once", res.ToolUseID)
		}
		wanted[res.ToolUseID] = true
	}
	for id, answered := range wanted {
		if !answered {
			return fmt.Errorf("tool_use id %q left unanswered", id)
		}
	}
	return nil
}

// History returns a copy of all turns.
func (s *Store) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Last returns the most recent turn and whether one exists.
func (s *Store) Last() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Messages renders the history as the wire message list for the next call.
func (s *Store) Messages() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := make([]llm.Message, 0, len(s.turns))
	for _, turn := range s.turns {
		messages = append(messages, turn.Message())
	}
	return messages
}

// TotalUsage returns the accumulated token usage across assistant turns.
func (s *Store) TotalUsage() llm.Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// transcript is the persisted file shape.
type transcript struct {
	SessionID string    `json:"session_id"`
	SavedAt   time.Time `json:"saved_at"`
	Usage     llm.Usage `json:"usage"`
	Turns     []Turn    `json:"turns"`
}

// Persist writes the conversation to path as JSON, with image payloads
// redacted. The parent directory is created if needed.
func (s *Store) Persist(path string) error {
	s.mu.RLock()
	t := transcript{
		SessionID: s.sessionID,
		SavedAt:   time.Now(),
		Usage:     s.usage,
		Turns:     make([]Turn, len(s.turns)),
	}
	copy(t.Turns, s.turns)
	s.mu.RUnlock()

	for i := range t.Turns {
		t.Turns[i].Blocks = redactImages(t.Turns[i].Blocks)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// redactImages returns a copy of blocks with image payloads replaced by a
// placeholder, recursing into tool_result content.
func redactImages(blocks []llm.Block) []llm.Block {
	out := make([]llm.Block, len(blocks))
	copy(out, blocks)
	for i, b := range out {
		if b.Type == llm.BlockImage && b.Source != nil {
			src := *b.Source
			src.Data = redactedImagePlaceholder
			out[i].Source = &src
		}
		if len(b.Content) > 0 {
			out[i].Content = redactImages(b.Content)
		}
	}
	return out
}
