package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/calebreed/agentdesk/llm"
	"github.com/calebreed/agentdesk/tools"
)

// State is the loop's current phase.
type State string

const (
	StateAwaitingInput  State = "awaiting_user_input"
	StateCallingLLM     State = "calling_llm"
	StateExecutingTools State = "executing_tools"
	StateTerminal       State = "terminal"
)

// emptyResponsePlaceholder stands in for a response with no content blocks,
// which the protocol would otherwise reject on the next request.
const emptyResponsePlaceholder = "<empty response from LLM>"

// interruptAckText is the synthetic assistant turn appended after an
// interrupted tool batch, keeping alternation intact for the next input.
const interruptAckText = "I see the tool calls were interrupted. Tell me how you would like to proceed."

// Config holds the per-conversation loop settings.
type Config struct {
	Model     string
	System    string
	MaxTokens int

	// MaxToolRounds bounds how many tool batches one Submit may run.
	MaxToolRounds int

	Thinking *llm.ThinkingConfig
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:     8192,
		MaxToolRounds: 50,
	}
}

// Loop drives one conversation: user input in, assistant turns and tool
// batches out, until the model stops requesting tools. Submit is not safe
// for concurrent use; Stop and State are.
type Loop struct {
	id       string
	client   llm.Client
	registry *tools.Registry
	store    *Store
	stop     *Signal
	emitter  *EventEmitter
	logger   *slog.Logger
	config   Config

	mu    sync.Mutex
	state State
}

// NewLoop creates a Loop with a fresh conversation store and event stream.
func NewLoop(client llm.Client, registry *tools.Registry, stop *Signal, logger *slog.Logger, config Config) *Loop {
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = DefaultConfig().MaxToolRounds
	}
	if logger == nil {
		logger = slog.Default()
	}
	if stop == nil {
		stop = NewSignal()
	}
	id := uuid.NewString()
	l := &Loop{
		id:       id,
		client:   client,
		registry: registry,
		store:    NewStore(id),
		stop:     stop,
		emitter:  NewEventEmitter(id, 0),
		logger:   logger.With("conversation_id", id),
		config:   config,
		state:    StateAwaitingInput,
	}
	l.emitter.Emit(EventSessionStart, nil)
	return l
}

// ID returns the conversation identifier.
func (l *Loop) ID() string { return l.id }

// State returns the loop's current phase.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// History returns a copy of the conversation turns.
func (l *Loop) History() []Turn { return l.store.History() }

// Usage returns the accumulated token usage.
func (l *Loop) Usage() llm.Usage { return l.store.TotalUsage() }

// Events returns the loop's event stream.
func (l *Loop) Events() <-chan Event { return l.emitter.Events() }

// Stop raises the stop request. The in-flight model call or tool batch
// observes it at its next poll point.
func (l *Loop) Stop() { l.stop.Set() }

// Submit runs one user input through the conversation loop, returning when
// the model finishes its turn, the user interrupts, or an unrecoverable
// error surfaces. The conversation survives returned errors unless the loop
// state is Terminal.
func (l *Loop) Submit(ctx context.Context, userInput string) error {
	if l.State() == StateTerminal {
		return fmt.Errorf("conversation is closed")
	}
	// A stop request raised while idle applies to nothing; drop it rather
	// than letting it cancel the upcoming work.
	l.stop.Clear()

	if err := l.store.Append(NewUserTurn(userInput)); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}
	l.emitter.Emit(EventUserInput, map[string]interface{}{"content": userInput})
	l.logger.Info("user input", "chars", len(userInput))

	// Terminal is final: the reset back to awaiting input must not undo it.
	defer func() {
		l.mu.Lock()
		if l.state != StateTerminal {
			l.state = StateAwaitingInput
		}
		l.mu.Unlock()
	}()

	for round := 0; ; round++ {
		if round >= l.config.MaxToolRounds {
			l.emitter.Emit(EventRoundLimit, map[string]interface{}{"round": round})
			l.logger.Warn("tool round limit reached", "round", round)
			return l.appendAssistantNote("Tool round limit reached; stopping here. Send another message to continue.")
		}
		if ctx.Err() != nil {
			// The history must not end on a user-role turn even when the
			// conversation dies here; close it before going terminal.
			l.emitter.Emit(EventError, map[string]interface{}{"error": ctx.Err().Error()})
			l.logger.Error("conversation context cancelled", "error", ctx.Err())
			if noteErr := l.appendAssistantNote("(Conversation cancelled.)"); noteErr != nil {
				l.setState(StateTerminal)
				return noteErr
			}
			l.setState(StateTerminal)
			return ctx.Err()
		}

		l.setState(StateCallingLLM)
		resp, err := l.client.Complete(ctx, llm.Request{
			Model:     l.config.Model,
			MaxTokens: l.config.MaxTokens,
			System:    l.config.System,
			Messages:  l.store.Messages(),
			Tools:     l.registry.Definitions(),
			Thinking:  l.config.Thinking,
		})
		if err != nil {
			return l.handleLLMError(err)
		}

		// A stop request that lands while the call is in flight discards the
		// response's tool requests: nothing has executed yet, and the user
		// asked for the floor back.
		if l.stop.Consume() {
			l.emitter.Emit(EventInterrupted, map[string]interface{}{"phase": string(StateCallingLLM)})
			l.logger.Info("response discarded on user interrupt")
			text := resp.Text()
			if text == "" {
				text = emptyResponsePlaceholder
			}
			return l.appendAssistantNote(text + "\n\n(Interrupted before any tools ran.)")
		}

		if len(resp.Content) == 0 {
			resp.Content = []llm.Block{llm.TextBlock(emptyResponsePlaceholder)}
		}
		if err := l.store.Append(NewAssistantTurn(resp)); err != nil {
			return fmt.Errorf("append assistant turn: %w", err)
		}
		l.emitter.Emit(EventAssistantTurn, map[string]interface{}{
			"text":        resp.Text(),
			"stop_reason": string(resp.StopReason),
		})
		l.logger.Info("assistant turn",
			"stop_reason", resp.StopReason,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens)

		uses := resp.ToolUses()
		if len(uses) == 0 {
			return nil
		}

		l.setState(StateExecutingTools)
		results, interrupted := l.executeBatch(ctx, uses)
		if err := l.store.Append(NewToolResultsTurn(results)); err != nil {
			return fmt.Errorf("append tool results: %w", err)
		}

		if interrupted {
			l.emitter.Emit(EventInterrupted, map[string]interface{}{"phase": string(StateExecutingTools)})
			l.logger.Info("tool batch interrupted")
			return l.appendAssistantNote(interruptAckText)
		}
	}
}

// executeBatch runs the batch sequentially, producing exactly one result per
// request. A stop request latches for the remainder of the batch: the
// running tool returns its partial output and every not-yet-started request
// is answered with an interrupted result without executing.
func (l *Loop) executeBatch(ctx context.Context, uses []llm.Block) ([]tools.Result, bool) {
	latched := false
	interrupt := func() bool {
		if latched {
			return true
		}
		if l.stop.Consume() {
			latched = true
			return true
		}
		return false
	}

	results := make([]tools.Result, 0, len(uses))
	for _, use := range uses {
		if interrupt() {
			results = append(results, tools.Result{
				InvocationID: use.ID,
				ToolName:     use.Name,
				Status:       tools.StatusInterrupted,
				Segments:     []tools.Segment{tools.TextSegment("Skipped: the user interrupted this tool batch.")},
			})
			continue
		}

		l.emitter.Emit(EventToolStart, map[string]interface{}{"tool": use.Name, "id": use.ID})
		l.logger.Info("tool start", "tool", use.Name, "invocation_id", use.ID)

		res := l.registry.Dispatch(ctx, tools.Invocation{
			ID:        use.ID,
			Name:      use.Name,
			Input:     use.Input,
			Interrupt: interrupt,
		})
		if res.Status == tools.StatusInterrupted {
			latched = true
		}

		l.emitter.Emit(EventToolEnd, map[string]interface{}{
			"tool": use.Name, "id": use.ID, "status": string(res.Status),
		})
		l.logger.Info("tool end", "tool", use.Name, "invocation_id", use.ID, "status", res.Status)
		results = append(results, res)
	}
	return results, latched
}

// handleLLMError surfaces a model call failure without corrupting the
// history: the error text becomes an assistant turn so the conversation can
// continue, except for cancellation, which leaves no turn behind.
func (l *Loop) handleLLMError(err error) error {
	l.emitter.Emit(EventError, map[string]interface{}{"error": err.Error()})

	if _, ok := err.(*llm.AbortError); ok {
		l.logger.Info("model call cancelled")
		if noteErr := l.appendAssistantNote("(Model call cancelled.)"); noteErr != nil {
			return noteErr
		}
		return err
	}

	l.logger.Error("model call failed", "error", err)
	if noteErr := l.appendAssistantNote(fmt.Sprintf("The model call failed: %v", err)); noteErr != nil {
		return noteErr
	}
	return fmt.Errorf("model call failed: %w", err)
}

func (l *Loop) appendAssistantNote(text string) error {
	if err := l.store.Append(NewAssistantTextTurn(text)); err != nil {
		return fmt.Errorf("append assistant note: %w", err)
	}
	l.emitter.Emit(EventAssistantTurn, map[string]interface{}{"text": text, "synthetic": true})
	return nil
}

// Persist writes the conversation transcript to path.
func (l *Loop) Persist(path string) error {
	return l.store.Persist(path)
}

// Close releases tool sessions and the event stream. The loop cannot be
// used afterwards.
func (l *Loop) Close() error {
	l.setState(StateTerminal)
	err := l.registry.Cleanup()
	l.emitter.Emit(EventSessionEnd, map[string]interface{}{"usage": l.store.TotalUsage()})
	l.emitter.Close()
	if err != nil {
		l.logger.Warn("tool cleanup failed", "error", err)
	}
	return err
}
