package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/gollm"
)

// GollmClient adapts a gollm.LLM to the Client interface for text-only runs
// against providers that lack the native messages endpoint. Tool definitions
// are ignored and responses always stop with end_turn, so the loop degrades
// to plain question answering.
type GollmClient struct {
	provider string
	model    string
	llm      gollm.LLM
}

// NewGollmClient creates a GollmClient for the given provider and model. An
// empty apiKey lets gollm read the provider's conventional environment
// variable.
func NewGollmClient(provider, model, apiKey string) (*GollmClient, error) {
	opts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(4096),
		gollm.SetMaxRetries(0), // retry is handled by this package
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		opts = append(opts, gollm.SetAPIKey(apiKey))
	}

	inner, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, &ConfigurationError{ClientError: ClientError{
			Message: fmt.Sprintf("failed to create gollm client for provider %s", provider),
			Cause:   err,
		}}
	}

	return &GollmClient{provider: provider, model: model, llm: inner}, nil
}

// Complete flattens the block conversation into a single prompt, generates a
// text reply, and wraps it back into a block response.
func (c *GollmClient) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := c.flatten(req)

	promptOpts := []gollm.PromptOption{}
	if req.System != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(req.System, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens > 0 {
		promptOpts = append(promptOpts, gollm.WithMaxLength(req.MaxTokens))
	}

	text, err := c.llm.Generate(ctx, gollm.NewPrompt(prompt, promptOpts...))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{ClientError: ClientError{Message: "request cancelled", Cause: ctx.Err()}}
		}
		return nil, &NetworkError{ClientError: ClientError{Message: "gollm generate failed", Cause: err}}
	}

	return &Response{
		Model:      c.model,
		Content:    []Block{TextBlock(text)},
		StopReason: StopEndTurn,
	}, nil
}

// flatten renders the conversation as a transcript a plain completion model
// can follow. Tool traffic is rendered inline since the provider cannot see
// structured blocks.
func (c *GollmClient) flatten(req Request) string {
	var parts []string
	for _, msg := range req.Messages {
		for _, b := range msg.Content {
			switch b.Type {
			case BlockText:
				if msg.Role == RoleAssistant {
					parts = append(parts, "[Assistant]: "+b.Text)
				} else {
					parts = append(parts, b.Text)
				}
			case BlockToolUse:
				parts = append(parts, fmt.Sprintf("[Tool Call %s]: %s", b.Name, string(b.Input)))
			case BlockToolResult:
				prefix := "[Tool Result]"
				if b.IsError {
					prefix = "[Tool Error]"
				}
				var inner []string
				for _, cb := range b.Content {
					if cb.Type == BlockText {
						inner = append(inner, cb.Text)
					}
				}
				parts = append(parts, prefix+": "+strings.Join(inner, "\n"))
			}
		}
	}
	if len(parts) == 0 {
		return "Hello"
	}
	return strings.Join(parts, "\n")
}
