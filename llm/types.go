package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message. The wire protocol only knows user
// and assistant; tool results travel inside a user-role message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType is the discriminator tag for Block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// ImageSource holds base64-encoded image content.
type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Block is one typed content block within a message. Exactly the fields for
// its Type are populated; the rest stay zero and are omitted on the wire.
type Block struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string  `json:"tool_use_id,omitempty"`
	Content   []Block `json:"content,omitempty"`
	IsError   bool    `json:"is_error,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`
}

// TextBlock creates a text Block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ThinkingBlock creates a thinking Block.
func ThinkingBlock(text, signature string) Block {
	return Block{Type: BlockThinking, Thinking: text, Signature: signature}
}

// ToolUseBlock creates a tool_use Block.
func ToolUseBlock(id, name string, input json.RawMessage) Block {
	return Block{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock creates a tool_result Block wrapping nested content blocks.
func ToolResultBlock(toolUseID string, content []Block, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// ImageBlock creates an image Block from raw bytes, base64-encoding them.
func ImageBlock(mediaType, base64Data string) Block {
	if mediaType == "" {
		mediaType = "image/png"
	}
	return Block{Type: BlockImage, Source: &ImageSource{
		Type:      "base64",
		MediaType: mediaType,
		Data:      base64Data,
	}}
}

// Message is one entry in the alternating conversation sent to the provider.
type Message struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

// UserMessage creates a user Message with a single text block.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []Block{TextBlock(text)}}
}

// AssistantMessage creates an assistant Message from content blocks.
func AssistantMessage(blocks ...Block) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

// ToolResultMessage creates the synthetic user Message answering tool_use
// blocks from the preceding assistant message.
func ToolResultMessage(results ...Block) Message {
	return Message{Role: RoleUser, Content: results}
}

// TextContent returns the concatenation of all text blocks in the message.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolDefinition describes one tool capability to the provider.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ThinkingConfig enables extended thinking on providers that support it.
type ThinkingConfig struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}

// Request is the input to Client.Complete.
type Request struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"-"`
	Messages  []Message        `json:"messages"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	Thinking  *ThinkingConfig  `json:"thinking,omitempty"`
}

// StopReason reports why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopRefusal   StopReason = "refusal"
)

// Usage tracks token consumption for one response.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

// Add returns the element-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:              u.InputTokens + other.InputTokens,
		OutputTokens:             u.OutputTokens + other.OutputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + other.CacheReadInputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + other.CacheCreationInputTokens,
	}
}

// Response is the output of Client.Complete.
type Response struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	Content    []Block    `json:"content"`
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
}

// Text returns the concatenated text from all text blocks in the response.
func (r *Response) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolUses extracts the tool_use blocks from the response content.
func (r *Response) ToolUses() []Block {
	var uses []Block
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}
