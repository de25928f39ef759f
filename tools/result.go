package tools

import (
	"strings"

	"github.com/calebreed/agentdesk/llm"
)

// Status classifies how an invocation ended.
type Status string

const (
	StatusOK          Status = "ok"
	StatusError       Status = "error"
	StatusInterrupted Status = "interrupted"
	StatusTimedOut    Status = "timed_out"
)

// Segment is one piece of tool output, either text or an image. Exactly one
// of Text and ImageData is set.
type Segment struct {
	Text string

	// base64-encoded image bytes plus media type
	ImageData      string
	ImageMediaType string
}

// TextSegment creates a text Segment.
func TextSegment(text string) Segment {
	return Segment{Text: text}
}

// ImageSegment creates an image Segment from base64-encoded bytes.
func ImageSegment(mediaType, base64Data string) Segment {
	return Segment{ImageData: base64Data, ImageMediaType: mediaType}
}

// Result is the outcome of one tool invocation. Every dispatched invocation
// produces exactly one Result, including cancelled and failed ones.
type Result struct {
	InvocationID string
	ToolName     string
	Status       Status
	Segments     []Segment
}

// errorResult builds an error-status Result for the given invocation.
func errorResult(invocationID, toolName, message string) Result {
	return Result{
		InvocationID: invocationID,
		ToolName:     toolName,
		Status:       StatusError,
		Segments:     []Segment{TextSegment(message)},
	}
}

// Text returns the concatenation of all text segments.
func (r Result) Text() string {
	var sb strings.Builder
	for _, seg := range r.Segments {
		if seg.ImageData != "" {
			continue
		}
		if sb.Len() > 0 && seg.Text != "" {
			sb.WriteString("\n")
		}
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// Block renders the Result as the tool_result block answering its tool_use
// request. Interrupted and timed-out results are not protocol errors; the
// model sees their partial output as ordinary content.
func (r Result) Block() llm.Block {
	blocks := make([]llm.Block, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if seg.ImageData != "" {
			blocks = append(blocks, llm.ImageBlock(seg.ImageMediaType, seg.ImageData))
			continue
		}
		if seg.Text != "" {
			blocks = append(blocks, llm.TextBlock(seg.Text))
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, llm.TextBlock("(no output)"))
	}
	return llm.ToolResultBlock(r.InvocationID, blocks, r.Status == StatusError)
}
