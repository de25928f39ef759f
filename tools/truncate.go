package tools

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how oversized output is cut.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Character limits per tool. Shell and Python output keeps head and tail
// because both ends usually matter (command echo vs final error); editor
// output keeps the tail where the snippet lives.
var defaultCharLimits = map[string]int{
	"bash":     30000,
	"python":   30000,
	"str_edit": 16000,
	"computer": 10000,
}

var defaultModes = map[string]TruncationMode{
	"bash":     TruncateHeadTail,
	"python":   TruncateHeadTail,
	"str_edit": TruncateTail,
	"computer": TruncateTail,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars
	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[WARNING: Output was truncated. First %d characters were removed. "+
			"Re-run the tool with more targeted parameters to see them.]\n\n", removed) +
			output[len(output)-maxChars:]
	default:
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[WARNING: Output was truncated. %d characters were removed from the middle. "+
				"Re-run the tool with more targeted parameters to see them.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// truncateFor applies the per-tool defaults to output destined for the model.
func truncateFor(toolName, output string) string {
	maxChars, ok := defaultCharLimits[toolName]
	if !ok {
		maxChars = 30000
	}
	mode, ok := defaultModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	return TruncateOutput(output, maxChars, mode)
}
