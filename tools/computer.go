package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/calebreed/agentdesk/llm"
	"github.com/google/uuid"
)

// computerActionTimeout bounds every xdotool/scrot invocation. These are
// single-shot commands, so unlike session tools they are not interruptible
// mid-flight; this timeout is the latency floor.
const computerActionTimeout = 15 * time.Second

// ComputerTool drives the X display: screenshots via scrot, keyboard and
// mouse via xdotool. It holds no session state.
type ComputerTool struct {
	display string // e.g. ":1"; empty uses the ambient DISPLAY
}

type computerInput struct {
	Action     string `json:"action"`
	Coordinate []int  `json:"coordinate"`
	Text       string `json:"text"`
	DurationS  int    `json:"duration_s"`
	ScrollDir  string `json:"scroll_direction"`
	ScrollAmt  int    `json:"scroll_amount"`
}

// NewComputerTool creates a ComputerTool targeting the given display.
func NewComputerTool(display string) *ComputerTool {
	return &ComputerTool{display: display}
}

func (t *ComputerTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name: "computer",
		Description: "Control the desktop: take screenshots, move the mouse, click, " +
			"type text, press keys, scroll, and wait. Coordinates are [x, y] pixels " +
			"from the top-left corner.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": []string{
						"screenshot", "cursor_position", "mouse_move", "left_click",
						"right_click", "middle_click", "double_click", "left_click_drag",
						"key", "type", "scroll", "wait",
					},
				},
				"coordinate": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"description": "[x, y] target for mouse actions.",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "Text to type, or an xdotool key chord such as ctrl+s.",
				},
				"duration_s": map[string]any{
					"type":        "integer",
					"description": "Seconds to wait for the wait action.",
				},
				"scroll_direction": map[string]any{
					"type": "string",
					"enum": []string{"up", "down", "left", "right"},
				},
				"scroll_amount": map[string]any{
					"type":        "integer",
					"description": "Number of scroll clicks.",
				},
			},
			"required": []string{"action"},
		},
	}
}

func (t *ComputerTool) Execute(ctx context.Context, inv Invocation) (Result, error) {
	var in computerInput
	if err := decodeInput(inv.Input, &in); err != nil {
		return Result{}, err
	}

	switch in.Action {
	case "screenshot":
		return t.screenshot(ctx)
	case "cursor_position":
		return t.cursorPosition(ctx)
	case "mouse_move":
		x, y, err := checkCoordinate(in.Coordinate)
		if err != nil {
			return Result{}, err
		}
		return t.run(ctx, "mouse_move", "mousemove", "--sync", fmt.Sprint(x), fmt.Sprint(y))
	case "left_click", "right_click", "middle_click", "double_click":
		return t.click(ctx, in)
	case "left_click_drag":
		x, y, err := checkCoordinate(in.Coordinate)
		if err != nil {
			return Result{}, err
		}
		return t.run(ctx, "left_click_drag",
			"mousedown", "1", "mousemove", "--sync", fmt.Sprint(x), fmt.Sprint(y), "mouseup", "1")
	case "key":
		if in.Text == "" {
			return Result{}, fmt.Errorf("computer: text is required for the key action")
		}
		return t.run(ctx, "key", "key", "--", in.Text)
	case "type":
		if in.Text == "" {
			return Result{}, fmt.Errorf("computer: text is required for the type action")
		}
		return t.run(ctx, "type", "type", "--delay", "12", "--", in.Text)
	case "scroll":
		return t.scroll(ctx, in)
	case "wait":
		return t.wait(ctx, in, inv.Interrupt)
	default:
		return Result{}, fmt.Errorf("computer: unrecognized action %q", in.Action)
	}
}

func (t *ComputerTool) Cleanup() error { return nil }

// run executes one xdotool command and reports the action as done.
func (t *ComputerTool) run(ctx context.Context, action string, args ...string) (Result, error) {
	out, err := t.command(ctx, "xdotool", args...)
	if err != nil {
		return Result{}, fmt.Errorf("computer %s: %w: %s", action, err, strings.TrimSpace(out))
	}
	msg := fmt.Sprintf("Action %s completed.", action)
	if trimmed := strings.TrimSpace(out); trimmed != "" {
		msg += "\n" + truncateFor("computer", trimmed)
	}
	return Result{Status: StatusOK, Segments: []Segment{TextSegment(msg)}}, nil
}

func (t *ComputerTool) click(ctx context.Context, in computerInput) (Result, error) {
	button := map[string]string{
		"left_click":   "1",
		"middle_click": "2",
		"right_click":  "3",
	}[in.Action]

	args := []string{}
	if len(in.Coordinate) > 0 {
		x, y, err := checkCoordinate(in.Coordinate)
		if err != nil {
			return Result{}, err
		}
		args = append(args, "mousemove", "--sync", fmt.Sprint(x), fmt.Sprint(y))
	}
	if in.Action == "double_click" {
		args = append(args, "click", "--repeat", "2", "--delay", "100", "1")
	} else {
		args = append(args, "click", button)
	}
	return t.run(ctx, in.Action, args...)
}

func (t *ComputerTool) scroll(ctx context.Context, in computerInput) (Result, error) {
	button, ok := map[string]string{
		"up": "4", "down": "5", "left": "6", "right": "7",
	}[in.ScrollDir]
	if !ok {
		return Result{}, fmt.Errorf("computer: scroll_direction must be up, down, left, or right")
	}
	amount := in.ScrollAmt
	if amount <= 0 {
		amount = 3
	}

	args := []string{}
	if len(in.Coordinate) > 0 {
		x, y, err := checkCoordinate(in.Coordinate)
		if err != nil {
			return Result{}, err
		}
		args = append(args, "mousemove", "--sync", fmt.Sprint(x), fmt.Sprint(y))
	}
	args = append(args, "click", "--repeat", fmt.Sprint(amount), button)
	return t.run(ctx, "scroll", args...)
}

func (t *ComputerTool) cursorPosition(ctx context.Context) (Result, error) {
	out, err := t.command(ctx, "xdotool", "getmouselocation", "--shell")
	if err != nil {
		return Result{}, fmt.Errorf("computer cursor_position: %w", err)
	}
	var x, y string
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "X="); ok {
			x = strings.TrimSpace(v)
		}
		if v, ok := strings.CutPrefix(line, "Y="); ok {
			y = strings.TrimSpace(v)
		}
	}
	return Result{Status: StatusOK, Segments: []Segment{
		TextSegment(fmt.Sprintf("Cursor position: (%s, %s)", x, y)),
	}}, nil
}

func (t *ComputerTool) screenshot(ctx context.Context) (Result, error) {
	path := filepath.Join(os.TempDir(), "screenshot_"+uuid.NewString()+".png")
	defer os.Remove(path)

	// -p includes the pointer so the model can see where the cursor is.
	if out, err := t.command(ctx, "scrot", "-p", "-z", path); err != nil {
		return Result{}, fmt.Errorf("computer screenshot: %w: %s", err, strings.TrimSpace(out))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("computer screenshot: failed to read capture: %w", err)
	}

	return Result{Status: StatusOK, Segments: []Segment{
		TextSegment("Screenshot taken."),
		ImageSegment("image/png", base64.StdEncoding.EncodeToString(data)),
	}}, nil
}

// wait sleeps in poll-sized steps so a stop request or context cancellation
// interrupts it promptly.
func (t *ComputerTool) wait(ctx context.Context, in computerInput, interrupt func() bool) (Result, error) {
	duration := time.Duration(in.DurationS) * time.Second
	if duration <= 0 {
		duration = time.Second
	}
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("computer wait: %w", err)
		}
		if interrupt != nil && interrupt() {
			return Result{
				Status:   StatusInterrupted,
				Segments: []Segment{TextSegment("Wait interrupted by the user.")},
			}, nil
		}
		time.Sleep(readPollInterval)
	}
	return Result{Status: StatusOK, Segments: []Segment{
		TextSegment(fmt.Sprintf("Waited %s.", duration)),
	}}, nil
}

func (t *ComputerTool) command(ctx context.Context, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, computerActionTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	if t.display != "" {
		cmd.Env = append(os.Environ(), "DISPLAY="+t.display)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func checkCoordinate(coord []int) (x, y int, err error) {
	if len(coord) != 2 {
		return 0, 0, fmt.Errorf("computer: coordinate must be [x, y]")
	}
	if coord[0] < 0 || coord[1] < 0 {
		return 0, 0, fmt.Errorf("computer: coordinate values must be non-negative")
	}
	return coord[0], coord[1], nil
}
