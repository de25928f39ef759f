package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/calebreed/agentdesk/llm"
)

// snippetLines is how much context surrounds an edit in the reported snippet.
const snippetLines = 4

// EditTool views and edits text files. Every mutating command pushes the
// prior content onto a per-file history so undo_edit can roll it back.
type EditTool struct {
	history map[string][]string
}

type editInput struct {
	Command    string `json:"command"`
	Path       string `json:"path"`
	FileText   string `json:"file_text"`
	OldStr     string `json:"old_str"`
	NewStr     string `json:"new_str"`
	InsertLine int    `json:"insert_line"`
	ViewRange  []int  `json:"view_range"`
}

// NewEditTool creates an EditTool with empty undo history.
func NewEditTool() *EditTool {
	return &EditTool{history: make(map[string][]string)}
}

func (t *EditTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name: "str_edit",
		Description: "View, create, and edit text files. Commands: view (file or " +
			"directory), create, str_replace (old_str must occur exactly once), " +
			"insert (after insert_line), undo_edit.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type": "string",
					"enum": []string{"view", "create", "str_replace", "insert", "undo_edit"},
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Absolute path to the file or directory.",
				},
				"file_text": map[string]any{
					"type":        "string",
					"description": "Content for the create command.",
				},
				"old_str": map[string]any{
					"type":        "string",
					"description": "Exact text to replace; must occur exactly once.",
				},
				"new_str": map[string]any{
					"type":        "string",
					"description": "Replacement text for str_replace, or the text to insert.",
				},
				"insert_line": map[string]any{
					"type":        "integer",
					"description": "Line number after which to insert (0 inserts at the top).",
				},
				"view_range": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"description": "Two line numbers [start, end] to view; end -1 means through the last line.",
				},
			},
			"required": []string{"command", "path"},
		},
	}
}

func (t *EditTool) Execute(ctx context.Context, inv Invocation) (Result, error) {
	var in editInput
	if err := decodeInput(inv.Input, &in); err != nil {
		return Result{}, err
	}

	if err := t.validatePath(in.Command, in.Path); err != nil {
		return Result{}, err
	}

	switch in.Command {
	case "view":
		return t.view(in.Path, in.ViewRange)
	case "create":
		return t.create(in.Path, in.FileText)
	case "str_replace":
		return t.strReplace(in.Path, in.OldStr, in.NewStr)
	case "insert":
		return t.insert(in.Path, in.InsertLine, in.NewStr)
	case "undo_edit":
		return t.undoEdit(in.Path)
	default:
		return Result{}, fmt.Errorf("unrecognized command %q; allowed: view, create, str_replace, insert, undo_edit", in.Command)
	}
}

func (t *EditTool) validatePath(command, path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("the path %s is not absolute; it should start with /", path)
	}
	info, err := os.Stat(path)
	switch {
	case err != nil && command != "create":
		return fmt.Errorf("the path %s does not exist", path)
	case err == nil && command == "create":
		return fmt.Errorf("file already exists at %s; create cannot overwrite", path)
	case err == nil && info.IsDir() && command != "view":
		return fmt.Errorf("the path %s is a directory; only the view command works on directories", path)
	}
	return nil
}

func (t *EditTool) view(path string, viewRange []int) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		if len(viewRange) > 0 {
			return Result{}, fmt.Errorf("view_range is not allowed when path is a directory")
		}
		return t.viewDirectory(path)
	}

	content, err := readFile(path)
	if err != nil {
		return Result{}, err
	}

	initLine := 1
	if len(viewRange) > 0 {
		lines := strings.Split(content, "\n")
		start, end, err := checkViewRange(viewRange, len(lines))
		if err != nil {
			return Result{}, err
		}
		initLine = start
		if end == -1 {
			content = strings.Join(lines[start-1:], "\n")
		} else {
			content = strings.Join(lines[start-1:end], "\n")
		}
	}

	return Result{Status: StatusOK, Segments: []Segment{
		TextSegment(fmt.Sprintf("Contents of %s:", path)),
		TextSegment(truncateFor("str_edit", numberLines(content, initLine))),
	}}, nil
}

// viewDirectory lists entries up to two levels deep, skipping hidden names.
func (t *EditTool) viewDirectory(path string) (Result, error) {
	var entries []string
	root := filepath.Clean(path)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p == root {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		entries = append(entries, p)
		if d.IsDir() && strings.Count(rel, string(filepath.Separator)) >= 1 {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("list %s: %w", path, err)
	}

	return Result{Status: StatusOK, Segments: []Segment{
		TextSegment(fmt.Sprintf("Files and directories up to 2 levels deep in %s, excluding hidden items:", path)),
		TextSegment(truncateFor("str_edit", strings.Join(entries, "\n"))),
	}}, nil
}

func (t *EditTool) create(path, fileText string) (Result, error) {
	if err := writeFile(path, fileText); err != nil {
		return Result{}, err
	}
	t.history[path] = append(t.history[path], fileText)
	return Result{Status: StatusOK, Segments: []Segment{
		TextSegment(fmt.Sprintf("File created successfully at %s", path)),
	}}, nil
}

func (t *EditTool) strReplace(path, oldStr, newStr string) (Result, error) {
	if oldStr == "" {
		return Result{}, fmt.Errorf("old_str is required for str_replace")
	}
	content, err := readFile(path)
	if err != nil {
		return Result{}, err
	}

	switch count := strings.Count(content, oldStr); {
	case count == 0:
		return Result{}, fmt.Errorf("no replacement performed: old_str did not appear verbatim in %s", path)
	case count > 1:
		var lineNums []string
		for i, line := range strings.Split(content, "\n") {
			if strings.Contains(line, oldStr) {
				lineNums = append(lineNums, fmt.Sprint(i+1))
			}
		}
		return Result{}, fmt.Errorf("no replacement performed: old_str occurs %d times in %s (lines %s); make it unique",
			count, path, strings.Join(lineNums, ", "))
	}

	newContent := strings.Replace(content, oldStr, newStr, 1)
	if err := writeFile(path, newContent); err != nil {
		return Result{}, err
	}
	t.history[path] = append(t.history[path], content)

	replacementLine := strings.Count(strings.SplitN(content, oldStr, 2)[0], "\n")
	snippet, startLine := snippetAround(newContent, replacementLine, strings.Count(newStr, "\n"))

	return Result{Status: StatusOK, Segments: []Segment{
		TextSegment(fmt.Sprintf("The file %s has been edited.", path)),
		TextSegment(numberLines(snippet, startLine)),
		TextSegment("Review the changes and make sure they are as expected. Edit the file again if necessary."),
	}}, nil
}

func (t *EditTool) insert(path string, insertLine int, newStr string) (Result, error) {
	content, err := readFile(path)
	if err != nil {
		return Result{}, err
	}
	lines := strings.Split(content, "\n")
	if insertLine < 0 || insertLine > len(lines) {
		return Result{}, fmt.Errorf("invalid insert_line %d; must be within [0, %d]", insertLine, len(lines))
	}

	inserted := strings.Split(newStr, "\n")
	updated := make([]string, 0, len(lines)+len(inserted))
	updated = append(updated, lines[:insertLine]...)
	updated = append(updated, inserted...)
	updated = append(updated, lines[insertLine:]...)

	newContent := strings.Join(updated, "\n")
	if err := writeFile(path, newContent); err != nil {
		return Result{}, err
	}
	t.history[path] = append(t.history[path], content)

	snippet, startLine := snippetAround(newContent, insertLine, len(inserted)-1)

	return Result{Status: StatusOK, Segments: []Segment{
		TextSegment(fmt.Sprintf("The file %s has been edited.", path)),
		TextSegment(numberLines(snippet, startLine)),
		TextSegment("Review the changes and make sure they are as expected. Edit the file again if necessary."),
	}}, nil
}

func (t *EditTool) undoEdit(path string) (Result, error) {
	stack := t.history[path]
	if len(stack) == 0 {
		return Result{}, fmt.Errorf("no edit history found for %s", path)
	}
	prev := stack[len(stack)-1]
	t.history[path] = stack[:len(stack)-1]

	if err := writeFile(path, prev); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusOK, Segments: []Segment{
		TextSegment(fmt.Sprintf("Last edit to %s undone successfully.", path)),
		TextSegment(truncateFor("str_edit", numberLines(prev, 1))),
	}}, nil
}

func (t *EditTool) Cleanup() error { return nil }

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func checkViewRange(viewRange []int, lineCount int) (start, end int, err error) {
	if len(viewRange) != 2 {
		return 0, 0, fmt.Errorf("invalid view_range: expected two integers [start, end]")
	}
	start, end = viewRange[0], viewRange[1]
	if start < 1 || start > lineCount {
		return 0, 0, fmt.Errorf("invalid view_range start %d; must be within [1, %d]", start, lineCount)
	}
	if end != -1 && end < start {
		return 0, 0, fmt.Errorf("invalid view_range end %d; must be -1 or >= start %d", end, start)
	}
	if end > lineCount {
		return 0, 0, fmt.Errorf("invalid view_range end %d; the file has %d lines", end, lineCount)
	}
	return start, end, nil
}

// numberLines renders content in cat -n style starting at initLine.
func numberLines(content string, initLine int) string {
	lines := strings.Split(content, "\n")
	numbered := make([]string, len(lines))
	for i, line := range lines {
		numbered[i] = fmt.Sprintf("%6d\t%s", i+initLine, line)
	}
	return strings.Join(numbered, "\n")
}

// snippetAround extracts the lines surrounding an edit at editLine (zero
// based), extended by extra lines for multi-line replacements. Returns the
// snippet and its one-based first line number.
func snippetAround(content string, editLine, extra int) (string, int) {
	lines := strings.Split(content, "\n")
	start := editLine - snippetLines
	if start < 0 {
		start = 0
	}
	end := editLine + snippetLines + extra + 1
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n"), start + 1
}
