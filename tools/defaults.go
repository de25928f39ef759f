package tools

import "time"

// Options configures the standard desktop toolset.
type Options struct {
	// Display is the X display for the computer tool, e.g. ":1". Empty uses
	// the ambient DISPLAY.
	Display string

	// PythonStartupCode runs in every fresh Python interpreter.
	PythonStartupCode string

	// CommandTimeout and MaxCommandTimeout bound shell and Python submits.
	// Zero selects the package defaults.
	CommandTimeout    time.Duration
	MaxCommandTimeout time.Duration
}

// NewDesktopRegistry assembles the standard per-conversation toolset: bash,
// python, str_edit, and computer. Each conversation needs its own registry
// because the session tools carry subprocess state.
func NewDesktopRegistry(opts Options) *Registry {
	r := NewRegistry()
	r.Register(NewBashTool(opts.CommandTimeout, opts.MaxCommandTimeout))
	r.Register(NewPythonTool(opts.PythonStartupCode, opts.CommandTimeout, opts.MaxCommandTimeout))
	r.Register(NewEditTool())
	r.Register(NewComputerTool(opts.Display))
	return r
}
