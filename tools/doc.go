// Package tools implements the desktop-side capabilities the agent can
// invoke: a persistent shell, a persistent Python interpreter, a text file
// editor, and screen/input control for the X display.
//
// Tools are registered per conversation in a Registry. Dispatch resolves a
// tool_use request by name, decodes its input, and always produces a Result,
// mapping unknown tools, malformed input, and execution failures to
// error-status results rather than failing the conversation.
//
// The shell and Python tools hold pseudo-terminal backed sessions that
// survive across invocations. Sessions poll an interrupt check between reads
// so a long-running command can be abandoned mid-flight; an interrupted or
// timed-out process is forcibly terminated because its state is no longer
// trustworthy, and the next invocation starts a fresh session.
package tools
