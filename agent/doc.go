// Package agent drives the conversation loop between the user, the model,
// and the desktop tools.
//
// The Loop owns one conversation: it appends the user's input to the Store,
// calls the model, executes any requested tools through the tool registry,
// and feeds the results back until the model stops asking for tools. The
// Store enforces the wire protocol's alternation rules, so a malformed
// history is rejected at append time rather than by the provider.
//
// A Signal carries the user's stop intent. The presentation layer sets it
// from any goroutine; the loop and the running tools consume it at the next
// poll point. One stop request cancels at most one unit of work: the
// in-flight model call, or the current tool batch as a whole.
package agent
