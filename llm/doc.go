// Package llm is the provider-facing client layer for the agent loop.
//
// It models the block-based messages protocol the loop speaks: every message
// is an ordered sequence of typed content blocks (text, thinking, tool_use,
// tool_result, image), messages strictly alternate user/assistant, and every
// tool_use block in an assistant message must be answered by exactly one
// tool_result block in the next user message.
//
// Two client implementations are provided:
//
//   - MessagesClient speaks the native HTTP messages API, including tool use,
//     thinking blocks, and rate-limit aware retry.
//   - GollmClient wraps a gollm.LLM for text-only smoke runs against
//     providers without a messages endpoint. It never reports tool use.
//
// Errors are typed by HTTP status; IsRetryable drives the retry policy:
// 429 and 5xx retry with jittered exponential backoff (honoring Retry-After),
// other 4xx surface immediately.
package llm
