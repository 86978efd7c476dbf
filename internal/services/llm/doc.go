// Package llm talks to a chat-completions model endpoint for content
// analysis and article generation. Responses are JSON-only; decoding
// tolerates the usual model quirks (code fences, surrounding prose) and
// tags unparseable payloads as retryable malformed-payload failures.
package llm
