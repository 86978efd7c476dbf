// Package knowledge defines the domain model for the pipeline: knowledge
// items, their lifecycle state machine, Notion references, articles, queue
// entries, and the append-only audit records.
//
// The state machine moves strictly forward:
//
//	draft -> notion_referenced -> content_analyzed -> article_generated -> article_published
//
// with error reachable from any non-terminal state. Stage guards (analysis
// present, article persisted, publish SHA recorded) are enforced by the
// store when it persists a transition.
package knowledge
