// Package generation drains the durable queue of knowledge items, moving
// each through duplicate check, analysis, article generation, and publish.
// Claims are conditional updates in SQLite; the in-memory processing set is
// only a fast path for skipping work inside one invocation. The retry-or-
// terminal decision for a failed attempt lives here and nowhere else.
package generation
