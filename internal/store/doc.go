// Package store persists pipeline state in SQLite: knowledge items, Notion
// references, generated articles, the generation queue, and append-only audit
// logs. Timestamps are stored as RFC3339Nano TEXT in UTC. Status moves are
// conditional updates so concurrent sweeps cannot double-apply a transition.
package store
