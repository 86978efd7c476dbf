package testsupport

import (
	"context"
	"testing"

	"quill/internal/config"
	"quill/internal/knowledge"
	"quill/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewItem creates a knowledge item for tests using the provided store.
func NewItem(t testing.TB, st *store.Store, title, content string, source knowledge.SourceType) *knowledge.Item {
	t.Helper()

	item := &knowledge.Item{
		Title:      title,
		Content:    content,
		SourceType: source,
	}
	if err := st.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("store.CreateItem: %v", err)
	}
	return item
}

// NewReference attaches a Notion reference to an item for tests.
func NewReference(t testing.TB, st *store.Store, knowledgeID, pageID string) *knowledge.Reference {
	t.Helper()

	ref := &knowledge.Reference{
		KnowledgeID:     knowledgeID,
		PageID:          pageID,
		AutoSyncEnabled: true,
	}
	if err := st.CreateReference(context.Background(), ref); err != nil {
		t.Fatalf("store.CreateReference: %v", err)
	}
	return ref
}
