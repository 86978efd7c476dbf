package sweep_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"quill/internal/duplicate"
	"quill/internal/generation"
	"quill/internal/knowledge"
	"quill/internal/logging"
	"quill/internal/notionsync"
	"quill/internal/publisher"
	"quill/internal/services/llm"
	"quill/internal/services/notion"
	"quill/internal/store"
	"quill/internal/sweep"
	"quill/internal/testsupport"
)

type fakePages struct {
	mu    sync.Mutex
	pages map[string]*notion.Page
}

func (f *fakePages) FetchPage(_ context.Context, pageID string) (*notion.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[pageID], nil
}

type fakeModel struct{}

func (fakeModel) Analyze(_ context.Context, title, _ string) (*knowledge.ContentAnalysis, error) {
	return &knowledge.ContentAnalysis{Summary: "summary", SuggestedTitle: title}, nil
}

func (fakeModel) Generate(_ context.Context, item *knowledge.Item, analysis *knowledge.ContentAnalysis, _ llm.GenerateOptions) (*knowledge.GeneratedArticle, error) {
	return &knowledge.GeneratedArticle{
		Title:   analysis.SuggestedTitle,
		Type:    knowledge.ArticleTech,
		Content: item.Content,
	}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published int
}

func (f *fakePublisher) Publish(_ context.Context, article *knowledge.Article) (*publisher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published++
	return &publisher.Result{
		Path:       "articles/" + article.Slug + ".md",
		ContentSHA: "sha-" + article.Slug,
	}, nil
}

func newRunner(t *testing.T, pages *fakePages) (*sweep.Runner, *store.Store, *fakePublisher) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	pub := &fakePublisher{}
	detector := duplicate.NewDetector(st, logging.NewNop())
	svc := generation.NewService(st, detector, fakeModel{}, pub, logging.NewNop())
	engine := notionsync.NewEngine(st, pages, svc, notionsync.Options{
		EnqueuePriority: 5,
		QueueMaxRetries: 3,
	}, logging.NewNop())
	engine.WithSleeper(func(context.Context, time.Duration) error { return nil })
	return sweep.NewRunner(cfg, engine, svc, logging.NewNop()), st, pub
}

func TestSweepSyncsThenDrainsQueue(t *testing.T) {
	pages := &fakePages{pages: map[string]*notion.Page{
		"page-1": {
			ID:             "page-1",
			Title:          "Updated Title",
			Content:        "updated content",
			LastEditedTime: time.Now().UTC(),
		},
	}}
	runner, st, pub := newRunner(t, pages)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "Old Title", "old content", knowledge.SourceNotion)
	testsupport.NewReference(t, st, item.ID, "page-1")

	result, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Skipped {
		t.Fatal("sweep must not skip when uncontended")
	}
	if result.RunID == "" {
		t.Fatal("expected a run id")
	}
	if result.SyncStats.Changed != 1 || result.SyncStats.Enqueued != 1 {
		t.Fatalf("unexpected sync stats: %#v", result.SyncStats)
	}

	got, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Status != knowledge.StatusArticlePublished {
		t.Fatalf("sweep must drain the enqueued work, item status %s", got.Status)
	}
	if pub.published != 1 {
		t.Fatalf("expected one publish, got %d", pub.published)
	}
	if result.QueueStats.Completed != 1 {
		t.Fatalf("unexpected queue stats: %#v", result.QueueStats)
	}
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	pages := &fakePages{pages: map[string]*notion.Page{}}
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	pub := &fakePublisher{}
	detector := duplicate.NewDetector(st, logging.NewNop())
	svc := generation.NewService(st, detector, fakeModel{}, pub, logging.NewNop())
	engine := notionsync.NewEngine(st, pages, svc, notionsync.Options{}, logging.NewNop())
	runner := sweep.NewRunner(cfg, engine, svc, logging.NewNop())

	other := flock.New(filepath.Join(cfg.Paths.DataDir, "sweep.lock"))
	held, err := other.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if !held {
		t.Fatal("test lock must acquire")
	}
	defer other.Unlock()

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Skipped {
		t.Fatal("contended sweep must skip")
	}
	if result.SyncStats.Scanned != 0 {
		t.Fatalf("skipped sweep must do no work: %#v", result.SyncStats)
	}
}

func TestSweepFreshReferenceIsNotRescanned(t *testing.T) {
	edited := time.Now().UTC().Add(-time.Hour)
	pages := &fakePages{pages: map[string]*notion.Page{
		"page-2": {
			ID:             "page-2",
			Title:          "Stable",
			Content:        "stable content",
			LastEditedTime: edited,
		},
	}}
	runner, st, pub := newRunner(t, pages)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "Stable", "stable content", knowledge.SourceNotion)
	testsupport.NewReference(t, st, item.ID, "page-2")

	// First run registers the hash and drains the regeneration it triggers.
	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	firstPublished := pub.published
	ref, err := st.GetReferenceByKnowledge(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetReferenceByKnowledge failed: %v", err)
	}
	if ref.LastSyncedAt == nil {
		t.Fatal("first run must stamp last_synced_at")
	}
	firstSynced := *ref.LastSyncedAt

	// A reference inside its sync frequency window is filtered out before the
	// batch, so it neither occupies a slot nor shows up in the stats.
	result, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if result.SyncStats.Scanned != 0 || result.SyncStats.Changed != 0 {
		t.Fatalf("fresh reference must not be scanned: %#v", result.SyncStats)
	}
	if pub.published != firstPublished {
		t.Fatalf("no-op sweep must not publish: %d -> %d", firstPublished, pub.published)
	}
	ref, err = st.GetReferenceByKnowledge(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetReferenceByKnowledge failed: %v", err)
	}
	if ref.LastSyncedAt == nil || !ref.LastSyncedAt.Equal(firstSynced) {
		t.Fatalf("last_synced_at drifted without a content change: %v -> %v", firstSynced, ref.LastSyncedAt)
	}
}
