package generation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quill/internal/duplicate"
	"quill/internal/generation"
	"quill/internal/knowledge"
	"quill/internal/logging"
	"quill/internal/publisher"
	"quill/internal/services"
	"quill/internal/services/llm"
	"quill/internal/store"
	"quill/internal/testsupport"
)

type fakeModel struct {
	mu           sync.Mutex
	analyzeErr   error
	generateErr  error
	analyzeCalls int
	order        []string
}

func (f *fakeModel) Analyze(_ context.Context, title, _ string) (*knowledge.ContentAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeCalls++
	f.order = append(f.order, title)
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &knowledge.ContentAnalysis{
		Summary:        "summary of " + title,
		SuggestedTitle: title + " (article)",
		KeyTopics:      []string{"go"},
	}, nil
}

func (f *fakeModel) Generate(_ context.Context, item *knowledge.Item, analysis *knowledge.ContentAnalysis, _ llm.GenerateOptions) (*knowledge.GeneratedArticle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &knowledge.GeneratedArticle{
		Title:   analysis.SuggestedTitle,
		Type:    knowledge.ArticleTech,
		Content: "# " + analysis.SuggestedTitle + "\n\n" + item.Content,
	}, nil
}

type fakePublisher struct {
	mu         sync.Mutex
	publishErr error
	published  []string
}

func (f *fakePublisher) Publish(_ context.Context, article *knowledge.Article) (*publisher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, article.ID)
	return &publisher.Result{
		Path:       "articles/" + article.Slug + ".md",
		URL:        "https://example/" + article.Slug,
		ContentSHA: "sha-" + article.Slug,
	}, nil
}

func newService(t *testing.T, st *store.Store, model *fakeModel, pub *fakePublisher) *generation.Service {
	t.Helper()
	detector := duplicate.NewDetector(st, logging.NewNop())
	return generation.NewService(st, detector, model, pub, logging.NewNop())
}

func TestProcessQueueCleanRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "Go Notes", "source content", knowledge.SourceText)
	model := &fakeModel{}
	pub := &fakePublisher{}
	svc := newService(t, st, model, pub)

	if _, err := svc.Enqueue(ctx, item.ID, 5, 3, 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := svc.ProcessQueue(ctx, 3); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	got, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Status != knowledge.StatusArticlePublished {
		t.Fatalf("expected article_published, got %s", got.Status)
	}
	article, err := st.GetArticleByKnowledge(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetArticleByKnowledge failed: %v", err)
	}
	if article == nil || !article.Published || article.GitHubSHA == "" {
		t.Fatalf("unexpected article: %#v", article)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.published))
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Completed != 1 || stats.SuccessRate != 1.0 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	logs, err := st.ListArticleLogs(ctx, item.ID, 10)
	if err != nil {
		t.Fatalf("ListArticleLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Status != "success" {
		t.Fatalf("unexpected attempt logs: %#v", logs)
	}
}

func TestEnqueueRejectsActiveEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "Once", "body", knowledge.SourceText)
	svc := newService(t, st, &fakeModel{}, &fakePublisher{})

	if _, err := svc.Enqueue(ctx, item.ID, 5, 3, time.Minute); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	_, err := svc.Enqueue(ctx, item.ID, 5, 3, time.Minute)
	if !errors.Is(err, generation.ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
}

func TestTransientFailureReschedulesWithBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "Flaky", "body", knowledge.SourceText)
	model := &fakeModel{analyzeErr: services.Wrap(services.ErrTransient, "llm", "analyze", "upstream 503", nil)}
	svc := newService(t, st, model, &fakePublisher{})

	entry, err := svc.Enqueue(ctx, item.ID, 5, 3, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	before := time.Now().UTC()
	if _, err := svc.ProcessQueue(ctx, 1); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	got, err := st.GetQueueEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetQueueEntry failed: %v", err)
	}
	if got.Status != knowledge.QueuePending || got.RetryCount != 1 {
		t.Fatalf("expected rescheduled entry, got %#v", got)
	}
	// First retry waits 2^1 minutes.
	wait := got.ScheduledAt.Sub(before)
	if wait < 90*time.Second || wait > 150*time.Second {
		t.Fatalf("expected roughly 2m backoff, got %s", wait)
	}

	// The item must not be pushed to error while retries remain.
	gotItem, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if gotItem.Status == knowledge.StatusError {
		t.Fatal("item must not enter error while retries remain")
	}
}

func TestExhaustedRetriesFailEntryAndItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "Doomed", "body", knowledge.SourceText)
	model := &fakeModel{analyzeErr: services.Wrap(services.ErrTransient, "llm", "analyze", "upstream 503", nil)}
	svc := newService(t, st, model, &fakePublisher{})

	entry, err := svc.Enqueue(ctx, item.ID, 5, 2, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// First attempt reschedules; force eligibility and run the final attempt.
	if _, err := svc.ProcessQueue(ctx, 1); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if err := st.ScheduleEntryNow(ctx, entry.ID); err != nil {
		t.Fatalf("force schedule: %v", err)
	}
	if _, err := svc.ProcessQueue(ctx, 1); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	got, err := st.GetQueueEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetQueueEntry failed: %v", err)
	}
	if got.Status != knowledge.QueueFailed {
		t.Fatalf("expected failed entry, got %s", got.Status)
	}
	gotItem, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if gotItem.Status != knowledge.StatusError || gotItem.ErrorMessage == "" {
		t.Fatalf("expected errored item with message, got %#v", gotItem)
	}

	logs, err := st.ListArticleLogs(ctx, item.ID, 10)
	if err != nil {
		t.Fatalf("ListArticleLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected one log per attempt, got %d", len(logs))
	}
}

func TestConfigurationErrorIsTerminalImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "Misconfigured", "body", knowledge.SourceText)
	model := &fakeModel{analyzeErr: services.Wrap(services.ErrConfiguration, "llm", "analyze", "bad key", nil)}
	svc := newService(t, st, model, &fakePublisher{})

	entry, err := svc.Enqueue(ctx, item.ID, 5, 3, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := svc.ProcessQueue(ctx, 1); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	got, err := st.GetQueueEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetQueueEntry failed: %v", err)
	}
	if got.Status != knowledge.QueueFailed || got.RetryCount != 0 {
		t.Fatalf("expected immediate terminal failure, got %#v", got)
	}
}

func TestDuplicateCompletesWithoutArticle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	original := testsupport.NewItem(t, st, "Original", "identical body", knowledge.SourceText)
	if err := st.CreateArticle(ctx, &knowledge.Article{
		KnowledgeID: original.ID,
		Title:       "Original",
		Slug:        "original-x",
		Content:     "# Original",
	}); err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}

	dup := testsupport.NewItem(t, st, "Original", "identical body", knowledge.SourceText)
	model := &fakeModel{}
	svc := newService(t, st, model, &fakePublisher{})

	entry, err := svc.Enqueue(ctx, dup.ID, 5, 3, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := svc.ProcessQueue(ctx, 1); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	got, err := st.GetQueueEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetQueueEntry failed: %v", err)
	}
	if got.Status != knowledge.QueueCompleted {
		t.Fatalf("expected completed entry, got %s", got.Status)
	}
	if model.analyzeCalls != 0 {
		t.Fatal("duplicate must not reach the model")
	}
	article, err := st.GetArticleByKnowledge(ctx, dup.ID)
	if err != nil {
		t.Fatalf("GetArticleByKnowledge failed: %v", err)
	}
	if article != nil {
		t.Fatal("duplicate must not create a second article")
	}
}

func TestPriorityOrderingSequential(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	low := testsupport.NewItem(t, st, "Low", "low body", knowledge.SourceText)
	high := testsupport.NewItem(t, st, "High", "high body", knowledge.SourceText)
	model := &fakeModel{}
	svc := newService(t, st, model, &fakePublisher{})

	if _, err := svc.Enqueue(ctx, low.ID, 5, 3, 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := svc.Enqueue(ctx, high.ID, 1, 3, 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// maxConcurrent=1 selects only the top entry per invocation.
	if _, err := svc.ProcessQueue(ctx, 1); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if _, err := svc.ProcessQueue(ctx, 1); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	if len(model.order) != 2 || model.order[0] != "High" || model.order[1] != "Low" {
		t.Fatalf("unexpected processing order: %v", model.order)
	}
}

func TestRetryFailedRequeues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "Recoverable", "body", knowledge.SourceText)
	model := &fakeModel{analyzeErr: services.Wrap(services.ErrConfiguration, "llm", "analyze", "bad key", nil)}
	svc := newService(t, st, model, &fakePublisher{})

	entry, err := svc.Enqueue(ctx, item.ID, 5, 3, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := svc.ProcessQueue(ctx, 1); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	reset, err := svc.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if len(reset) != 1 || reset[0] != entry.ID {
		t.Fatalf("unexpected reset ids: %v", reset)
	}

	// Fix the model and reset the item so the retried entry can succeed.
	model.mu.Lock()
	model.analyzeErr = nil
	model.mu.Unlock()
	if err := st.ResetFromError(ctx, item.ID); err != nil {
		t.Fatalf("ResetFromError failed: %v", err)
	}
	if _, err := svc.ProcessQueue(ctx, 1); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	got, err := st.GetQueueEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetQueueEntry failed: %v", err)
	}
	if got.Status != knowledge.QueueCompleted {
		t.Fatalf("expected completed after retry, got %s", got.Status)
	}
}
