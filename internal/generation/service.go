package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quill/internal/backoff"
	"quill/internal/duplicate"
	"quill/internal/knowledge"
	"quill/internal/logging"
	"quill/internal/publisher"
	"quill/internal/services"
	"quill/internal/services/llm"
	"quill/internal/store"
)

// ErrAlreadyQueued re-exports the store sentinel so callers depend on this
// package only.
var ErrAlreadyQueued = store.ErrAlreadyQueued

// Model is the slice of the language-model client the pipeline needs.
type Model interface {
	Analyze(ctx context.Context, title, content string) (*knowledge.ContentAnalysis, error)
	Generate(ctx context.Context, item *knowledge.Item, analysis *knowledge.ContentAnalysis, opts llm.GenerateOptions) (*knowledge.GeneratedArticle, error)
}

// Publisher is the slice of the publisher the pipeline needs.
type Publisher interface {
	Publish(ctx context.Context, article *knowledge.Article) (*publisher.Result, error)
}

// Service drives queued knowledge items through analysis, generation, and
// publishing.
type Service struct {
	store     *store.Store
	detector  *duplicate.Detector
	model     Model
	publisher Publisher
	policy    backoff.Policy
	logger    *slog.Logger

	mu         sync.Mutex
	processing map[int64]struct{}
}

// NewService constructs the generation queue service.
func NewService(st *store.Store, detector *duplicate.Detector, model Model, pub Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:      st,
		detector:   detector,
		model:      model,
		publisher:  pub,
		policy:     backoff.QueueRetry,
		logger:     logging.NewComponentLogger(logger, "generation"),
		processing: make(map[int64]struct{}),
	}
}

// Enqueue schedules a knowledge item for generation after delay. Returns
// ErrAlreadyQueued when a pending or processing entry exists.
func (s *Service) Enqueue(ctx context.Context, knowledgeID string, priority int, maxRetries int, delay time.Duration) (*knowledge.QueueEntry, error) {
	item, err := s.store.GetItem(ctx, knowledgeID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "generation", "enqueue", "knowledge item "+knowledgeID, nil)
	}

	// Fast pre-check; the partial unique index is the durable guard.
	active, err := s.store.ActiveQueueEntry(ctx, knowledgeID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, knowledgeID)
	}

	entry, err := s.store.EnqueueEntry(ctx, knowledgeID, priority, maxRetries, delay)
	if err != nil {
		return nil, err
	}
	s.logger.Info("entry enqueued",
		logging.Int64("entry_id", entry.ID),
		logging.String("knowledge_id", knowledgeID),
		logging.Int("priority", priority),
		logging.Duration("delay", delay))
	return entry, nil
}

// ProcessQueue drains eligible pending entries, running up to maxConcurrent
// pipelines concurrently. It returns the number of entries picked up once
// every selected entry has reached a pending (rescheduled), completed, or
// failed state.
func (s *Service) ProcessQueue(ctx context.Context, maxConcurrent int) (int, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	entries, err := s.store.SelectEligible(ctx, time.Now().UTC(), maxConcurrent)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	picked := 0
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrent)
	for _, entry := range entries {
		entry := entry
		if !s.markProcessing(entry.ID) {
			continue
		}
		picked++
		group.Go(func() error {
			defer s.unmarkProcessing(entry.ID)
			s.processEntry(groupCtx, entry)
			return nil
		})
	}
	return picked, group.Wait()
}

// processEntry runs one queue entry end to end. Failures never propagate:
// they are recorded on the entry (and the item, when terminal).
func (s *Service) processEntry(ctx context.Context, entry *knowledge.QueueEntry) {
	log := s.logger.With(
		logging.Int64("entry_id", entry.ID),
		logging.String("knowledge_id", entry.KnowledgeID))

	claimed, err := s.store.ClaimEntry(ctx, entry.ID)
	if err != nil {
		log.Error("claim failed", logging.Error(err))
		return
	}
	if !claimed {
		log.Debug("entry claimed elsewhere, skipping")
		return
	}

	item, err := s.store.GetItem(ctx, entry.KnowledgeID)
	if err == nil && item == nil {
		err = services.Wrap(services.ErrNotFound, "generation", "process", "knowledge item "+entry.KnowledgeID, nil)
	}

	var outcome pipelineOutcome
	if err == nil {
		outcome, err = s.runPipeline(ctx, item, log)
	}

	if err == nil {
		if completeErr := s.store.CompleteEntry(ctx, entry.ID); completeErr != nil {
			log.Error("complete failed", logging.Error(completeErr))
			return
		}
		status := "success"
		if outcome.duplicate {
			status = "duplicate"
		}
		s.logAttempt(ctx, entry, outcome.articleID, status, "", log)
		log.Info("entry completed", logging.String("article_id", outcome.articleID), logging.String("status", status))
		return
	}

	s.handleFailure(ctx, entry, err, log)
}

type pipelineOutcome struct {
	articleID string
	duplicate bool
}

// runPipeline advances a claimed item through its remaining stages. Already-
// reached stages are skipped so retried entries resume where they failed.
func (s *Service) runPipeline(ctx context.Context, item *knowledge.Item, log *slog.Logger) (pipelineOutcome, error) {
	var outcome pipelineOutcome

	match, err := s.detector.Check(ctx, item)
	if err != nil {
		return outcome, fmt.Errorf("duplicate check: %w", err)
	}
	if match != nil {
		log.Info("duplicate source, skipping generation",
			logging.String("original_article_id", match.ArticleID),
			logging.Float64("score", match.Score))
		outcome.duplicate = true
		return outcome, nil
	}

	if item.Analysis == nil {
		analysis, err := s.model.Analyze(ctx, item.Title, item.Content)
		if err != nil {
			return outcome, err
		}
		if err := s.store.SaveAnalysis(ctx, item.ID, analysis); err != nil {
			return outcome, err
		}
		item.Analysis = analysis
		item.Status = knowledge.StatusContentAnalyzed
	}

	article, err := s.ensureArticle(ctx, item)
	if err != nil {
		return outcome, err
	}
	outcome.articleID = article.ID

	if item.Status == knowledge.StatusArticleGenerated {
		result, err := s.publisher.Publish(ctx, article)
		if err != nil {
			return outcome, err
		}
		// Published state always carries the remote content version.
		if result.ContentSHA == "" {
			return outcome, services.Wrap(services.ErrTransient, "generation", "publish", "missing content sha for "+article.ID, nil)
		}
		article.Published = true
		if err := s.store.MarkArticlePublished(ctx, article.ID, result.URL, result.ContentSHA); err != nil {
			return outcome, err
		}
		if err := s.store.MarkItemPublished(ctx, item.ID); err != nil {
			return outcome, err
		}
		item.Status = knowledge.StatusArticlePublished
	}
	return outcome, nil
}

// ensureArticle generates and persists the Article row, or reloads it when a
// prior attempt already got that far.
func (s *Service) ensureArticle(ctx context.Context, item *knowledge.Item) (*knowledge.Article, error) {
	if item.Status == knowledge.StatusArticleGenerated || item.Status == knowledge.StatusArticlePublished {
		article, err := s.store.GetArticleByKnowledge(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if article != nil {
			return article, nil
		}
		// Payload recorded but the Article row is missing; regenerate from
		// the persisted payload rather than calling the model again.
		if item.Generated != nil {
			return s.persistArticle(ctx, item, item.Generated)
		}
	}

	generated, err := s.model.Generate(ctx, item, item.Analysis, llm.GenerateOptions{
		Category: item.Category,
		Tags:     item.Tags,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveGenerated(ctx, item.ID, generated); err != nil {
		return nil, err
	}
	item.Generated = generated
	item.Status = knowledge.StatusArticleGenerated
	return s.persistArticle(ctx, item, generated)
}

func (s *Service) persistArticle(ctx context.Context, item *knowledge.Item, generated *knowledge.GeneratedArticle) (*knowledge.Article, error) {
	article := &knowledge.Article{
		KnowledgeID: item.ID,
		Title:       generated.Title,
		Slug:        publisher.Slug(generated.Title, time.Now().UTC()),
		Content:     generated.Content,
		Emoji:       generated.Emoji,
		Type:        generated.Type,
		Topics:      generated.Topics,
		Metadata:    generated.Metadata,
	}
	if err := s.store.CreateArticle(ctx, article); err != nil {
		return nil, err
	}
	return article, nil
}

// handleFailure applies the single retry-or-terminal decision for a failed
// attempt.
func (s *Service) handleFailure(ctx context.Context, entry *knowledge.QueueEntry, cause error, log *slog.Logger) {
	newRetryCount := entry.RetryCount + 1
	if services.Retryable(cause) && newRetryCount < entry.MaxRetries {
		delay := s.policy.Delay(newRetryCount)
		next := time.Now().UTC().Add(delay)
		if err := s.store.RescheduleEntry(ctx, entry.ID, next, cause.Error()); err != nil {
			log.Error("reschedule failed", logging.Error(err))
			return
		}
		s.logAttempt(ctx, entry, "", "retry_scheduled", cause.Error(), log)
		log.Warn("attempt failed, rescheduled",
			logging.Int("retry_count", newRetryCount),
			logging.Duration("delay", delay),
			logging.Error(cause))
		return
	}

	if err := s.store.FailEntry(ctx, entry.ID, cause.Error()); err != nil {
		log.Error("fail transition failed", logging.Error(err))
		return
	}
	if err := s.store.MarkItemError(ctx, entry.KnowledgeID, cause.Error()); err != nil {
		log.Error("mark item error failed", logging.Error(err))
	}
	s.logAttempt(ctx, entry, "", "failed", cause.Error(), log)
	log.Error("entry failed permanently",
		logging.Int("retry_count", entry.RetryCount),
		logging.Error(cause))
}

func (s *Service) logAttempt(ctx context.Context, entry *knowledge.QueueEntry, articleID, status, message string, log *slog.Logger) {
	err := s.store.AppendArticleLog(ctx, &knowledge.ArticleLog{
		KnowledgeID: entry.KnowledgeID,
		ArticleID:   articleID,
		Action:      "generate",
		Status:      status,
		Message:     message,
		Metadata: map[string]any{
			"entry_id":    entry.ID,
			"retry_count": entry.RetryCount,
		},
	})
	if err != nil {
		log.Warn("append attempt log failed", logging.Error(err))
	}
}

// Stats summarizes queue health.
type Stats struct {
	Pending     int     `json:"pending"`
	Processing  int     `json:"processing"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Stats returns counts by status plus the completed-over-finished ratio.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.QueueStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Pending:    counts[knowledge.QueuePending],
		Processing: counts[knowledge.QueueProcessing],
		Completed:  counts[knowledge.QueueCompleted],
		Failed:     counts[knowledge.QueueFailed],
	}
	if finished := stats.Completed + stats.Failed; finished > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(finished)
	}
	return stats, nil
}

// RetryFailed resets failed entries (all, or the given ids) to pending with
// fresh retry budgets.
func (s *Service) RetryFailed(ctx context.Context, ids ...int64) ([]int64, error) {
	reset, err := s.store.RetryFailedEntries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	if len(reset) > 0 {
		s.logger.Info("failed entries requeued", logging.Int("count", len(reset)))
	}
	return reset, nil
}

func (s *Service) markProcessing(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.processing[id]; exists {
		return false
	}
	s.processing[id] = struct{}{}
	return true
}

func (s *Service) unmarkProcessing(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processing, id)
}
