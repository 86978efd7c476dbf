package notionsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quill/internal/backoff"
	"quill/internal/knowledge"
	"quill/internal/logging"
	"quill/internal/services"
	"quill/internal/services/notion"
	"quill/internal/store"
)

// PageSource is the slice of the Notion client the engine needs.
type PageSource interface {
	FetchPage(ctx context.Context, pageID string) (*notion.Page, error)
}

// Enqueuer schedules regeneration for a knowledge item whose source changed.
type Enqueuer interface {
	Enqueue(ctx context.Context, knowledgeID string, priority, maxRetries int, delay time.Duration) (*knowledge.QueueEntry, error)
}

// Options tune sync behavior.
type Options struct {
	// EnqueuePriority is assigned to entries created by content drift.
	EnqueuePriority int
	// EnqueueDelay debounces regeneration after a detected change.
	EnqueueDelay time.Duration
	// QueueMaxRetries is passed through to created queue entries.
	QueueMaxRetries int
	// SweepWorkers bounds concurrent reference syncs during a sweep.
	SweepWorkers int
}

// Engine reconciles local knowledge items against their Notion pages.
type Engine struct {
	store    *store.Store
	source   PageSource
	enqueuer Enqueuer
	opts     Options
	policy   backoff.Policy
	sleeper  func(context.Context, time.Duration) error
	logger   *slog.Logger
}

// NewEngine constructs a sync engine.
func NewEngine(st *store.Store, source PageSource, enqueuer Enqueuer, opts Options, logger *slog.Logger) *Engine {
	if opts.EnqueuePriority <= 0 {
		opts.EnqueuePriority = 5
	}
	if opts.QueueMaxRetries <= 0 {
		opts.QueueMaxRetries = 3
	}
	if opts.SweepWorkers <= 0 {
		opts.SweepWorkers = 4
	}
	return &Engine{
		store:    st,
		source:   source,
		enqueuer: enqueuer,
		opts:     opts,
		policy:   backoff.SyncRetry,
		sleeper:  sleepContext,
		logger:   logging.NewComponentLogger(logger, "notionsync"),
	}
}

// Outcome describes a completed single-reference sync.
type Outcome struct {
	ReferenceID string
	Changed     bool
	Enqueued    bool
	Changes     []knowledge.ContentChange
}

// SweepStats aggregates one sync sweep.
type SweepStats struct {
	Scanned   int `json:"scanned"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Enqueued  int `json:"enqueued"`
}

// SyncAllActiveReferences sweeps auto-sync references stalest first, bounded
// by batchSize, retrying each reference up to maxRetries times with
// exponential backoff. References whose sync frequency window has not elapsed
// are filtered out before the batch cap so they never displace due work.
// Exhausted references get a failed sync log and the sweep continues.
func (e *Engine) SyncAllActiveReferences(ctx context.Context, batchSize, maxRetries int) (SweepStats, error) {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	active, err := e.store.ListActiveReferences(ctx, 0)
	if err != nil {
		return SweepStats{}, err
	}
	now := time.Now()
	refs := active[:0]
	for _, ref := range active {
		if referenceDue(ref, now) {
			refs = append(refs, ref)
		}
	}
	if batchSize > 0 && len(refs) > batchSize {
		refs = refs[:batchSize]
	}

	var (
		mu    sync.Mutex
		stats SweepStats
	)
	stats.Scanned = len(refs)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.SweepWorkers)
	for _, ref := range refs {
		ref := ref
		group.Go(func() error {
			outcome, err := e.syncWithRetry(groupCtx, ref.ID, knowledge.SyncScheduled, maxRetries)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Failed++
			case outcome.Changed:
				stats.Changed++
				if outcome.Enqueued {
					stats.Enqueued++
				}
			default:
				stats.Unchanged++
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return stats, err
	}
	e.logger.Info("sync sweep finished",
		logging.Int("scanned", stats.Scanned),
		logging.Int("changed", stats.Changed),
		logging.Int("failed", stats.Failed))
	return stats, nil
}

func (e *Engine) syncWithRetry(ctx context.Context, referenceID string, syncType knowledge.SyncType, maxRetries int) (*Outcome, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		outcome, err := e.SyncSingleReference(ctx, referenceID, syncType, false)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if !services.Retryable(err) || attempt == maxRetries {
			break
		}
		if sleepErr := e.sleeper(ctx, e.policy.Delay(attempt)); sleepErr != nil {
			return nil, sleepErr
		}
	}

	e.logger.Warn("reference sync exhausted",
		logging.String("reference_id", referenceID),
		logging.Error(lastErr))
	e.appendLog(ctx, referenceID, syncType, "failed", false, nil, lastErr, 0)
	return nil, lastErr
}

// SyncSingleReference fetches the page behind a reference and reconciles it.
// No-op syncs mutate nothing beyond last_synced_at. Content drift updates
// the item and reference transactionally and enqueues regeneration.
func (e *Engine) SyncSingleReference(ctx context.Context, referenceID string, syncType knowledge.SyncType, force bool) (*Outcome, error) {
	started := time.Now()

	ref, err := e.store.GetReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, services.Wrap(services.ErrNotFound, "notionsync", "sync", "reference "+referenceID, nil)
	}
	log := e.logger.With(
		logging.String("reference_id", ref.ID),
		logging.String("page_id", ref.PageID))

	page, err := e.source.FetchPage(ctx, ref.PageID)
	if err != nil {
		return nil, err
	}

	newHash := ContentHash(page.Title, page.Content, page.LastEditedTime)
	changed := force || newHash != ref.ContentHash
	if !changed && ref.NotionUpdatedAt != nil && page.LastEditedTime.After(*ref.NotionUpdatedAt) {
		// Hash collision or hash-input drift; trust the source timestamp.
		changed = true
	}

	// No-change syncs leave the reference row alone: only the audit log
	// records that the page was checked.
	outcome := &Outcome{ReferenceID: ref.ID}
	if !changed {
		e.appendLog(ctx, ref.ID, syncType, "success", false, nil, nil, time.Since(started))
		log.Debug("reference unchanged")
		return outcome, nil
	}

	// Identical content already tracked behind another reference: audit the
	// collision and skip regeneration.
	twins, err := e.store.FindReferencesByHash(ctx, newHash, ref.ID)
	if err != nil {
		return nil, err
	}
	if len(twins) > 0 {
		e.recordTwin(ctx, twins[0], newHash, log)
		e.appendLog(ctx, ref.ID, syncType, "success", false, nil, nil, time.Since(started))
		log.Info("content duplicated across references, skipping",
			logging.String("twin_reference_id", twins[0].ID))
		return outcome, nil
	}

	item, err := e.store.GetItem(ctx, ref.KnowledgeID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "notionsync", "sync", "knowledge item "+ref.KnowledgeID, nil)
	}

	changes := DiffContent(item, page)
	if err := e.store.ApplySyncResult(ctx, ref, page.Title, page.Content, newHash, page.LastEditedTime); err != nil {
		return nil, err
	}
	outcome.Changed = true
	outcome.Changes = changes

	if _, err := e.enqueuer.Enqueue(ctx, ref.KnowledgeID, e.opts.EnqueuePriority, e.opts.QueueMaxRetries, e.opts.EnqueueDelay); err != nil {
		if !errors.Is(err, store.ErrAlreadyQueued) {
			return outcome, err
		}
		log.Debug("regeneration already queued")
	} else {
		outcome.Enqueued = true
	}

	e.appendLog(ctx, ref.ID, syncType, "success", true, changes, nil, time.Since(started))
	log.Info("reference synced",
		logging.Int("changes", len(changes)),
		logging.Bool("enqueued", outcome.Enqueued))
	return outcome, nil
}

// ShouldSync reports whether a reference's sync interval has elapsed.
func (e *Engine) ShouldSync(ctx context.Context, referenceID string) (bool, error) {
	ref, err := e.store.GetReference(ctx, referenceID)
	if err != nil {
		return false, err
	}
	if ref == nil {
		return false, services.Wrap(services.ErrNotFound, "notionsync", "should sync", "reference "+referenceID, nil)
	}
	return referenceDue(ref, time.Now()), nil
}

// Stats aggregates sync outcomes over the past N days.
type Stats struct {
	Total           int     `json:"total"`
	Succeeded       int     `json:"succeeded"`
	Failed          int     `json:"failed"`
	ChangesDetected int     `json:"changes_detected"`
	SuccessRate     float64 `json:"success_rate"`
}

// Stats summarizes sync_logs over a trailing window.
func (e *Engine) Stats(ctx context.Context, days int) (Stats, error) {
	if days <= 0 {
		days = 7
	}
	totals, err := e.store.SyncStatsSince(ctx, time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Total:           totals.Total,
		Succeeded:       totals.Succeeded,
		Failed:          totals.Failed,
		ChangesDetected: totals.ChangesDetected,
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	return stats, nil
}

func referenceDue(ref *knowledge.Reference, now time.Time) bool {
	if ref.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*ref.LastSyncedAt) >= ref.SyncFrequency.Interval()
}

func (e *Engine) recordTwin(ctx context.Context, twin *knowledge.Reference, hash string, log *slog.Logger) {
	target := twin.KnowledgeID
	if article, err := e.store.GetArticleByKnowledge(ctx, twin.KnowledgeID); err == nil && article != nil {
		target = article.ID
	}
	if err := e.store.RecordDuplication(ctx, target, hash, 1.0); err != nil {
		log.Warn("record cross-reference duplication failed", logging.Error(err))
	}
}

func (e *Engine) appendLog(ctx context.Context, referenceID string, syncType knowledge.SyncType, status string, changed bool, changes []knowledge.ContentChange, cause error, duration time.Duration) {
	entry := &knowledge.SyncLog{
		ReferenceID:     referenceID,
		SyncType:        syncType,
		Status:          status,
		ChangesDetected: changed,
		ContentChanges:  changes,
		Duration:        duration,
	}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
	}
	if err := e.store.AppendSyncLog(ctx, entry); err != nil {
		e.logger.Warn("append sync log failed",
			logging.String("reference_id", referenceID),
			logging.Error(err))
	}
}

type hashInput struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	LastEditedTime string `json:"last_edited_time"`
}

// ContentHash fingerprints the sync-relevant view of a page. The JSON
// encoding fixes field order so the hash is stable across versions.
func ContentHash(title, content string, lastEdited time.Time) string {
	payload, _ := json.Marshal(hashInput{
		Title:          title,
		Content:        content,
		LastEditedTime: lastEdited.UTC().Format(time.RFC3339),
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// DiffContent builds the change list between the stored item and the fetched
// page. Previews are truncated to keep audit rows small.
func DiffContent(item *knowledge.Item, page *notion.Page) []knowledge.ContentChange {
	now := time.Now().UTC()
	var changes []knowledge.ContentChange
	if item.Title != page.Title {
		changes = append(changes, knowledge.ContentChange{
			Type:      "title",
			OldValue:  knowledge.TruncatePreview(item.Title),
			NewValue:  knowledge.TruncatePreview(page.Title),
			Timestamp: now,
		})
	}
	if item.Content != page.Content {
		changes = append(changes, knowledge.ContentChange{
			Type:      "content",
			OldValue:  knowledge.TruncatePreview(item.Content),
			NewValue:  knowledge.TruncatePreview(page.Content),
			Timestamp: now,
		})
	}
	return changes
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithSleeper overrides retry sleeping; tests use this to avoid real delays.
func (e *Engine) WithSleeper(sleeper func(context.Context, time.Duration) error) *Engine {
	if sleeper != nil {
		e.sleeper = sleeper
	}
	return e
}
