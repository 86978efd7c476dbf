package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"quill/internal/knowledge"
)

// ErrAlreadyQueued indicates a knowledge item already has a pending or
// processing queue entry.
var ErrAlreadyQueued = errors.New("knowledge item already queued")

const queueColumns = "id, knowledge_id, status, priority, retry_count, max_retries, scheduled_at, started_at, completed_at, error_message, created_at, updated_at"

// EnqueueEntry inserts a pending queue entry scheduled delay from now. The
// partial unique index on active entries makes one-in-flight-per-item hold
// even across concurrent processes; a constraint hit maps to ErrAlreadyQueued.
func (s *Store) EnqueueEntry(ctx context.Context, knowledgeID string, priority, maxRetries int, delay time.Duration) (*knowledge.QueueEntry, error) {
	now := time.Now().UTC()
	scheduledAt := now.Add(delay)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO generation_queue (
            knowledge_id, status, priority, retry_count, max_retries,
            scheduled_at, created_at, updated_at
        ) VALUES (?, ?, ?, 0, ?, ?, ?, ?)`,
		knowledgeID,
		string(knowledge.QueuePending),
		priority,
		maxRetries,
		formatTime(scheduledAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, knowledgeID)
		}
		return nil, fmt.Errorf("enqueue entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &knowledge.QueueEntry{
		ID:          id,
		KnowledgeID: knowledgeID,
		Status:      knowledge.QueuePending,
		Priority:    priority,
		MaxRetries:  maxRetries,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetQueueEntry fetches a queue entry by id. Returns nil when missing.
func (s *Store) GetQueueEntry(ctx context.Context, id int64) (*knowledge.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM generation_queue WHERE id = ?`, id)
	entry, err := scanQueueEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return entry, nil
}

// ActiveQueueEntry returns the pending or processing entry for a knowledge
// item, or nil when none exists.
func (s *Store) ActiveQueueEntry(ctx context.Context, knowledgeID string) (*knowledge.QueueEntry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+queueColumns+` FROM generation_queue
         WHERE knowledge_id = ? AND status IN (?, ?)`,
		knowledgeID,
		string(knowledge.QueuePending),
		string(knowledge.QueueProcessing),
	)
	entry, err := scanQueueEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active queue entry: %w", err)
	}
	return entry, nil
}

// SelectEligible returns pending entries due to run as of now, lowest
// priority value first with FIFO tie-breaking, capped at limit.
func (s *Store) SelectEligible(ctx context.Context, now time.Time, limit int) ([]*knowledge.QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+queueColumns+` FROM generation_queue
         WHERE status = ? AND scheduled_at <= ? AND retry_count < max_retries
         ORDER BY priority, created_at
         LIMIT ?`,
		string(knowledge.QueuePending),
		formatTime(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select eligible entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

// ClaimEntry atomically moves a pending entry into processing. Returns false
// when the entry was already claimed, completed, or rescheduled by someone
// else. The conditional update is the sole correctness mechanism here.
func (s *Store) ClaimEntry(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE generation_queue
         SET status = ?, started_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(knowledge.QueueProcessing),
		formatTime(now),
		formatTime(now),
		id,
		string(knowledge.QueuePending),
	)
	if err != nil {
		return false, fmt.Errorf("claim queue entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CompleteEntry marks a processing entry completed.
func (s *Store) CompleteEntry(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE generation_queue
         SET status = ?, completed_at = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(knowledge.QueueCompleted),
		formatTime(now),
		formatTime(now),
		id,
		string(knowledge.QueueProcessing),
	)
	if err != nil {
		return fmt.Errorf("complete queue entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("queue entry %d is not processing", id)
	}
	return nil
}

// RescheduleEntry returns a processing entry to pending with an incremented
// retry count and a new scheduled_at. The caller computes the backoff delay
// from the incremented count.
func (s *Store) RescheduleEntry(ctx context.Context, id int64, scheduledAt time.Time, message string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE generation_queue
         SET status = ?, retry_count = retry_count + 1, scheduled_at = ?,
             started_at = NULL, error_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(knowledge.QueuePending),
		formatTime(scheduledAt.UTC()),
		message,
		formatTime(time.Now().UTC()),
		id,
		string(knowledge.QueueProcessing),
	)
	if err != nil {
		return fmt.Errorf("reschedule queue entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("queue entry %d is not processing", id)
	}
	return nil
}

// FailEntry marks a processing entry permanently failed.
func (s *Store) FailEntry(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE generation_queue
         SET status = ?, completed_at = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(knowledge.QueueFailed),
		formatTime(now),
		message,
		formatTime(now),
		id,
		string(knowledge.QueueProcessing),
	)
	if err != nil {
		return fmt.Errorf("fail queue entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("queue entry %d is not processing", id)
	}
	return nil
}

// ScheduleEntryNow moves a pending entry's scheduled_at to now so the next
// sweep picks it up without waiting out its backoff.
func (s *Store) ScheduleEntryNow(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE generation_queue SET scheduled_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		formatTime(now),
		formatTime(now),
		id,
		string(knowledge.QueuePending),
	)
	if err != nil {
		return fmt.Errorf("schedule entry now: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("queue entry %d is not pending", id)
	}
	return nil
}

// RetryFailedEntries resets failed entries to pending with a clean retry
// budget, making them immediately eligible. Returns the ids that were reset.
func (s *Store) RetryFailedEntries(ctx context.Context, ids ...int64) ([]int64, error) {
	query := `SELECT id FROM generation_queue WHERE status = ?`
	args := []any{string(knowledge.QueueFailed)}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failed entries: %w", err)
	}
	var failed []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		failed = append(failed, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	now := time.Now().UTC()
	var reset []int64
	for _, id := range failed {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE generation_queue
             SET status = ?, retry_count = 0, scheduled_at = ?, completed_at = NULL,
                 error_message = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			string(knowledge.QueuePending),
			formatTime(now),
			formatTime(now),
			id,
			string(knowledge.QueueFailed),
		)
		if err != nil {
			if isUniqueViolation(err) {
				// Another active entry already exists for the item.
				continue
			}
			return reset, fmt.Errorf("retry failed entry %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return reset, fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			reset = append(reset, id)
		}
	}
	return reset, nil
}

// ClearQueueEntries deletes queue entries, optionally restricted to a status
// set, and returns the number removed.
func (s *Store) ClearQueueEntries(ctx context.Context, statuses ...knowledge.QueueStatus) (int64, error) {
	query := `DELETE FROM generation_queue`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear queue entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}

// QueueStats returns a count of queue entries grouped by status.
func (s *Store) QueueStats(ctx context.Context) (map[knowledge.QueueStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM generation_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[knowledge.QueueStatus]int)
	for rows.Next() {
		var status knowledge.QueueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ListQueueEntries returns queue entries filtered by status set (or all when
// no status is provided), newest first.
func (s *Store) ListQueueEntries(ctx context.Context, statuses ...knowledge.QueueStatus) ([]*knowledge.QueueEntry, error) {
	baseQuery := `SELECT ` + queueColumns + ` FROM generation_queue`
	orderClause := ` ORDER BY created_at DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = string(status)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func collectQueueEntries(rows *sql.Rows) ([]*knowledge.QueueEntry, error) {
	var entries []*knowledge.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanQueueEntry(scanner interface{ Scan(dest ...any) error }) (*knowledge.QueueEntry, error) {
	var (
		id           int64
		knowledgeID  string
		statusStr    string
		priority     int
		retryCount   int
		maxRetries   int
		scheduledRaw string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&knowledgeID,
		&statusStr,
		&priority,
		&retryCount,
		&maxRetries,
		&scheduledRaw,
		&startedRaw,
		&completedRaw,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	entry := &knowledge.QueueEntry{
		ID:           id,
		KnowledgeID:  knowledgeID,
		Status:       knowledge.QueueStatus(statusStr),
		Priority:     priority,
		RetryCount:   retryCount,
		MaxRetries:   maxRetries,
		ErrorMessage: errorMessage.String,
	}
	if scheduled, err := parseTimeString(scheduledRaw); err == nil {
		entry.ScheduledAt = scheduled
	}
	entry.StartedAt = parseNullableTime(startedRaw)
	entry.CompletedAt = parseNullableTime(completedRaw)
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	return entry, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
