package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"quill/internal/knowledge"
)

// RecordDuplication appends a duplicate-detection audit row. Detection is
// advisory; rows here never block the pipeline.
func (s *Store) RecordDuplication(ctx context.Context, originalArticleID, contentHash string, score float64) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO article_duplications (
            original_article_id, duplicate_content_hash, similarity_score, detected_at
        ) VALUES (?, ?, ?, ?)`,
		originalArticleID,
		contentHash,
		score,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("record duplication: %w", err)
	}
	return nil
}

// ListDuplications returns duplication audit rows for an article, newest
// first.
func (s *Store) ListDuplications(ctx context.Context, articleID string) ([]*knowledge.Duplication, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, original_article_id, duplicate_content_hash, similarity_score, detected_at
         FROM article_duplications WHERE original_article_id = ? ORDER BY detected_at DESC`,
		articleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list duplications: %w", err)
	}
	defer rows.Close()

	var dups []*knowledge.Duplication
	for rows.Next() {
		var (
			dup         knowledge.Duplication
			detectedRaw string
		)
		if err := rows.Scan(&dup.ID, &dup.OriginalArticleID, &dup.ContentHash, &dup.SimilarityScore, &detectedRaw); err != nil {
			return nil, err
		}
		if detected, err := parseTimeString(detectedRaw); err == nil {
			dup.DetectedAt = detected
		}
		dups = append(dups, &dup)
	}
	return dups, rows.Err()
}

// AppendSyncLog records one sync attempt outcome for a reference.
func (s *Store) AppendSyncLog(ctx context.Context, log *knowledge.SyncLog) error {
	var changes any
	if len(log.ContentChanges) > 0 {
		data, err := json.Marshal(log.ContentChanges)
		if err != nil {
			return fmt.Errorf("marshal content changes: %w", err)
		}
		changes = string(data)
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO sync_logs (
            notion_reference_id, sync_type, status, changes_detected,
            content_changes, error_message, sync_duration_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ReferenceID,
		string(log.SyncType),
		log.Status,
		boolToInt(log.ChangesDetected),
		changes,
		nullableString(log.ErrorMessage),
		log.Duration.Milliseconds(),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("append sync log: %w", err)
	}
	return nil
}

// ListSyncLogs returns the most recent sync attempts for a reference.
func (s *Store) ListSyncLogs(ctx context.Context, referenceID string, limit int) ([]*knowledge.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, notion_reference_id, sync_type, status, changes_detected,
                content_changes, error_message, sync_duration_ms, created_at
         FROM sync_logs WHERE notion_reference_id = ?
         ORDER BY created_at DESC LIMIT ?`,
		referenceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*knowledge.SyncLog
	for rows.Next() {
		var (
			log        knowledge.SyncLog
			syncType   string
			changes    int
			changesRaw sql.NullString
			errMsg     sql.NullString
			durationMS int64
			createdRaw string
		)
		if err := rows.Scan(
			&log.ID,
			&log.ReferenceID,
			&syncType,
			&log.Status,
			&changes,
			&changesRaw,
			&errMsg,
			&durationMS,
			&createdRaw,
		); err != nil {
			return nil, err
		}
		log.SyncType = knowledge.SyncType(syncType)
		log.ChangesDetected = changes != 0
		log.ErrorMessage = errMsg.String
		log.Duration = time.Duration(durationMS) * time.Millisecond
		if changesRaw.Valid && changesRaw.String != "" {
			if err := json.Unmarshal([]byte(changesRaw.String), &log.ContentChanges); err != nil {
				return nil, fmt.Errorf("decode content changes for log %d: %w", log.ID, err)
			}
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			log.CreatedAt = created
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

// SyncLogTotals aggregates sync attempts recorded since a cutoff.
type SyncLogTotals struct {
	Total           int
	Succeeded       int
	Failed          int
	ChangesDetected int
}

// SyncStatsSince aggregates sync_logs rows created at or after the cutoff.
func (s *Store) SyncStatsSince(ctx context.Context, since time.Time) (SyncLogTotals, error) {
	var totals SyncLogTotals
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1),
                COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
                COALESCE(SUM(CASE WHEN status != 'success' THEN 1 ELSE 0 END), 0),
                COALESCE(SUM(changes_detected), 0)
         FROM sync_logs WHERE created_at >= ?`,
		formatTime(since),
	).Scan(&totals.Total, &totals.Succeeded, &totals.Failed, &totals.ChangesDetected)
	if err != nil {
		return totals, fmt.Errorf("sync stats: %w", err)
	}
	return totals, nil
}

// AppendArticleLog records one queue attempt outcome for a knowledge item.
func (s *Store) AppendArticleLog(ctx context.Context, log *knowledge.ArticleLog) error {
	var metadata any
	if len(log.Metadata) > 0 {
		data, err := json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("marshal article log metadata: %w", err)
		}
		metadata = string(data)
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO article_logs (
            knowledge_id, article_id, action, status, message, metadata, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.KnowledgeID,
		nullableString(log.ArticleID),
		log.Action,
		log.Status,
		nullableString(log.Message),
		metadata,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("append article log: %w", err)
	}
	return nil
}

// ListArticleLogs returns the most recent pipeline attempts for a knowledge
// item.
func (s *Store) ListArticleLogs(ctx context.Context, knowledgeID string, limit int) ([]*knowledge.ArticleLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, knowledge_id, article_id, action, status, message, metadata, created_at
         FROM article_logs WHERE knowledge_id = ?
         ORDER BY created_at DESC LIMIT ?`,
		knowledgeID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list article logs: %w", err)
	}
	defer rows.Close()

	var logs []*knowledge.ArticleLog
	for rows.Next() {
		var (
			log         knowledge.ArticleLog
			articleID   sql.NullString
			message     sql.NullString
			metadataRaw sql.NullString
			createdRaw  string
		)
		if err := rows.Scan(
			&log.ID,
			&log.KnowledgeID,
			&articleID,
			&log.Action,
			&log.Status,
			&message,
			&metadataRaw,
			&createdRaw,
		); err != nil {
			return nil, err
		}
		log.ArticleID = articleID.String
		log.Message = message.String
		if metadataRaw.Valid && metadataRaw.String != "" {
			if err := json.Unmarshal([]byte(metadataRaw.String), &log.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for log %d: %w", log.ID, err)
			}
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			log.CreatedAt = created
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}
