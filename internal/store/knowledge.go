package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quill/internal/knowledge"
)

const itemColumns = "id, title, content, source_type, source_url, category, tags, status, content_analysis, generated_article, error_message, created_at, updated_at"

// CreateItem inserts a new knowledge item, assigning an id and timestamps.
func (s *Store) CreateItem(ctx context.Context, item *knowledge.Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		if item.SourceType == knowledge.SourceNotion {
			item.Status = knowledge.StatusNotionReferenced
		} else {
			item.Status = knowledge.StatusDraft
		}
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	tags, err := marshalStrings(item.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO knowledge_items (
            id, title, content, source_type, source_url, category, tags,
            status, error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Title,
		item.Content,
		string(item.SourceType),
		nullableString(item.SourceURL),
		nullableString(item.Category),
		tags,
		string(item.Status),
		nullableString(item.ErrorMessage),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert knowledge item: %w", err)
	}
	return nil
}

// GetItem fetches a knowledge item by identifier. Returns nil when missing.
func (s *Store) GetItem(ctx context.Context, id string) (*knowledge.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM knowledge_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge item: %w", err)
	}
	return item, nil
}

// ListItems returns knowledge items filtered by status set (or all items when
// no status is provided), ordered by creation time.
func (s *Store) ListItems(ctx context.Context, statuses ...knowledge.Status) ([]*knowledge.Item, error) {
	baseQuery := `SELECT ` + itemColumns + ` FROM knowledge_items`
	orderClause := ` ORDER BY created_at`

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
		return nil, fmt.Errorf("list knowledge items: %w", err)
	}
	defer rows.Close()

	var items []*knowledge.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemContent overwrites an item's title and content. Used by the sync
// engine when upstream drift is detected.
func (s *Store) UpdateItemContent(ctx context.Context, id, title, content string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE knowledge_items SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
		title,
		content,
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update knowledge content: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("knowledge item %s not found", id)
	}
	return nil
}

// SaveAnalysis persists the analysis payload and moves the item to
// content_analyzed in one conditional update. The status guard makes the
// transition atomic: an item already past analysis is left untouched.
func (s *Store) SaveAnalysis(ctx context.Context, id string, analysis *knowledge.ContentAnalysis) error {
	if analysis == nil {
		return errors.New("analysis is nil")
	}
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE knowledge_items
         SET content_analysis = ?, status = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		string(payload),
		string(knowledge.StatusContentAnalyzed),
		formatTime(time.Now().UTC()),
		id,
		string(knowledge.StatusDraft),
		string(knowledge.StatusNotionReferenced),
	)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return s.requireTransition(ctx, res, id, knowledge.StatusContentAnalyzed)
}

// SaveGenerated persists the generated article payload and moves the item to
// article_generated. Requires a prior successful analysis.
func (s *Store) SaveGenerated(ctx context.Context, id string, generated *knowledge.GeneratedArticle) error {
	if generated == nil {
		return errors.New("generated article is nil")
	}
	payload, err := json.Marshal(generated)
	if err != nil {
		return fmt.Errorf("marshal generated article: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE knowledge_items
         SET generated_article = ?, status = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND content_analysis IS NOT NULL`,
		string(payload),
		string(knowledge.StatusArticleGenerated),
		formatTime(time.Now().UTC()),
		id,
		string(knowledge.StatusContentAnalyzed),
	)
	if err != nil {
		return fmt.Errorf("save generated article: %w", err)
	}
	return s.requireTransition(ctx, res, id, knowledge.StatusArticleGenerated)
}

// MarkItemPublished moves the item to article_published. Callers must have
// recorded the publish SHA on the Article row first.
func (s *Store) MarkItemPublished(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE knowledge_items
         SET status = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND generated_article IS NOT NULL`,
		string(knowledge.StatusArticlePublished),
		formatTime(time.Now().UTC()),
		id,
		string(knowledge.StatusArticleGenerated),
	)
	if err != nil {
		return fmt.Errorf("mark item published: %w", err)
	}
	return s.requireTransition(ctx, res, id, knowledge.StatusArticlePublished)
}

// MarkItemError moves the item to the error side-state, preserving the
// triggering message. Published items are never moved.
func (s *Store) MarkItemError(ctx context.Context, id, message string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE knowledge_items
         SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		string(knowledge.StatusError),
		message,
		formatTime(time.Now().UTC()),
		id,
		string(knowledge.StatusArticlePublished),
		string(knowledge.StatusError),
	)
	if err != nil {
		return fmt.Errorf("mark item error: %w", err)
	}
	return nil
}

// ResetFromError returns an errored item to draft so the pipeline can start
// over. This is the only way out of the error state.
func (s *Store) ResetFromError(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE knowledge_items
         SET status = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(knowledge.StatusDraft),
		formatTime(time.Now().UTC()),
		id,
		string(knowledge.StatusError),
	)
	if err != nil {
		return fmt.Errorf("reset item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("knowledge item %s is not in error state", id)
	}
	return nil
}

// DeleteItem removes a knowledge item; dependent articles, references, and
// queue entries cascade at the schema level.
func (s *Store) DeleteItem(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM knowledge_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete knowledge item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ItemStats returns a count of knowledge items grouped by status.
func (s *Store) ItemStats(ctx context.Context) (map[knowledge.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM knowledge_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("knowledge stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[knowledge.Status]int)
	for rows.Next() {
		var status knowledge.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// requireTransition converts a zero-row conditional update into a diagnostic
// error: either the item is missing or its current status forbids the move.
func (s *Store) requireTransition(ctx context.Context, res sql.Result, id string, to knowledge.Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("knowledge item %s not found", id)
	}
	return fmt.Errorf("invalid status transition for item %s: %s -> %s", id, item.Status, to)
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*knowledge.Item, error) {
	var (
		id           string
		title        string
		content      string
		sourceType   string
		sourceURL    sql.NullString
		category     sql.NullString
		tagsRaw      sql.NullString
		statusStr    string
		analysisRaw  sql.NullString
		generatedRaw sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&title,
		&content,
		&sourceType,
		&sourceURL,
		&category,
		&tagsRaw,
		&statusStr,
		&analysisRaw,
		&generatedRaw,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &knowledge.Item{
		ID:           id,
		Title:        title,
		Content:      content,
		SourceType:   knowledge.SourceType(sourceType),
		SourceURL:    sourceURL.String,
		Category:     category.String,
		Status:       knowledge.Status(statusStr),
		ErrorMessage: errorMessage.String,
	}

	var err error
	if item.Tags, err = unmarshalStrings(tagsRaw); err != nil {
		return nil, fmt.Errorf("decode tags for item %s: %w", id, err)
	}
	if analysisRaw.Valid && analysisRaw.String != "" {
		analysis := &knowledge.ContentAnalysis{}
		if err := json.Unmarshal([]byte(analysisRaw.String), analysis); err != nil {
			return nil, fmt.Errorf("decode analysis for item %s: %w", id, err)
		}
		item.Analysis = analysis
	}
	if generatedRaw.Valid && generatedRaw.String != "" {
		generated := &knowledge.GeneratedArticle{}
		if err := json.Unmarshal([]byte(generatedRaw.String), generated); err != nil {
			return nil, fmt.Errorf("decode generated article for item %s: %w", id, err)
		}
		item.Generated = generated
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func marshalStrings(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalStrings(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil, err
	}
	return values, nil
}
