package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quill/internal/knowledge"
)

const referenceColumns = "id, knowledge_id, page_id, page_url, page_title, auto_sync_enabled, sync_frequency, content_hash, last_content_hash, last_synced_at, notion_updated_at, created_at, updated_at"

// CreateReference binds a Notion page to a knowledge item. Each item may have
// at most one reference; a second insert fails on the unique constraint.
func (s *Store) CreateReference(ctx context.Context, ref *knowledge.Reference) error {
	if ref == nil {
		return errors.New("reference is nil")
	}
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.SyncFrequency == "" {
		ref.SyncFrequency = knowledge.SyncDaily
	}
	now := time.Now().UTC()
	ref.CreatedAt = now
	ref.UpdatedAt = now

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO notion_references (
            id, knowledge_id, page_id, page_url, page_title,
            auto_sync_enabled, sync_frequency, content_hash, last_content_hash,
            last_synced_at, notion_updated_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.ID,
		ref.KnowledgeID,
		ref.PageID,
		nullableString(ref.PageURL),
		nullableString(ref.PageTitle),
		boolToInt(ref.AutoSyncEnabled),
		string(ref.SyncFrequency),
		nullableString(ref.ContentHash),
		nullableString(ref.LastContentHash),
		nullableTime(ref.LastSyncedAt),
		nullableTime(ref.NotionUpdatedAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert notion reference: %w", err)
	}
	return nil
}

// GetReference fetches a reference by its identifier. Returns nil when missing.
func (s *Store) GetReference(ctx context.Context, id string) (*knowledge.Reference, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+referenceColumns+` FROM notion_references WHERE id = ?`, id)
	return scanReferenceRow(row)
}

// GetReferenceByKnowledge fetches the reference attached to a knowledge item.
func (s *Store) GetReferenceByKnowledge(ctx context.Context, knowledgeID string) (*knowledge.Reference, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+referenceColumns+` FROM notion_references WHERE knowledge_id = ?`, knowledgeID)
	return scanReferenceRow(row)
}

// ListActiveReferences returns auto-sync references ordered stalest first, so
// a bounded sweep always reaches the references most in need of attention.
// Never-synced references sort ahead of everything else.
func (s *Store) ListActiveReferences(ctx context.Context, limit int) ([]*knowledge.Reference, error) {
	query := `SELECT ` + referenceColumns + `
        FROM notion_references
        WHERE auto_sync_enabled = 1
        ORDER BY last_synced_at IS NOT NULL, last_synced_at`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active references: %w", err)
	}
	defer rows.Close()
	return collectReferences(rows)
}

// FindReferencesByHash returns other references already carrying the given
// content hash. The sync engine uses this to skip redundant regeneration when
// identical content appears behind multiple pages.
func (s *Store) FindReferencesByHash(ctx context.Context, hash, excludeID string) ([]*knowledge.Reference, error) {
	if hash == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+referenceColumns+` FROM notion_references WHERE content_hash = ? AND id != ?`,
		hash,
		excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("find references by hash: %w", err)
	}
	defer rows.Close()
	return collectReferences(rows)
}

// SetAutoSync toggles automatic syncing for a reference.
func (s *Store) SetAutoSync(ctx context.Context, id string, enabled bool) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE notion_references SET auto_sync_enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled),
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set auto sync: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notion reference %s not found", id)
	}
	return nil
}

// ApplySyncResult records the outcome of a content sync in one transaction:
// the item's title and content, the reference's hash chain, and its sync
// timestamps all move together or not at all.
func (s *Store) ApplySyncResult(ctx context.Context, ref *knowledge.Reference, title, content, newHash string, notionUpdatedAt time.Time) error {
	if ref == nil {
		return errors.New("reference is nil")
	}
	now := time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE knowledge_items SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
			title,
			content,
			formatTime(now),
			ref.KnowledgeID,
		); err != nil {
			return fmt.Errorf("update knowledge content: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE notion_references
             SET page_title = ?, content_hash = ?, last_content_hash = ?,
                 last_synced_at = ?, notion_updated_at = ?, updated_at = ?
             WHERE id = ?`,
			nullableString(title),
			newHash,
			nullableString(ref.ContentHash),
			formatTime(now),
			formatTime(notionUpdatedAt.UTC()),
			formatTime(now),
			ref.ID,
		); err != nil {
			return fmt.Errorf("update notion reference: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	ref.LastContentHash = ref.ContentHash
	ref.ContentHash = newHash
	ref.PageTitle = title
	ref.LastSyncedAt = &now
	updated := notionUpdatedAt.UTC()
	ref.NotionUpdatedAt = &updated
	ref.UpdatedAt = now
	return nil
}

// DeleteReference removes a reference without touching its knowledge item.
func (s *Store) DeleteReference(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM notion_references WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete notion reference: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func collectReferences(rows *sql.Rows) ([]*knowledge.Reference, error) {
	var refs []*knowledge.Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func scanReferenceRow(row *sql.Row) (*knowledge.Reference, error) {
	ref, err := scanReference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notion reference: %w", err)
	}
	return ref, nil
}

func scanReference(scanner interface{ Scan(dest ...any) error }) (*knowledge.Reference, error) {
	var (
		id           string
		knowledgeID  string
		pageID       string
		pageURL      sql.NullString
		pageTitle    sql.NullString
		autoSync     int
		frequency    string
		contentHash  sql.NullString
		lastHash     sql.NullString
		lastSynced   sql.NullString
		notionUpd    sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&knowledgeID,
		&pageID,
		&pageURL,
		&pageTitle,
		&autoSync,
		&frequency,
		&contentHash,
		&lastHash,
		&lastSynced,
		&notionUpd,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	ref := &knowledge.Reference{
		ID:              id,
		KnowledgeID:     knowledgeID,
		PageID:          pageID,
		PageURL:         pageURL.String,
		PageTitle:       pageTitle.String,
		AutoSyncEnabled: autoSync != 0,
		SyncFrequency:   knowledge.SyncFrequency(frequency),
		ContentHash:     contentHash.String,
		LastContentHash: lastHash.String,
	}
	ref.LastSyncedAt = parseNullableTime(lastSynced)
	ref.NotionUpdatedAt = parseNullableTime(notionUpd)
	if created, err := parseTimeString(createdRaw); err == nil {
		ref.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		ref.UpdatedAt = updated
	}
	return ref, nil
}
