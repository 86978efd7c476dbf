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

const articleColumns = "id, knowledge_id, title, slug, content, emoji, type, topics, published, github_url, github_sha, metadata, created_at, updated_at, published_at"

// CreateArticle inserts a generated article bound to its source knowledge item.
func (s *Store) CreateArticle(ctx context.Context, article *knowledge.Article) error {
	if article == nil {
		return errors.New("article is nil")
	}
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	article.CreatedAt = now
	article.UpdatedAt = now

	topics, err := marshalStrings(article.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	metadata, err := json.Marshal(article.Metadata)
	if err != nil {
		return fmt.Errorf("marshal article metadata: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO articles (
            id, knowledge_id, title, slug, content, emoji, type, topics,
            published, github_url, github_sha, metadata,
            created_at, updated_at, published_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		article.ID,
		article.KnowledgeID,
		article.Title,
		article.Slug,
		article.Content,
		nullableString(article.Emoji),
		string(article.Type),
		topics,
		boolToInt(article.Published),
		nullableString(article.GitHubURL),
		nullableString(article.GitHubSHA),
		string(metadata),
		formatTime(now),
		formatTime(now),
		nullableTime(article.PublishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// GetArticle fetches an article by identifier. Returns nil when missing.
func (s *Store) GetArticle(ctx context.Context, id string) (*knowledge.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	return article, nil
}

// GetArticleByKnowledge fetches the newest article generated from a knowledge
// item.
func (s *Store) GetArticleByKnowledge(ctx context.Context, knowledgeID string) (*knowledge.Article, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+articleColumns+` FROM articles WHERE knowledge_id = ? ORDER BY created_at DESC LIMIT 1`,
		knowledgeID,
	)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article by knowledge: %w", err)
	}
	return article, nil
}

// ListArticles returns all articles ordered by creation time.
func (s *Store) ListArticles(ctx context.Context) ([]*knowledge.Article, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []*knowledge.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// MarkArticlePublished records a successful publish: the remote URL and the
// content SHA GitHub returned for the committed file.
func (s *Store) MarkArticlePublished(ctx context.Context, id, githubURL, githubSHA string) error {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE articles
         SET published = 1, github_url = ?, github_sha = ?, published_at = ?, updated_at = ?
         WHERE id = ?`,
		githubURL,
		githubSHA,
		formatTime(now),
		formatTime(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark article published: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("article %s not found", id)
	}
	return nil
}

func scanArticle(scanner interface{ Scan(dest ...any) error }) (*knowledge.Article, error) {
	var (
		id          string
		knowledgeID string
		title       string
		slug        string
		content     string
		emoji       sql.NullString
		typeStr     string
		topicsRaw   sql.NullString
		published   int
		githubURL   sql.NullString
		githubSHA   sql.NullString
		metadataRaw sql.NullString
		createdRaw  string
		updatedRaw  string
		publishedAt sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&knowledgeID,
		&title,
		&slug,
		&content,
		&emoji,
		&typeStr,
		&topicsRaw,
		&published,
		&githubURL,
		&githubSHA,
		&metadataRaw,
		&createdRaw,
		&updatedRaw,
		&publishedAt,
	); err != nil {
		return nil, err
	}

	article := &knowledge.Article{
		ID:          id,
		KnowledgeID: knowledgeID,
		Title:       title,
		Slug:        slug,
		Content:     content,
		Emoji:       emoji.String,
		Type:        knowledge.ArticleType(typeStr),
		Published:   published != 0,
		GitHubURL:   githubURL.String,
		GitHubSHA:   githubSHA.String,
	}

	var err error
	if article.Topics, err = unmarshalStrings(topicsRaw); err != nil {
		return nil, fmt.Errorf("decode topics for article %s: %w", id, err)
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		if err := json.Unmarshal([]byte(metadataRaw.String), &article.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for article %s: %w", id, err)
		}
	}
	article.PublishedAt = parseNullableTime(publishedAt)
	if created, err := parseTimeString(createdRaw); err == nil {
		article.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		article.UpdatedAt = updated
	}
	return article, nil
}
