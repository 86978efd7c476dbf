package knowledge

import (
	"strings"
	"time"
)

// SourceType identifies where a knowledge item's content came from.
type SourceType string

const (
	SourceNotion  SourceType = "notion"
	SourceFile    SourceType = "file"
	SourceText    SourceType = "text"
	SourceURL     SourceType = "url"
	SourceBrowser SourceType = "browser"
)

var sourceTypes = map[SourceType]struct{}{
	SourceNotion:  {},
	SourceFile:    {},
	SourceText:    {},
	SourceURL:     {},
	SourceBrowser: {},
}

// ParseSourceType converts a string into a known SourceType.
func ParseSourceType(value string) (SourceType, bool) {
	normalized := SourceType(strings.ToLower(strings.TrimSpace(value)))
	_, ok := sourceTypes[normalized]
	return normalized, ok
}

// Item is a unit of source material destined to become an article.
type Item struct {
	ID           string
	Title        string
	Content      string
	SourceType   SourceType
	SourceURL    string
	Category     string
	Tags         []string
	Status       Status
	Analysis     *ContentAnalysis
	Generated    *GeneratedArticle
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ContentAnalysis is the structured result of the analysis step. It is set
// once per analysis cycle and treated as immutable afterwards.
type ContentAnalysis struct {
	Summary              string   `json:"summary"`
	KeyTopics            []string `json:"key_topics"`
	SuggestedTitle       string   `json:"suggested_title"`
	EstimatedLength      int      `json:"estimated_article_length"`
	DifficultyLevel      string   `json:"difficulty_level"`
	TargetAudience       string   `json:"target_audience"`
	RecommendedStructure []string `json:"recommended_structure"`
}

// ArticleType partitions published articles.
type ArticleType string

const (
	ArticleTech     ArticleType = "tech"
	ArticleIdea     ArticleType = "idea"
	ArticlePersonal ArticleType = "personal"
)

// ParseArticleType normalizes a type string, defaulting to tech.
func ParseArticleType(value string) ArticleType {
	switch ArticleType(strings.ToLower(strings.TrimSpace(value))) {
	case ArticleIdea:
		return ArticleIdea
	case ArticlePersonal:
		return ArticlePersonal
	default:
		return ArticleTech
	}
}

// ArticleMetadata carries generation metadata alongside the article body.
type ArticleMetadata struct {
	EstimatedReadingTime int    `json:"estimated_reading_time"`
	WordCount            int    `json:"word_count"`
	Difficulty           string `json:"difficulty"`
}

// GeneratedArticle is the structured result of the generation step.
type GeneratedArticle struct {
	Title     string          `json:"title"`
	Emoji     string          `json:"emoji"`
	Type      ArticleType     `json:"type"`
	Topics    []string        `json:"topics"`
	Published bool            `json:"published"`
	Content   string          `json:"content"`
	Metadata  ArticleMetadata `json:"metadata"`
}

// Article is a persisted generated article. GitHubURL and GitHubSHA are set
// only after a successful publish; the SHA is the remote content version used
// for conflict-free updates.
type Article struct {
	ID          string
	KnowledgeID string
	Title       string
	Slug        string
	Content     string
	Emoji       string
	Type        ArticleType
	Topics      []string
	Published   bool
	GitHubURL   string
	GitHubSHA   string
	Metadata    ArticleMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// SyncFrequency controls how often an auto-synced reference is rechecked.
type SyncFrequency string

const (
	SyncHourly SyncFrequency = "hourly"
	SyncDaily  SyncFrequency = "daily"
	SyncWeekly SyncFrequency = "weekly"
)

// Interval returns the minimum gap between scheduled syncs. Unknown values
// fall back to daily.
func (f SyncFrequency) Interval() time.Duration {
	switch f {
	case SyncHourly:
		return time.Hour
	case SyncWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Reference binds a Notion page to a knowledge item (1:1). ContentHash must
// never change without LastSyncedAt changing in the same transaction.
type Reference struct {
	ID              string
	KnowledgeID     string
	PageID          string
	PageURL         string
	PageTitle       string
	AutoSyncEnabled bool
	SyncFrequency   SyncFrequency
	ContentHash     string
	LastContentHash string
	LastSyncedAt    *time.Time
	NotionUpdatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// QueueStatus represents the lifecycle of a generation queue entry.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// QueueEntry is one durable unit of pipeline work for a knowledge item.
// At most one entry per knowledge id may be pending or processing at a time.
type QueueEntry struct {
	ID           int64
	KnowledgeID  string
	Status       QueueStatus
	Priority     int
	RetryCount   int
	MaxRetries   int
	ScheduledAt  time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Duplication is an append-only audit record of a detected duplicate.
type Duplication struct {
	ID                int64
	OriginalArticleID string
	ContentHash       string
	SimilarityScore   float64
	DetectedAt        time.Time
}

// SyncType identifies what triggered a sync attempt.
type SyncType string

const (
	SyncScheduled SyncType = "scheduled"
	SyncManual    SyncType = "manual"
	SyncWebhook   SyncType = "webhook"
)

// ContentChange records one detected field-level difference during a sync.
// Previews are truncated; see TruncatePreview.
type ContentChange struct {
	Type      string    `json:"type"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncLog is an append-only audit record of one sync attempt.
type SyncLog struct {
	ID              int64
	ReferenceID     string
	SyncType        SyncType
	Status          string
	ChangesDetected bool
	ContentChanges  []ContentChange
	ErrorMessage    string
	Duration        time.Duration
	CreatedAt       time.Time
}

// ArticleLog is an append-only audit record of one queue attempt outcome.
type ArticleLog struct {
	ID          int64
	KnowledgeID string
	ArticleID   string
	Action      string
	Status      string
	Message     string
	Metadata    map[string]any
	CreatedAt   time.Time
}

const previewLimit = 100

// TruncatePreview shortens change previews to their first 100 characters.
func TruncatePreview(value string) string {
	runes := []rune(value)
	if len(runes) <= previewLimit {
		return value
	}
	return string(runes[:previewLimit]) + "..."
}
