package duplicate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"quill/internal/knowledge"
	"quill/internal/logging"
	"quill/internal/store"
)

// similarityThreshold is the word-overlap ratio above which two titles are
// treated as duplicates. Coarse on purpose; the fingerprint catches exact
// copies and this only nets near-identical titles.
const similarityThreshold = 0.8

// Match describes a detected duplicate of a candidate knowledge item.
type Match struct {
	ArticleID   string
	KnowledgeID string
	Score       float64
}

// Detector finds existing articles whose source material matches a
// candidate item.
type Detector struct {
	store  *store.Store
	logger *slog.Logger
}

// NewDetector constructs a Detector.
func NewDetector(st *store.Store, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Detector{store: st, logger: logger.With(logging.String("component", "duplicate"))}
}

// Fingerprint returns the hex SHA-256 of title concatenated with content.
func Fingerprint(title, content string) string {
	sum := sha256.Sum256([]byte(title + content))
	return hex.EncodeToString(sum[:])
}

// TitleSimilarity computes the word-overlap ratio between two titles:
// shared words over union words, case-insensitive, whitespace tokens.
func TitleSimilarity(a, b string) float64 {
	wordsA := tokenize(a)
	wordsB := tokenize(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	common := 0
	union := make(map[string]struct{}, len(wordsA)+len(wordsB))
	for word := range wordsA {
		union[word] = struct{}{}
		if _, ok := wordsB[word]; ok {
			common++
		}
	}
	for word := range wordsB {
		union[word] = struct{}{}
	}
	return float64(common) / float64(len(union))
}

// Check compares the candidate item against every existing article's source
// knowledge. An exact fingerprint match scores 1.0; otherwise a title
// overlap above the threshold scores that ratio. Each hit appends an audit
// row; the first hit is returned. Nil means no duplicate.
func (d *Detector) Check(ctx context.Context, item *knowledge.Item) (*Match, error) {
	if item == nil {
		return nil, nil
	}
	candidateHash := Fingerprint(item.Title, item.Content)

	articles, err := d.store.ListArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}

	var first *Match
	for _, article := range articles {
		if article.KnowledgeID == item.ID {
			continue
		}
		source, err := d.store.GetItem(ctx, article.KnowledgeID)
		if err != nil {
			return nil, fmt.Errorf("load article source %s: %w", article.KnowledgeID, err)
		}
		if source == nil {
			continue
		}

		score := 0.0
		if Fingerprint(source.Title, source.Content) == candidateHash {
			score = 1.0
		} else if sim := TitleSimilarity(source.Title, item.Title); sim > similarityThreshold {
			score = sim
		}
		if score == 0 {
			continue
		}

		// Audit failures must not mask the detection result.
		if err := d.store.RecordDuplication(ctx, article.ID, candidateHash, score); err != nil {
			d.logger.Warn("record duplication failed",
				logging.String("article_id", article.ID),
				logging.Error(err))
		}
		d.logger.Info("duplicate detected",
			logging.String("item_id", item.ID),
			logging.String("article_id", article.ID),
			logging.Float64("score", score))
		if first == nil {
			first = &Match{ArticleID: article.ID, KnowledgeID: article.KnowledgeID, Score: score}
		}
	}
	return first, nil
}

func tokenize(title string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(title))
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
