package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"quill/internal/knowledge"
	"quill/internal/logging"
	"quill/internal/services"
	"quill/internal/services/github"
)

const maxSlugTitleLength = 50

// Repository is the slice of the git-hosting client the publisher needs.
// *github.Client satisfies it.
type Repository interface {
	GetFile(ctx context.Context, path string) (*github.File, error)
	UpsertFile(ctx context.Context, path, content, message, sha string) (*github.CommitResult, error)
	DeleteFile(ctx context.Context, path, message, sha string) error
}

// Result describes a completed publish.
type Result struct {
	Path       string
	URL        string
	ContentSHA string
}

// Publisher renders articles with front matter and commits them to the
// article repository.
type Publisher struct {
	repo       Repository
	articleDir string
	logger     *slog.Logger
}

// New constructs a Publisher writing under articleDir in the repository.
func New(repo Repository, articleDir string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		repo:       repo,
		articleDir: strings.Trim(articleDir, "/"),
		logger:     logger.With(logging.String("component", "publisher")),
	}
}

// Publish renders and commits an article. An existing remote file is updated
// at its current SHA; one stale-SHA conflict is absorbed by re-fetching and
// retrying before the failure is surfaced as terminal.
func (p *Publisher) Publish(ctx context.Context, article *knowledge.Article) (*Result, error) {
	if article == nil {
		return nil, services.Wrap(services.ErrValidation, "publisher", "publish", "article required", nil)
	}
	if article.Slug == "" {
		return nil, services.Wrap(services.ErrValidation, "publisher", "publish", "slug required", nil)
	}

	remotePath := path.Join(p.articleDir, article.Slug+".md")
	document := Render(article)
	message := fmt.Sprintf("Publish article: %s", article.Title)

	sha, err := p.remoteSHA(ctx, remotePath)
	if err != nil {
		return nil, err
	}

	result, err := p.repo.UpsertFile(ctx, remotePath, document, message, sha)
	if errors.Is(err, services.ErrConflict) {
		p.logger.Warn("stale sha on publish, refetching",
			logging.String("path", remotePath),
			logging.String("article_id", article.ID))
		sha, shaErr := p.remoteSHA(ctx, remotePath)
		if shaErr != nil {
			return nil, shaErr
		}
		result, err = p.repo.UpsertFile(ctx, remotePath, document, message, sha)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Info("article published",
		logging.String("path", remotePath),
		logging.String("sha", result.ContentSHA))
	return &Result{
		Path:       remotePath,
		URL:        result.HTMLURL,
		ContentSHA: result.ContentSHA,
	}, nil
}

// Unpublish deletes the article's file from the repository at its current
// SHA. A file that is already gone counts as unpublished.
func (p *Publisher) Unpublish(ctx context.Context, article *knowledge.Article) error {
	if article == nil {
		return services.Wrap(services.ErrValidation, "publisher", "unpublish", "article required", nil)
	}
	if article.Slug == "" {
		return services.Wrap(services.ErrValidation, "publisher", "unpublish", "slug required", nil)
	}

	remotePath := path.Join(p.articleDir, article.Slug+".md")
	sha, err := p.remoteSHA(ctx, remotePath)
	if err != nil {
		return err
	}
	if sha == "" {
		p.logger.Info("article already absent", logging.String("path", remotePath))
		return nil
	}

	message := fmt.Sprintf("Remove article: %s", article.Title)
	if err := p.repo.DeleteFile(ctx, remotePath, message, sha); err != nil {
		return err
	}
	p.logger.Info("article unpublished", logging.String("path", remotePath))
	return nil
}

// remoteSHA fetches the current SHA of the target path. A missing file is
// normal for first publish and yields an empty SHA.
func (p *Publisher) remoteSHA(ctx context.Context, remotePath string) (string, error) {
	file, err := p.repo.GetFile(ctx, remotePath)
	if errors.Is(err, services.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return file.SHA, nil
}

// Render produces the front-matter document for an article.
func Render(article *knowledge.Article) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", article.Title)
	if article.Emoji != "" {
		fmt.Fprintf(&b, "emoji: %q\n", article.Emoji)
	}
	fmt.Fprintf(&b, "type: %q\n", article.Type)
	if len(article.Topics) > 0 {
		quoted := make([]string, len(article.Topics))
		for i, topic := range article.Topics {
			quoted[i] = strconv.Quote(topic)
		}
		fmt.Fprintf(&b, "topics: [%s]\n", strings.Join(quoted, ", "))
	} else {
		b.WriteString("topics: []\n")
	}
	fmt.Fprintf(&b, "published: %t\n", article.Published)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimSpace(article.Content))
	b.WriteString("\n")
	return b.String()
}

// Slug derives a filesystem-safe slug from a title: Unicode decomposition
// with combining marks stripped, lowercased ASCII words joined by hyphens,
// truncated, plus a base-36 timestamp suffix for uniqueness.
func Slug(title string, now time.Time) string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		title,
	)
	if err != nil {
		stripped = title
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugTitleLength {
		slug = strings.Trim(slug[:maxSlugTitleLength], "-")
	}
	if slug == "" {
		slug = "article"
	}
	return slug + "-" + strconv.FormatInt(now.UnixMilli(), 36)
}
