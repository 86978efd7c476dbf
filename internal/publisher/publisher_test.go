package publisher_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"quill/internal/knowledge"
	"quill/internal/logging"
	"quill/internal/publisher"
	"quill/internal/services"
	"quill/internal/services/github"
)

type fakeRepo struct {
	files       map[string]*github.File
	upserts     int
	conflictsAt map[int]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{files: make(map[string]*github.File), conflictsAt: make(map[int]bool)}
}

func (f *fakeRepo) GetFile(_ context.Context, path string) (*github.File, error) {
	file, ok := f.files[path]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "github", "get file", "missing", nil)
	}
	return file, nil
}

func (f *fakeRepo) UpsertFile(_ context.Context, path, content, message, sha string) (*github.CommitResult, error) {
	f.upserts++
	if f.conflictsAt[f.upserts] {
		return nil, services.Wrap(services.ErrConflict, "github", "upsert file", "stale sha", nil)
	}
	existing := f.files[path]
	if existing != nil && existing.SHA != sha {
		return nil, services.Wrap(services.ErrConflict, "github", "upsert file", "stale sha", nil)
	}
	newSHA := "sha-" + strings.Repeat("x", f.upserts)
	f.files[path] = &github.File{Path: path, SHA: newSHA, Content: content, HTMLURL: "https://example/" + path}
	return &github.CommitResult{ContentSHA: newSHA, HTMLURL: "https://example/" + path}, nil
}

func (f *fakeRepo) DeleteFile(_ context.Context, path, _, sha string) error {
	existing, ok := f.files[path]
	if !ok {
		return services.Wrap(services.ErrNotFound, "github", "delete file", "missing", nil)
	}
	if existing.SHA != sha {
		return services.Wrap(services.ErrConflict, "github", "delete file", "stale sha", nil)
	}
	delete(f.files, path)
	return nil
}

func TestPublishCreatesNewFile(t *testing.T) {
	repo := newFakeRepo()
	pub := publisher.New(repo, "articles", logging.NewNop())

	article := &knowledge.Article{
		ID:      "a1",
		Title:   "Hello World",
		Slug:    "hello-world-abc",
		Content: "# Hello",
		Type:    knowledge.ArticleTech,
	}
	result, err := pub.Publish(context.Background(), article)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if result.Path != "articles/hello-world-abc.md" {
		t.Fatalf("unexpected path %q", result.Path)
	}
	if result.ContentSHA == "" {
		t.Fatal("expected content sha")
	}
	stored := repo.files[result.Path]
	if !strings.HasPrefix(stored.Content, "---\n") {
		t.Fatalf("expected front matter, got %q", stored.Content[:20])
	}
}

func TestPublishRetriesOneConflict(t *testing.T) {
	repo := newFakeRepo()
	repo.conflictsAt[1] = true
	pub := publisher.New(repo, "articles", logging.NewNop())

	article := &knowledge.Article{Title: "T", Slug: "t-1", Content: "body", Type: knowledge.ArticleTech}
	if _, err := pub.Publish(context.Background(), article); err != nil {
		t.Fatalf("Publish failed after one conflict: %v", err)
	}
	if repo.upserts != 2 {
		t.Fatalf("expected 2 upsert attempts, got %d", repo.upserts)
	}
}

func TestPublishSurfacesSecondConflict(t *testing.T) {
	repo := newFakeRepo()
	repo.conflictsAt[1] = true
	repo.conflictsAt[2] = true
	pub := publisher.New(repo, "articles", logging.NewNop())

	article := &knowledge.Article{Title: "T", Slug: "t-2", Content: "body", Type: knowledge.ArticleTech}
	_, err := pub.Publish(context.Background(), article)
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if repo.upserts != 2 {
		t.Fatalf("expected exactly one conflict retry, got %d attempts", repo.upserts)
	}
}

func TestUnpublishDeletesRemoteFile(t *testing.T) {
	repo := newFakeRepo()
	pub := publisher.New(repo, "articles", logging.NewNop())

	article := &knowledge.Article{Title: "T", Slug: "t-3", Content: "body", Type: knowledge.ArticleTech}
	result, err := pub.Publish(context.Background(), article)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := pub.Unpublish(context.Background(), article); err != nil {
		t.Fatalf("Unpublish failed: %v", err)
	}
	if _, ok := repo.files[result.Path]; ok {
		t.Fatalf("remote file %q must be deleted", result.Path)
	}

	// Deleting again is a no-op, not an error.
	if err := pub.Unpublish(context.Background(), article); err != nil {
		t.Fatalf("second Unpublish failed: %v", err)
	}
}

func TestRenderFrontMatter(t *testing.T) {
	article := &knowledge.Article{
		Title:     "Go \"Generics\"",
		Emoji:     "🧩",
		Type:      knowledge.ArticleTech,
		Topics:    []string{"go", "generics"},
		Published: true,
		Content:   "Body text",
	}
	doc := publisher.Render(article)
	for _, want := range []string{
		"title: \"Go \\\"Generics\\\"\"",
		"emoji: \"🧩\"",
		"type: \"tech\"",
		"topics: [\"go\", \"generics\"]",
		"published: true",
		"Body text",
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("rendered document missing %q:\n%s", want, doc)
		}
	}
	if !strings.HasPrefix(doc, "---\n") {
		t.Fatal("document must open with front matter")
	}
}

func TestSlug(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	suffix := "-" + "loyw3v28" // 1700000000000 in base 36

	cases := []struct {
		name  string
		title string
		want  string
	}{
		{"simple", "Hello World", "hello-world" + suffix},
		{"accents", "Café über alles", "cafe-uber-alles" + suffix},
		{"punctuation", "Go: the good parts!", "go-the-good-parts" + suffix},
		{"empty", "!!!", "article" + suffix},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := publisher.Slug(tc.title, now)
			if got != tc.want {
				t.Fatalf("Slug(%q) = %q, want %q", tc.title, got, tc.want)
			}
		})
	}
}

func TestSlugTruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("word ", 30)
	slug := publisher.Slug(long, time.Now())
	base := slug[:strings.LastIndex(slug, "-")]
	if len(base) > 50 {
		t.Fatalf("slug base too long: %d chars", len(base))
	}
}
