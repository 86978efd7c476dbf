package github_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"quill/internal/config"
	"quill/internal/services"
	"quill/internal/services/github"
)

func newTestClient(t *testing.T, handler http.Handler) *github.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return github.NewClient(config.GitHub{
		Token:   "test-token",
		Owner:   "octocat",
		Repo:    "articles",
		Branch:  "main",
		BaseURL: server.URL,
	})
}

func TestGetFileDecodesContent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/octocat/articles/contents/articles/post.md" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ref"); got != "main" {
			t.Errorf("unexpected ref %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"path":     "articles/post.md",
			"sha":      "abc123",
			"content":  base64.StdEncoding.EncodeToString([]byte("# Hello")),
			"html_url": "https://github.com/octocat/articles/blob/main/articles/post.md",
		})
	}))

	file, err := client.GetFile(context.Background(), "articles/post.md")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if file.Content != "# Hello" || file.SHA != "abc123" {
		t.Fatalf("unexpected file: %#v", file)
	}
}

func TestGetFileNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetFile(context.Background(), "articles/missing.md")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("not-found must not be retryable")
	}
}

func TestUpsertFileSendsSHA(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["sha"] != "old-sha" || body["branch"] != "main" {
			t.Errorf("unexpected body: %#v", body)
		}
		decoded, _ := base64.StdEncoding.DecodeString(body["content"].(string))
		if string(decoded) != "new content" {
			t.Errorf("unexpected content %q", decoded)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]any{"sha": "new-sha", "html_url": "https://example"},
			"commit":  map[string]any{"sha": "commit-sha"},
		})
	}))

	result, err := client.UpsertFile(context.Background(), "articles/post.md", "new content", "update post", "old-sha")
	if err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}
	if result.ContentSHA != "new-sha" || result.CommitSHA != "commit-sha" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestUpsertFileConflict(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	_, err := client.UpsertFile(context.Background(), "articles/post.md", "x", "m", "stale")
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestForbiddenIsConfiguration(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.GetFile(context.Background(), "articles/post.md")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
