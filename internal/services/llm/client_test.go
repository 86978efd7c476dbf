package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"quill/internal/config"
	"quill/internal/knowledge"
	"quill/internal/services"
	"quill/internal/services/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *llm.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return llm.NewClient(
		config.LLM{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"},
		llm.WithSleeper(func(time.Duration) {}),
	)
}

func completionBody(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestAnalyzeParsesFencedPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("```json\n{\"summary\":\"s\",\"suggested_title\":\"T\",\"key_topics\":[\"go\"]}\n```")))
	})

	analysis, err := client.Analyze(context.Background(), "title", "some source content")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if analysis.SuggestedTitle != "T" || len(analysis.KeyTopics) != 1 {
		t.Fatalf("unexpected analysis: %#v", analysis)
	}
}

func TestAnalyzeRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(completionBody(`{"summary":"s","suggested_title":"T"}`)))
	})

	if _, err := client.Analyze(context.Background(), "", "content"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestAnalyzeCredentialsRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Analyze(context.Background(), "", "content")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("credential failures must not be retryable")
	}
}

func TestAnalyzeMalformedPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody("this is not json at all")))
	})

	_, err := client.Analyze(context.Background(), "", "content")
	if !errors.Is(err, services.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("malformed payloads should be retryable")
	}
}

func TestGenerateFillsMetadataDefaults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody(`{"title":"Out","type":"nonsense","content":"one two three four"}`)))
	})

	item := &knowledge.Item{Title: "Src", Content: "body"}
	analysis := &knowledge.ContentAnalysis{SuggestedTitle: "Out"}
	article, err := client.Generate(context.Background(), item, analysis, llm.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if article.Type != knowledge.ArticleTech {
		t.Fatalf("expected unknown type to default to tech, got %s", article.Type)
	}
	if article.Metadata.WordCount != 4 {
		t.Fatalf("expected word count 4, got %d", article.Metadata.WordCount)
	}
	if article.Metadata.EstimatedReadingTime == 0 {
		t.Fatal("expected reading time default")
	}
}

func TestMissingAPIKey(t *testing.T) {
	client := llm.NewClient(config.LLM{BaseURL: "http://127.0.0.1:0", Model: "m"})
	_, err := client.Analyze(context.Background(), "", "content")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDecodeModelJSONVariants(t *testing.T) {
	type payload struct {
		OK bool `json:"ok"`
	}
	cases := []struct {
		name  string
		input string
	}{
		{"bare", `{"ok":true}`},
		{"fenced", "```json\n{\"ok\":true}\n```"},
		{"prose", "Here you go: {\"ok\":true} hope that helps"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out payload
			if err := llm.DecodeModelJSON(tc.input, &out); err != nil {
				t.Fatalf("DecodeModelJSON failed: %v", err)
			}
			if !out.OK {
				t.Fatal("payload not decoded")
			}
		})
	}

	var out payload
	if err := llm.DecodeModelJSON("", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
