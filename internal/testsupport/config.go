package testsupport

import (
	"path/filepath"
	"testing"

	"quill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Notion.Token = "test-notion-token"
	cfg.GitHub.Token = "test-github-token"
	cfg.GitHub.Owner = "octocat"
	cfg.GitHub.Repo = "articles"
	cfg.LLM.APIKey = "test-llm-key"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithQueueLimits overrides the queue concurrency and retry budget.
func WithQueueLimits(maxConcurrent, maxRetries int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxConcurrent = maxConcurrent
		cfg.Queue.MaxRetries = maxRetries
	}
}

// WithLLMBaseURL points the model client at a test server.
func WithLLMBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.LLM.BaseURL = url
	}
}

// WithNotionBaseURL points the Notion client at a test server.
func WithNotionBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Notion.BaseURL = url
	}
}

// WithGitHubBaseURL points the GitHub client at a test server.
func WithGitHubBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.GitHub.BaseURL = url
	}
}
