package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/services"
)

const defaultHTTPTimeout = 30 * time.Second

// File is a repository file retrieved through the contents API. SHA is the
// blob version identifier required for conflict-free updates.
type File struct {
	Path    string
	SHA     string
	Content string
	HTMLURL string
}

// CommitResult describes the outcome of an upsert or delete.
type CommitResult struct {
	ContentSHA string
	CommitSHA  string
	HTMLURL    string
}

// Client wraps the GitHub repository contents API for a single repo.
type Client struct {
	token      string
	owner      string
	repo       string
	branch     string
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a GitHub client from the github config section.
func NewClient(cfg config.GitHub, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		token:      strings.TrimSpace(cfg.Token),
		owner:      strings.TrimSpace(cfg.Owner),
		repo:       strings.TrimSpace(cfg.Repo),
		branch:     strings.TrimSpace(cfg.Branch),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// GetFile fetches a file and its current SHA. A missing file surfaces as a
// not-found error; callers treating absence as normal should check for it.
func (c *Client) GetFile(ctx context.Context, path string) (*File, error) {
	var payload contentsResponse
	endpoint := c.contentsURL(path) + "?ref=" + url.QueryEscape(c.branch)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, "get file", &payload); err != nil {
		return nil, err
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return nil, services.Wrap(services.ErrMalformedPayload, "github", "get file", "decode content", err)
	}
	return &File{
		Path:    payload.Path,
		SHA:     payload.SHA,
		Content: string(decoded),
		HTMLURL: payload.HTMLURL,
	}, nil
}

// UpsertFile creates or updates a file. sha must be the current remote SHA
// when updating and empty when creating; a stale sha maps to a conflict.
func (c *Client) UpsertFile(ctx context.Context, path, content, message, sha string) (*CommitResult, error) {
	body := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  c.branch,
	}
	if sha != "" {
		body["sha"] = sha
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("github upsert: encode body: %w", err)
	}

	var payload commitResponse
	if err := c.do(ctx, http.MethodPut, c.contentsURL(path), encoded, "upsert file", &payload); err != nil {
		return nil, err
	}
	return &CommitResult{
		ContentSHA: payload.Content.SHA,
		CommitSHA:  payload.Commit.SHA,
		HTMLURL:    payload.Content.HTMLURL,
	}, nil
}

// DeleteFile removes a file at its current SHA.
func (c *Client) DeleteFile(ctx context.Context, path, message, sha string) error {
	body := map[string]any{
		"message": message,
		"sha":     sha,
		"branch":  c.branch,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("github delete: encode body: %w", err)
	}
	var payload commitResponse
	return c.do(ctx, http.MethodDelete, c.contentsURL(path), encoded, "delete file", &payload)
}

// HealthCheck verifies the token and repository are reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, c.owner, c.repo)
	var payload struct {
		FullName string `json:"full_name"`
	}
	return c.do(ctx, http.MethodGet, endpoint, nil, "health", &payload)
}

type contentsResponse struct {
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Content string `json:"content"`
	HTMLURL string `json:"html_url"`
}

type commitResponse struct {
	Content struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func (c *Client) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.baseURL, c.owner, c.repo, strings.TrimLeft(path, "/"))
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, op string, target any) error {
	if c.token == "" {
		return services.Wrap(services.ErrConfiguration, "github", op, "token required", nil)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("github %s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "github", op, "request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "github", op, "read body", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail := fmt.Sprintf("http %d: %s", resp.StatusCode, summarizeBody(data))
		switch {
		case resp.StatusCode == http.StatusUnauthorized,
			resp.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "github", op, detail, nil)
		case resp.StatusCode == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "github", op, detail, nil)
		case resp.StatusCode == http.StatusConflict,
			resp.StatusCode == http.StatusUnprocessableEntity:
			return services.Wrap(services.ErrConflict, "github", op, detail, nil)
		case resp.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "github", op, detail, nil)
		default:
			return services.Wrap(services.ErrValidation, "github", op, detail, nil)
		}
	}

	if target != nil && len(data) > 0 {
		if err := json.Unmarshal(data, target); err != nil {
			return services.Wrap(services.ErrMalformedPayload, "github", op, "decode response", err)
		}
	}
	return nil
}

func summarizeBody(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
