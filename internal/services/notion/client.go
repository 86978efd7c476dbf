package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/services"
)

const defaultHTTPTimeout = 30 * time.Second

// Page is a fetched Notion page reduced to the fields the pipeline needs.
type Page struct {
	ID             string
	URL            string
	Title          string
	Content        string
	LastEditedTime time.Time
}

// SearchResult is one hit from the workspace search endpoint.
type SearchResult struct {
	ID    string
	URL   string
	Title string
}

// Client wraps the Notion REST API: page retrieval, block children, search.
type Client struct {
	token      string
	baseURL    string
	version    string
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

// NewClient constructs a Notion client from the notion config section.
func NewClient(cfg config.Notion, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		token:      strings.TrimSpace(cfg.Token),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		version:    strings.TrimSpace(cfg.Version),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FetchPage retrieves a page and its full block content as plain text. The
// page ID may be bare, hyphenated, or a full Notion URL.
func (c *Client) FetchPage(ctx context.Context, pageID string) (*Page, error) {
	id, err := NormalizePageID(pageID)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "notion", "fetch page", "invalid page id", err)
	}

	var pagePayload pageResponse
	if err := c.getJSON(ctx, "/pages/"+id, "fetch page", &pagePayload); err != nil {
		return nil, err
	}

	content, err := c.fetchBlockText(ctx, id)
	if err != nil {
		return nil, err
	}

	page := &Page{
		ID:      id,
		URL:     pagePayload.URL,
		Title:   pagePayload.title(),
		Content: content,
	}
	if edited, err := time.Parse(time.RFC3339, pagePayload.LastEditedTime); err == nil {
		page.LastEditedTime = edited
	}
	return page, nil
}

// Search queries the workspace for pages matching the query string.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	body, err := json.Marshal(map[string]any{
		"query":  query,
		"filter": map[string]string{"property": "object", "value": "page"},
	})
	if err != nil {
		return nil, fmt.Errorf("notion search: encode body: %w", err)
	}

	var payload searchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/search", string(body), "search", &payload); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		results = append(results, SearchResult{
			ID:    r.ID,
			URL:   r.URL,
			Title: r.title(),
		})
	}
	return results, nil
}

// HealthCheck verifies the token by calling the bot-user endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	var payload struct {
		ID string `json:"id"`
	}
	return c.getJSON(ctx, "/users/me", "health", &payload)
}

// fetchBlockText pulls all child blocks (paginated) and flattens supported
// block types into newline-separated plain text.
func (c *Client) fetchBlockText(ctx context.Context, pageID string) (string, error) {
	var lines []string
	cursor := ""
	for {
		path := "/blocks/" + pageID + "/children?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		var payload blockListResponse
		if err := c.getJSON(ctx, path, "fetch blocks", &payload); err != nil {
			return "", err
		}
		for _, block := range payload.Results {
			if text := block.plainText(); text != "" {
				lines = append(lines, text)
			}
		}
		if !payload.HasMore || payload.NextCursor == "" {
			break
		}
		cursor = payload.NextCursor
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Client) getJSON(ctx context.Context, path, op string, target any) error {
	return c.doJSON(ctx, http.MethodGet, path, "", op, target)
}

func (c *Client) doJSON(ctx context.Context, method, path, body, op string, target any) error {
	if c.token == "" {
		return services.Wrap(services.ErrConfiguration, "notion", op, "token required", nil)
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("notion %s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "notion", op, "request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "notion", op, "read body", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail := fmt.Sprintf("http %d: %s", resp.StatusCode, summarizeBody(data))
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return services.Wrap(services.ErrConfiguration, "notion", op, detail, nil)
		case resp.StatusCode == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "notion", op, detail, nil)
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "notion", op, detail, nil)
		default:
			return services.Wrap(services.ErrValidation, "notion", op, detail, nil)
		}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return services.Wrap(services.ErrMalformedPayload, "notion", op, "decode response", err)
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

var (
	pageIDPattern  = regexp.MustCompile(`^[0-9a-f]{32}$`)
	pageUUIDRegexp = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	hexRunPattern  = regexp.MustCompile(`[0-9a-f]{32}`)
)

// NormalizePageID converts a bare, hyphenated, or URL-embedded page
// identifier into the canonical 32-hex-digit form. The un-stripped input is
// scanned first so hyphen boundaries in URL slugs keep the ID intact.
func NormalizePageID(raw string) (string, error) {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if compact := strings.ReplaceAll(lowered, "-", ""); pageIDPattern.MatchString(compact) {
		return compact, nil
	}
	if match := pageUUIDRegexp.FindString(lowered); match != "" {
		return strings.ReplaceAll(match, "-", ""), nil
	}
	if match := hexRunPattern.FindString(lowered); match != "" {
		return match, nil
	}
	return "", fmt.Errorf("no page id in %q", raw)
}
