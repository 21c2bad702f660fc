// Package search implements the web and image search tools offered to personas.
//
// Results come from the Brave Search API. Failures never propagate as errors
// to the model: they become a single result carrying Error, which formats to
// a readable line.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harun/roundtable/internal/observability"
	"github.com/harun/roundtable/pkg/provider"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL      = "https://api.search.brave.com/res/v1"
	defaultWebResults   = 5
	defaultImageResults = 3
	defaultTimeout      = 15 * time.Second
)

var (
	htmlTagRegex  = regexp.MustCompile(`<[^>]*>`)
	imageURLRegex = regexp.MustCompile(`(?i)^(https?://.+?\.(jpg|jpeg|png|gif|webp|svg|bmp))`)
)

// WebResult is one web search hit
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Error   string `json:"error,omitempty"`
}

// ImageResult is one image search hit
type ImageResult struct {
	Title       string `json:"title"`
	ImageURL    string `json:"image_url"`
	FallbackURL string `json:"fallback_url"`
	SourceURL   string `json:"source_url"`
	Error       string `json:"error,omitempty"`
}

// Config holds search client configuration
type Config struct {
	APIKey       string
	SafeSearch   string // off, moderate, strict
	BaseURL      string
	WebResults   int
	ImageResults int
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// Client queries the Brave Search API
type Client struct {
	apiKey       string
	safeSearch   string
	baseURL      string
	webResults   int
	imageResults int
	httpClient   *http.Client
	logger       zerolog.Logger
}

// NewClient creates a search client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.SafeSearch == "" {
		cfg.SafeSearch = "moderate"
	}
	if cfg.WebResults <= 0 {
		cfg.WebResults = defaultWebResults
	}
	if cfg.ImageResults <= 0 {
		cfg.ImageResults = defaultImageResults
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		apiKey:       cfg.APIKey,
		safeSearch:   cfg.SafeSearch,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		webResults:   cfg.WebResults,
		imageResults: cfg.ImageResults,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger.With().Str("component", "search").Logger(),
	}
}

type braveWebResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

type braveImageResponse struct {
	Results []struct {
		Title      string `json:"title"`
		URL        string `json:"url"`
		Properties struct {
			URL string `json:"url"`
		} `json:"properties"`
		Thumbnail struct {
			Src string `json:"src"`
		} `json:"thumbnail"`
	} `json:"results"`
}

// WebSearch returns up to n web results. apiKey overrides the client key when set.
func (c *Client) WebSearch(ctx context.Context, apiKey, query string, n int) []WebResult {
	if n <= 0 {
		n = c.webResults
	}

	var body braveWebResponse
	if err := c.get(ctx, apiKey, "/web/search", query, n, &body); err != nil {
		c.logger.Warn().Err(err).Str("query", query).Msg("Web search failed")
		return []WebResult{{Error: err.Error()}}
	}

	results := make([]WebResult, 0, min(len(body.Web.Results), n))
	for i, r := range body.Web.Results {
		if i >= n {
			break
		}
		results = append(results, WebResult{
			Title:   stripHTML(r.Title),
			URL:     r.URL,
			Snippet: stripHTML(r.Description),
		})
	}
	return results
}

// ImageSearch returns up to n image results. apiKey overrides the client key when set.
func (c *Client) ImageSearch(ctx context.Context, apiKey, query string, n int) []ImageResult {
	if n <= 0 {
		n = c.imageResults
	}

	var body braveImageResponse
	if err := c.get(ctx, apiKey, "/images/search", query, n, &body); err != nil {
		c.logger.Warn().Err(err).Str("query", query).Msg("Image search failed")
		return []ImageResult{{Error: err.Error()}}
	}

	results := make([]ImageResult, 0, min(len(body.Results), n))
	for i, r := range body.Results {
		if i >= n {
			break
		}
		results = append(results, ImageResult{
			Title:       stripHTML(r.Title),
			ImageURL:    CleanImageURL(r.Properties.URL),
			FallbackURL: r.Thumbnail.Src,
			SourceURL:   r.URL,
		})
	}
	return results
}

func (c *Client) get(ctx context.Context, apiKey, path, query string, n int, out any) error {
	if apiKey == "" {
		apiKey = c.apiKey
	}
	if apiKey == "" {
		return fmt.Errorf("no search API key configured")
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(n))
	params.Set("safesearch", c.safeSearch)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode search response: %w", err)
	}
	return nil
}

// FormatWebResults renders results as tool-result text
func FormatWebResults(results []WebResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	if results[0].Error != "" {
		return "Search error: " + results[0].Error
	}

	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. %s\n   URL: %s\n   %s", i+1, r.Title, r.URL, r.Snippet))
	}
	return strings.Join(lines, "\n\n")
}

// FormatImageResults renders image results as tool-result text
func FormatImageResults(results []ImageResult) string {
	if len(results) == 0 {
		return "No images found."
	}
	if results[0].Error != "" {
		return "Image search error: " + results[0].Error
	}

	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf(
			"%d. %s\n   Image URL: %s\n   Thumbnail: %s\n   Source: %s\n   Use the Image URL in your markdown. If it looks broken (has extra params after the extension), use the Thumbnail instead.",
			i+1, r.Title, r.ImageURL, r.FallbackURL, r.SourceURL))
	}
	return strings.Join(lines, "\n\n")
}

// CleanImageURL cuts proxy parameters appended after the file extension
// without a '?', e.g. "a.jpg&w=700" becomes "a.jpg".
func CleanImageURL(raw string) string {
	if m := imageURLRegex.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTagRegex.ReplaceAllString(s, ""))
}

// Definitions returns the web_search and image_search tool definitions
func (c *Client) Definitions() []provider.ToolDefinition {
	return []provider.ToolDefinition{WebSearchTool, ImageSearchTool}
}

// Execute runs a tool call. It reports false for names other than the two search tools.
func (c *Client) Execute(ctx context.Context, apiKey string, call provider.ToolCall) (string, bool) {
	query, _ := call.Input["query"].(string)
	start := time.Now()

	switch call.Name {
	case WebSearchTool.Name:
		results := c.WebSearch(ctx, apiKey, query, 0)
		observability.RecordToolCall(call.Name, time.Since(start), !hasWebError(results))
		return FormatWebResults(results), true
	case ImageSearchTool.Name:
		results := c.ImageSearch(ctx, apiKey, query, 0)
		observability.RecordToolCall(call.Name, time.Since(start), !hasImageError(results))
		return FormatImageResults(results), true
	}
	return "", false
}

func hasWebError(results []WebResult) bool {
	return len(results) > 0 && results[0].Error != ""
}

func hasImageError(results []ImageResult) bool {
	return len(results) > 0 && results[0].Error != ""
}
