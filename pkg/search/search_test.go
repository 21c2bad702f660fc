package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harun/roundtable/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBraveServer(t *testing.T) (*httptest.Server, *[]*http.Request) {
	t.Helper()
	var seen []*http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/web/search":
			json.NewEncoder(w).Encode(map[string]any{
				"web": map[string]any{
					"results": []map[string]any{
						{"title": "Go <strong>Programming</strong>", "url": "https://go.dev", "description": "The Go <strong>language</strong>"},
						{"title": "Go Tour", "url": "https://go.dev/tour", "description": "A tour of Go"},
						{"title": "Go Docs", "url": "https://go.dev/doc", "description": "Docs"},
					},
				},
			})
		case "/images/search":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{
						"title":      "Gopher",
						"url":        "https://blog.example/gopher",
						"properties": map[string]any{"url": "https://img.example/gopher.png&w=700&q=90"},
						"thumbnail":  map[string]any{"src": "https://thumbs.example/gopher"},
					},
				},
			})
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(server.Close)
	return server, &seen
}

func TestWebSearch(t *testing.T) {
	server, seen := newBraveServer(t)
	client := NewClient(Config{APIKey: "brave-key", BaseURL: server.URL, SafeSearch: "strict"})

	results := client.WebSearch(context.Background(), "", "golang", 2)
	require.Len(t, results, 2)
	assert.Equal(t, "Go Programming", results[0].Title)
	assert.Equal(t, "The Go language", results[0].Snippet)
	assert.Equal(t, "https://go.dev/tour", results[1].URL)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "brave-key", req.Header.Get("X-Subscription-Token"))
	assert.Equal(t, "golang", req.URL.Query().Get("q"))
	assert.Equal(t, "2", req.URL.Query().Get("count"))
	assert.Equal(t, "strict", req.URL.Query().Get("safesearch"))

	client.WebSearch(context.Background(), "session-key", "golang", 0)
	assert.Equal(t, "session-key", (*seen)[1].Header.Get("X-Subscription-Token"))
	assert.Equal(t, "5", (*seen)[1].URL.Query().Get("count"))
}

func TestImageSearch(t *testing.T) {
	server, _ := newBraveServer(t)
	client := NewClient(Config{APIKey: "brave-key", BaseURL: server.URL})

	results := client.ImageSearch(context.Background(), "", "gopher", 0)
	require.Len(t, results, 1)
	assert.Equal(t, ImageResult{
		Title:       "Gopher",
		ImageURL:    "https://img.example/gopher.png",
		FallbackURL: "https://thumbs.example/gopher",
		SourceURL:   "https://blog.example/gopher",
	}, results[0])
}

func TestSearchFailuresBecomeErrorResults(t *testing.T) {
	server, _ := newBraveServer(t)

	t.Run("missing key", func(t *testing.T) {
		client := NewClient(Config{BaseURL: server.URL})
		results := client.WebSearch(context.Background(), "", "golang", 0)
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Error, "no search API key")
	})

	t.Run("bad status", func(t *testing.T) {
		client := NewClient(Config{APIKey: "k", BaseURL: server.URL + "/broken"})
		results := client.ImageSearch(context.Background(), "", "gopher", 0)
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Error, "status 503")
		assert.Equal(t, "Image search error: search backend returned status 503", FormatImageResults(results))
	})

	t.Run("empty query", func(t *testing.T) {
		client := NewClient(Config{APIKey: "k", BaseURL: server.URL})
		results := client.WebSearch(context.Background(), "", "  ", 0)
		assert.Equal(t, "Search error: query is required", FormatWebResults(results))
	})
}

func TestFormatWebResults(t *testing.T) {
	assert.Equal(t, "No results found.", FormatWebResults(nil))

	out := FormatWebResults([]WebResult{
		{Title: "A", URL: "https://a", Snippet: "first"},
		{Title: "B", URL: "https://b", Snippet: "second"},
	})
	assert.Equal(t, "1. A\n   URL: https://a\n   first\n\n2. B\n   URL: https://b\n   second", out)
}

func TestFormatImageResults(t *testing.T) {
	assert.Equal(t, "No images found.", FormatImageResults(nil))

	out := FormatImageResults([]ImageResult{{Title: "G", ImageURL: "https://i/g.png", FallbackURL: "https://t/g", SourceURL: "https://s"}})
	assert.Contains(t, out, "1. G\n   Image URL: https://i/g.png\n   Thumbnail: https://t/g\n   Source: https://s\n")
	assert.Equal(t, out, FormatImageResults([]ImageResult{{Title: "G", ImageURL: "https://i/g.png", FallbackURL: "https://t/g", SourceURL: "https://s"}}))
}

func TestCleanImageURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://x.example/a.jpg&w=700&q=90", "https://x.example/a.jpg"},
		{"https://x.example/a.JPEG?size=large", "https://x.example/a.JPEG"},
		{"https://x.example/path/photo.webp", "https://x.example/path/photo.webp"},
		{"https://x.example/render?id=5", "https://x.example/render?id=5"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanImageURL(tt.in))
		})
	}
}

func TestExecute(t *testing.T) {
	server, _ := newBraveServer(t)
	client := NewClient(Config{APIKey: "k", BaseURL: server.URL})

	out, ok := client.Execute(context.Background(), "", provider.ToolCall{ID: "1", Name: "web_search", Input: map[string]any{"query": "golang"}})
	require.True(t, ok)
	assert.Contains(t, out, "1. Go Programming")

	out, ok = client.Execute(context.Background(), "", provider.ToolCall{ID: "2", Name: "image_search", Input: map[string]any{"query": "gopher"}})
	require.True(t, ok)
	assert.Contains(t, out, "Image URL: https://img.example/gopher.png")

	_, ok = client.Execute(context.Background(), "", provider.ToolCall{ID: "3", Name: "calculator"})
	assert.False(t, ok)

	defs := client.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "web_search", defs[0].Name)
	assert.Equal(t, []string{"query"}, defs[1].InputSchema["required"])
}
