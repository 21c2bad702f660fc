package search

import "github.com/harun/roundtable/pkg/provider"

var queryOnlySchema = func(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"query"},
	}
}

// WebSearchTool lets a persona look up evidence
var WebSearchTool = provider.ToolDefinition{
	Name: "web_search",
	Description: "Search the web for current information, evidence, data, or sources to support your arguments. " +
		"Returns titles, URLs, and snippets from search results. Use this to find real sources and cite them with working links.",
	InputSchema: queryOnlySchema("The search query to look up"),
}

// ImageSearchTool lets a persona find a visual aid
var ImageSearchTool = provider.ToolDefinition{
	Name: "image_search",
	Description: "Search the web for images relevant to the discussion. Returns image URLs, titles, and source pages. " +
		"Use this when a visual aid, chart, diagram, or photo would help illustrate your point. " +
		"Include the image in your response using markdown: ![description](image_url)",
	InputSchema: queryOnlySchema("The image search query"),
}
