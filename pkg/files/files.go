// Package files turns uploaded files into plain text that can be attached to
// a discussion as context.
//
// Extraction never fails: unsupported formats and decode errors come back as
// a bracketed marker string instead of an error.
package files

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

const (
	defaultMaxChars = 10000
	defaultMaxRows  = 50

	truncatedMarker = "\n... (truncated)"
)

// Config holds extraction limits
type Config struct {
	MaxChars int
	MaxRows  int
}

// Extractor extracts text from uploaded files
type Extractor struct {
	maxChars int
	maxRows  int
}

// New creates an extractor. Zero limits use the defaults.
func New(cfg Config) *Extractor {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	return &Extractor{maxChars: cfg.MaxChars, maxRows: cfg.MaxRows}
}

var defaultExtractor = New(Config{})

// Extract uses the default limits
func Extract(name string, data []byte) string {
	return defaultExtractor.Extract(name, data)
}

type processor func(e *Extractor, name string, data []byte) (string, error)

var processors = map[string]processor{
	".csv":  (*Extractor).csv,
	".xlsx": (*Extractor).xlsx,
	".pdf":  (*Extractor).pdf,
	".html": (*Extractor).html,
	".htm":  (*Extractor).html,
	".txt":  (*Extractor).text,
	".md":   (*Extractor).text,
	".json": (*Extractor).text,
	".log":  (*Extractor).text,
	".py":   (*Extractor).text,
	".js":   (*Extractor).text,
	".ts":   (*Extractor).text,
	".go":   (*Extractor).text,
	".yaml": (*Extractor).text,
	".yml":  (*Extractor).text,
	".docx": (*Extractor).docx,
	".png":  (*Extractor).image,
	".jpg":  (*Extractor).image,
	".jpeg": (*Extractor).image,
	".gif":  (*Extractor).image,
	".webp": (*Extractor).image,
	".mp4":  (*Extractor).video,
	".mov":  (*Extractor).video,
	".avi":  (*Extractor).video,
	".mkv":  (*Extractor).video,
}

// Supported reports whether name has an extension with a processor
func Supported(name string) bool {
	_, ok := processors[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extract routes a file to its processor by extension
func (e *Extractor) Extract(name string, data []byte) (out string) {
	ext := strings.ToLower(filepath.Ext(name))
	process, ok := processors[ext]
	if !ok {
		return fmt.Sprintf("[Unsupported file type: %s. File name: %s]", ext, name)
	}

	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("[Error processing %s: %v]", name, r)
		}
	}()

	text, err := process(e, name, data)
	if err != nil {
		return fmt.Sprintf("[Error processing %s: %v]", name, err)
	}
	return text
}

func (e *Extractor) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= e.maxChars {
		return s
	}
	return string(runes[:e.maxChars]) + truncatedMarker
}

func decodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}

func (e *Extractor) text(name string, data []byte) (string, error) {
	return fmt.Sprintf("File: %s\n\n%s", name, e.truncate(decodeText(data))), nil
}

func (e *Extractor) csv(name string, data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 {
		return "[Empty CSV file]", nil
	}

	dataRows := rows[1:]
	lines := []string{
		fmt.Sprintf("CSV file: %s (%d data rows)", name, len(dataRows)),
		"Columns: " + strings.Join(rows[0], " | "),
		"---",
	}
	for i, row := range dataRows {
		if i >= e.maxRows {
			lines = append(lines, fmt.Sprintf("... (%d more rows truncated)", len(dataRows)-e.maxRows))
			break
		}
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n"), nil
}

func (e *Extractor) html(name string, data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return fmt.Sprintf("HTML file: %s\n\n%s", name, e.truncate(strings.Join(parts, " "))), nil
}

func (e *Extractor) image(name string, data []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Sprintf("[Image file: %s (%.1f KB) - image content cannot be read as text, but the file has been attached for reference]",
			name, float64(len(data))/1024), nil
	}
	return fmt.Sprintf("[Image file: %s (%s, %dx%d) - image content cannot be read as text, but the file has been attached for reference]",
		name, strings.ToUpper(format), cfg.Width, cfg.Height), nil
}

func (e *Extractor) video(name string, data []byte) (string, error) {
	return fmt.Sprintf("[Video file: %s (%.1f MB) - video content noted for discussion context]",
		name, float64(len(data))/(1024*1024)), nil
}
