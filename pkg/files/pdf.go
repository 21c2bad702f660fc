package files

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const maxPDFPages = 30

func (e *Extractor) pdf(name string, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	total := reader.NumPage()
	lines := []string{fmt.Sprintf("PDF file: %s (%d pages)", name, total)}
	for i := 1; i <= min(total, maxPDFPages); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		for _, key := range page.Fonts() {
			font := page.Font(key)
			fonts[key] = &font
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			lines = append(lines, fmt.Sprintf("\n--- Page %d ---\n%s", i, text))
		}
	}
	if total > maxPDFPages {
		lines = append(lines, fmt.Sprintf("\n... (%d more pages truncated)", total-maxPDFPages))
	}

	return strings.Join(lines, "\n"), nil
}
