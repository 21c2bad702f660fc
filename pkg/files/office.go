package files

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return zr, nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("missing %s", name)
}

func (e *Extractor) docx(name string, data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	body, err := readZipFile(zr, "word/document.xml")
	if err != nil {
		return "", err
	}

	var paragraphs []string
	var current strings.Builder
	inText := false

	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return fmt.Sprintf("Word document: %s\n\n%s", name, e.truncate(strings.Join(paragraphs, "\n"))), nil
}

func (e *Extractor) xlsx(name string, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	lines := []string{"Excel file: " + name}
	for _, sheet := range f.GetSheetList() {
		lines = append(lines, "\n## Sheet: "+sheet)

		rows, err := f.Rows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		count := 0
		for rows.Next() {
			if count >= e.maxRows {
				lines = append(lines, "... (rows truncated)")
				break
			}
			cells, err := rows.Columns()
			if err != nil {
				rows.Close()
				return "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
			}
			lines = append(lines, strings.Join(cells, " | "))
			count++
		}
		if err := rows.Close(); err != nil {
			return "", fmt.Errorf("failed to close sheet %s: %w", sheet, err)
		}
	}

	return strings.Join(lines, "\n"), nil
}
