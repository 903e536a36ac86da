package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts page text with pdf's native reader. Pages that fail
// extraction are skipped rather than failing the whole document.
type PDFParser struct{}

func (p *PDFParser) SupportedExtensions() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("no extractable text in PDF")
	}
	return strings.Join(pages, "\n\n"), nil
}
