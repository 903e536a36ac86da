package parser

import "strings"

// TextParser handles plain text and markdown files.
type TextParser struct{}

func (p *TextParser) SupportedExtensions() []string { return []string{"txt", "md"} }

func (p *TextParser) Parse(data []byte) (string, error) {
	return strings.TrimSpace(string(data)), nil
}
