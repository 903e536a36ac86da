// Package parser extracts plain text from uploaded documents. Each format
// parser produces paragraph-structured text (paragraphs separated by blank
// lines) ready for chunking.
package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file extensions no parser handles.
var ErrUnsupported = errors.New("parser: unsupported format")

// Parser extracts text from one document format.
type Parser interface {
	Parse(data []byte) (string, error)
	SupportedExtensions() []string
}

// Registry routes files to parsers by extension.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Parser)}
}

// Register adds a parser for all its extensions.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.SupportedExtensions() {
		r.byExt[ext] = p
	}
}

// Supported reports whether the filename's extension has a parser.
func (r *Registry) Supported(filename string) bool {
	_, ok := r.byExt[normalizeExt(filename)]
	return ok
}

// Parse extracts text from the file contents, routing on the filename's
// extension.
func (r *Registry) Parse(filename string, data []byte) (string, error) {
	ext := normalizeExt(filename)
	p, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	return p.Parse(data)
}

// Default returns a registry with every built-in parser registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(&TextParser{})
	r.Register(&DOCXParser{})
	r.Register(&PDFParser{})
	r.Register(&XLSXParser{})
	return r
}

func normalizeExt(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}
