// Package parser loads source documents as plain text for extraction.
package parser

import (
	"context"
	"path/filepath"
	"strings"
)

// Document is the text of one source document.
type Document struct {
	Name   string // base file name, used as edge provenance
	Path   string
	Format string
	Text   string
	Pages  int // number of pages or sheets that contributed text, 1 for flat text
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*Document, error)
	SupportedFormats() []string
}

// FormatOf returns the lower-case extension of path without the dot.
func FormatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func newDocument(path, format, text string, pages int) *Document {
	return &Document{
		Name:   filepath.Base(path),
		Path:   path,
		Format: format,
		Text:   strings.TrimSpace(text),
		Pages:  pages,
	}
}
