package parser

import (
	"fmt"
	"sort"
)

// Registry maps file formats to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with the built-in parsers registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&TextParser{}, &PDFParser{}, &DOCXParser{}, &XLSXParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Get returns the parser for format.
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

// Register adds or replaces the parser for format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// Supports reports whether a parser is registered for format.
func (r *Registry) Supports(format string) bool {
	_, ok := r.parsers[format]
	return ok
}

// Formats lists the registered formats, sorted.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
