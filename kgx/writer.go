// Package kgx appends graph nodes and edges to tab-separated files in the
// KGX exchange layout.
//
// Writers hold no lock between checking whether a header is needed and
// appending. Two processes appending to the same file at once may duplicate
// the header or interleave rows, so callers must serialise writers per path.
package kgx

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrColumnMismatch is returned when a row's width differs from the
// writer's column count.
var ErrColumnMismatch = errors.New("txt2kgx: row does not match column schema")

// Writer appends rows with a fixed column schema to a single file.
type Writer struct {
	path    string
	columns []string
}

// NewWriter creates a Writer for path. Nothing is touched on disk until the
// first Append.
func NewWriter(path string, columns []string) *Writer {
	return &Writer{path: path, columns: append([]string(nil), columns...)}
}

// Path returns the destination file.
func (w *Writer) Path() string { return w.path }

// Columns returns the column schema.
func (w *Writer) Columns() []string { return append([]string(nil), w.columns...) }

// Append writes rows to the end of the file, preceded by the header row when
// the file does not exist yet or is empty. An empty rows slice is a no-op.
// Rows are validated and encoded before anything is written.
func (w *Writer) Append(rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	p, err := w.prepare(rows)
	if err != nil {
		return err
	}
	return p.commit()
}

// pendingAppend is an opened destination holding the encoded rows of one
// append. It must be committed or aborted.
type pendingAppend struct {
	path string
	f    *os.File
	data []byte
}

// prepare validates and encodes rows and opens the destination, without
// writing to it.
func (w *Writer) prepare(rows [][]string) (*pendingAppend, error) {
	for i, r := range rows {
		if len(r) != len(w.columns) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d", ErrColumnMismatch, i, len(r), len(w.columns))
		}
	}

	needHeader, err := w.needsHeader()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.Comma = '\t'
	if needHeader {
		if err := cw.Write(w.columns); err != nil {
			return nil, fmt.Errorf("encoding header for %s: %w", w.path, err)
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encoding rows for %s: %w", w.path, err)
	}

	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", w.path, err)
	}
	return &pendingAppend{path: w.path, f: f, data: buf.Bytes()}, nil
}

// commit appends the encoded rows in a single write and closes the file.
func (p *pendingAppend) commit() error {
	if _, err := p.f.Write(p.data); err != nil {
		p.f.Close()
		return fmt.Errorf("appending to %s: %w", p.path, err)
	}
	if err := p.f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", p.path, err)
	}
	return nil
}

// abort closes the destination without writing. A file created by prepare
// is left empty, which still counts as needing a header.
func (p *pendingAppend) abort() {
	p.f.Close()
}

func (w *Writer) needsHeader() (bool, error) {
	info, err := os.Stat(w.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("checking %s: %w", w.path, err)
	case info.IsDir():
		return false, fmt.Errorf("checking %s: is a directory", w.path)
	}
	return info.Size() == 0, nil
}
