// Package ontology maps dataset-specific entity types and relationship names
// onto canonical ontology terms (Biolink categories and predicates) using
// two-column lookup tables.
package ontology

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnmappedCategory is returned when an entity type has no category.
	ErrUnmappedCategory = errors.New("txt2kgx: unmapped category")

	// ErrUnmappedPredicate is returned when a relationship has no predicate.
	ErrUnmappedPredicate = errors.New("txt2kgx: unmapped predicate")

	// ErrEmptyTable is returned when a table file has no usable rows.
	ErrEmptyTable = errors.New("txt2kgx: mapping table is empty")
)

// Kind selects what a table maps.
type Kind int

const (
	// Categories maps entity types to node categories.
	Categories Kind = iota
	// Predicates maps relationship names to edge predicates. A key cell may
	// list several comma-separated synonyms.
	Predicates
)

func (k Kind) String() string {
	if k == Predicates {
		return "predicates"
	}
	return "categories"
}

// columns returns the header names of the key and value columns.
func (k Kind) columns() (string, string) {
	if k == Predicates {
		return "relationship in dataset", "To biolink:predicate"
	}
	return "Entity in dataset", "to Biolink Model"
}

func (k Kind) unmapped() error {
	if k == Predicates {
		return ErrUnmappedPredicate
	}
	return ErrUnmappedCategory
}

// Table is an immutable raw-term to canonical-term mapping.
type Table struct {
	kind    Kind
	entries map[string]string
	keys    []string
}

// NewTable builds a table from key/value rows. Keys and values are trimmed,
// rows with an empty side are skipped, and for Predicates tables every
// comma-separated synonym in a key becomes its own entry. A repeated key
// keeps the last value.
func NewTable(kind Kind, rows [][2]string) *Table {
	t := &Table{kind: kind, entries: make(map[string]string, len(rows))}
	for _, row := range rows {
		value := strings.TrimSpace(row[1])
		if value == "" {
			continue
		}
		keys := []string{row[0]}
		if kind == Predicates {
			keys = strings.Split(row[0], ",")
		}
		for _, k := range keys {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if _, dup := t.entries[k]; !dup {
				t.keys = append(t.keys, k)
			}
			t.entries[k] = value
		}
	}
	return t
}

// LoadTable reads a mapping table from path. Files ending in .xlsx are read
// from their first sheet; anything else is treated as ';'-separated text.
// The first row is a header: the kind's named columns are used when present,
// otherwise the first two columns.
func LoadTable(path string, kind Kind) (*Table, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		records, err = readWorkbook(path)
	default:
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s table: %w", kind, err)
		}
		defer f.Close()
		records, err = readDelimited(f)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s table %s: %w", kind, path, err)
	}

	t := fromRecords(kind, records)
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTable, path)
	}
	return t, nil
}

// ReadTable reads a ';'-separated table with a header row from r.
func ReadTable(r io.Reader, kind Kind) (*Table, error) {
	records, err := readDelimited(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s table: %w", kind, err)
	}
	return fromRecords(kind, records), nil
}

func readDelimited(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.ReadAll()
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}

func fromRecords(kind Kind, records [][]string) *Table {
	if len(records) == 0 {
		return NewTable(kind, nil)
	}
	keyCol, valCol := headerColumns(kind, records[0])
	rows := make([][2]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if keyCol >= len(rec) || valCol >= len(rec) {
			continue
		}
		rows = append(rows, [2]string{rec[keyCol], rec[valCol]})
	}
	return NewTable(kind, rows)
}

func headerColumns(kind Kind, header []string) (int, int) {
	keyName, valName := kind.columns()
	keyCol, valCol := -1, -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case strings.EqualFold(h, keyName):
			keyCol = i
		case strings.EqualFold(h, valName):
			valCol = i
		}
	}
	if keyCol < 0 || valCol < 0 {
		return 0, 1
	}
	return keyCol, valCol
}

// Kind reports what the table maps.
func (t *Table) Kind() Kind { return t.kind }

// Lookup returns the canonical term for raw. Matching is exact.
func (t *Table) Lookup(raw string) (string, bool) {
	v, ok := t.entries[raw]
	return v, ok
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Keys returns the raw terms in load order.
func (t *Table) Keys() []string {
	return append([]string(nil), t.keys...)
}
