package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

// Parse renders every non-empty sheet as a heading line followed by its rows,
// cells separated by " | ".
func (p *XLSXParser) Parse(ctx context.Context, path string) (*Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var (
		b      strings.Builder
		sheets int
	)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(sheet + "\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, " | ") + "\n")
		}
		sheets++
	}

	if sheets == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}
	return newDocument(path, "xlsx", b.String(), sheets), nil
}
