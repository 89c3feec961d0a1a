package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

// Parse extracts the plain text of every page, separating pages with a
// blank line. Pages whose text cannot be extracted are skipped.
func (p *PDFParser) Parse(ctx context.Context, path string) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var (
		b     strings.Builder
		pages int
	)
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		pages++
	}

	if pages == 0 {
		return nil, fmt.Errorf("no extractable text in PDF %s", path)
	}
	return newDocument(path, "pdf", b.String(), pages), nil
}
