package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

// Parse reads word/document.xml and returns its paragraphs in body order,
// one per line. Table cells are separated by tabs.
func (p *DOCXParser) Parse(ctx context.Context, path string) (*Document, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in DOCX")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	text, err := docxText(rc)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}
	return newDocument(path, "docx", text, 1), nil
}

// docxText streams WordprocessingML, keeping text runs, tabs and breaks.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		para   strings.Builder
		inRun  bool
		inText bool
		inCell bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "r":
				inRun = true
			case "t":
				inText = inRun
			case "tab":
				if inRun {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					para.WriteByte('\n')
				}
			case "tc":
				inCell = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				inRun = false
			case "t":
				inText = false
			case "p":
				line := strings.TrimRight(para.String(), " ")
				para.Reset()
				if line == "" {
					continue
				}
				b.WriteString(line)
				if inCell {
					b.WriteByte(' ')
				} else {
					b.WriteByte('\n')
				}
			case "tc":
				inCell = false
				s := strings.TrimRight(b.String(), " ")
				b.Reset()
				b.WriteString(s)
				b.WriteByte('\t')
			case "tr":
				s := strings.TrimRight(b.String(), "\t")
				b.Reset()
				b.WriteString(s)
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return b.String(), nil
}
