package parser

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"docx", "markdown", "md", "pdf", "text", "txt", "xlsx"}, r.Formats())

	p, err := r.Get("md")
	require.NoError(t, err)
	assert.IsType(t, &TextParser{}, p)

	_, err = r.Get("pptx")
	assert.EqualError(t, err, "no parser for format: pptx")
	assert.False(t, r.Supports("pptx"))

	r.Register("pptx", &TextParser{})
	assert.True(t, r.Supports("pptx"))
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, "pdf", FormatOf("/data/Article.PDF"))
	assert.Equal(t, "", FormatOf("README"))
}

func TestTextParser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "article.txt")
	require.NoError(t, os.WriteFile(path, []byte("\xef\xbb\xbf  Aspirin treats fever.\n\n"), 0o644))

	doc, err := (&TextParser{}).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "article.txt", doc.Name)
	assert.Equal(t, "txt", doc.Format)
	assert.Equal(t, "Aspirin treats fever.", doc.Text)
	assert.Equal(t, 1, doc.Pages)
}

func TestTextParserRejectsBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0xfd}, 0o644))

	_, err := (&TextParser{}).Parse(context.Background(), path)
	assert.Error(t, err)
}

func TestTextParserMissingFile(t *testing.T) {
	_, err := (&TextParser{}).Parse(context.Background(), filepath.Join(t.TempDir(), "none.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t>Results</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Aspirin </w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>treats</w:t></w:r><w:r><w:t xml:space="preserve"> fever.</w:t></w:r></w:p>
<w:p/>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Drug</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Effect</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>Aspirin</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Analgesic</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
<w:p><w:r><w:t>Line one</w:t><w:br/><w:t>line two</w:t></w:r></w:p>
</w:body>
</w:document>`

func writeDocx(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestDOCXParser(t *testing.T) {
	doc, err := (&DOCXParser{}).Parse(context.Background(), writeDocx(t, docxBody))
	require.NoError(t, err)
	assert.Equal(t, "paper.docx", doc.Name)
	assert.Equal(t,
		"Results\nAspirin treats fever.\nDrug\tEffect\nAspirin\tAnalgesic\nLine one\nline two",
		doc.Text)
}

func TestDOCXParserMissingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(f).Close())
	require.NoError(t, f.Close())

	_, err = (&DOCXParser{}).Parse(context.Background(), path)
	assert.ErrorContains(t, err, "word/document.xml not found")
}

func TestXLSXParser(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "Drug"))
	require.NoError(t, f.SetCellValue(sheet, "B1", "Target"))
	require.NoError(t, f.SetCellValue(sheet, "A2", "Aspirin"))
	require.NoError(t, f.SetCellValue(sheet, "B2", "COX-1"))
	path := filepath.Join(t.TempDir(), "table.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	doc, err := (&XLSXParser{}).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, sheet+"\nDrug | Target\nAspirin | COX-1", doc.Text)
	assert.Equal(t, 1, doc.Pages)
}

func TestPDFParserRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))

	_, err := (&PDFParser{}).Parse(context.Background(), path)
	assert.Error(t, err)
}
