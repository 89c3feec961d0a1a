package ontology

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCategoryTable(t *testing.T) {
	path := writeFile(t, "entity.csv", "\ufeffEntity in dataset;to Biolink Model\nDrug;biolink:Drug\n Disease ; biolink:Disease \n;biolink:Orphan\nEmpty;\n")

	tbl, err := LoadTable(path, Categories)
	require.NoError(t, err)
	assert.Equal(t, Categories, tbl.Kind())
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"Drug", "Disease"}, tbl.Keys())

	v, ok := tbl.Lookup("Disease")
	assert.True(t, ok)
	assert.Equal(t, "biolink:Disease", v)

	_, ok = tbl.Lookup("drug")
	assert.False(t, ok, "lookup is case sensitive")
}

func TestLoadPredicateTableExplodesSynonyms(t *testing.T) {
	path := writeFile(t, "rel.csv", "relationship in dataset;To biolink:predicate\n\"treats, cures,heals\";biolink:treats\ncauses;biolink:causes\n")

	tbl, err := LoadTable(path, Predicates)
	require.NoError(t, err)
	assert.Equal(t, 4, tbl.Len())
	for _, k := range []string{"treats", "cures", "heals"} {
		v, ok := tbl.Lookup(k)
		assert.True(t, ok, k)
		assert.Equal(t, "biolink:treats", v, k)
	}
}

func TestCategoryKeysAreNotExploded(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader("Entity in dataset;to Biolink Model\nGene, protein;biolink:GeneOrGeneProduct\n"), Categories)
	require.NoError(t, err)
	_, ok := tbl.Lookup("Gene, protein")
	assert.True(t, ok)
}

func TestReadTableHeaderFallbackAndOrder(t *testing.T) {
	in := "comment;raw;canonical\nx;ignored;\n"
	tbl, err := ReadTable(strings.NewReader(in), Categories)
	require.NoError(t, err)
	v, ok := tbl.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, "ignored", v)

	in = "to Biolink Model;Entity in dataset\nbiolink:Drug;Drug\n"
	tbl, err = ReadTable(strings.NewReader(in), Categories)
	require.NoError(t, err)
	v, ok = tbl.Lookup("Drug")
	assert.True(t, ok)
	assert.Equal(t, "biolink:Drug", v)
}

func TestRepeatedKeyKeepsLastValue(t *testing.T) {
	tbl := NewTable(Predicates, [][2]string{{"a", "biolink:one"}, {"b, a", "biolink:two"}})
	v, _ := tbl.Lookup("a")
	assert.Equal(t, "biolink:two", v)
	assert.Equal(t, []string{"a", "b"}, tbl.Keys())
}

func TestLoadTableErrors(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "missing.csv"), Categories)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadTable(writeFile(t, "empty.csv", "Entity in dataset;to Biolink Model\n"), Categories)
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestLoadWorkbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"relationship in dataset", "To biolink:predicate"},
		{"inhibits,blocks", "biolink:negatively_regulates"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "rel.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := LoadTable(path, Predicates)
	require.NoError(t, err)
	v, ok := tbl.Lookup("blocks")
	assert.True(t, ok)
	assert.Equal(t, "biolink:negatively_regulates", v)
}

func TestMapperTracksUnmapped(t *testing.T) {
	m := NewMapper(NewTable(Categories, [][2]string{{"Drug", "biolink:Drug"}}))

	v, err := m.Map("Drug")
	require.NoError(t, err)
	assert.Equal(t, "biolink:Drug", v)

	_, err = m.Map("Spaceship")
	assert.ErrorIs(t, err, ErrUnmappedCategory)
	_, err = m.Map("Alien")
	assert.ErrorIs(t, err, ErrUnmappedCategory)
	_, _ = m.Map("Alien")

	assert.Equal(t, []string{"Alien", "Spaceship"}, m.Unmapped())
}

func TestPredicateMapperError(t *testing.T) {
	m := NewMapper(NewTable(Predicates, nil))
	_, err := m.Map("treats")
	assert.ErrorIs(t, err, ErrUnmappedPredicate)
	assert.NotErrorIs(t, err, ErrUnmappedCategory)
}
