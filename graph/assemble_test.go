package graph

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnmapped = errors.New("unmapped")

type mapTable map[string]string

func (m mapTable) Map(raw string) (string, error) {
	if v, ok := m[raw]; ok {
		return v, nil
	}
	return "", errUnmapped
}

var idPattern = regexp.MustCompile(`^MYGRAPH:[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestMinterFormat(t *testing.T) {
	m := NewMinter("")
	assert.Equal(t, DefaultNamespace, m.Namespace())
	assert.Regexp(t, idPattern, m.Mint())

	assert.Equal(t, "KG", NewMinter("KG:").Namespace())
}

func TestMinterNoCollisions(t *testing.T) {
	m := NewMinter(DefaultNamespace)
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		id := m.Mint()
		require.False(t, seen[id], "collision at mint %d: %s", i, id)
		seen[id] = true
	}
}

func TestAssembleNodeScenario(t *testing.T) {
	a := NewAssembler(mapTable{"Drug": "biolink:Drug"}, mapTable{}, nil, AssemblerOptions{})
	g, d := a.Assemble(Extraction{Entities: []EntityRecord{{Name: "Aspirin", RawType: "Drug"}}})

	require.Len(t, g.Nodes, 1)
	n := g.Nodes[0]
	assert.Equal(t, "Aspirin", n.Name)
	assert.Equal(t, "biolink:Drug", n.Category)
	assert.Regexp(t, idPattern, n.ID)
	assert.Equal(t, n.ID, g.IDs["Aspirin"])
	assert.Equal(t, 1, d.EntitiesMapped)
	assert.Empty(t, d.UnmappedCategories)
}

func TestAssembleUnmappedPredicate(t *testing.T) {
	a := NewAssembler(
		mapTable{"Drug": "biolink:Drug", "Disease": "biolink:Disease"},
		mapTable{"treats": "biolink:treats"},
		nil, AssemblerOptions{},
	)
	g, d := a.Assemble(Extraction{
		Entities: []EntityRecord{{Name: "Aspirin", RawType: "Drug"}, {Name: "Fever", RawType: "Disease"}},
		Relations: []RelationRecord{
			{Source: "Aspirin", Target: "Fever", RawRelationship: "cures somehow"},
		},
	})

	assert.Empty(t, g.Edges)
	assert.Equal(t, []string{"cures somehow"}, d.UnmappedPredicates)
	assert.Equal(t, []string{"cures somehow"}, d.FoundRelationships)
	assert.Empty(t, d.MissingEntities)
	assert.Equal(t, 0, d.EdgesEmitted)
}

func TestAssembleEdges(t *testing.T) {
	a := NewAssembler(
		mapTable{"Drug": "biolink:Drug", "Disease": "biolink:Disease"},
		mapTable{"treats": "biolink:treats", "causes": "biolink:causes"},
		NewMinter("MYGRAPH"),
		AssemblerOptions{},
	)
	x := Extraction{
		Document: "article.txt",
		Entities: []EntityRecord{
			{Name: "Aspirin", RawType: "Drug"},
			{Name: "Fever", RawType: "Disease"},
			{Name: "Mood", RawType: "Feeling"},
		},
		Relations: []RelationRecord{
			{Source: "Aspirin", Target: "Fever", RawRelationship: "treats", Attributes: Attributes{"confidence_score": {"0.8"}}},
			{Source: "Aspirin", Target: "Mood", RawRelationship: "causes"},
			{Source: "Ghost", Target: "Fever", RawRelationship: "causes"},
			{Source: "Fever", Target: "Aspirin", RawRelationship: "inhibits"},
		},
	}
	g, d := a.Assemble(x)

	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	e := g.Edges[0]
	assert.Equal(t, g.IDs["Aspirin"], e.Subject)
	assert.Equal(t, g.IDs["Fever"], e.Object)
	assert.Equal(t, "biolink:treats", e.Predicate)
	assert.Equal(t, "article.txt", e.ProvidedBy)
	assert.Equal(t, DefaultKnowledgeSource, e.KnowledgeSource)
	assert.Equal(t, []string{"0.8"}, e.Attributes.Get("confidence_score"))
	assert.Regexp(t, idPattern, e.ID)

	assert.Equal(t, 3, d.EntitiesTotal)
	assert.Equal(t, 2, d.EntitiesMapped)
	assert.Equal(t, []string{"Feeling"}, d.UnmappedCategories)
	assert.Equal(t, 4, d.RelationsTotal)
	assert.Equal(t, []string{"causes", "inhibits", "treats"}, d.FoundRelationships)
	assert.Equal(t, []string{"inhibits"}, d.UnmappedPredicates)
	assert.Equal(t, []string{"source: Ghost", "target: Mood"}, d.MissingEntities)
	assert.Equal(t, 1, d.EdgesEmitted)
}

func TestAssembleEdgeEndpointsAreMintedNodes(t *testing.T) {
	a := NewAssembler(
		mapTable{"A": "biolink:A"},
		mapTable{"r": "biolink:r"},
		nil, AssemblerOptions{KnowledgeSource: "infores:test"},
	)
	var x Extraction
	names := []string{"n0", "n1", "n2", "n3", "n4", "n5"}
	for i, n := range names {
		typ := "A"
		if i%3 == 0 {
			typ = "B"
		}
		x.Entities = append(x.Entities, EntityRecord{Name: n, RawType: typ})
	}
	for _, s := range append(names, "missing") {
		for _, o := range names {
			rel := "r"
			if s == o {
				rel = "self"
			}
			x.Relations = append(x.Relations, RelationRecord{Source: s, Target: o, RawRelationship: rel})
		}
	}

	g, _ := a.Assemble(x)
	nodeIDs := make(map[string]bool)
	for _, n := range g.Nodes {
		nodeIDs[n.ID] = true
	}
	require.NotEmpty(t, g.Edges)
	for _, e := range g.Edges {
		assert.True(t, nodeIDs[e.Subject])
		assert.True(t, nodeIDs[e.Object])
		assert.Equal(t, "biolink:r", e.Predicate)
		assert.Equal(t, "infores:test", e.KnowledgeSource)
		assert.False(t, nodeIDs[e.ID])
	}
}
