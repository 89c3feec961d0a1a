package graph

import (
	"log/slog"
	"sort"
)

// DefaultKnowledgeSource is the primary_knowledge_source of every edge unless
// configured otherwise.
const DefaultKnowledgeSource = "infores:mygraph"

// TermMapper translates a raw dataset term into a canonical ontology term.
// It returns an error when the term has no mapping.
type TermMapper interface {
	Map(raw string) (string, error)
}

// Node is a canonical graph node.
type Node struct {
	ID         string
	Name       string
	Category   string
	Attributes Attributes
}

// Edge connects two nodes minted in the same run.
type Edge struct {
	ID              string
	Subject         string
	Object          string
	Predicate       string
	Attributes      Attributes
	ProvidedBy      string
	KnowledgeSource string
}

// Graph is the assembled output for one document.
type Graph struct {
	Nodes []Node
	Edges []Edge
	// IDs maps entity names to their minted node identifiers.
	IDs map[string]string
}

// Diagnostics reports everything the assembler excluded, so that dropped
// data stays auditable.
type Diagnostics struct {
	EntitiesTotal      int            `json:"entities_total"`
	EntitiesMapped     int            `json:"entities_mapped"`
	UnmappedCategories []string       `json:"unmapped_categories,omitempty"`
	RelationsTotal     int            `json:"relations_total"`
	FoundRelationships []string       `json:"found_relationships,omitempty"`
	UnmappedPredicates []string       `json:"unmapped_predicates,omitempty"`
	MissingEntities    []string       `json:"missing_entities,omitempty"`
	EdgesEmitted       int            `json:"edges_emitted"`
	TypeConflicts      []TypeConflict `json:"type_conflicts,omitempty"`
}

// LogValue implements slog.LogValuer.
func (d Diagnostics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("entities_total", d.EntitiesTotal),
		slog.Int("entities_mapped", d.EntitiesMapped),
		slog.Any("unmapped_categories", d.UnmappedCategories),
		slog.Int("relations_total", d.RelationsTotal),
		slog.Int("found_relationships", len(d.FoundRelationships)),
		slog.Any("unmapped_predicates", d.UnmappedPredicates),
		slog.Any("missing_entities", d.MissingEntities),
		slog.Int("edges_emitted", d.EdgesEmitted),
		slog.Int("type_conflicts", len(d.TypeConflicts)),
	)
}

// AssemblerOptions tunes the assembler.
type AssemblerOptions struct {
	// KnowledgeSource overrides DefaultKnowledgeSource.
	KnowledgeSource string
}

// Assembler turns normalised records into nodes and edges.
type Assembler struct {
	categories TermMapper
	predicates TermMapper
	minter     *Minter
	source     string
}

// NewAssembler creates an Assembler. A nil minter uses DefaultNamespace.
func NewAssembler(categories, predicates TermMapper, minter *Minter, opts AssemblerOptions) *Assembler {
	if minter == nil {
		minter = NewMinter(DefaultNamespace)
	}
	source := opts.KnowledgeSource
	if source == "" {
		source = DefaultKnowledgeSource
	}
	return &Assembler{categories: categories, predicates: predicates, minter: minter, source: source}
}

// Assemble mints a node for every entity whose type maps to a category, then
// emits an edge for every relation whose endpoints both have nodes and whose
// relationship maps to a predicate. Everything else is reported in the
// diagnostics.
func (a *Assembler) Assemble(x Extraction) (*Graph, Diagnostics) {
	g := &Graph{IDs: make(map[string]string, len(x.Entities))}
	d := Diagnostics{
		EntitiesTotal:  len(x.Entities),
		RelationsTotal: len(x.Relations),
		TypeConflicts:  x.Conflicts,
	}

	unmappedTypes := newStringSet()
	for _, e := range x.Entities {
		category, err := a.categories.Map(e.RawType)
		if err != nil {
			unmappedTypes.add(e.RawType)
			continue
		}
		id := a.minter.Mint()
		g.IDs[e.Name] = id
		g.Nodes = append(g.Nodes, Node{
			ID:         id,
			Name:       e.Name,
			Category:   category,
			Attributes: e.Attributes.clone(),
		})
	}
	d.EntitiesMapped = len(g.Nodes)
	d.UnmappedCategories = unmappedTypes.sorted()

	found := newStringSet()
	unmappedRels := newStringSet()
	missing := newStringSet()
	for _, r := range x.Relations {
		found.add(r.RawRelationship)

		subject, subjectOK := g.IDs[r.Source]
		object, objectOK := g.IDs[r.Target]
		predicate, err := a.predicates.Map(r.RawRelationship)
		if !subjectOK {
			missing.add("source: " + r.Source)
		}
		if !objectOK {
			missing.add("target: " + r.Target)
		}
		if err != nil {
			unmappedRels.add(r.RawRelationship)
		}
		if !subjectOK || !objectOK || err != nil {
			continue
		}

		g.Edges = append(g.Edges, Edge{
			ID:              a.minter.Mint(),
			Subject:         subject,
			Object:          object,
			Predicate:       predicate,
			Attributes:      r.Attributes.clone(),
			ProvidedBy:      x.Document,
			KnowledgeSource: a.source,
		})
	}
	d.FoundRelationships = found.sorted()
	d.UnmappedPredicates = unmappedRels.sorted()
	d.MissingEntities = missing.sorted()
	d.EdgesEmitted = len(g.Edges)

	slog.Debug("graph: assembled", "document", x.Document, "diagnostics", d)
	return g, d
}

type stringSet map[string]struct{}

func newStringSet() stringSet { return make(stringSet) }

func (s stringSet) add(v string) { s[v] = struct{}{} }

func (s stringSet) sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
