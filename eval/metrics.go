package eval

import (
	"sort"
	"strings"
	"unicode"

	"github.com/brunobiangulo/txt2kgx/graph"
)

// Score counts matches of predicted items against gold items.
type Score struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
	// Missed and Spurious list the unmatched gold and predicted keys.
	Missed   []string `json:"missed,omitempty"`
	Spurious []string `json:"spurious,omitempty"`
}

// Precision is TP / (TP + FP), or 0 when nothing was predicted.
func (s Score) Precision() float64 {
	return ratio(s.TruePositives, s.TruePositives+s.FalsePositives)
}

// Recall is TP / (TP + FN), or 0 when nothing was expected.
func (s Score) Recall() float64 {
	return ratio(s.TruePositives, s.TruePositives+s.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (s Score) F1() float64 {
	p, r := s.Precision(), s.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// add accumulates counts only; key lists stay per case.
func (s *Score) add(o Score) {
	s.TruePositives += o.TruePositives
	s.FalsePositives += o.FalsePositives
	s.FalseNegatives += o.FalseNegatives
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// normalizeName folds case and the Unicode whitespace and hyphen variants
// generators tend to emit, so a non-breaking hyphen matches an ASCII one.
func normalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case r == '\u2010' || r == '\u2011' || r == '\u2012' || r == '\u2013' || r == '\u2014':
			r = '-'
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF':
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func entityKey(name, category string) string {
	return normalizeName(name) + " [" + category + "]"
}

func edgeKey(subject, predicate, object string) string {
	return normalizeName(subject) + " -" + predicate + "-> " + normalizeName(object)
}

// ScoreEntities compares nodes against gold entities by normalised name and
// category. Duplicate keys count once.
func ScoreEntities(nodes []graph.Node, gold []GoldEntity) Score {
	predicted := make([]string, 0, len(nodes))
	for _, n := range nodes {
		predicted = append(predicted, entityKey(n.Name, n.Category))
	}
	expected := make([]string, 0, len(gold))
	for _, e := range gold {
		expected = append(expected, entityKey(e.Name, e.Category))
	}
	return compare(predicted, expected)
}

// ScoreEdges compares the edges of g against gold edges, resolving node
// identifiers back to entity names.
func ScoreEdges(g *graph.Graph, gold []GoldEdge) Score {
	names := make(map[string]string)
	var predicted []string
	if g != nil {
		for _, n := range g.Nodes {
			names[n.ID] = n.Name
		}
		for _, e := range g.Edges {
			predicted = append(predicted, edgeKey(names[e.Subject], e.Predicate, names[e.Object]))
		}
	}
	expected := make([]string, 0, len(gold))
	for _, e := range gold {
		expected = append(expected, edgeKey(e.Subject, e.Predicate, e.Object))
	}
	return compare(predicted, expected)
}

func compare(predicted, expected []string) Score {
	want := make(map[string]bool, len(expected))
	for _, k := range expected {
		want[k] = true
	}
	got := make(map[string]bool, len(predicted))
	for _, k := range predicted {
		got[k] = true
	}

	var s Score
	for k := range got {
		if want[k] {
			s.TruePositives++
		} else {
			s.FalsePositives++
			s.Spurious = append(s.Spurious, k)
		}
	}
	for k := range want {
		if !got[k] {
			s.FalseNegatives++
			s.Missed = append(s.Missed, k)
		}
	}
	sort.Strings(s.Spurious)
	sort.Strings(s.Missed)
	return s
}
