package graph

import (
	"log/slog"
	"strings"

	"github.com/brunobiangulo/txt2kgx/payload"
)

// MaxDepth is the deepest nesting level the normaliser inspects. The root
// value is at depth 0.
const MaxDepth = 3

// ConflictPolicy decides which type an entity keeps when its name appears
// more than once with different types.
type ConflictPolicy int

const (
	// LastWins keeps the type of the last occurrence.
	LastWins ConflictPolicy = iota
	// FirstWins keeps the type of the first occurrence.
	FirstWins
	// RejectConflict drops entities whose occurrences disagree on type.
	RejectConflict
)

// ParseConflictPolicy maps a configuration value to a policy. Unknown values
// return false.
func ParseConflictPolicy(s string) (ConflictPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last", "last-wins", "last_wins":
		return LastWins, true
	case "first", "first-wins", "first_wins":
		return FirstWins, true
	case "reject", "reject-conflict", "reject_conflict":
		return RejectConflict, true
	}
	return LastWins, false
}

func (p ConflictPolicy) String() string {
	switch p {
	case FirstWins:
		return "first-wins"
	case RejectConflict:
		return "reject-conflict"
	default:
		return "last-wins"
	}
}

// NormalizeOptions tunes Normalize.
type NormalizeOptions struct {
	Policy ConflictPolicy
	// DedupeRelations drops repeated (source, target, relationship) triples,
	// keeping the first.
	DedupeRelations bool
}

// Extraction is the normalised content of one payload.
type Extraction struct {
	// Document names the source document; it becomes the edges' provided_by.
	Document string
	// Entities are unique by name, in order of first appearance.
	Entities  []EntityRecord
	Relations []RelationRecord
	Conflicts []TypeConflict
}

// fragment is what a single subtree contributes.
type fragment struct {
	entities  []EntityRecord
	relations []RelationRecord
}

func (f *fragment) merge(o fragment) {
	f.entities = append(f.entities, o.entities...)
	f.relations = append(f.relations, o.relations...)
}

// Normalize walks v and recovers entity and relation records regardless of
// how they are nested. It never fails: values of unexpected shape are
// skipped.
func Normalize(v payload.Value, opts NormalizeOptions) Extraction {
	f := visit(v, 0, true, true)

	entities, conflicts := resolveEntities(f.entities, opts.Policy)
	relations := f.relations
	if opts.DedupeRelations {
		relations = dedupeRelations(relations)
	}
	if len(conflicts) > 0 {
		slog.Warn("graph: entity type conflicts", "count", len(conflicts), "policy", opts.Policy.String())
	}
	return Extraction{Entities: entities, Relations: relations, Conflicts: conflicts}
}

// visit collects records from v. Entity and relation discovery are
// independent: an object that yields an entity is not searched further for
// entities, and one that yields a relation is not searched further for
// relations, but each may still be searched for the other kind.
func visit(v payload.Value, depth int, wantEntities, wantRelations bool) fragment {
	var f fragment
	if depth > MaxDepth || (!wantEntities && !wantRelations) {
		return f
	}

	switch v.Kind() {
	case payload.Array:
		for _, item := range v.Items() {
			f.merge(visit(item, depth+1, wantEntities, wantRelations))
		}

	case payload.Object:
		childEntities, childRelations := wantEntities, wantRelations
		if wantEntities {
			if e, ok := entityFrom(v); ok {
				f.entities = append(f.entities, e)
				childEntities = false
			}
		}
		if wantRelations {
			if r, ok := relationFrom(v); ok {
				f.relations = append(f.relations, r)
				childRelations = false
			}
		}
		for _, m := range v.Members() {
			f.merge(visit(m.Value, depth+1, childEntities, childRelations))
		}
	}
	return f
}

// entityFrom reports whether obj is an entity object. An object carrying
// both keys is consumed even if its name turns out empty.
func entityFrom(obj payload.Value) (EntityRecord, bool) {
	name, hasName := obj.Get(EntityKey)
	typ, hasType := obj.Get(TypeKey)
	if !hasName || !hasType {
		return EntityRecord{}, false
	}
	e := EntityRecord{
		Name:       strings.TrimSpace(name.Text()),
		RawType:    strings.TrimSpace(typ.Text()),
		Attributes: collectAttributes(obj, EntityKey, TypeKey),
	}
	return e, true
}

func relationFrom(obj payload.Value) (RelationRecord, bool) {
	srcKey, src, ok := firstRole(obj, SourceKeys)
	if !ok {
		return RelationRecord{}, false
	}
	tgtKey, tgt, ok := firstRole(obj, TargetKeys)
	if !ok {
		return RelationRecord{}, false
	}
	relKey, rel, ok := firstRole(obj, RelationshipKeys)
	if !ok {
		return RelationRecord{}, false
	}
	r := RelationRecord{
		Source:          src,
		Target:          tgt,
		RawRelationship: rel,
		Attributes:      collectAttributes(obj, srcKey, tgtKey, relKey),
	}
	if r.Source == "" || r.Target == "" || r.RawRelationship == "" {
		return RelationRecord{}, false
	}
	return r, true
}

// firstRole probes keys in order. The first key present decides: the role
// resolves only if that value is a truthy scalar.
func firstRole(obj payload.Value, keys []string) (string, string, bool) {
	for _, k := range keys {
		v, ok := obj.Get(k)
		if !ok {
			continue
		}
		if !v.IsScalar() || !v.Truthy() {
			return "", "", false
		}
		return k, strings.TrimSpace(v.Text()), true
	}
	return "", "", false
}

// collectAttributes flattens the descriptive fields of obj: sibling scalar
// or list members other than the skipped identifying keys, then the members
// of a nested additional-fields object.
func collectAttributes(obj payload.Value, skip ...string) Attributes {
	attrs := Attributes{}
	skipped := func(k string) bool {
		for _, s := range skip {
			if k == s {
				return true
			}
		}
		for _, s := range additionalFieldKeys {
			if k == s {
				return true
			}
		}
		return false
	}
	for _, m := range obj.Members() {
		if skipped(m.Key) {
			continue
		}
		addAttribute(attrs, m.Key, m.Value)
	}
	for _, k := range additionalFieldKeys {
		extra, ok := obj.Get(k)
		if !ok || extra.Kind() != payload.Object {
			continue
		}
		for _, m := range extra.Members() {
			addAttribute(attrs, m.Key, m.Value)
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func addAttribute(attrs Attributes, key string, v payload.Value) {
	var vals []string
	switch v.Kind() {
	case payload.Array:
		for _, item := range v.Items() {
			if !item.IsScalar() {
				continue
			}
			if s := strings.TrimSpace(item.Text()); s != "" {
				vals = append(vals, s)
			}
		}
	case payload.Object, payload.Null:
		return
	default:
		if s := strings.TrimSpace(v.Text()); s != "" {
			vals = append(vals, s)
		}
	}
	if len(vals) == 0 {
		return
	}
	attrs[AttributeKey(key)] = vals
}

// AttributeKey normalises a payload field name to a column name, e.g.
// "Evidence Publication" becomes "evidence_publication".
func AttributeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.Join(strings.FieldsFunc(key, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
}

// resolveEntities applies the conflict policy to entity occurrences in
// document order. Entities with an empty name are discarded.
func resolveEntities(occurrences []EntityRecord, policy ConflictPolicy) ([]EntityRecord, []TypeConflict) {
	index := make(map[string]int)
	var out []EntityRecord
	types := make(map[string][]string)

	for _, e := range occurrences {
		if e.Name == "" {
			continue
		}
		if seen := types[e.Name]; !contains(seen, e.RawType) {
			types[e.Name] = append(seen, e.RawType)
		}
		i, ok := index[e.Name]
		if !ok {
			index[e.Name] = len(out)
			out = append(out, e)
			continue
		}
		if policy != FirstWins {
			out[i] = e
		}
	}

	var conflicts []TypeConflict
	for _, e := range out {
		if ts := types[e.Name]; len(ts) > 1 {
			conflicts = append(conflicts, TypeConflict{Name: e.Name, Types: ts})
		}
	}
	if policy == RejectConflict && len(conflicts) > 0 {
		kept := out[:0]
		for _, e := range out {
			if len(types[e.Name]) == 1 {
				kept = append(kept, e)
			}
		}
		out = kept
	}
	return out, conflicts
}

func dedupeRelations(rels []RelationRecord) []RelationRecord {
	seen := make(map[[3]string]bool, len(rels))
	out := make([]RelationRecord, 0, len(rels))
	for _, r := range rels {
		if seen[r.triple()] {
			continue
		}
		seen[r.triple()] = true
		out = append(out, r)
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
