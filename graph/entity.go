package graph

// Keys that identify an entity object. Entity detection uses exact keys only.
const (
	EntityKey = "entity"
	TypeKey   = "type"
)

// Accepted key names for each relation role, in priority order. The first
// key present on an object decides the role's value.
var (
	SourceKeys       = []string{"source entity", "source_entity", "source", "from", "subject"}
	TargetKeys       = []string{"target entity", "target_entity", "target", "to", "object"}
	RelationshipKeys = []string{"relationship", "relation", "predicate", "type"}
)

// additionalFieldKeys name the nested object whose members describe an
// entity or relation beyond its identifying keys.
var additionalFieldKeys = []string{"additional_fields", "additional fields", "additionalFields"}

// Attributes holds descriptive fields keyed by a normalised column name
// (lowercase, words joined by underscores). Every field may carry several
// values.
type Attributes map[string][]string

// Get returns the values stored for key.
func (a Attributes) Get(key string) []string {
	if a == nil {
		return nil
	}
	return a[key]
}

func (a Attributes) clone() Attributes {
	if len(a) == 0 {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// EntityRecord is an entity discovered in the payload.
type EntityRecord struct {
	Name       string
	RawType    string
	Attributes Attributes
}

// RelationRecord is a relation discovered in the payload.
type RelationRecord struct {
	Source          string
	Target          string
	RawRelationship string
	Attributes      Attributes
}

func (r RelationRecord) triple() [3]string {
	return [3]string{r.Source, r.Target, r.RawRelationship}
}

// TypeConflict reports an entity name seen with more than one raw type, in
// order of appearance.
type TypeConflict struct {
	Name  string   `json:"name"`
	Types []string `json:"types"`
}
