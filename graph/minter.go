package graph

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultNamespace prefixes identifiers when no namespace is configured.
const DefaultNamespace = "MYGRAPH"

// Minter produces identifiers of the form {namespace}:{uuid v4}. Identifiers
// are random, so the same entity gets a new identifier in every run.
type Minter struct {
	namespace string
	newToken  func() string
}

// NewMinter creates a Minter for namespace. An empty namespace uses
// DefaultNamespace; a trailing ':' is tolerated.
func NewMinter(namespace string) *Minter {
	namespace = strings.TrimSuffix(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Minter{namespace: namespace, newToken: uuid.NewString}
}

// Namespace returns the identifier prefix.
func (m *Minter) Namespace() string { return m.namespace }

// Mint returns a fresh identifier.
func (m *Minter) Mint() string {
	return m.namespace + ":" + m.newToken()
}
