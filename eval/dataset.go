// Package eval measures extraction quality against hand-annotated gold
// graphs.
package eval

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Dataset is a collection of annotated documents.
type Dataset struct {
	Name  string `json:"name" yaml:"name"`
	Cases []Case `json:"cases" yaml:"cases"`
}

// Case is one document with its expected graph. Either Document (a path,
// relative to the dataset file) or Text must be set.
type Case struct {
	Name     string       `json:"name,omitempty" yaml:"name,omitempty"`
	Document string       `json:"document,omitempty" yaml:"document,omitempty"`
	Text     string       `json:"text,omitempty" yaml:"text,omitempty"`
	Entities []GoldEntity `json:"entities" yaml:"entities"`
	Edges    []GoldEdge   `json:"edges" yaml:"edges"`
}

// GoldEntity is an expected node: the entity name and its canonical category.
type GoldEntity struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
}

// GoldEdge is an expected edge between two entity names.
type GoldEdge struct {
	Subject   string `json:"subject" yaml:"subject"`
	Predicate string `json:"predicate" yaml:"predicate"`
	Object    string `json:"object" yaml:"object"`
}

// label returns a display name for the case.
func (c Case) label(i int) string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Document != "":
		return filepath.Base(c.Document)
	default:
		return fmt.Sprintf("case-%d", i+1)
	}
}

// LoadDataset reads a YAML or JSON dataset. Relative document paths are
// resolved against the dataset file's directory.
func LoadDataset(path string) (Dataset, error) {
	var ds Dataset
	data, err := os.ReadFile(path)
	if err != nil {
		return ds, fmt.Errorf("reading dataset: %w", err)
	}
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return ds, fmt.Errorf("decoding dataset %s: %w", path, err)
	}
	if ds.Name == "" {
		ds.Name = filepath.Base(path)
	}

	base := filepath.Dir(path)
	for i := range ds.Cases {
		c := &ds.Cases[i]
		if c.Document == "" && c.Text == "" {
			return ds, fmt.Errorf("dataset %s: case %d has neither document nor text", path, i+1)
		}
		if c.Document != "" && !filepath.IsAbs(c.Document) {
			c.Document = filepath.Join(base, c.Document)
		}
	}
	return ds, nil
}
