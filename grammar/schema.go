package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Schema is the subset of JSON Schema understood by the compiler. Property
// declaration order is preserved because it decides the order in which the
// generator must emit keys.
type Schema struct {
	Types       []string
	Properties  []Property
	Required    []string
	Items       *Schema
	MinItems    *int
	MaxItems    *int
	Enum        []json.RawMessage
	Const       json.RawMessage
	MinLength   *int
	MaxLength   *int
	Pattern     string
	Format      string
	Minimum     *float64
	Maximum     *float64
	OneOf       []*Schema
	AnyOf       []*Schema
	Ref         string
	Definitions map[string]*Schema
	Description string

	// ClosedObject is set when additionalProperties is false.
	ClosedObject bool
	// OpenObject is set when additionalProperties is true or a schema.
	OpenObject bool

	// unsupported lists keywords present in the document that the compiler
	// cannot translate.
	unsupported []string
	// rejectAll is set for the boolean schema `false`.
	rejectAll bool
}

// Property is a named member of an object schema.
type Property struct {
	Name   string
	Schema *Schema
}

// knownKeywords are the keywords the compiler translates or may safely
// ignore because they never constrain the emitted JSON. Any other keyword
// makes the schema unsupported.
var knownKeywords = map[string]bool{
	"type": true, "properties": true, "required": true, "items": true,
	"minItems": true, "maxItems": true, "enum": true, "const": true,
	"minLength": true, "maxLength": true, "pattern": true, "format": true,
	"minimum": true, "maximum": true, "oneOf": true, "anyOf": true,
	"additionalProperties": true, "$ref": true, "definitions": true, "$defs": true,

	// annotations
	"description": true, "title": true, "$schema": true, "$id": true,
	"$comment": true, "default": true, "examples": true,
}

type rawSchema struct {
	Type                 json.RawMessage    `json:"type"`
	Properties           json.RawMessage    `json:"properties"`
	Required             []string           `json:"required"`
	Items                json.RawMessage    `json:"items"`
	MinItems             *int               `json:"minItems"`
	MaxItems             *int               `json:"maxItems"`
	Enum                 []json.RawMessage  `json:"enum"`
	Const                json.RawMessage    `json:"const"`
	MinLength            *int               `json:"minLength"`
	MaxLength            *int               `json:"maxLength"`
	Pattern              string             `json:"pattern"`
	Format               string             `json:"format"`
	Minimum              *float64           `json:"minimum"`
	Maximum              *float64           `json:"maximum"`
	OneOf                []*Schema          `json:"oneOf"`
	AnyOf                []*Schema          `json:"anyOf"`
	AdditionalProperties json.RawMessage    `json:"additionalProperties"`
	Ref                  string             `json:"$ref"`
	Definitions          map[string]*Schema `json:"definitions"`
	Defs                 map[string]*Schema `json:"$defs"`
	Description          string             `json:"description"`
}

// UnmarshalJSON decodes a schema document, including the boolean schemas
// true and false.
func (s *Schema) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch string(trimmed) {
	case "true":
		*s = Schema{}
		return nil
	case "false":
		*s = Schema{rejectAll: true}
		return nil
	}

	var raw rawSchema
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}

	out := Schema{
		Required:    raw.Required,
		MinItems:    raw.MinItems,
		MaxItems:    raw.MaxItems,
		Enum:        raw.Enum,
		Const:       raw.Const,
		MinLength:   raw.MinLength,
		MaxLength:   raw.MaxLength,
		Pattern:     raw.Pattern,
		Format:      raw.Format,
		Minimum:     raw.Minimum,
		Maximum:     raw.Maximum,
		OneOf:       raw.OneOf,
		AnyOf:       raw.AnyOf,
		Ref:         raw.Ref,
		Description: raw.Description,
	}

	types, err := decodeTypes(raw.Type)
	if err != nil {
		return err
	}
	out.Types = types

	if len(raw.Properties) > 0 {
		props, err := decodeProperties(raw.Properties)
		if err != nil {
			return err
		}
		out.Properties = props
	}

	if len(raw.Items) > 0 {
		if bytes.HasPrefix(bytes.TrimSpace(raw.Items), []byte("[")) {
			out.unsupported = append(out.unsupported, "items (tuple form)")
		} else {
			var items Schema
			if err := json.Unmarshal(raw.Items, &items); err != nil {
				return fmt.Errorf("items: %w", err)
			}
			out.Items = &items
		}
	}

	switch ap := string(bytes.TrimSpace(raw.AdditionalProperties)); ap {
	case "":
	case "false":
		out.ClosedObject = true
	default:
		out.OpenObject = true
	}

	if len(raw.Definitions) > 0 || len(raw.Defs) > 0 {
		out.Definitions = make(map[string]*Schema, len(raw.Definitions)+len(raw.Defs))
		for k, v := range raw.Definitions {
			out.Definitions["#/definitions/"+k] = v
		}
		for k, v := range raw.Defs {
			out.Definitions["#/$defs/"+k] = v
		}
	}

	var keywords map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keywords); err != nil {
		return err
	}
	for kw := range keywords {
		if !knownKeywords[kw] {
			out.unsupported = append(out.unsupported, kw)
		}
	}

	*s = out
	return nil
}

func decodeTypes(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("type: must be a string or an array of strings")
	}
	return many, nil
}

func decodeProperties(raw json.RawMessage) ([]Property, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("properties: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("properties: expected an object")
	}

	var props []Property
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("properties: %w", err)
		}
		name, _ := tok.(string)
		var ps Schema
		if err := dec.Decode(&ps); err != nil {
			return nil, fmt.Errorf("properties.%s: %w", name, err)
		}
		props = append(props, Property{Name: name, Schema: &ps})
	}
	return props, nil
}

// ParseSchema decodes a schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	return &s, nil
}

// LoadSchema reads and decodes a schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSchema(data)
}

func (s *Schema) hasType(t string) bool {
	for _, have := range s.Types {
		if have == t {
			return true
		}
	}
	return false
}

func (s *Schema) isRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

func (s *Schema) hasObjectKeywords() bool {
	return len(s.Properties) > 0 || len(s.Required) > 0 || s.ClosedObject || s.OpenObject
}

func (s *Schema) hasArrayKeywords() bool {
	return s.Items != nil || s.MinItems != nil || s.MaxItems != nil
}

// typeNames renders the declared types for error messages.
func (s *Schema) typeNames() string {
	if len(s.Types) > 0 {
		return strings.Join(s.Types, "|")
	}
	return "(untyped)"
}

// misplacedKeyword returns the first keyword of s that constrains none of
// its types. Untyped schemas take their type from object or array keywords;
// string and numeric keywords need an explicit type.
func (s *Schema) misplacedKeyword() string {
	types := s.Types
	if len(types) == 0 {
		switch {
		case s.hasObjectKeywords():
			types = []string{"object"}
		case s.hasArrayKeywords():
			types = []string{"array"}
		}
	}
	has := func(want ...string) bool {
		for _, t := range types {
			for _, w := range want {
				if t == w {
					return true
				}
			}
		}
		return false
	}

	checks := []struct {
		keyword string
		set     bool
		types   []string
	}{
		{"pattern", s.Pattern != "", []string{"string"}},
		{"format", s.Format != "", []string{"string"}},
		{"minLength", s.MinLength != nil, []string{"string"}},
		{"maxLength", s.MaxLength != nil, []string{"string"}},
		{"properties", len(s.Properties) > 0, []string{"object"}},
		{"required", len(s.Required) > 0, []string{"object"}},
		{"additionalProperties", s.ClosedObject || s.OpenObject, []string{"object"}},
		{"items", s.Items != nil, []string{"array"}},
		{"minItems", s.MinItems != nil, []string{"array"}},
		{"maxItems", s.MaxItems != nil, []string{"array"}},
		{"minimum", s.Minimum != nil, []string{"number", "integer"}},
		{"maximum", s.Maximum != nil, []string{"number", "integer"}},
	}
	for _, c := range checks {
		if c.set && !has(c.types...) {
			return c.keyword
		}
	}
	return ""
}

// narrowed returns a copy of s restricted to type t, without the keywords
// that only constrain the other types.
func (s *Schema) narrowed(t string) *Schema {
	cp := *s
	cp.Types = []string{t}
	if t != "string" {
		cp.Pattern, cp.Format, cp.MinLength, cp.MaxLength = "", "", nil, nil
	}
	if t != "object" {
		cp.Properties, cp.Required, cp.ClosedObject, cp.OpenObject = nil, nil, false, false
	}
	if t != "array" {
		cp.Items, cp.MinItems, cp.MaxItems = nil, nil, nil
	}
	if t != "number" && t != "integer" {
		cp.Minimum, cp.Maximum = nil, nil
	}
	return &cp
}
