// Package grammar compiles a JSON Schema into a GBNF grammar that constrains
// a llama.cpp-compatible generator to emit only conforming JSON, optionally
// preceded by a <think>...</think> reasoning block.
package grammar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnsupportedSchema is returned when the schema uses a construct the
	// compiler cannot translate.
	ErrUnsupportedSchema = errors.New("grammar: unsupported schema construct")

	// ErrRemoteRef is returned for $ref values that would require fetching
	// another document.
	ErrRemoteRef = errors.New("grammar: remote $ref fetching is disabled")
)

// PayloadRule is the name of the rule matching the JSON payload.
const PayloadRule = "json-schema"

const spaceRule = `| " " | "\n" [ \t]{0,20}`

type primitive struct {
	body string
	deps []string
}

var primitives = map[string]primitive{
	"boolean":          {body: `("true" | "false") space`},
	"decimal-part":     {body: `[0-9]{1,16}`},
	"integral-part":    {body: `[0] | [1-9] [0-9]{0,15}`},
	"number":           {body: `("-"? integral-part) ("." decimal-part)? ([eE] [-+]? integral-part)? space`, deps: []string{"integral-part", "decimal-part"}},
	"integer":          {body: `("-"? integral-part) space`, deps: []string{"integral-part"}},
	"value":            {body: `object | array | string | number | boolean | null`, deps: []string{"object", "array", "string", "number", "boolean", "null"}},
	"object":           {body: `"{" space ( string ":" space value ("," space string ":" space value)* )? "}" space`, deps: []string{"string", "value"}},
	"array":            {body: `"[" space ( value ("," space value)* )? "]" space`, deps: []string{"value"}},
	"uuid":             {body: `"\"" [0-9a-fA-F]{8} "-" [0-9a-fA-F]{4} "-" [0-9a-fA-F]{4} "-" [0-9a-fA-F]{4} "-" [0-9a-fA-F]{12} "\"" space`},
	"char":             {body: `[^"\\\x7F\x00-\x1F] | [\\] (["\\bfnrt] | "u" [0-9a-fA-F]{4})`},
	"string":           {body: `"\"" char* "\"" space`, deps: []string{"char"}},
	"null":             {body: `"null" space`},
	"date":             {body: `[0-9]{4} "-" ( "0" [1-9] | "1" [0-2] ) "-" ( "0" [1-9] | [1-2] [0-9] | "3" [0-1] )`},
	"time":             {body: `([01] [0-9] | "2" [0-3]) ":" [0-5] [0-9] ":" [0-5] [0-9] ( "." [0-9]{3} )? ( "Z" | ( "+" | "-" ) ( [01] [0-9] | "2" [0-3] ) ":" [0-5] [0-9] )`},
	"date-time":        {body: `date "T" time`, deps: []string{"date", "time"}},
	"date-string":      {body: `"\"" date "\"" space`, deps: []string{"date"}},
	"time-string":      {body: `"\"" time "\"" space`, deps: []string{"time"}},
	"date-time-string": {body: `"\"" date-time "\"" space`, deps: []string{"date-time"}},
	"unsigned-integer": {body: `integral-part space`, deps: []string{"integral-part"}},
	"unsigned-number":  {body: `integral-part ("." decimal-part)? ([eE] [-+]? integral-part)? space`, deps: []string{"integral-part", "decimal-part"}},
}

var formatRules = map[string]string{
	"date":      "date-string",
	"time":      "time-string",
	"date-time": "date-time-string",
	"uuid":      "uuid",
}

var invalidRuleChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// Option configures a Compiler.
type Option func(*Compiler)

// WithDotAll makes `.` in string patterns match newlines as well.
func WithDotAll(dotAll bool) Option {
	return func(c *Compiler) { c.dotAll = dotAll }
}

// Compiler translates schemas into grammars. It holds no per-schema state
// and may be reused.
type Compiler struct {
	dotAll bool
}

// NewCompiler creates a Compiler. Remote $ref resolution is never enabled:
// schemas must be fully inlined or use local definitions.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compile translates s into a grammar whose PayloadRule accepts exactly the
// JSON documents described by s. Any unsupported construct aborts
// compilation.
func (c *Compiler) Compile(s *Schema) (*Grammar, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrUnsupportedSchema)
	}
	st := &state{
		dotAll:   c.dotAll,
		rules:    map[string]string{"space": spaceRule},
		defs:     s.Definitions,
		refRules: make(map[string]string),
	}
	root, err := st.visit(s, PayloadRule)
	if err != nil {
		return nil, err
	}
	g := &Grammar{Root: root, rules: st.rules}
	if err := g.Check(); err != nil {
		return nil, err
	}
	return g, nil
}

// CompileFile loads a schema file and compiles it.
func (c *Compiler) CompileFile(path string) (*Grammar, error) {
	s, err := LoadSchema(path)
	if err != nil {
		return nil, err
	}
	return c.Compile(s)
}

type state struct {
	dotAll   bool
	rules    map[string]string
	defs     map[string]*Schema
	refRules map[string]string
}

func (st *state) addRule(name, body string) string {
	esc := invalidRuleChars.ReplaceAllString(name, "-")
	if existing, ok := st.rules[esc]; !ok || existing == body {
		st.rules[esc] = body
		return esc
	}
	for i := 0; ; i++ {
		key := esc + strconv.Itoa(i)
		if existing, ok := st.rules[key]; !ok || existing == body {
			st.rules[key] = body
			return key
		}
	}
}

func (st *state) addPrimitive(name string) string {
	p, ok := primitives[name]
	if !ok {
		panic("grammar: unknown primitive " + name)
	}
	key := st.addRule(name, p.body)
	for _, dep := range p.deps {
		if _, have := st.rules[dep]; !have {
			st.addPrimitive(dep)
		}
	}
	return key
}

func unsupported(name, format string, args ...any) error {
	return fmt.Errorf("%w at %s: %s", ErrUnsupportedSchema, name, fmt.Sprintf(format, args...))
}

func (st *state) visit(s *Schema, name string) (string, error) {
	if len(s.unsupported) > 0 {
		kws := append([]string(nil), s.unsupported...)
		sort.Strings(kws)
		return "", unsupported(name, "keywords %s", strings.Join(kws, ", "))
	}
	if s.rejectAll {
		return "", unsupported(name, "schema false accepts nothing")
	}
	if kw := s.misplacedKeyword(); kw != "" {
		return "", unsupported(name, "%s does not apply to type %s", kw, s.typeNames())
	}

	switch {
	case s.Ref != "":
		target, err := st.resolveRef(s.Ref, name)
		if err != nil {
			return "", err
		}
		return st.addRule(name, target), nil

	case len(s.OneOf) > 0 || len(s.AnyOf) > 0:
		alts := append(append([]*Schema(nil), s.OneOf...), s.AnyOf...)
		return st.alternatives(name, alts)

	case len(s.Types) > 1:
		alts := make([]*Schema, 0, len(s.Types))
		for _, t := range s.Types {
			alts = append(alts, s.narrowed(t))
		}
		return st.alternatives(name, alts)

	case len(s.Const) > 0:
		lit, err := constantLiteral(s.Const)
		if err != nil {
			return "", unsupported(name, "const: %v", err)
		}
		return st.addRule(name, lit+" space"), nil

	case len(s.Enum) > 0:
		lits := make([]string, 0, len(s.Enum))
		for _, e := range s.Enum {
			lit, err := constantLiteral(e)
			if err != nil {
				return "", unsupported(name, "enum: %v", err)
			}
			lits = append(lits, lit)
		}
		return st.addRule(name, "("+strings.Join(lits, " | ")+") space"), nil

	case s.hasType("object") || (len(s.Types) == 0 && s.hasObjectKeywords()):
		return st.visitObject(s, name)

	case s.hasType("array") || (len(s.Types) == 0 && s.hasArrayKeywords()):
		return st.visitArray(s, name)

	case s.hasType("string"):
		return st.visitString(s, name)

	case s.hasType("integer"), s.hasType("number"):
		return st.visitNumber(s, name)

	case s.hasType("boolean"):
		return st.addRule(name, st.addPrimitive("boolean")), nil

	case s.hasType("null"):
		return st.addRule(name, st.addPrimitive("null")), nil

	case len(s.Types) == 0:
		return st.addRule(name, st.addPrimitive("value")), nil

	default:
		return "", unsupported(name, "type %q", s.Types[0])
	}
}

func (st *state) alternatives(name string, alts []*Schema) (string, error) {
	refs := make([]string, 0, len(alts))
	for i, alt := range alts {
		ref, err := st.visit(alt, name+"-"+strconv.Itoa(i))
		if err != nil {
			return "", err
		}
		refs = append(refs, ref)
	}
	return st.addRule(name, strings.Join(refs, " | ")), nil
}

func (st *state) resolveRef(ref, name string) (string, error) {
	if !strings.HasPrefix(ref, "#") {
		return "", fmt.Errorf("%w: %s (at %s)", ErrRemoteRef, ref, name)
	}
	if rule, ok := st.refRules[ref]; ok {
		return rule, nil
	}
	def, ok := st.defs[ref]
	if !ok {
		return "", unsupported(name, "unresolvable $ref %s", ref)
	}
	defName := ref[strings.LastIndex(ref, "/")+1:]
	// Reserve the rule name before visiting so recursive definitions refer
	// back to it instead of expanding forever.
	ruleName := st.addRule(defName, "")
	st.refRules[ref] = ruleName
	delete(st.rules, ruleName)
	if _, err := st.visit(def, ruleName); err != nil {
		return "", err
	}
	return ruleName, nil
}

func (st *state) visitObject(s *Schema, name string) (string, error) {
	known := make(map[string]bool, len(s.Properties))
	for _, p := range s.Properties {
		known[p.Name] = true
	}
	for _, r := range s.Required {
		if !known[r] {
			return "", unsupported(name, "required property %q has no schema", r)
		}
	}

	if len(s.Properties) == 0 {
		if s.ClosedObject {
			return st.addRule(name, `"{" space "}" space`), nil
		}
		return st.addRule(name, st.addPrimitive("object")), nil
	}
	if s.OpenObject {
		return "", unsupported(name, "additionalProperties alongside declared properties")
	}

	kvRules := make(map[string]string, len(s.Properties))
	var required, optional []string
	for _, p := range s.Properties {
		propName := name + "-" + p.Name
		valueRule, err := st.visit(p.Schema, propName)
		if err != nil {
			return "", err
		}
		keyLit, err := constantLiteral(mustJSON(p.Name))
		if err != nil {
			return "", unsupported(name, "property name %q: %v", p.Name, err)
		}
		kvRules[p.Name] = st.addRule(propName+"-kv", keyLit+` space ":" space `+valueRule)
		if s.isRequired(p.Name) {
			required = append(required, p.Name)
		} else {
			optional = append(optional, p.Name)
		}
	}
	var b strings.Builder
	b.WriteString(`"{" space `)
	for i, r := range required {
		if i > 0 {
			b.WriteString(` "," space `)
		}
		b.WriteString(kvRules[r])
	}
	if len(optional) > 0 {
		b.WriteString(" (")
		if len(required) > 0 {
			b.WriteString(` "," space ( `)
		}
		alts := make([]string, 0, len(optional))
		for i := range optional {
			alts = append(alts, st.optionalChain(name, optional[i:], kvRules, false))
		}
		b.WriteString(strings.Join(alts, " | "))
		if len(required) > 0 {
			b.WriteString(" )")
		}
		b.WriteString(" )?")
	}
	b.WriteString(` "}" space`)
	return st.addRule(name, b.String()), nil
}

// optionalChain emits the optional properties ks in declaration order, each
// of them optional after the first.
func (st *state) optionalChain(name string, ks []string, kvRules map[string]string, firstOptional bool) string {
	k, rest := ks[0], ks[1:]
	var res string
	if firstOptional {
		res = `( "," space ` + kvRules[k] + ` )?`
	} else {
		res = kvRules[k]
	}
	if len(rest) > 0 {
		res += " " + st.addRule(name+"-"+k+"-rest", st.optionalChain(name, rest, kvRules, true))
	}
	return res
}

func (st *state) visitArray(s *Schema, name string) (string, error) {
	var itemRule string
	if s.Items != nil {
		var err error
		itemRule, err = st.visit(s.Items, name+"-item")
		if err != nil {
			return "", err
		}
	} else {
		itemRule = st.addPrimitive("value")
	}
	minItems := 0
	if s.MinItems != nil {
		minItems = *s.MinItems
	}
	maxItems := -1
	if s.MaxItems != nil {
		maxItems = *s.MaxItems
	}
	if maxItems >= 0 && maxItems < minItems {
		return "", unsupported(name, "maxItems %d < minItems %d", maxItems, minItems)
	}
	body := `"[" space ` + buildRepetition(itemRule, minItems, maxItems, `"," space`) + ` "]" space`
	return st.addRule(name, body), nil
}

func (st *state) visitString(s *Schema, name string) (string, error) {
	switch {
	case s.Pattern != "":
		expr, err := st.patternRule(s.Pattern, name)
		if err != nil {
			return "", err
		}
		return st.addRule(name, `"\"" `+expr+` "\"" space`), nil

	case s.Format != "":
		prim, ok := formatRules[s.Format]
		if !ok {
			return "", unsupported(name, "string format %q", s.Format)
		}
		return st.addRule(name, st.addPrimitive(prim)), nil

	case s.MinLength != nil || s.MaxLength != nil:
		minLen, maxLen := 0, -1
		if s.MinLength != nil {
			minLen = *s.MinLength
		}
		if s.MaxLength != nil {
			maxLen = *s.MaxLength
		}
		if maxLen >= 0 && maxLen < minLen {
			return "", unsupported(name, "maxLength %d < minLength %d", maxLen, minLen)
		}
		char := st.addPrimitive("char")
		return st.addRule(name, `"\"" `+buildRepetition(char, minLen, maxLen, "")+` "\"" space`), nil

	default:
		return st.addRule(name, st.addPrimitive("string")), nil
	}
}

func (st *state) visitNumber(s *Schema, name string) (string, error) {
	integer := s.hasType("integer")
	if s.Maximum != nil || (s.Minimum != nil && *s.Minimum != 0) {
		return "", unsupported(name, "numeric bounds other than minimum 0")
	}
	prim := "number"
	switch {
	case integer && s.Minimum != nil:
		prim = "unsigned-integer"
	case integer:
		prim = "integer"
	case s.Minimum != nil:
		prim = "unsigned-number"
	}
	return st.addRule(name, st.addPrimitive(prim)), nil
}

// buildRepetition renders item repeated between min and max times (max < 0
// means unbounded), with an optional separator between occurrences.
func buildRepetition(item string, min, max int, sep string) string {
	if max == 0 {
		return `""`
	}
	if min == 0 && max == 1 {
		return item + "?"
	}
	if sep == "" {
		switch {
		case min == 1 && max < 0:
			return item + "+"
		case min == 0 && max < 0:
			return item + "*"
		case max < 0:
			return fmt.Sprintf("%s{%d,}", item, min)
		default:
			return fmt.Sprintf("%s{%d,%d}", item, min, max)
		}
	}

	restMin := 0
	if min > 0 {
		restMin = min - 1
	}
	restMax := -1
	if max > 0 {
		restMax = max - 1
	}
	res := item
	if restMax != 0 {
		res += " " + buildRepetition("( "+sep+" "+item+" )", restMin, restMax, "")
	}
	if min == 0 {
		return "( " + res + " )?"
	}
	return res
}

func mustJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// constantLiteral renders a JSON constant as a GBNF string literal matching
// its compact serialisation.
func constantLiteral(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return formatLiteral(buf.String()), nil
}

// formatLiteral quotes s as a GBNF literal.
func formatLiteral(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7F {
				fmt.Fprintf(&b, `\x%02X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
