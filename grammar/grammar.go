package grammar

import (
	"fmt"
	"sort"
	"strings"
)

// Reasoning delimiters the generator must wrap its free-form reasoning in.
const (
	ReasoningOpen  = "<think>"
	ReasoningClose = "</think>"
)

// Grammar is a compiled set of GBNF rules.
type Grammar struct {
	// Root names the rule matching the whole payload.
	Root  string
	rules map[string]string
}

// Rule returns the body of the named rule.
func (g *Grammar) Rule(name string) (string, bool) {
	body, ok := g.rules[name]
	return body, ok
}

// RuleNames returns all rule names in sorted order.
func (g *Grammar) RuleNames() []string {
	names := make([]string, 0, len(g.rules))
	for n := range g.rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// String renders the grammar with one `name ::= body` line per rule, sorted
// by name.
func (g *Grammar) String() string {
	var b strings.Builder
	for _, n := range g.RuleNames() {
		b.WriteString(n)
		b.WriteString(" ::= ")
		b.WriteString(g.rules[n])
		b.WriteByte('\n')
	}
	return b.String()
}

// Check verifies that every rule referenced by another rule is defined.
func (g *Grammar) Check() error {
	if _, ok := g.rules[g.Root]; !ok {
		return fmt.Errorf("grammar: root rule %q is not defined", g.Root)
	}
	for _, n := range g.RuleNames() {
		for _, ref := range RuleRefs(g.rules[n]) {
			if _, ok := g.rules[ref]; !ok {
				return fmt.Errorf("grammar: rule %q references undefined rule %q", n, ref)
			}
		}
	}
	return nil
}

// WrapReasoning returns the full generation grammar: a root rule requiring a
// non-empty reasoning block, optional newlines, then the payload.
func WrapReasoning(g *Grammar) string {
	root := fmt.Sprintf(`root ::= %s [^<]+ %s [\n]* %s`,
		formatLiteral(ReasoningOpen), formatLiteral(ReasoningClose), g.Root)
	return root + "\n" + g.String()
}

// RuleRefs lists the rule names referenced by a rule body, skipping
// literals, character classes and repetition counts.
func RuleRefs(body string) []string {
	var refs []string
	for i := 0; i < len(body); {
		c := body[i]
		switch {
		case c == '"' || c == '[':
			i = termEnd(body, i)
		case c == '{':
			j := strings.IndexByte(body[i:], '}')
			if j < 0 {
				return refs
			}
			i += j + 1
		case isRuleChar(c):
			j := i
			for j < len(body) && isRuleChar(body[j]) {
				j++
			}
			refs = append(refs, body[i:j])
			i = j
		default:
			i++
		}
	}
	return refs
}

func isRuleChar(c byte) bool {
	return c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
