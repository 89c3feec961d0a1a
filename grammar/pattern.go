package grammar

import (
	"fmt"
	"regexp/syntax"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Rune ranges matched by `.` without and with dotall. Carriage returns are
// excluded along with newlines.
var (
	dotRanges    = []rune{0x00, 0x09, 0x0B, 0x0C, 0x0E, unicode.MaxRune}
	dotAllRanges = []rune{0x00, unicode.MaxRune}
)

// unsafeRanges are the runes a JSON string can only carry escaped, as sorted
// range pairs: control characters, quote, backslash and DEL.
var unsafeRanges = []rune{0x00, 0x1F, '"', '"', '\\', '\\', 0x7F, 0x7F}

// patternRule translates a JSON Schema pattern into a GBNF expression. The
// pattern is treated as anchored at both ends. The expression matches the
// JSON encoding of the pattern's strings, so it never yields a raw quote,
// backslash or control character inside the enclosing string.
func (st *state) patternRule(pattern, name string) (string, error) {
	flags := syntax.Perl
	if st.dotAll {
		flags |= syntax.DotNL
	}
	re, err := syntax.Parse(pattern, flags)
	if err != nil {
		return "", unsupported(name, "pattern %q: %v", pattern, err)
	}
	expr, err := st.patternExpr(re, name)
	if err != nil {
		return "", err
	}
	if expr == "" {
		expr = `""`
	}
	return st.addRule(name+"-pattern", expr), nil
}

func (st *state) patternExpr(re *syntax.Regexp, name string) (string, error) {
	switch re.Op {
	case syntax.OpEmptyMatch:
		return `""`, nil

	case syntax.OpBeginLine, syntax.OpEndLine, syntax.OpBeginText, syntax.OpEndText:
		return "", nil

	case syntax.OpLiteral:
		if re.Flags&syntax.FoldCase == 0 {
			return formatLiteral(jsonEscape(string(re.Rune))), nil
		}
		parts := make([]string, 0, len(re.Rune))
		for _, r := range re.Rune {
			folded := []rune{r}
			for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
				folded = append(folded, f)
			}
			if len(folded) == 1 {
				parts = append(parts, formatLiteral(jsonEscape(string(r))))
				continue
			}
			sort.Slice(folded, func(i, j int) bool { return folded[i] < folded[j] })
			pairs := make([]rune, 0, 2*len(folded))
			for _, f := range folded {
				pairs = append(pairs, f, f)
			}
			parts = append(parts, jsonClass(pairs))
		}
		return strings.Join(parts, " "), nil

	case syntax.OpCharClass:
		if len(re.Rune) == 0 {
			return "", unsupported(name, "empty character class")
		}
		return jsonClass(re.Rune), nil

	case syntax.OpAnyCharNotNL:
		return jsonClass(dotRanges), nil

	case syntax.OpAnyChar:
		return jsonClass(dotAllRanges), nil

	case syntax.OpCapture:
		sub, err := st.patternExpr(re.Sub[0], name)
		if err != nil {
			return "", err
		}
		return "(" + sub + ")", nil

	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest:
		sub, err := st.patternExpr(re.Sub[0], name)
		if err != nil {
			return "", err
		}
		suffix := map[syntax.Op]string{syntax.OpStar: "*", syntax.OpPlus: "+", syntax.OpQuest: "?"}[re.Op]
		return group(sub) + suffix, nil

	case syntax.OpRepeat:
		sub, err := st.patternExpr(re.Sub[0], name)
		if err != nil {
			return "", err
		}
		upper := ""
		if re.Max >= 0 {
			upper = strconv.Itoa(re.Max)
		}
		if re.Min == re.Max {
			return fmt.Sprintf("%s{%d}", group(sub), re.Min), nil
		}
		return fmt.Sprintf("%s{%d,%s}", group(sub), re.Min, upper), nil

	case syntax.OpConcat:
		parts := make([]string, 0, len(re.Sub))
		for _, s := range re.Sub {
			p, err := st.patternExpr(s, name)
			if err != nil {
				return "", err
			}
			if p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, " "), nil

	case syntax.OpAlternate:
		alts := make([]string, 0, len(re.Sub))
		for _, s := range re.Sub {
			p, err := st.patternExpr(s, name)
			if err != nil {
				return "", err
			}
			if p == "" {
				p = `""`
			}
			alts = append(alts, p)
		}
		return "(" + strings.Join(alts, " | ") + ")", nil

	default:
		return "", unsupported(name, "pattern construct %s", re.Op)
	}
}

// group parenthesises expr unless it is already a single term.
func group(expr string) string {
	if isSingleTerm(expr) {
		return expr
	}
	return "(" + expr + ")"
}

func isSingleTerm(expr string) bool {
	if expr == "" {
		return false
	}
	end := termEnd(expr, 0)
	return end == len(expr)
}

// termEnd returns the index just past the literal, class or group starting
// at i.
func termEnd(s string, i int) int {
	var close byte
	switch s[i] {
	case '"':
		close = '"'
	case '[':
		close = ']'
	case '(':
		depth := 0
		for j := i; j < len(s); j++ {
			switch s[j] {
			case '"', '[':
				j = termEnd(s, j) - 1
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return j + 1
				}
			}
		}
		return len(s)
	default:
		return -1
	}
	for j := i + 1; j < len(s); j++ {
		if s[j] == '\\' {
			j++
			continue
		}
		if s[j] == close {
			return j + 1
		}
	}
	return len(s)
}

// jsonClass renders sorted rune range pairs as an expression over their JSON
// string encodings: a character class for the runes that may appear raw,
// plus escape sequences for the rest.
func jsonClass(pairs []rune) string {
	safe, unsafe := splitUnsafe(pairs)
	var alts []string
	if len(safe) > 0 {
		alts = append(alts, charClass(safe))
	}
	alts = append(alts, escapeAlternatives(unsafe)...)
	if len(alts) == 1 {
		return alts[0]
	}
	return "(" + strings.Join(alts, " | ") + ")"
}

// splitUnsafe divides sorted range pairs into the ranges a JSON string may
// carry raw and the ranges it must escape.
func splitUnsafe(pairs []rune) (safe, unsafe []rune) {
	for i := 0; i+1 < len(pairs); i += 2 {
		lo, hi := pairs[i], pairs[i+1]
		for j := 0; j+1 < len(unsafeRanges) && lo <= hi; j += 2 {
			ulo, uhi := unsafeRanges[j], unsafeRanges[j+1]
			if uhi < lo {
				continue
			}
			if ulo > hi {
				break
			}
			if lo < ulo {
				safe = append(safe, lo, ulo-1)
			}
			unsafe = append(unsafe, max(lo, ulo), min(hi, uhi))
			lo = uhi + 1
		}
		if lo <= hi {
			safe = append(safe, lo, hi)
		}
	}
	return safe, unsafe
}

// escapeAlternatives renders the escaped forms of the unsafe ranges. Control
// characters use \u00XX with one hex-digit class per high nibble.
func escapeAlternatives(unsafe []rune) []string {
	var alts []string
	var nibbles [2][]rune
	for i := 0; i+1 < len(unsafe); i += 2 {
		for r := unsafe[i]; r <= unsafe[i+1]; r++ {
			if r < 0x20 {
				nibbles[r>>4] = append(nibbles[r>>4], r&0xF)
				continue
			}
			alts = append(alts, formatLiteral(jsonEscape(string(r))))
		}
	}
	for high, low := range nibbles {
		if len(low) > 0 {
			alts = append(alts, formatLiteral(`\u00`+strconv.Itoa(high))+" "+hexClass(low))
		}
	}
	return alts
}

// hexClass matches the hex digits of values in either case.
func hexClass(values []rune) string {
	var b strings.Builder
	b.WriteByte('[')
	for _, v := range values {
		if v < 10 {
			b.WriteRune('0' + v)
			continue
		}
		b.WriteRune('A' + v - 10)
		b.WriteRune('a' + v - 10)
	}
	b.WriteByte(']')
	return b.String()
}

// jsonEscape returns s as it appears between the quotes of a JSON string.
func jsonEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 || r == 0x7F {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// charClass renders sorted rune range pairs as a GBNF character class.
func charClass(pairs []rune) string {
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i+1 < len(pairs); i += 2 {
		lo, hi := pairs[i], pairs[i+1]
		b.WriteString(classRune(lo))
		if hi != lo {
			if hi > lo+1 {
				b.WriteByte('-')
			}
			b.WriteString(classRune(hi))
		}
	}
	b.WriteByte(']')
	return b.String()
}

func classRune(r rune) string {
	switch r {
	case '\\', ']', '[', '-', '^':
		return `\` + string(r)
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	}
	switch {
	case r < 0x20 || r == 0x7F:
		return fmt.Sprintf(`\x%02X`, r)
	case r > 0xFFFF:
		return fmt.Sprintf(`\U%08X`, r)
	case !unicode.IsPrint(r):
		return fmt.Sprintf(`\u%04X`, r)
	default:
		return string(r)
	}
}
