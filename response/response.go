// Package response recovers the structured payload from raw generator output
// that may carry a <think>...</think> reasoning block before the JSON.
package response

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brunobiangulo/txt2kgx/grammar"
	"github.com/brunobiangulo/txt2kgx/payload"
)

var (
	// ErrPayloadNotFound is returned when no '{' can be located where the
	// payload is expected.
	ErrPayloadNotFound = errors.New("txt2kgx: payload not found in response")

	// ErrMalformedPayload is returned when the located payload is not valid
	// JSON.
	ErrMalformedPayload = errors.New("txt2kgx: malformed payload")
)

// Path records how the payload was located.
type Path int

const (
	// Primary means the payload followed the last closing reasoning tag.
	Primary Path = iota
	// Fallback means no closing tag was present and the first '{' in the
	// text was used.
	Fallback
)

func (p Path) String() string {
	if p == Fallback {
		return "fallback"
	}
	return "primary"
}

// Result is a parsed payload together with the path used to find it.
type Result struct {
	Value payload.Value
	Path  Path
	// Reasoning is the text preceding the payload start, trimmed.
	Reasoning string
}

// Parse extracts the JSON payload from raw. Every outcome is either a Result
// or an error wrapping ErrPayloadNotFound or ErrMalformedPayload.
func Parse(raw string) (*Result, error) {
	path := Primary
	start := -1
	if end := strings.LastIndex(raw, grammar.ReasoningClose); end >= 0 {
		from := end + len(grammar.ReasoningClose)
		if i := strings.IndexByte(raw[from:], '{'); i >= 0 {
			start = from + i
		}
		if start < 0 {
			slog.Debug("response: no payload after reasoning block", "path", path.String())
			return nil, fmt.Errorf("%w: nothing follows %s", ErrPayloadNotFound, grammar.ReasoningClose)
		}
	} else {
		path = Fallback
		slog.Warn("response: reasoning close tag missing, scanning whole text", "tag", grammar.ReasoningClose)
		start = strings.IndexByte(raw, '{')
		if start < 0 {
			return nil, fmt.Errorf("%w: no '{' in %d bytes", ErrPayloadNotFound, len(raw))
		}
	}

	v, err := payload.Decode(raw[start:])
	if err != nil {
		return nil, fmt.Errorf("%w (%s path): %v", ErrMalformedPayload, path, err)
	}
	slog.Debug("response: payload extracted", "path", path.String(), "offset", start)

	return &Result{
		Value:     v,
		Path:      path,
		Reasoning: reasoningText(raw[:start]),
	}, nil
}

func reasoningText(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimPrefix(prefix, grammar.ReasoningOpen)
	if i := strings.LastIndex(prefix, grammar.ReasoningClose); i >= 0 {
		prefix = prefix[:i]
	}
	return strings.TrimSpace(prefix)
}
