// Package jsonrepair recovers structured data from model output that
// was supposed to be JSON. The pipeline degrades through progressively
// looser strategies and always produces a usable Value; "could not
// parse" is not an outcome callers have to handle.
package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"
)

type Kind int

const (
	KindObject Kind = iota
	KindArray
)

// Value is the extraction result: either an object or an array. The
// zero value is an empty object.
type Value struct {
	Kind   Kind
	Object map[string]any
	Array  []any
}

func emptyObject() Value {
	return Value{Kind: KindObject, Object: map[string]any{}}
}

// IsEmpty reports whether nothing was recovered.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindArray:
		return len(v.Array) == 0
	default:
		return len(v.Object) == 0
	}
}

// Get returns a top-level object field. Nil for arrays and missing keys.
func (v Value) Get(key string) any {
	if v.Kind != KindObject {
		return nil
	}
	return v.Object[key]
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

var pairRe = regexp.MustCompile(`"([^"\\]+)"\s*:\s*("(?:[^"\\]|\\.)*"|\[[^\[\]]*\]|\{[^{}]*\}|-?\d+(?:\.\d+)?|true|false|null)`)

// Extract recovers a Value from raw model output. It never fails:
// fenced blocks are unwrapped, then a direct parse is tried, then the
// first balanced {...} or [...] substring, then a key/value scrape,
// and finally an empty object.
func Extract(raw string) Value {
	text := stripFences(raw)

	if v, ok := parse(text); ok {
		return v
	}

	if candidate := balancedSubstring(text); candidate != "" {
		if v, ok := parse(candidate); ok {
			return v
		}
	}

	if obj := scrapePairs(text); len(obj) > 0 {
		return Value{Kind: KindObject, Object: obj}
	}

	return emptyObject()
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	// Unterminated fence: the model opened a block and ran out of tokens.
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		return strings.TrimSpace(rest)
	}
	return text
}

func parse(text string) (Value, bool) {
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return Value{}, false
	}
	switch d := decoded.(type) {
	case map[string]any:
		return Value{Kind: KindObject, Object: d}, true
	case []any:
		return Value{Kind: KindArray, Array: d}, true
	default:
		// Bare scalars carry no structure worth keeping.
		return Value{}, false
	}
}

// balancedSubstring returns the first complete {...} or [...] region,
// tracking string literals and escapes so braces inside values do not
// end the scan early.
func balancedSubstring(text string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if text[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// scrapePairs pulls "key": value pairs out of otherwise unparseable
// text. Values that parse as JSON keep their type; everything else is
// kept as the raw string.
func scrapePairs(text string) map[string]any {
	matches := pairRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	obj := make(map[string]any, len(matches))
	for _, m := range matches {
		key, rawValue := m[1], m[2]
		var decoded any
		if err := json.Unmarshal([]byte(rawValue), &decoded); err == nil {
			obj[key] = decoded
		} else {
			obj[key] = strings.Trim(rawValue, `"`)
		}
	}
	return obj
}
