// Package extract pulls JSON out of free-form model output. Models wrap
// their answers in prose, code fences and half-finished retries; the
// functions here never fail, they return the best fragment they can find
// or an empty value of the requested shape.
package extract

import (
	"encoding/json"
	"strings"
)

const fence = "```"

// DefaultWrapperKeys are the generic keys models use to wrap a list.
var DefaultWrapperKeys = []string{"items", "data", "rows", "values"}

// StripFences removes one level of code fencing when the whole text is
// fenced. A language tag after the opening fence is left in place; it
// never contains brackets.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, fence) {
		return s
	}
	parts := strings.Split(t, fence)
	if len(parts) < 3 {
		return s
	}
	return strings.TrimSpace(parts[1])
}

// Spans returns every top-level balanced {...} or [...] span in s, in order
// of appearance. Brackets inside JSON strings are ignored once a span is
// open. A mismatched closer abandons the span in progress.
func Spans(s string) []string {
	return scan(s, true)
}

// BracketSpans is Spans without string tracking: quotes are ordinary
// characters, so a stray quote in prose cannot swallow later spans.
func BracketSpans(s string) []string {
	return scan(s, false)
}

func scan(s string, trackStrings bool) []string {
	var (
		spans    []string
		stack    []byte
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if trackStrings && len(stack) > 0 {
				inString = true
			}
		case '{', '[':
			if len(stack) == 0 {
				start = i
			}
			stack = append(stack, ch)
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if (open == '{' && ch != '}') || (open == '[' && ch != ']') {
				stack = stack[:0]
				start = -1
				continue
			}
			if len(stack) == 0 && start >= 0 {
				spans = append(spans, s[start:i+1])
				start = -1
			}
		}
	}
	return spans
}

// values decodes the spans of raw in order. When the string-aware scan
// finds nothing that decodes, the bracket-only scan is tried instead.
func values(raw string) []any {
	text := StripFences(raw)
	out := decodeAll(Spans(text))
	if len(out) == 0 {
		out = decodeAll(BracketSpans(text))
	}
	return out
}

func decodeAll(spans []string) []any {
	var out []any
	for _, span := range spans {
		if v, ok := decode(span); ok {
			out = append(out, v)
		}
	}
	return out
}

func decode(span string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(span), &v); err != nil {
		return nil, false
	}
	return v, true
}

// Last returns the last span of raw that decodes as JSON.
func Last(raw string) (any, bool) {
	vs := values(raw)
	if len(vs) == 0 {
		return nil, false
	}
	return vs[len(vs)-1], true
}

// First returns the first span of raw that decodes as JSON.
func First(raw string) (any, bool) {
	vs := values(raw)
	if len(vs) == 0 {
		return nil, false
	}
	return vs[0], true
}

// All decodes every parseable span of raw, in order of appearance.
func All(raw string) []any {
	return values(raw)
}

// Unwrap returns the list stored under the first of keys that holds one,
// or v unchanged.
func Unwrap(v any, keys ...string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for _, k := range keys {
		if k == "" {
			continue
		}
		if list, ok := m[k].([]any); ok {
			return list
		}
	}
	return v
}

// Rows flattens every parseable span of raw into a list of objects.
// Wrapper objects are unwrapped through keys (then DefaultWrapperKeys);
// non-object entries are dropped.
func Rows(raw string, keys ...string) []map[string]any {
	keys = append(append([]string(nil), keys...), DefaultWrapperKeys...)
	rows := []map[string]any{}
	for _, frag := range All(raw) {
		switch v := Unwrap(frag, keys...).(type) {
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					rows = append(rows, m)
				}
			}
		case map[string]any:
			rows = append(rows, v)
		}
	}
	return rows
}

// Extract returns the fragment an analyzer should parse. List-shaped
// analyzers get a []any of objects (possibly empty); object-shaped ones get
// the last parseable value or an empty object.
func Extract(raw string, wantArray bool, keys ...string) any {
	if wantArray {
		rows := Rows(raw, keys...)
		out := make([]any, len(rows))
		for i, r := range rows {
			out[i] = r
		}
		return out
	}
	if v, ok := Last(raw); ok {
		return v
	}
	return Empty(false)
}

// Empty is the shape-appropriate "nothing found" value.
func Empty(wantArray bool) any {
	if wantArray {
		return []any{}
	}
	return map[string]any{}
}
