// Package analysis turns a journal entry into structured emotional data.
// Each Analyzer owns one slice of the result (valence/arousal, spider
// ratings, Plutchik emotions, activities, theme river): it describes the
// JSON it wants from the model, normalizes whatever comes back and writes
// it to the journal database. The Runner drives all of them for an entry.
package analysis

import (
	"context"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/Napageneral/journai/internal/db"
)

// Target is the entry a result belongs to. Timestamp is the analysis time
// shared by every row of one run; EntryTimestamp is when the entry started.
type Target struct {
	SessionID      int64
	EntryID        int64
	Timestamp      string
	EntryTimestamp string
}

// Result is the normalized output of one analyzer.
type Result interface {
	// Empty reports whether there is nothing worth persisting.
	Empty() bool
}

// Analyzer is one extraction over a journal entry.
type Analyzer interface {
	Name() string
	Instructions() string
	// Shape describes the JSON the model should produce.
	Shape() Shape
	// Parse normalizes an extracted fragment. It drops bad items instead of
	// failing; an error means nothing usable was found at all.
	Parse(raw any) (Result, error)
	Persist(ctx context.Context, q db.Querier, t Target, r Result) error
}

// Shape is the expected output of an analyzer, as a JSON schema.
type Shape struct {
	Schema *jsonschema.Schema
}

// WantsArray reports whether the model should answer with a list.
func (s Shape) WantsArray() bool {
	return s.Schema != nil && s.Schema.Type == "array"
}

// String renders the schema for a prompt.
func (s Shape) String() string {
	if s.Schema == nil {
		return "{}"
	}
	b, err := json.MarshalIndent(s.Schema, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

var reflector = jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
}

// shapeOf reflects the JSON schema of T.
func shapeOf[T any]() Shape {
	var v T
	s := reflector.ReflectFromType(reflect.TypeOf(v))
	s.Version = ""
	return Shape{Schema: s}
}

// Helpers below coerce loosely typed JSON values the way a lenient reader
// would: numbers may arrive as strings, lists as scalars.

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// toInt rounds half to even.
func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(math.RoundToEven(f)), true
}

func toText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// toTextList wraps a scalar in a one element list and drops blanks.
func toTextList(v any) []string {
	var items []any
	switch x := v.(type) {
	case nil:
		return []string{}
	case []any:
		items = x
	default:
		items = []any{x}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := toText(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asList accepts a list, a single object, or an object wrapping a list under
// one of keys.
func asList(v any, keys ...string) []map[string]any {
	if m, ok := v.(map[string]any); ok {
		wrapped := false
		for _, k := range keys {
			if list, ok := m[k].([]any); ok {
				v, wrapped = list, true
				break
			}
		}
		if !wrapped {
			return []map[string]any{m}
		}
	}
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
