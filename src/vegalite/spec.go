// Package vegalite models the Vega-Lite chart specifications produced by the
// chart tool: parsing, structural validation and the deterministic clean-ups
// applied to model output.
package vegalite

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaURL is stamped on specs that do not declare one.
const SchemaURL = "https://vega.github.io/schema/vega-lite/v5.json"

// MarkPoint is the Vega-Lite mark used for scatter plots.
const MarkPoint = "point"

// Spec is a Vega-Lite specification held as a JSON object tree. Values are
// restricted to what encoding/json produces (map[string]any, []any, float64,
// string, bool, nil) so a Spec survives marshal and unmarshal unchanged.
type Spec map[string]any

// Parse decodes text into a Spec. The text must hold a single JSON object.
func Parse(text string) (Spec, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected trailing content after JSON object")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return Spec(obj), nil
}

// MarshalJSON keeps Spec encoding identical to a plain map.
func (s Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// Clone returns a deep copy.
func (s Spec) Clone() Spec {
	if s == nil {
		return nil
	}
	return Spec(deepCopy(map[string]any(s)).(map[string]any))
}

// Mark returns the mark type whether declared as "point" or {"type": "point"}.
func (s Spec) Mark() string {
	return markOf(s["mark"])
}

func markOf(v any) string {
	switch m := v.(type) {
	case string:
		return m
	case map[string]any:
		if t, ok := m["type"].(string); ok {
			return t
		}
	}
	return ""
}

// SetMark replaces the mark type and keeps mark properties when the mark is an object.
func (s Spec) SetMark(mark string) {
	if m, ok := s["mark"].(map[string]any); ok {
		m["type"] = mark
		return
	}
	s["mark"] = mark
}

// Encoding returns the top-level encoding block, or nil.
func (s Spec) Encoding() map[string]any {
	enc, _ := s["encoding"].(map[string]any)
	return enc
}

// Field returns the field bound to a channel of the top-level encoding.
func (s Spec) Field(channel string) string {
	return fieldOf(s.Encoding(), channel)
}

// Layers returns the layer sub-specs, if any.
func (s Spec) Layers() []Spec {
	raw, _ := s["layer"].([]any)
	var out []Spec
	for _, l := range raw {
		if m, ok := l.(map[string]any); ok {
			out = append(out, Spec(m))
		}
	}
	return out
}

// Title returns the title text, whether declared as a string or {"text": ...}.
func (s Spec) Title() string {
	switch t := s["title"].(type) {
	case string:
		return t
	case map[string]any:
		if text, ok := t["text"].(string); ok {
			return text
		}
	}
	return ""
}

// SelfPaired reports a column encoded on both x and y, checking the top level
// and every layer.
func (s Spec) SelfPaired() (string, bool) {
	for _, enc := range s.encodings() {
		if f, ok := pairedField(enc); ok {
			return f, true
		}
	}
	return "", false
}

// pairedField reports a field plotted against itself. An aggregated channel
// (a count of mpg against binned mpg, say) is not a self-pairing.
func pairedField(enc map[string]any) (string, bool) {
	x, y := fieldOf(enc, "x"), fieldOf(enc, "y")
	if x == "" || x != y {
		return "", false
	}
	for _, ch := range []string{"x", "y"} {
		if def, ok := enc[ch].(map[string]any); ok {
			if _, agg := def["aggregate"]; agg {
				return "", false
			}
		}
	}
	return x, true
}

// Fields lists every field referenced by an encoding channel.
func (s Spec) Fields() []string {
	seen := map[string]bool{}
	var out []string
	for _, enc := range s.encodings() {
		for ch := range enc {
			if f := fieldOf(enc, ch); f != "" && !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

func (s Spec) encodings() []map[string]any {
	var out []map[string]any
	if enc := s.Encoding(); enc != nil {
		out = append(out, enc)
	}
	for _, l := range s.Layers() {
		if enc := l.Encoding(); enc != nil {
			out = append(out, enc)
		}
	}
	return out
}

func fieldOf(enc map[string]any, channel string) string {
	def, ok := enc[channel].(map[string]any)
	if !ok {
		return ""
	}
	f, _ := def["field"].(string)
	return f
}

// IsScatter reports whether a mark draws one glyph per row.
func IsScatter(mark string) bool {
	switch strings.ToLower(mark) {
	case "point", "circle", "square":
		return true
	}
	return false
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(x))
		for k, val := range x {
			cp[k] = deepCopy(val)
		}
		return cp
	case Spec:
		return deepCopy(map[string]any(x))
	case []any:
		cp := make([]any, len(x))
		for i, val := range x {
			cp[i] = deepCopy(val)
		}
		return cp
	default:
		return v
	}
}
