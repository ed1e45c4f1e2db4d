package vegalite

import (
	"fmt"
	"slices"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
)

// NormalizeOptions carries the dataset context used to finish a model-authored spec.
type NormalizeOptions struct {
	Columns []string
	Sample  []dataset.Row
	// ForceScatter switches the mark to point, used when the request asks to
	// visualize a column directly.
	ForceScatter bool
	// Title is applied when the chart has none.
	Title string
}

// Normalize returns a finished copy of s. It binds the sample as inline data
// when the chart has no data, fills missing encoding types, maps the common
// "scatter" mistake to point, applies ForceScatter and removes self-pairing.
// Each adjustment is reported as a note.
func Normalize(s Spec, opt NormalizeOptions) (Spec, []string) {
	out := s.Clone()
	var notes []string

	if _, ok := out["$schema"]; !ok {
		out["$schema"] = SchemaURL
	}
	if out.Title() == "" && opt.Title != "" {
		out["title"] = opt.Title
	}
	if _, ok := out["data"]; !ok && !layersHaveData(out) {
		out["data"] = map[string]any{"values": sampleValues(opt.Sample)}
		notes = append(notes, "bound sample rows as inline data")
	}

	for _, unit := range out.units() {
		switch m := unit.Mark(); {
		case m == "scatter":
			unit.SetMark(MarkPoint)
			notes = append(notes, "mapped mark scatter to point")
		case opt.ForceScatter && m != "" && !IsScatter(m):
			unit.SetMark(MarkPoint)
			notes = append(notes, fmt.Sprintf("switched mark %s to point", m))
		}
		if col, ok := unit.selfPaired(); ok {
			if note, repaired := unit.repairSelfPairing(col, opt.Columns, opt.Sample); repaired {
				notes = append(notes, note)
			}
		}
		unit.fillTypes(opt.Sample)
	}
	return out, notes
}

// units returns the chart itself plus its layers; each shares storage with out.
func (s Spec) units() []Spec {
	units := []Spec{s}
	return append(units, s.Layers()...)
}

func (s Spec) selfPaired() (string, bool) {
	return pairedField(s.Encoding())
}

func layersHaveData(s Spec) bool {
	layers := s.Layers()
	if len(layers) == 0 {
		return false
	}
	for _, l := range layers {
		if _, ok := l["data"]; !ok {
			return false
		}
	}
	return true
}

// repairSelfPairing keeps col on x and rebinds y to another column, preferring
// quantitative ones. A single-column dataset gets a count on y instead.
func (s Spec) repairSelfPairing(col string, columns []string, sample []dataset.Row) (string, bool) {
	enc := s.Encoding()
	if enc == nil {
		return "", false
	}
	var candidate string
	for _, c := range dataset.QuantitativeColumns(columns, sample) {
		if c != col {
			candidate = c
			break
		}
	}
	if candidate == "" {
		if i := slices.IndexFunc(columns, func(c string) bool { return c != col }); i >= 0 {
			candidate = columns[i]
		}
	}

	if candidate == "" {
		enc["y"] = map[string]any{"aggregate": "count", "type": dataset.Quantitative, "title": "count"}
		return fmt.Sprintf("replaced self-paired y=%s with a count", col), true
	}

	y := map[string]any{}
	if old, ok := enc["y"].(map[string]any); ok {
		for k, v := range old {
			switch k {
			case "field", "type", "title", "aggregate", "bin", "timeUnit":
			default:
				y[k] = v
			}
		}
	}
	y["field"] = candidate
	y["type"] = dataset.InferType(sample, candidate)
	y["title"] = candidate
	enc["y"] = y
	return fmt.Sprintf("replaced self-paired y=%s with %s", col, candidate), true
}

// fillTypes sets the measurement type of channels bound to a field without one.
func (s Spec) fillTypes(sample []dataset.Row) {
	for _, raw := range s.Encoding() {
		def, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		field, ok := def["field"].(string)
		if !ok || field == "" {
			continue
		}
		if _, ok := def["type"]; ok {
			continue
		}
		def["type"] = dataset.InferType(sample, field)
	}
}

func sampleValues(sample []dataset.Row) []any {
	out := make([]any, len(sample))
	for i, r := range sample {
		row := make(map[string]any, len(r))
		for k, v := range r {
			row[k] = v
		}
		out[i] = row
	}
	return out
}
