package dataset

import "encoding/json"

// Vega-Lite measurement types produced by InferType.
const (
	Quantitative = "quantitative"
	Nominal      = "nominal"
)

// InferType scans the sample in order and classifies the column by its first
// non-null value: numeric values make it quantitative, anything else nominal.
// A column with no non-null value is nominal.
func InferType(sample []Row, column string) string {
	for _, row := range sample {
		v, ok := row[column]
		if !ok || v == nil {
			continue
		}
		if isNumber(v) {
			return Quantitative
		}
		return Nominal
	}
	return Nominal
}

// QuantitativeColumns lists, in column order, the columns InferType marks quantitative.
func QuantitativeColumns(columns []string, sample []Row) []string {
	var out []string
	for _, c := range columns {
		if InferType(sample, c) == Quantitative {
			out = append(out, c)
		}
	}
	return out
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	default:
		return false
	}
}
