package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Row maps a column name to a float64, a string or nil.
type Row map[string]any

// Snapshot is an immutable view of an uploaded dataset: its ordered column
// names and a bounded sample of rows. Accessors hand out copies so callers
// cannot reach the shared state.
type Snapshot struct {
	id         string
	columns    []string
	sample     []Row
	totalRows  int
	uploadedAt time.Time
}

// NewSnapshot validates that every row only references known columns and
// normalises cell values to float64, string or nil.
func NewSnapshot(columns []string, sample []Row, totalRows int) (*Snapshot, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := known[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		known[c] = struct{}{}
	}

	rows := make([]Row, 0, len(sample))
	for i, r := range sample {
		row := make(Row, len(r))
		for k, v := range r {
			if _, ok := known[k]; !ok {
				return nil, fmt.Errorf("row %d references unknown column %q", i, k)
			}
			nv, err := NormalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, k, err)
			}
			row[k] = nv
		}
		rows = append(rows, row)
	}
	if totalRows < len(rows) {
		totalRows = len(rows)
	}

	return &Snapshot{
		id:         uuid.NewString(),
		columns:    slices.Clone(columns),
		sample:     rows,
		totalRows:  totalRows,
		uploadedAt: time.Now().UTC(),
	}, nil
}

// NormalizeValue coerces a decoded cell into the dataset value domain.
func NormalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String(), nil
		}
		return finite(f)
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", v)
	}
}

func finite(f float64) (any, error) {
	if math.IsNaN(f) {
		return nil, nil
	}
	if math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return f, nil
}

func (s *Snapshot) ID() string            { return s.id }
func (s *Snapshot) TotalRows() int        { return s.totalRows }
func (s *Snapshot) UploadedAt() time.Time { return s.uploadedAt }

// Len is the number of sampled rows.
func (s *Snapshot) Len() int { return len(s.sample) }

// Empty reports whether the snapshot carries no sampled rows.
func (s *Snapshot) Empty() bool { return s == nil || len(s.sample) == 0 }

func (s *Snapshot) Columns() []string {
	return slices.Clone(s.columns)
}

func (s *Snapshot) HasColumn(name string) bool {
	return slices.Contains(s.columns, name)
}

// Sample returns a deep copy of the sampled rows.
func (s *Snapshot) Sample() []Row {
	return CloneRows(s.sample)
}

// Values returns the column's cells in sample order, nulls included.
func (s *Snapshot) Values(column string) []any {
	out := make([]any, 0, len(s.sample))
	for _, r := range s.sample {
		out = append(out, r[column])
	}
	return out
}

// CloneRows copies rows one level deep; cell values are immutable scalars.
func CloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// Records renders rows as plain maps, the shape JSON encoders and templates expect.
func Records(rows []Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out
}
