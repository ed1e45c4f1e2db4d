package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
)

// DefaultSampleSize is the number of rows kept from an upload.
const DefaultSampleSize = 100

// LoadOptions tunes ReadCSV.
type LoadOptions struct {
	// SampleSize bounds the rows kept in the snapshot; <= 0 uses DefaultSampleSize.
	SampleSize int
	// Delimiter defaults to ','.
	Delimiter rune
	// Rand drives reservoir sampling; nil uses the global source.
	Rand *rand.Rand
}

// ErrEmptyCSV is returned when the input has no header row.
var ErrEmptyCSV = errors.New("csv is empty")

var missingMarkers = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "null": {}, "none": {}, "#n/a": {}, "-nan": {},
}

// ReadCSV parses a CSV stream with a header row into a snapshot holding a
// uniform random sample of at most SampleSize rows, kept in file order.
// Numeric cells become float64, missing markers become nil, everything else
// stays a string.
func ReadCSV(r io.Reader, opt LoadOptions) (*Snapshot, error) {
	size := opt.SampleSize
	if size <= 0 {
		size = DefaultSampleSize
	}
	intn := rand.IntN
	if opt.Rand != nil {
		intn = opt.Rand.IntN
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCSV
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := normalizeHeader(header)

	type indexed struct {
		pos int
		row Row
	}
	var (
		reservoir []indexed
		seen      int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", seen+1, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && len(columns) > 1 {
			continue
		}
		if len(rec) > len(columns) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", seen+1, len(rec), len(columns))
		}

		row := make(Row, len(columns))
		for i, c := range columns {
			if i < len(rec) {
				row[c] = parseCell(rec[i])
			} else {
				row[c] = nil
			}
		}

		// Algorithm R.
		if len(reservoir) < size {
			reservoir = append(reservoir, indexed{pos: seen, row: row})
		} else if j := intn(seen + 1); j < size {
			reservoir[j] = indexed{pos: seen, row: row}
		}
		seen++
	}

	sort.Slice(reservoir, func(i, j int) bool { return reservoir[i].pos < reservoir[j].pos })
	sample := make([]Row, len(reservoir))
	for i, ix := range reservoir {
		sample[i] = ix.row
	}
	return NewSnapshot(columns, sample, seen)
}

func parseCell(raw string) any {
	s := strings.TrimSpace(raw)
	if _, missing := missingMarkers[strings.ToLower(s)]; missing {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

// normalizeHeader names blank columns and disambiguates duplicates the way
// spreadsheet exports usually expect ("a", "a.1", "a.2").
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	counts := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		base := name
		for {
			if _, dup := seen[name]; !dup {
				break
			}
			counts[base]++
			name = fmt.Sprintf("%s.%d", base, counts[base])
		}
		seen[name] = struct{}{}
		out[i] = name
	}
	return out
}
