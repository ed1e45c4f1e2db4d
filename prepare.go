package agent

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
)

const noDatasetProblem = "no dataset is available; ask the user to upload a CSV file first"

// ArgumentPreparer turns a model's raw tool arguments into the typed
// Arguments of the named tool, filling dataset-backed defaults from the
// snapshot bound to the current query.
type ArgumentPreparer struct {
	catalog ToolCatalog
}

func NewArgumentPreparer(catalog ToolCatalog) *ArgumentPreparer {
	return &ArgumentPreparer{catalog: catalog}
}

// Prepare resolves name in the catalog and validates raw against the tool's
// input schema and kind rules. It fails with *UnknownToolError or
// *ValidationError.
func (p *ArgumentPreparer) Prepare(name string, raw map[string]any, snap *dataset.Snapshot) (Tool, Arguments, error) {
	tool, spec, ok := p.catalog.Lookup(name)
	if !ok {
		return nil, nil, &UnknownToolError{Name: name}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if problems := p.validateSchema(spec, raw); len(problems) > 0 {
		return nil, nil, newValidationError(spec.Name, problems...)
	}

	var (
		args Arguments
		err  error
	)
	switch tool.Kind() {
	case KindAnalysis:
		args, err = prepareAnalysis(spec.Name, raw, snap)
	case KindChart:
		args, err = prepareChart(spec.Name, raw, snap)
	default:
		err = newValidationError(spec.Name, fmt.Sprintf("unsupported tool kind %s", tool.Kind()))
	}
	if err != nil {
		return nil, nil, err
	}
	return tool, args, nil
}

type schemaSource interface {
	schema(name string) *gojsonschema.Schema
}

func (p *ArgumentPreparer) validateSchema(spec ToolSpec, raw map[string]any) []string {
	var schema *gojsonschema.Schema
	if src, ok := p.catalog.(schemaSource); ok {
		schema = src.schema(spec.Name)
	} else if len(spec.InputSchema) > 0 {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(spec.InputSchema))
		if err != nil {
			return []string{fmt.Sprintf("tool schema is invalid: %v", err)}
		}
		schema = compiled
	}
	if schema == nil {
		return nil
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return []string{err.Error()}
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return problems
}

func prepareAnalysis(tool string, raw map[string]any, snap *dataset.Snapshot) (Arguments, error) {
	query := stringArg(raw, "query")
	if query == "" {
		return nil, newValidationError(tool, "query is required")
	}
	if snap.Empty() {
		return nil, newValidationError(tool, noDatasetProblem)
	}
	return AnalysisArgs{Query: query, Table: snap}, nil
}

func prepareChart(tool string, raw map[string]any, snap *dataset.Snapshot) (Arguments, error) {
	query := stringArg(raw, "user_query")
	if query == "" {
		return nil, newValidationError(tool, "user_query is required")
	}
	args := ChartArgs{UserQuery: query}

	if v, ok := raw["columns"]; ok && v != nil {
		cols, err := stringList(v)
		if err != nil {
			return nil, newValidationError(tool, "columns: "+err.Error())
		}
		args.Columns = cols
	}
	if v, ok := raw["data_sample"]; ok && v != nil {
		rows, err := rowList(v)
		if err != nil {
			return nil, newValidationError(tool, "data_sample: "+err.Error())
		}
		args.Sample = rows
	}

	if unknown := unknownColumns(args.Columns, snap, args.Sample); len(unknown) > 0 {
		return nil, newValidationError(tool, "unknown columns: "+strings.Join(unknown, ", "))
	}

	if len(args.Columns) == 0 && snap != nil {
		args.Columns = snap.Columns()
	}
	if len(args.Sample) == 0 && snap != nil {
		args.Sample = snap.Sample()
	}
	if len(args.Columns) == 0 {
		args.Columns = columnsOf(args.Sample)
	}
	if len(args.Columns) == 0 || len(args.Sample) == 0 {
		return nil, newValidationError(tool, noDatasetProblem)
	}
	return args, nil
}

func stringArg(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

func stringList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of column names")
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("item %d is %T, expected string", i, it)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func rowList(v any) ([]dataset.Row, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of row objects")
	}
	out := make([]dataset.Row, 0, len(items))
	for i, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("row %d is %T, expected object", i, it)
		}
		row := make(dataset.Row, len(obj))
		for k, cell := range obj {
			nv, err := dataset.NormalizeValue(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, k, err)
			}
			row[k] = nv
		}
		out = append(out, row)
	}
	return out, nil
}

// columnsOf lists the keys used by rows, sorted.
// unknownColumns returns the names in cols that neither the snapshot nor the
// supplied rows carry.
func unknownColumns(cols []string, snap *dataset.Snapshot, rows []dataset.Row) []string {
	if len(cols) == 0 || (snap == nil && len(rows) == 0) {
		return nil
	}
	supplied := columnsOf(rows)
	var unknown []string
	for _, c := range cols {
		if snap != nil && snap.HasColumn(c) {
			continue
		}
		if slices.Contains(supplied, c) {
			continue
		}
		unknown = append(unknown, c)
	}
	return unknown
}

func columnsOf(rows []dataset.Row) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
