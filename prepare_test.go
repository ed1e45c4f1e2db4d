package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
)

func newTestPreparer(t *testing.T) *ArgumentPreparer {
	t.Helper()
	catalog, err := NewStaticToolCatalog(chartStub(), analysisStub())
	require.NoError(t, err)
	return NewArgumentPreparer(catalog)
}

func TestPrepareUnknownTool(t *testing.T) {
	_, _, err := newTestPreparer(t).Prepare("pie", map[string]any{}, testSnapshot(t))
	var uerr *UnknownToolError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "pie", uerr.Name)
}

func TestPrepareAnalysis(t *testing.T) {
	p := newTestPreparer(t)
	snap := testSnapshot(t)

	tool, args, err := p.Prepare("analyze_data", map[string]any{"query": " mean mpg "}, snap)
	require.NoError(t, err)
	assert.Equal(t, KindAnalysis, tool.Kind())
	aa, ok := args.(AnalysisArgs)
	require.True(t, ok)
	assert.Equal(t, "mean mpg", aa.Query)
	assert.Same(t, snap, aa.Table)

	var verr *ValidationError
	_, _, err = p.Prepare("analyze_data", map[string]any{}, snap)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "analyze_data", verr.Tool)

	_, _, err = p.Prepare("analyze_data", map[string]any{"query": "   "}, snap)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "query is required")

	_, _, err = p.Prepare("analyze_data", map[string]any{"query": 3}, snap)
	require.ErrorAs(t, err, &verr)

	_, _, err = p.Prepare("analyze_data", map[string]any{"query": "mean"}, nil)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), noDatasetProblem)
}

func TestPrepareChartDefaultsFromSnapshot(t *testing.T) {
	p := newTestPreparer(t)
	snap := testSnapshot(t)

	_, args, err := p.Prepare("create_chart", map[string]any{"user_query": "visualize mpg"}, snap)
	require.NoError(t, err)
	ca := args.(ChartArgs)
	assert.Equal(t, "visualize mpg", ca.UserQuery)
	assert.Equal(t, []string{"mpg", "horsepower"}, ca.Columns)
	assert.Equal(t, snap.Sample(), ca.Sample)
}

func TestPrepareChartModelValuesTakePrecedence(t *testing.T) {
	p := newTestPreparer(t)
	raw := map[string]any{
		"user_query":  "plot",
		"columns":     []any{"a", "b"},
		"data_sample": []any{map[string]any{"a": 1.0, "b": "x"}},
	}

	_, args, err := p.Prepare("create_chart", raw, testSnapshot(t))
	require.NoError(t, err)
	ca := args.(ChartArgs)
	assert.Equal(t, []string{"a", "b"}, ca.Columns)
	assert.Equal(t, []dataset.Row{{"a": 1.0, "b": "x"}}, ca.Sample)

	_, args, err = p.Prepare("create_chart", map[string]any{
		"user_query":  "plot",
		"data_sample": []any{map[string]any{"z": 2.0, "y": 1.0}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z"}, args.(ChartArgs).Columns)
}

func TestPrepareChartValidation(t *testing.T) {
	p := newTestPreparer(t)
	var verr *ValidationError

	_, _, err := p.Prepare("create_chart", map[string]any{}, testSnapshot(t))
	require.ErrorAs(t, err, &verr)

	_, _, err = p.Prepare("create_chart", map[string]any{"user_query": "plot"}, nil)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), noDatasetProblem)

	_, _, err = p.Prepare("create_chart", map[string]any{"user_query": "plot", "columns": "mpg"}, testSnapshot(t))
	require.ErrorAs(t, err, &verr)

	_, _, err = p.Prepare("create_chart", map[string]any{
		"user_query": "plot",
		"columns":    []any{"mpg", "weight", "origin"},
	}, testSnapshot(t))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "unknown columns: weight, origin")

	_, _, err = p.Prepare("create_chart", map[string]any{
		"user_query":  "plot",
		"columns":     []any{"a", "c"},
		"data_sample": []any{map[string]any{"a": 1.0, "b": 2.0}},
	}, nil)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "unknown columns: c")

	_, _, err = p.Prepare("create_chart", map[string]any{
		"user_query":  "plot",
		"data_sample": []any{map[string]any{"a": []any{1.0}}},
	}, nil)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "data_sample")
}
