package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRegistersInOrder(t *testing.T) {
	catalog, err := NewStaticToolCatalog(chartStub(), analysisStub())
	require.NoError(t, err)

	specs := catalog.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "create_chart", specs[0].Name)
	assert.Equal(t, "analyze_data", specs[1].Name)
	assert.Len(t, catalog.Tools(), 2)

	tool, spec, ok := catalog.Lookup("  ANALYZE_DATA ")
	require.True(t, ok)
	assert.Equal(t, KindAnalysis, tool.Kind())
	assert.Equal(t, "analyze_data", spec.Name)

	_, _, ok = catalog.Lookup("missing")
	assert.False(t, ok)

	defs := toolDefinitions(catalog)
	require.Len(t, defs, 2)
	assert.Equal(t, "create_chart", defs[0].Name)
	assert.Equal(t, specs[0].InputSchema, defs[0].Parameters)
}

func TestCatalogRejectsInvalidTools(t *testing.T) {
	catalog, err := NewStaticToolCatalog()
	require.NoError(t, err)

	assert.Error(t, catalog.Register(nil))
	assert.Error(t, catalog.Register(&stubTool{name: " ", kind: KindChart}))
	assert.Error(t, catalog.Register(&stubTool{name: "mystery", kind: ToolKind(99)}))
	assert.Error(t, catalog.Register(&stubTool{
		name:   "broken",
		kind:   KindAnalysis,
		schema: map[string]any{"type": 12},
	}))

	require.NoError(t, catalog.Register(analysisStub()))
	dup := analysisStub()
	dup.name = "Analyze_Data"
	assert.Error(t, catalog.Register(dup))
	assert.Len(t, catalog.Specs(), 1)
}

func TestToolKindString(t *testing.T) {
	assert.Equal(t, "chart", KindChart.String())
	assert.Equal(t, "analysis", KindAnalysis.String())
	assert.Equal(t, "unknown", ToolKind(0).String())
}
