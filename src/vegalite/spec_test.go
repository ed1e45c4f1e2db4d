package vegalite

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
)

const scatterJSON = `{
  "$schema": "https://vega.github.io/schema/vega-lite/v5.json",
  "title": "MPG vs horsepower",
  "data": {"values": [{"mpg": 18, "horsepower": 130, "origin": "usa"}, {"mpg": null, "horsepower": 95, "origin": "japan"}]},
  "mark": {"type": "point", "tooltip": true},
  "encoding": {
    "x": {"field": "mpg", "type": "quantitative", "title": "Miles per gallon"},
    "y": {"field": "horsepower", "type": "quantitative"},
    "color": {"field": "origin", "type": "nominal", "legend": {"title": "Origin"}},
    "tooltip": [{"field": "mpg"}, {"field": "horsepower"}]
  }
}`

func TestParseRoundTrip(t *testing.T) {
	spec, err := Parse(scatterJSON)
	require.NoError(t, err)
	require.NoError(t, spec.Validate())

	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	back, err := Parse(string(raw))
	require.NoError(t, err)
	assert.Equal(t, spec, back)

	var plain map[string]any
	require.NoError(t, json.Unmarshal(raw, &plain))
	assert.Equal(t, map[string]any(spec), plain)
}

func TestNormalizedSpecRoundTrips(t *testing.T) {
	spec, err := Parse(`{"mark": "point", "encoding": {"x": {"field": "a"}, "y": {"field": "b"}}}`)
	require.NoError(t, err)
	out, _ := Normalize(spec, NormalizeOptions{
		Columns: []string{"a", "b"},
		Sample:  []dataset.Row{{"a": 1.0, "b": "x"}, {"a": nil, "b": nil}},
	})

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	back, err := Parse(string(raw))
	require.NoError(t, err)
	assert.Equal(t, out, back)
}

func TestParseRejectsNonObjects(t *testing.T) {
	for _, in := range []string{`[1,2]`, `"mark"`, `{"mark": "bar"} trailing`, `{'mark': 'bar'}`} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestAccessors(t *testing.T) {
	spec, err := Parse(scatterJSON)
	require.NoError(t, err)

	assert.Equal(t, "point", spec.Mark())
	assert.True(t, IsScatter(spec.Mark()))
	assert.Equal(t, "mpg", spec.Field("x"))
	assert.Equal(t, "MPG vs horsepower", spec.Title())
	assert.ElementsMatch(t, []string{"mpg", "horsepower", "origin"}, spec.Fields())

	spec.SetMark("bar")
	assert.Equal(t, "bar", spec.Mark())
	assert.Equal(t, true, spec["mark"].(map[string]any)["tooltip"])
}

func TestCloneIsDeep(t *testing.T) {
	spec, err := Parse(scatterJSON)
	require.NoError(t, err)
	cp := spec.Clone()
	cp.Encoding()["x"].(map[string]any)["field"] = "changed"
	assert.Equal(t, "mpg", spec.Field("x"))
}

func TestValidateReportsProblems(t *testing.T) {
	cases := map[string]string{
		"missing encoding": `{"mark": "point"}`,
		"unknown mark":     `{"mark": "pie", "encoding": {}}`,
		"bad type":         `{"mark": "bar", "encoding": {"x": {"field": "a", "type": "numeric"}}}`,
		"empty layer":      `{"layer": []}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			spec, err := Parse(in)
			require.NoError(t, err)
			err = spec.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Problems)
		})
	}

	layered, err := Parse(`{"layer": [{"mark": "line", "encoding": {"x": {"field": "a", "type": "temporal"}}}]}`)
	require.NoError(t, err)
	assert.NoError(t, layered.Validate())
}

func TestSelfPaired(t *testing.T) {
	spec, err := Parse(`{"mark": "point", "encoding": {"x": {"field": "mpg"}, "y": {"field": "mpg"}}}`)
	require.NoError(t, err)
	col, ok := spec.SelfPaired()
	assert.True(t, ok)
	assert.Equal(t, "mpg", col)

	hist, err := Parse(`{"mark": "bar", "encoding": {"x": {"field": "mpg", "bin": true}, "y": {"field": "mpg", "aggregate": "count"}}}`)
	require.NoError(t, err)
	_, ok = hist.SelfPaired()
	assert.False(t, ok)

	layered, err := Parse(`{"layer": [{"mark": "point", "encoding": {"x": {"field": "a"}, "y": {"field": "a"}}}]}`)
	require.NoError(t, err)
	_, ok = layered.SelfPaired()
	assert.True(t, ok)
}
