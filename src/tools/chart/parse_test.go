package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrap(t *testing.T) {
	cases := map[string]string{
		`{"mark":"bar"}`:                   `{"mark":"bar"}`,
		`'{"mark":"bar"}'`:                 `{"mark":"bar"}`,
		`"{"mark":"bar"}"`:                 `{"mark":"bar"}`,
		"```json\n{\"mark\":\"bar\"}\n```": `{"mark":"bar"}`,
		"```\n{\"mark\":\"bar\"}\n```":     `{"mark":"bar"}`,
		"```{\"mark\":\"bar\"}```":         `{"mark":"bar"}`,
		"  plain text  ":                   "plain text",
		`''{"mark":"bar"}''`:               `'{"mark":"bar"}'`,
	}
	for in, want := range cases {
		assert.Equal(t, want, Unwrap(in), "input %q", in)
	}
}

func TestParseLenient(t *testing.T) {
	spec, err := ParseLenient(`{'mark': 'point', 'encoding': {'x': {'field': 'mpg'}}}`)
	require.NoError(t, err)
	assert.Equal(t, "point", spec.Mark())
	assert.Equal(t, "mpg", spec.Field("x"))

	spec, err = ParseLenient(`{"title": "Driver's mpg", "mark": "bar"}`)
	require.NoError(t, err)
	assert.Equal(t, "Driver's mpg", spec.Title())

	_, err = ParseLenient(`{"mark": }`)
	assert.Error(t, err)
}

func TestNotRelevant(t *testing.T) {
	assert.True(t, NotRelevant("The question 'hi' is Not Relevant to the dataset."))
	assert.False(t, NotRelevant(`{"title": "not relevant at all", "mark": "bar"}`))
	assert.False(t, NotRelevant("a bar chart"))
}

func TestWantsScatter(t *testing.T) {
	assert.True(t, WantsScatter("Visualize mpg"))
	assert.True(t, WantsScatter("please visualise price"))
	assert.False(t, WantsScatter("bar chart of price by region"))
}
