package models

import (
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolLines(t *testing.T) {
	reply := "I'll compute that.\ntool:analyze_data {\"query\": \"mean of {price}\"}\ntool:create_chart {\"user_query\":\n  \"visualize mpg\"}\n"
	text, calls := parseToolLines(reply)

	assert.Equal(t, "I'll compute that.", text)
	require.Len(t, calls, 2)
	assert.Equal(t, "analyze_data", calls[0].Name)
	assert.JSONEq(t, `{"query": "mean of {price}"}`, calls[0].Arguments)
	assert.Equal(t, "create_chart", calls[1].Name)
	assert.JSONEq(t, `{"user_query": "visualize mpg"}`, calls[1].Arguments)
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
}

func TestParseToolLinesWithoutJSON(t *testing.T) {
	text, calls := parseToolLines("TOOL:analyze_data average price\nthanks")
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"input":"average price"}`, calls[0].Arguments)
	assert.Equal(t, "thanks", text)

	text, calls = parseToolLines("The average is 4.2")
	assert.Empty(t, calls)
	assert.Equal(t, "The average is 4.2", text)
}

func TestRenderTranscript(t *testing.T) {
	system, prompt := renderTranscript(conversation(), []ToolDefinition{chartTool})

	assert.True(t, strings.HasPrefix(system, "you are helpful"))
	assert.Contains(t, system, "- create_chart: Build a chart")
	assert.Contains(t, system, "tool:<name> <json arguments>")

	assert.Contains(t, prompt, "[user]\nvisualize mpg")
	assert.Contains(t, prompt, `tool:create_chart {"user_query":"visualize mpg"}`)
	assert.Contains(t, prompt, "[tool_result analyze_data id=call_2]\n23.5")
	assert.True(t, strings.HasSuffix(prompt, "[assistant]\n"))
}

func TestGeminiContents(t *testing.T) {
	_, rest := splitSystem(conversation())
	contents := toGeminiContents(rest)
	require.Len(t, contents, 3)

	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	call := contents[1].Parts[0].(genai.FunctionCall)
	assert.Equal(t, map[string]any{"user_query": "visualize mpg"}, call.Args)

	require.Len(t, contents[2].Parts, 2)
	first := contents[2].Parts[0].(genai.FunctionResponse)
	assert.Equal(t, "create_chart", first.Name)
	assert.Equal(t, map[string]any{"result": "ok"}, first.Response)
	second := contents[2].Parts[1].(genai.FunctionResponse)
	assert.Equal(t, map[string]any{"content": "23.5"}, second.Response)
}

func TestGeminiSchema(t *testing.T) {
	s := toGeminiSchema(chartTool.Parameters)
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"user_query"}, s.Required)
	assert.Equal(t, genai.TypeArray, s.Properties["columns"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["columns"].Items.Type)
	_, kept := s.Properties["data_sample"]
	assert.False(t, kept, "objects without properties cannot be declared")

	nullable := toGeminiSchema(map[string]any{"type": []any{"null", "number"}})
	assert.Equal(t, genai.TypeNumber, nullable.Type)
}

func TestGeminiCandidate(t *testing.T) {
	resp, err := fromGeminiCandidate(&genai.Candidate{
		Content: &genai.Content{Role: "model", Parts: []genai.Part{
			genai.Text("hello"),
			genai.FunctionCall{Name: "analyze_data", Args: map[string]any{"query": "mean"}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.JSONEq(t, `{"query":"mean"}`, resp.ToolCalls[0].Arguments)
	assert.True(t, strings.HasPrefix(resp.ToolCalls[0].ID, "call_"))
}
