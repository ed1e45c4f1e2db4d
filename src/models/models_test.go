package models

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/cache"
)

var chartTool = ToolDefinition{
	Name:        "create_chart",
	Description: "Build a chart",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_query": map[string]any{"type": "string"},
			"columns":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"data_sample": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "object"},
			},
		},
		"required": []string{"user_query"},
	},
}

func conversation() []Message {
	return []Message{
		{Role: RoleSystem, Content: "you are helpful"},
		{Role: RoleUser, Content: "visualize mpg"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "call_1", Name: "create_chart", Arguments: `{"user_query":"visualize mpg"}`},
			{ID: "call_2", Name: "analyze_data", Arguments: `{"query":"mean mpg"}`},
		}},
		{Role: RoleTool, ToolCallID: "call_1", Name: "create_chart", Content: `{"result":"ok"}`},
		{Role: RoleTool, ToolCallID: "call_2", Name: "analyze_data", Content: "23.5"},
	}
}

func TestDummyModelEchoesLastUserLine(t *testing.T) {
	resp, err := NewDummyModel("").Chat(context.Background(), ChatRequest{Messages: []Message{
		{Role: RoleUser, Content: "first\n\nsecond\n  "},
		{Role: RoleAssistant, Content: "ignored"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Dummy response: second", resp.Content)

	resp, err = NewDummyModel("P").Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "P <empty prompt>", resp.Content)
}

func TestScriptedModel(t *testing.T) {
	boom := errors.New("boom")
	m := NewScriptedModel(ChatResponse{Content: "a"}, ChatResponse{Content: "b"}).FailAt(1, boom)
	ctx := context.Background()

	r, err := m.Chat(ctx, ChatRequest{Messages: []Message{{Role: RoleUser, Content: "1"}}})
	require.NoError(t, err)
	assert.Equal(t, "a", r.Content)

	_, err = m.Chat(ctx, ChatRequest{})
	assert.ErrorIs(t, err, boom)

	r, err = m.Chat(ctx, ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "b", r.Content)

	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, "1", m.Requests()[0].Messages[0].Content)
}

func TestCompleteSendsSystemAndUser(t *testing.T) {
	m := NewScriptedModel(ChatResponse{Content: "yes"})
	out, err := Complete(context.Background(), m, "sys", "question")
	require.NoError(t, err)
	assert.Equal(t, "yes", out)

	req := m.Requests()[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, 0.0, req.Temperature)
	assert.Empty(t, req.Tools)
}

func TestCachedModel(t *testing.T) {
	ctx := context.Background()
	inner := NewScriptedModel(ChatResponse{Content: "first"}, ChatResponse{Content: "second"})
	m := NewCachedModel(inner, cache.NewMemoryStore(8, time.Minute), "openai/gpt")

	for i := 0; i < 2; i++ {
		out, err := Complete(ctx, m, "", "same")
		require.NoError(t, err)
		assert.Equal(t, "first", out)
	}
	assert.Equal(t, 1, inner.Calls())

	// tool-bearing and non-zero temperature requests bypass the cache
	_, err := m.Chat(ctx, ChatRequest{Messages: []Message{{Role: RoleUser, Content: "same"}}, Tools: []ToolDefinition{chartTool}})
	require.NoError(t, err)
	_, err = m.Chat(ctx, ChatRequest{Messages: []Message{{Role: RoleUser, Content: "same"}}, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.Calls())
}

func TestNewChatModelUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), ProviderConfig{Provider: "unknown"})
	assert.Error(t, err)

	m, err := NewChatModel(context.Background(), ProviderConfig{Provider: "dummy"})
	require.NoError(t, err)
	assert.IsType(t, &DummyModel{}, m)
}

func TestOpenAIModelToolRoundTrip(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[{"id":"call_9","type":"function","function":{"name":"create_chart","arguments":"{\"user_query\":\"q\"}"}}]}}]}`)
	}))
	defer srv.Close()

	m := NewOpenAIModel("gpt-4o-mini", "test-key", srv.URL)
	resp, err := m.Chat(context.Background(), ChatRequest{Messages: conversation(), Tools: []ToolDefinition{chartTool}})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "call_9", Name: "create_chart", Arguments: `{"user_query":"q"}`}, resp.ToolCalls[0])
	assert.Equal(t, "tool_calls", resp.FinishReason)

	temp, ok := got["temperature"].(float64)
	require.True(t, ok, "temperature must be sent explicitly")
	assert.Less(t, temp, 1e-6)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 5)
	assistant := msgs[2].(map[string]any)
	assert.Len(t, assistant["tool_calls"], 2)
	toolMsg := msgs[3].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])

	tools := got["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "create_chart", fn["name"])
}

func TestOpenAIModelReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAIModel("gpt", "k", srv.URL).Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "openai", perr.Provider)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
}

func TestAnthropicModelToolRoundTrip(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"Charting."},{"type":"tool_use","id":"toolu_1","name":"create_chart","input":{"user_query":"q"}}],"stop_reason":"tool_use","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	m := NewAnthropicModel("claude-sonnet", "test-key", srv.URL)
	resp, err := m.Chat(context.Background(), ChatRequest{Messages: conversation(), Tools: []ToolDefinition{chartTool}})
	require.NoError(t, err)

	assert.Equal(t, "Charting.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"user_query":"q"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, "tool_use", resp.FinishReason)

	assert.Equal(t, 0.0, got["temperature"])
	system := got["system"].([]any)
	assert.Equal(t, "you are helpful", system[0].(map[string]any)["text"])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 3, "both tool results share one user turn")
	results := msgs[2].(map[string]any)["content"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "tool_result", results[0].(map[string]any)["type"])
	assert.Equal(t, "call_2", results[1].(map[string]any)["tool_use_id"])

	tool := got["tools"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{"user_query"}, tool["input_schema"].(map[string]any)["required"])
}

func TestAnthropicModelReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`)
	}))
	defer srv.Close()

	_, err := NewAnthropicModel("claude", "k", srv.URL).Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
}
