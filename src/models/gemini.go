package models

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// GeminiModel calls Gemini with function declarations. Gemini does not
// assign ids to function calls, so ids are generated locally and tool
// results are matched back by function name.
type GeminiModel struct {
	Client *genai.Client
	Model  string
}

// NewGeminiModel builds a client from apiKey, falling back to GEMINI_API_KEY
// and GOOGLE_API_KEY.
func NewGeminiModel(ctx context.Context, model, apiKey string) (*GeminiModel, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiModel{Client: client, Model: model}, nil
}

// Close releases the underlying connection.
func (g *GeminiModel) Close() error {
	return g.Client.Close()
}

func (g *GeminiModel) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	system, rest := splitSystem(req.Messages)
	contents := toGeminiContents(rest)
	if len(contents) == 0 {
		return ChatResponse{}, &ProviderError{Provider: "gemini", Err: fmt.Errorf("no messages to send")}
	}

	model := g.Client.GenerativeModel(g.Model)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGeminiSchema(t.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return ChatResponse{}, &ProviderError{Provider: "gemini", Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ChatResponse{}, &ProviderError{Provider: "gemini", Err: ErrEmptyResponse}
	}
	return fromGeminiCandidate(resp.Candidates[0])
}

func fromGeminiCandidate(c *genai.Candidate) (ChatResponse, error) {
	out := ChatResponse{FinishReason: c.FinishReason.String()}
	var text strings.Builder
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out.Content = text.String()
	for _, fc := range c.FunctionCalls() {
		args, err := json.Marshal(fc.Args)
		if err != nil {
			return ChatResponse{}, &ProviderError{Provider: "gemini", Err: fmt.Errorf("encode function args: %w", err)}
		}
		if fc.Args == nil {
			args = []byte("{}")
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      fc.Name,
			Arguments: string(args),
		})
	}
	return out, nil
}

// toGeminiContents maps the conversation onto user/model turns. Consecutive
// tool results share one user turn.
func toGeminiContents(msgs []Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			c := &genai.Content{Role: "model"}
			if strings.TrimSpace(m.Content) != "" {
				c.Parts = append(c.Parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
				c.Parts = append(c.Parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			if len(c.Parts) > 0 {
				out = append(out, c)
			}
		case RoleTool:
			part := genai.FunctionResponse{Name: m.Name, Response: toolResponsePayload(m.Content)}
			if n := len(out); n > 0 && out[n-1].Role == "user" && isFunctionResponse(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		default:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	return out
}

func isFunctionResponse(c *genai.Content) bool {
	if len(c.Parts) == 0 {
		return false
	}
	_, ok := c.Parts[0].(genai.FunctionResponse)
	return ok
}

// toolResponsePayload passes JSON object results through and wraps anything else.
func toolResponsePayload(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"content": content}
}

// toGeminiSchema converts the JSON Schema subset used by tool definitions.
// Objects without properties and arrays without item schemas cannot be
// declared to Gemini and are dropped.
func toGeminiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if d, ok := schema["description"].(string); ok {
		s.Description = d
	}
	switch typeName(schema["type"]) {
	case "string":
		s.Type = genai.TypeString
		s.Enum = toStrings(schema["enum"])
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		items, _ := schema["items"].(map[string]any)
		s.Type = genai.TypeArray
		s.Items = toGeminiSchema(items)
		if s.Items == nil {
			return nil
		}
	case "object":
		props, _ := schema["properties"].(map[string]any)
		s.Type = genai.TypeObject
		s.Properties = map[string]*genai.Schema{}
		for name, raw := range props {
			sub, _ := raw.(map[string]any)
			if conv := toGeminiSchema(sub); conv != nil {
				s.Properties[name] = conv
			}
		}
		if len(s.Properties) == 0 {
			return nil
		}
		for _, r := range toStrings(schema["required"]) {
			if _, ok := s.Properties[r]; ok {
				s.Required = append(s.Required, r)
			}
		}
	default:
		return nil
	}
	return s
}

// typeName reads "type" whether given as "string" or ["string", "null"].
func typeName(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && s != "null" {
				return s
			}
		}
	case []string:
		for _, s := range t {
			if s != "null" {
				return s
			}
		}
	}
	return ""
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
