// Package chart implements the create_chart tool: it asks the model for a
// Vega-Lite specification, retries bounded times on unusable output and
// finishes the result deterministically against the dataset sample.
package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	agent "github.com/Protocol-Lattice/go-dataviz-agent"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/logging"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/metrics"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/models"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/vegalite"
)

// Name is the tool name the model calls.
const Name = "create_chart"

// DefaultMaxParseRetries bounds model attempts per invocation.
const DefaultMaxParseRetries = 3

// Options configure the chart tool.
type Options struct {
	Model           models.ChatModel
	MaxParseRetries int
	Logger          logging.Logger
}

// Tool produces Vega-Lite charts.
type Tool struct {
	model      models.ChatModel
	maxRetries int
	logger     logging.Logger
}

var _ agent.Tool = (*Tool)(nil)
var _ agent.ChartDescriber = (*Tool)(nil)

func New(opts Options) (*Tool, error) {
	if opts.Model == nil {
		return nil, errors.New("chart tool requires a language model")
	}
	retries := opts.MaxParseRetries
	if retries <= 0 {
		retries = DefaultMaxParseRetries
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tool{
		model:      opts.Model,
		maxRetries: retries,
		logger:     logger.With(map[string]any{"tool": Name}),
	}, nil
}

func (t *Tool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        Name,
		Description: "Create a Vega-Lite chart specification that answers a visualization request about the uploaded dataset.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_query": map[string]any{
					"type":        "string",
					"description": "The user's visualization request in their own words.",
				},
				"columns": map[string]any{
					"type":        "array",
					"description": "Dataset columns to consider. Defaults to every column.",
					"items":       map[string]any{"type": "string"},
				},
				"data_sample": map[string]any{
					"type":        "array",
					"description": "Rows to chart. Defaults to the uploaded sample.",
					"items":       map[string]any{"type": "object"},
				},
			},
			"required": []any{"user_query"},
		},
	}
}

func (t *Tool) Kind() agent.ToolKind { return agent.KindChart }

// Invoke returns the finished chart in ToolResponse.Chart and a compact JSON
// summary as Content. A "not relevant" reply is returned as plain content.
func (t *Tool) Invoke(ctx context.Context, args agent.Arguments) (agent.ToolResponse, error) {
	ca, ok := args.(agent.ChartArgs)
	if !ok {
		return agent.ToolResponse{}, fmt.Errorf("chart tool: unexpected arguments %T", args)
	}
	prompt, err := buildPrompt(ca)
	if err != nil {
		return agent.ToolResponse{}, err
	}

	opts := vegalite.NormalizeOptions{
		Columns:      ca.Columns,
		Sample:       ca.Sample,
		ForceScatter: WantsScatter(ca.UserQuery),
	}
	spec, notes, text, err := t.generate(ctx, prompt, opts)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	if spec == nil {
		t.logger.Info("request judged not relevant", map[string]any{"query": ca.UserQuery})
		return agent.ToolResponse{Content: text, Metadata: map[string]string{"status": "not_relevant"}}, nil
	}

	content, err := summarize(spec, notes)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	return agent.ToolResponse{
		Content:  content,
		Chart:    spec,
		Metadata: map[string]string{"mark": spec.Mark()},
	}, nil
}

// generate runs the bounded attempt loop. A nil spec with nil error means the
// model declared the request not relevant and text holds its reply.
func (t *Tool) generate(ctx context.Context, prompt string, opts vegalite.NormalizeOptions) (vegalite.Spec, []string, string, error) {
	var (
		lastErr error
		raw     string
		current = prompt
	)
	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		resp, err := t.model.Chat(ctx, models.ChatRequest{
			Messages: []models.Message{
				{Role: models.RoleSystem, Content: systemPrompt},
				{Role: models.RoleUser, Content: current},
			},
		})
		if err != nil {
			metrics.ModelCalls.WithLabelValues("chart", "error").Inc()
			return nil, nil, "", &agent.ModelServiceError{Op: "chart", Err: err}
		}
		metrics.ModelCalls.WithLabelValues("chart", "ok").Inc()

		raw = resp.Content
		text := Unwrap(raw)
		if NotRelevant(text) {
			return nil, nil, text, nil
		}

		spec, notes, err := finish(text, opts)
		if err == nil {
			return spec, notes, text, nil
		}
		lastErr = err
		t.logger.Warn("unusable chart output", map[string]any{"attempt": attempt, "error": err})
		if attempt < t.maxRetries {
			metrics.ChartParseRetries.Inc()
			// Each retry starts from the original prompt.
			current = withParseError(prompt, err)
		}
	}
	return nil, nil, "", &agent.ParseError{Attempts: t.maxRetries, Raw: raw, Err: lastErr}
}

// finish parses, normalizes and validates one model reply.
func finish(text string, opts vegalite.NormalizeOptions) (vegalite.Spec, []string, error) {
	spec, err := ParseLenient(text)
	if err != nil {
		return nil, nil, err
	}
	spec, notes := vegalite.Normalize(spec, opts)
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}
	return spec, notes, nil
}

// Describe asks the model for a short description of spec.
func (t *Tool) Describe(ctx context.Context, query string, spec vegalite.Spec) (string, error) {
	prompt, err := describePrompt(query, spec)
	if err != nil {
		return "", err
	}
	text, err := models.Complete(ctx, t.model, describeSystemPrompt, prompt)
	if err != nil {
		return "", &agent.ModelServiceError{Op: "describe", Err: err}
	}
	return strings.TrimSpace(text), nil
}

type summary struct {
	Mark   string   `json:"mark"`
	Title  string   `json:"title,omitempty"`
	X      string   `json:"x,omitempty"`
	Y      string   `json:"y,omitempty"`
	Fields []string `json:"fields"`
	Notes  []string `json:"notes,omitempty"`
	Status string   `json:"status"`
}

// summarize tells the model what was built without echoing the data rows.
func summarize(spec vegalite.Spec, notes []string) (string, error) {
	s := summary{
		Mark:   spec.Mark(),
		Title:  spec.Title(),
		X:      spec.Field("x"),
		Y:      spec.Field("y"),
		Fields: spec.Fields(),
		Notes:  notes,
		Status: "chart created and shown to the user",
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
