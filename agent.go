package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/logging"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/metrics"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/models"
)

const (
	defaultMaxIterations = 10
	defaultSystemPrompt  = "You are a data analysis assistant. Answer questions about the uploaded dataset, calling a tool whenever the answer needs a chart or a computation."

	// ExhaustedMessage is the final text of a run that ran out of iterations.
	ExhaustedMessage = "the agent could not complete the task in the given time."
)

// Agent runs the bounded tool-routing conversation loop: it sends the
// conversation and the tool catalog to the model, dispatches requested tools
// and feeds their results back until the model answers in plain text.
type Agent struct {
	model         models.ChatModel
	catalog       ToolCatalog
	preparer      *ArgumentPreparer
	systemPrompt  string
	maxIterations int
	temperature   float64
	logger        logging.Logger
}

// Options configure a new Agent.
type Options struct {
	Model         models.ChatModel
	Tools         []Tool
	ToolCatalog   ToolCatalog
	SystemPrompt  string
	MaxIterations int
	Temperature   float64
	Logger        logging.Logger
}

// New creates an Agent with the provided options.
func New(opts Options) (*Agent, error) {
	if opts.Model == nil {
		return nil, errors.New("agent requires a language model")
	}

	catalog := opts.ToolCatalog
	if catalog == nil {
		static, err := NewStaticToolCatalog()
		if err != nil {
			return nil, err
		}
		catalog = static
	}
	for _, tool := range opts.Tools {
		if tool == nil {
			continue
		}
		if err := catalog.Register(tool); err != nil {
			return nil, err
		}
	}
	if len(catalog.Specs()) == 0 {
		return nil, errors.New("agent requires at least one tool")
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	systemPrompt := opts.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Agent{
		model:         opts.Model,
		catalog:       catalog,
		preparer:      NewArgumentPreparer(catalog),
		systemPrompt:  systemPrompt,
		maxIterations: maxIter,
		temperature:   opts.Temperature,
		logger:        logger.With(map[string]any{"component": "agent"}),
	}, nil
}

// Catalog exposes the tool registry.
func (a *Agent) Catalog() ToolCatalog { return a.catalog }

// RunRequest is one question for the loop. Zero fields fall back to the
// agent's defaults.
type RunRequest struct {
	Question      string
	SystemPrompt  string
	MaxIterations int
	// Snapshot is the dataset view bound to this run; it never changes mid-run.
	Snapshot *dataset.Snapshot
}

// ToolInvocation records one dispatched tool call.
type ToolInvocation struct {
	ID        string
	Name      string
	Kind      ToolKind
	Arguments map[string]any
	Response  ToolResponse
	Err       error
	Duration  time.Duration
}

// Succeeded reports whether the tool ran and returned without error.
func (inv *ToolInvocation) Succeeded() bool { return inv != nil && inv.Err == nil }

// RunResult is the outcome of a run. FinalText is the model's answer, or
// ExhaustedMessage when Exhausted is set.
type RunResult struct {
	FinalText      string
	LastInvocation *ToolInvocation
	Invocations    []ToolInvocation
	Iterations     int
	Exhausted      bool
	Conversation   Conversation
}

// Err returns ErrIterationLimitExceeded for exhausted runs.
func (r *RunResult) Err() error {
	if r.Exhausted {
		return ErrIterationLimitExceeded
	}
	return nil
}

// toolResult is the JSON body of a tool message.
type toolResult struct {
	Arguments any    `json:"arguments"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Run executes the loop. Model failures abort with *ModelServiceError, also
// when a tool's own model call fails; other tool and validation failures are
// reported to the model and the loop continues.
func (a *Agent) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyPrompt
	}
	systemPrompt := req.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = a.systemPrompt
	}
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = a.maxIterations
	}

	runID := uuid.NewString()
	log := a.logger.With(map[string]any{"run_id": runID})
	defs := toolDefinitions(a.catalog)
	result := &RunResult{Conversation: NewConversation(systemPrompt, question)}

	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		resp, err := a.chat(ctx, result.Conversation.Messages(), defs)
		result.Iterations = iter
		if err != nil {
			metrics.LoopOutcomes.WithLabelValues("model_error").Inc()
			log.Error("model call failed", map[string]any{"iteration": iter, "error": err})
			return result, &ModelServiceError{Op: "conversation", Err: err}
		}

		if len(resp.ToolCalls) == 0 {
			result.FinalText = strings.TrimSpace(resp.Content)
			result.Conversation = result.Conversation.Append(models.Message{Role: models.RoleAssistant, Content: resp.Content})
			metrics.LoopOutcomes.WithLabelValues("answered").Inc()
			metrics.LoopIterations.Observe(float64(iter))
			log.Info("run answered", map[string]any{"iterations": iter, "tool_calls": len(result.Invocations)})
			return result, nil
		}

		calls := withCallIDs(resp.ToolCalls)
		result.Conversation = result.Conversation.Append(models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})
		for _, call := range calls {
			inv, msg := a.dispatch(ctx, call, req.Snapshot, log)
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Conversation = result.Conversation.Append(msg)
			result.Invocations = append(result.Invocations, inv)
			result.LastInvocation = &result.Invocations[len(result.Invocations)-1]

			var merr *ModelServiceError
			if errors.As(inv.Err, &merr) {
				metrics.LoopOutcomes.WithLabelValues("model_error").Inc()
				log.Error("tool model call failed", map[string]any{"iteration": iter, "tool": call.Name, "error": merr})
				return result, merr
			}
		}
	}

	result.Exhausted = true
	result.FinalText = ExhaustedMessage
	metrics.LoopOutcomes.WithLabelValues("exhausted").Inc()
	metrics.LoopIterations.Observe(float64(maxIter))
	log.Warn("iteration limit reached", map[string]any{"max_iterations": maxIter})
	return result, nil
}

func (a *Agent) chat(ctx context.Context, msgs []models.Message, defs []models.ToolDefinition) (models.ChatResponse, error) {
	start := time.Now()
	resp, err := a.model.Chat(ctx, models.ChatRequest{
		Messages:    msgs,
		Tools:       defs,
		Temperature: a.temperature,
	})
	metrics.ModelCallDuration.WithLabelValues("loop").Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ModelCalls.WithLabelValues("loop", outcome).Inc()
	return resp, err
}

// dispatch validates, runs and reports one tool call. It never fails: every
// problem is encoded in the returned tool message.
func (a *Agent) dispatch(ctx context.Context, call models.ToolCall, snap *dataset.Snapshot, log logging.Logger) (ToolInvocation, models.Message) {
	start := time.Now()
	inv := ToolInvocation{ID: call.ID, Name: call.Name}

	raw, decodeErr := decodeArguments(call.Arguments)
	if decodeErr != nil {
		inv.Err = newValidationError(call.Name, fmt.Sprintf("arguments are not a valid JSON object: %v", decodeErr))
	} else {
		inv.Arguments = raw
		tool, args, err := a.preparer.Prepare(call.Name, raw, snap)
		if err != nil {
			inv.Err = err
		} else {
			inv.Kind = tool.Kind()
			inv.Response, inv.Err = invokeTool(ctx, tool, args)
		}
	}
	inv.Duration = time.Since(start)

	body := toolResult{Arguments: inv.Arguments}
	if inv.Arguments == nil {
		body.Arguments = call.Arguments
	}
	outcome := "ok"
	if inv.Err != nil {
		body.Error = inv.Err.Error()
		outcome = errorOutcome(inv.Err)
		log.Warn("tool call failed", map[string]any{"tool": call.Name, "call_id": call.ID, "error": inv.Err})
	} else {
		body.Result = inv.Response.Content
		log.Info("tool call completed", map[string]any{"tool": call.Name, "call_id": call.ID, "duration_ms": inv.Duration.Milliseconds()})
	}
	metrics.ToolInvocations.WithLabelValues(catalogKey(call.Name), outcome).Inc()
	metrics.ToolDuration.WithLabelValues(catalogKey(call.Name)).Observe(inv.Duration.Seconds())

	content, err := json.Marshal(body)
	if err != nil {
		content = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}
	return inv, models.Message{
		Role:       models.RoleTool,
		Content:    string(content),
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

// invokeTool runs the tool and converts panics and unclassified errors into
// ExecutionError. Model failures pass through unchanged.
func invokeTool(ctx context.Context, tool Tool, args Arguments) (resp ToolResponse, err error) {
	name := tool.Spec().Name
	defer func() {
		if r := recover(); r != nil {
			err = &ExecutionError{Tool: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	resp, err = tool.Invoke(ctx, args)
	var merr *ModelServiceError
	if err != nil && !recoverable(err) && !errors.As(err, &merr) {
		err = &ExecutionError{Tool: name, Err: err}
	}
	return resp, err
}

func decodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// withCallIDs fills missing call ids so every tool message can be correlated.
func withCallIDs(calls []models.ToolCall) []models.ToolCall {
	out := make([]models.ToolCall, len(calls))
	for i, c := range calls {
		if strings.TrimSpace(c.ID) == "" {
			c.ID = "call_" + uuid.NewString()
		}
		out[i] = c
	}
	return out
}

func errorOutcome(err error) string {
	var (
		verr *ValidationError
		uerr *UnknownToolError
		perr *ParseError
		merr *ModelServiceError
	)
	switch {
	case errors.As(err, &merr):
		return "model_error"
	case errors.As(err, &uerr):
		return "unknown_tool"
	case errors.As(err, &verr):
		return "invalid_arguments"
	case errors.As(err, &perr):
		return "parse_error"
	default:
		return "execution_error"
	}
}
