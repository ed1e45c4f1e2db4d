// Package analysis implements the analyze_data tool: the model writes a Lua
// program for the question and the program runs in a sandbox over the
// dataset snapshot. Failures come back as text starting with "Error:".
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	agent "github.com/Protocol-Lattice/go-dataviz-agent"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/concurrent"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/logging"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/metrics"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/models"
)

// Name is the tool name the model calls.
const Name = "analyze_data"

// DefaultMaxConcurrent caps simultaneous sandbox runs.
const DefaultMaxConcurrent = 4

const noOutputMessage = "the program printed nothing; print every result"

// Options configure the analysis tool.
type Options struct {
	Model          models.ChatModel
	Timeout        time.Duration
	MaxConcurrent  int
	MaxOutputBytes int
	// MaxMemoryBytes bounds heap growth per run (default 256 MiB).
	MaxMemoryBytes uint64
	// MaxAttempts bounds code generation when a program fails (default 2).
	MaxAttempts int
	Logger      logging.Logger
}

// Tool answers statistical questions by running generated Lua code.
type Tool struct {
	model       models.ChatModel
	sandbox     *Sandbox
	pool        *concurrent.WorkerPool
	maxAttempts int
	logger      logging.Logger
}

var _ agent.Tool = (*Tool)(nil)

func New(opts Options) (*Tool, error) {
	if opts.Model == nil {
		return nil, errors.New("analysis tool requires a language model")
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 2
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	sandbox := NewSandbox(opts.Timeout, opts.MaxOutputBytes)
	sandbox.MaxMemoryBytes = opts.MaxMemoryBytes
	return &Tool{
		model:       opts.Model,
		sandbox:     sandbox,
		pool:        concurrent.NewWorkerPool(maxConcurrent),
		maxAttempts: attempts,
		logger:      logger.With(map[string]any{"tool": Name}),
	}, nil
}

func (t *Tool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        Name,
		Description: "Compute statistics, aggregates, counts or other values from the uploaded dataset and return the printed result.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The analysis question, stated precisely.",
				},
			},
			"required": []any{"query"},
		},
	}
}

func (t *Tool) Kind() agent.ToolKind { return agent.KindAnalysis }

// Invoke generates and runs a program. Program failures are reported in
// Content; only model failures and cancellation return an error.
func (t *Tool) Invoke(ctx context.Context, args agent.Arguments) (agent.ToolResponse, error) {
	aa, ok := args.(agent.AnalysisArgs)
	if !ok {
		return agent.ToolResponse{}, fmt.Errorf("analysis tool: unexpected arguments %T", args)
	}
	if aa.Table.Empty() {
		return agent.ToolResponse{Content: "Error: no dataset available"}, nil
	}
	prompt, err := buildPrompt(aa.Query, aa.Table)
	if err != nil {
		return agent.ToolResponse{}, err
	}

	var (
		code    string
		output  string
		lastErr error
		current = prompt
	)
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		code, err = t.generate(ctx, current)
		if err != nil {
			return agent.ToolResponse{}, err
		}
		output, lastErr = t.execute(ctx, code, aa)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return agent.ToolResponse{}, ctx.Err()
		}
		t.logger.Warn("analysis program failed", map[string]any{"attempt": attempt, "error": lastErr})
		current = withRunError(prompt, code, lastErr)
	}

	meta := map[string]string{"code": code}
	if lastErr != nil {
		content := "Error: " + lastErr.Error()
		if output != "" {
			content = output + "\n" + content
		}
		meta["status"] = "error"
		return agent.ToolResponse{Content: content, Metadata: meta}, nil
	}
	meta["status"] = "ok"
	return agent.ToolResponse{Content: output, Metadata: meta}, nil
}

func (t *Tool) generate(ctx context.Context, prompt string) (string, error) {
	text, err := models.Complete(ctx, t.model, systemPrompt, prompt)
	if err != nil {
		metrics.ModelCalls.WithLabelValues("analysis", "error").Inc()
		return "", &agent.ModelServiceError{Op: "analysis", Err: err}
	}
	metrics.ModelCalls.WithLabelValues("analysis", "ok").Inc()
	return Sanitize(text), nil
}

func (t *Tool) execute(ctx context.Context, code string, aa agent.AnalysisArgs) (string, error) {
	if code == "" {
		metrics.SandboxRuns.WithLabelValues("empty").Inc()
		return "", errors.New("the model returned no code")
	}
	var output string
	err := t.pool.Do(ctx, func(ctx context.Context) error {
		var runErr error
		output, runErr = t.sandbox.Run(ctx, code, aa.Table)
		return runErr
	})
	switch {
	case errors.Is(err, ErrTimeout):
		metrics.SandboxRuns.WithLabelValues("timeout").Inc()
	case errors.Is(err, ErrMemoryLimit):
		metrics.SandboxRuns.WithLabelValues("memory").Inc()
	case err != nil:
		metrics.SandboxRuns.WithLabelValues("error").Inc()
	case strings.TrimSpace(output) == "":
		metrics.SandboxRuns.WithLabelValues("no_output").Inc()
		return "", errors.New(noOutputMessage)
	default:
		metrics.SandboxRuns.WithLabelValues("ok").Inc()
	}
	return output, err
}
