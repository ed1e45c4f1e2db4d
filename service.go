package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/logging"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/metrics"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/vegalite"
)

// DescriptionFailedMessage replaces a chart description the model could not produce.
const DescriptionFailedMessage = "Failed to generate description."

// AnswerKind tells callers how to render an Answer.
type AnswerKind string

const (
	AnswerText       AnswerKind = "text"
	AnswerChart      AnswerKind = "chart"
	AnswerIrrelevant AnswerKind = "irrelevant"
	AnswerIncomplete AnswerKind = "incomplete"
)

// Answer is the shaped result of one question.
type Answer struct {
	Kind        AnswerKind
	Text        string
	Chart       vegalite.Spec
	Description string
	// Result is nil when the loop did not run.
	Result *RunResult
}

// ChartDescriber writes a short natural-language description of a chart.
type ChartDescriber interface {
	Describe(ctx context.Context, query string, spec vegalite.Spec) (string, error)
}

// ServiceOptions configure a Service.
type ServiceOptions struct {
	Agent *Agent
	Store *dataset.Store
	// Gate is optional; nil skips the relevance check.
	Gate      *RelevanceGate
	Describer ChartDescriber
	Logger    logging.Logger
}

// Service answers questions about the current dataset.
type Service struct {
	agent     *Agent
	store     *dataset.Store
	gate      *RelevanceGate
	describer ChartDescriber
	logger    logging.Logger
}

// NewService wires the loop, the dataset store and the optional gate.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Agent == nil {
		return nil, errors.New("service requires an agent")
	}
	store := opts.Store
	if store == nil {
		store = dataset.NewStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		agent:     opts.Agent,
		store:     store,
		gate:      opts.Gate,
		describer: opts.Describer,
		logger:    logger.With(map[string]any{"component": "service"}),
	}, nil
}

// Store returns the dataset store backing the service.
func (s *Service) Store() *dataset.Store { return s.store }

// Upload makes snap the dataset for all later questions.
func (s *Service) Upload(snap *dataset.Snapshot) {
	prev := s.store.Replace(snap)
	fields := map[string]any{
		"dataset_id": snap.ID(),
		"columns":    len(snap.Columns()),
		"rows":       snap.TotalRows(),
		"sample":     snap.Len(),
	}
	if prev != nil {
		fields["replaced"] = prev.ID()
	}
	s.logger.Info("dataset uploaded", fields)
}

// Ask answers prompt against the dataset current at call time. It returns
// ErrNoDataset before the first upload, *GateError when relevance cannot be
// decided and *ModelServiceError when the loop's model call fails.
func (s *Service) Ask(ctx context.Context, prompt string) (Answer, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Answer{}, ErrEmptyPrompt
	}
	snap := s.store.Current()
	if snap.Empty() {
		return Answer{}, ErrNoDataset
	}
	log := s.logger.With(map[string]any{"dataset_id": snap.ID()})
	start := time.Now()

	if s.gate != nil {
		relevant, err := s.gate.IsRelevant(ctx, prompt, snap.Columns())
		if err != nil {
			log.Error("relevance check failed", map[string]any{"error": err})
			return Answer{}, err
		}
		if !relevant {
			log.Info("question rejected as irrelevant", map[string]any{"prompt": prompt})
			return Answer{Kind: AnswerIrrelevant, Text: IrrelevantMessage(prompt, snap.Columns())}, nil
		}
	}

	res, err := s.agent.Run(ctx, RunRequest{
		Question:     prompt,
		SystemPrompt: SystemPrompt(snap),
		Snapshot:     snap,
	})
	if err != nil {
		return Answer{Result: res}, err
	}

	answer := s.shape(ctx, prompt, res)
	log.Info("question answered", map[string]any{
		"kind":        string(answer.Kind),
		"iterations":  res.Iterations,
		"tool_calls":  len(res.Invocations),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return answer, nil
}

func (s *Service) shape(ctx context.Context, prompt string, res *RunResult) Answer {
	if res.Exhausted {
		return Answer{Kind: AnswerIncomplete, Text: res.FinalText, Result: res}
	}
	inv := lastSuccess(res.Invocations)
	if inv == nil || inv.Kind != KindChart || inv.Response.Chart == nil {
		return Answer{Kind: AnswerText, Text: res.FinalText, Result: res}
	}
	description := res.FinalText
	if description == "" {
		description = s.describe(ctx, prompt, inv.Response.Chart)
	}
	return Answer{
		Kind:        AnswerChart,
		Text:        res.FinalText,
		Chart:       inv.Response.Chart,
		Description: description,
		Result:      res,
	}
}

func (s *Service) describe(ctx context.Context, prompt string, spec vegalite.Spec) string {
	if s.describer == nil {
		return DescriptionFailedMessage
	}
	start := time.Now()
	text, err := s.describer.Describe(ctx, prompt, spec)
	metrics.ModelCallDuration.WithLabelValues("describe").Observe(time.Since(start).Seconds())
	if err != nil || strings.TrimSpace(text) == "" {
		metrics.ModelCalls.WithLabelValues("describe", "error").Inc()
		s.logger.Warn("chart description failed", map[string]any{"error": err})
		return DescriptionFailedMessage
	}
	metrics.ModelCalls.WithLabelValues("describe", "ok").Inc()
	return strings.TrimSpace(text)
}

func lastSuccess(invs []ToolInvocation) *ToolInvocation {
	for i := len(invs) - 1; i >= 0; i-- {
		if invs[i].Err == nil {
			return &invs[i]
		}
	}
	return nil
}
