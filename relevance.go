package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/logging"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/metrics"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/models"
)

const relevancePrompt = `You decide whether a question can be answered from a tabular dataset.

Dataset columns: %s

Question: %s

Synonyms and related concepts of the column names count as relevant.
Answer with a single word: "yes" if the question is about the data in these columns, "no" otherwise.`

var (
	verdictPunct = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	yesTokens    = map[string]bool{"yes": true, "true": true, "relevant": true, "y": true}
	noTokens     = map[string]bool{"no": true, "false": true, "not": true, "irrelevant": true, "n": true}
	// labelTokens may precede the verdict, as in "Relevant? No." or "Answer: yes".
	labelTokens = map[string]bool{"relevant": true, "relevance": true, "relevancy": true, "answer": true, "verdict": true}
)

// RelevanceGate asks the model whether a question concerns the dataset
// before the loop starts.
type RelevanceGate struct {
	model models.ChatModel
	// DefaultOnAmbiguous is the verdict for replies that are neither yes nor no.
	DefaultOnAmbiguous bool
	logger             logging.Logger
}

// NewRelevanceGate creates a gate that treats ambiguous replies as relevant.
func NewRelevanceGate(model models.ChatModel, logger logging.Logger) *RelevanceGate {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RelevanceGate{
		model:              model,
		DefaultOnAmbiguous: true,
		logger:             logger.With(map[string]any{"component": "relevance"}),
	}
}

// IsRelevant reports whether query can be answered from a dataset with the
// given columns. Model failures are returned as *GateError.
func (g *RelevanceGate) IsRelevant(ctx context.Context, query string, columns []string) (bool, error) {
	prompt := fmt.Sprintf(relevancePrompt, strings.Join(columns, ", "), strings.TrimSpace(query))

	start := time.Now()
	reply, err := models.Complete(ctx, g.model, "", prompt)
	metrics.ModelCallDuration.WithLabelValues("relevance").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCalls.WithLabelValues("relevance", "error").Inc()
		return false, &GateError{Err: &ModelServiceError{Op: "relevance", Err: err}}
	}
	metrics.ModelCalls.WithLabelValues("relevance", "ok").Inc()

	verdict, ok := parseVerdict(reply)
	if !ok {
		verdict = g.DefaultOnAmbiguous
		g.logger.Debug("ambiguous relevance reply", map[string]any{"reply": reply, "verdict": verdict})
	}
	label := "irrelevant"
	if verdict {
		label = "relevant"
	}
	if !ok {
		label = "ambiguous_" + label
	}
	metrics.RelevanceDecisions.WithLabelValues(label).Inc()
	return verdict, nil
}

// parseVerdict reads the leading token of a model reply, or the token after
// a leading label when that token is itself a verdict. ok is false when the
// reply is neither a yes nor a no.
func parseVerdict(reply string) (verdict bool, ok bool) {
	cleaned := verdictPunct.ReplaceAllString(strings.ToLower(strings.TrimSpace(reply)), " ")
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return false, false
	}
	if len(fields) > 1 && labelTokens[fields[0]] && (yesTokens[fields[1]] || noTokens[fields[1]]) {
		fields = fields[1:]
	}
	switch first := fields[0]; {
	case yesTokens[first]:
		return true, true
	case noTokens[first]:
		return false, true
	}
	return false, false
}
