package models

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DummyModel is a lightweight model useful for local runs without API calls.
// It never requests tools and echoes the last non-empty line of the latest
// user message.
type DummyModel struct {
	Prefix string
}

func NewDummyModel(prefix string) *DummyModel {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyModel{Prefix: prefix}
}

func (d *DummyModel) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	var prompt string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			prompt = req.Messages[i].Content
			break
		}
	}
	lines := strings.Split(prompt, "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		if candidate := strings.TrimSpace(lines[i]); candidate != "" {
			last = candidate
			break
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return ChatResponse{Content: fmt.Sprintf("%s %s", d.Prefix, last), FinishReason: "stop"}, nil
}

// ScriptedModel replays canned responses in order and records every request.
// Once the script runs out the last response repeats.
type ScriptedModel struct {
	mu        sync.Mutex
	responses []ChatResponse
	errs      []error
	requests  []ChatRequest
}

// NewScriptedModel returns a model answering with responses in sequence.
func NewScriptedModel(responses ...ChatResponse) *ScriptedModel {
	return &ScriptedModel{responses: responses}
}

// FailAt makes the n-th call (zero based) return err.
func (s *ScriptedModel) FailAt(n int, err error) *ScriptedModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.errs) <= n {
		s.errs = append(s.errs, nil)
	}
	s.errs[n] = err
	return s
}

func (s *ScriptedModel) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return ChatResponse{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.requests)
	s.requests = append(s.requests, cloneRequest(req))
	if n < len(s.errs) && s.errs[n] != nil {
		return ChatResponse{}, s.errs[n]
	}
	if len(s.responses) == 0 {
		return ChatResponse{}, ErrEmptyResponse
	}
	if n >= len(s.responses) {
		n = len(s.responses) - 1
	}
	return s.responses[n], nil
}

// Calls reports how many requests were received.
func (s *ScriptedModel) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns copies of the received requests.
func (s *ScriptedModel) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func cloneRequest(req ChatRequest) ChatRequest {
	cp := req
	cp.Messages = append([]Message(nil), req.Messages...)
	cp.Tools = append([]ToolDefinition(nil), req.Tools...)
	return cp
}
