package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaModel talks to a local Ollama server. Tools are offered through the
// text tool protocol so any local model can take part in the loop.
type OllamaModel struct {
	Client *ollama.Client
	Model  string
}

// NewOllamaModel connects to host, falling back to OLLAMA_HOST and then the default port.
func NewOllamaModel(model, host string) (*OllamaModel, error) {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	httpClient := &http.Client{Timeout: 120 * time.Second}
	return &OllamaModel{Client: ollama.NewClient(u, httpClient), Model: model}, nil
}

func (o *OllamaModel) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	system, prompt := renderTranscript(req.Messages, req.Tools)

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	var (
		text strings.Builder
		last ollama.GenerateResponse
	)
	err := o.Client.Generate(ctx, &ollama.GenerateRequest{
		Model:   o.Model,
		System:  system,
		Prompt:  prompt,
		Options: options,
	}, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		last = gr
		return nil
	})
	if err != nil {
		return ChatResponse{}, &ProviderError{Provider: "ollama", Err: err}
	}

	out := ChatResponse{FinishReason: last.DoneReason}
	if len(req.Tools) == 0 {
		out.Content = strings.TrimSpace(text.String())
		return out, nil
	}
	out.Content, out.ToolCalls = parseToolLines(text.String())
	return out, nil
}
