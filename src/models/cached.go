package models

import (
	"context"
	"encoding/json"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/cache"
)

// CachedModel memoises deterministic single-shot completions: requests at
// temperature zero that offer no tools. Everything else goes straight to the
// wrapped model.
type CachedModel struct {
	Model ChatModel
	Store cache.Store
	// Namespace separates providers and model names sharing one store.
	Namespace string
}

func NewCachedModel(model ChatModel, store cache.Store, namespace string) *CachedModel {
	return &CachedModel{Model: model, Store: store, Namespace: namespace}
}

func (c *CachedModel) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if c.Store == nil || req.Temperature != 0 || len(req.Tools) > 0 {
		return c.Model.Chat(ctx, req)
	}

	payload, err := json.Marshal(req.Messages)
	if err != nil {
		return c.Model.Chat(ctx, req)
	}
	key := cache.HashKey(c.Namespace, string(payload))
	if raw, ok := c.Store.Get(ctx, key); ok {
		var resp ChatResponse
		if err := json.Unmarshal([]byte(raw), &resp); err == nil {
			return resp, nil
		}
	}

	resp, err := c.Model.Chat(ctx, req)
	if err != nil {
		return resp, err
	}
	if len(resp.ToolCalls) == 0 {
		if encoded, err := json.Marshal(resp); err == nil {
			c.Store.Set(ctx, key, string(encoded))
		}
	}
	return resp, nil
}
