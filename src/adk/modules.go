package adk

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	agent "github.com/Protocol-Lattice/go-dataviz-agent"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/cache"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/helpers"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/models"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/tools/analysis"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/tools/chart"
)

func defaultModules() []Module {
	return []Module{
		ModuleFunc{ModuleName: "cache", Fn: provisionCache},
		ModuleFunc{ModuleName: "model", Fn: provisionModel},
		ModuleFunc{ModuleName: "tools", Fn: provisionTools},
		ModuleFunc{ModuleName: "service", Fn: provisionService},
	}
}

func provisionCache(ctx context.Context, k *Kit) error {
	if k.CacheStore() != nil {
		return nil
	}
	cfg := k.cfg.Cache
	var store cache.Store
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return nil
	case "memory":
		store = cache.NewMemoryStore(cfg.Size, cfg.TTL)
	case "redis":
		redisStore, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return err
		}
		logger := k.logger.With(map[string]any{"component": "cache"})
		redisStore.OnError = func(op string, err error) {
			logger.WithError(err).Warn("redis cache operation failed", map[string]any{"op": op})
		}
		k.addCloser(redisStore)
		store = redisStore
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	k.mu.Lock()
	k.store = store
	k.mu.Unlock()
	k.logger.Info("completion cache enabled", map[string]any{"backend": cfg.Backend})
	return nil
}

func provisionModel(ctx context.Context, k *Kit) error {
	cfg := k.cfg.Model
	model := k.Model()
	if model == nil {
		built, err := models.NewChatModel(ctx, models.ProviderConfig{
			Provider: cfg.Provider,
			Model:    cfg.Name,
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
		})
		if err != nil {
			return err
		}
		if c, ok := built.(io.Closer); ok {
			k.addCloser(c)
		}
		model = built
	}

	if cfg.Timeout > 0 {
		model = withTimeout(model, cfg.Timeout)
	}
	if store := k.CacheStore(); store != nil {
		model = models.NewCachedModel(model, store, cfg.Provider+":"+cfg.Name)
	}

	k.mu.Lock()
	k.model = model
	k.mu.Unlock()
	return nil
}

// withTimeout bounds each model call.
func withTimeout(model models.ChatModel, d time.Duration) models.ChatModel {
	return models.ChatFunc(func(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return model.Chat(ctx, req)
	})
}

func provisionTools(_ context.Context, k *Kit) error {
	model := k.Model()
	chartTool, err := chart.New(chart.Options{
		Model:           model,
		MaxParseRetries: k.cfg.Chart.MaxParseRetries,
		Logger:          k.logger,
	})
	if err != nil {
		return err
	}
	analysisTool, err := analysis.New(analysis.Options{
		Model:          model,
		Timeout:        k.cfg.Analysis.Timeout,
		MaxConcurrent:  k.cfg.Analysis.MaxConcurrent,
		MaxOutputBytes: k.cfg.Analysis.MaxOutputBytes,
		MaxMemoryBytes: k.cfg.Analysis.MaxMemoryBytes,
		Logger:         k.logger,
	})
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.chart = chartTool
	k.tools = []agent.Tool{analysisTool, chartTool}
	k.mu.Unlock()
	return nil
}

func provisionService(_ context.Context, k *Kit) error {
	model := k.Model()
	loop, err := agent.New(agent.Options{
		Model:         model,
		Tools:         k.Tools(),
		MaxIterations: k.cfg.Agent.MaxIterations,
		Temperature:   k.cfg.Model.Temperature,
		Logger:        k.logger,
	})
	if err != nil {
		return err
	}

	var gate *agent.RelevanceGate
	if k.cfg.Relevance.Enabled {
		gate = agent.NewRelevanceGate(model, k.logger)
		gate.DefaultOnAmbiguous = k.cfg.Relevance.DefaultOnAmbiguous
	}

	k.mu.RLock()
	describer := k.chart
	k.mu.RUnlock()

	svc, err := agent.NewService(agent.ServiceOptions{
		Agent:     loop,
		Store:     dataset.NewStore(),
		Gate:      gate,
		Describer: describer,
		Logger:    k.logger,
	})
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.agent = loop
	k.service = svc
	k.mu.Unlock()
	k.logger.Info("service ready", map[string]any{
		"tools":     helpers.ToolNames(k.Tools()),
		"relevance": gate != nil,
	})
	return nil
}
