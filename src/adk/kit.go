// Package adk assembles the question answering service from configuration.
// Construction runs as an ordered list of modules, each provisioning one
// concern (cache, model, tools, service) onto the kit.
package adk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	agent "github.com/Protocol-Lattice/go-dataviz-agent"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/cache"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/config"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/logging"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/models"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/tools/chart"
)

// Module provisions one part of the kit.
type Module interface {
	Name() string
	Provision(ctx context.Context, kit *Kit) error
}

// ModuleFunc adapts a function to Module.
type ModuleFunc struct {
	ModuleName string
	Fn         func(ctx context.Context, kit *Kit) error
}

func (m ModuleFunc) Name() string { return m.ModuleName }

func (m ModuleFunc) Provision(ctx context.Context, kit *Kit) error {
	if m.Fn == nil {
		return nil
	}
	return m.Fn(ctx, kit)
}

// Kit holds everything built from a Config.
type Kit struct {
	mu sync.RWMutex

	cfg    config.Config
	logger logging.Logger

	modules      []Module
	bootstrapped bool

	store   cache.Store
	model   models.ChatModel
	tools   []agent.Tool
	chart   *chart.Tool
	agent   *agent.Agent
	service *agent.Service

	closers []io.Closer
}

// New builds a kit from cfg. The default modules run first, then any
// registered through WithModule.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Kit, error) {
	kit := &Kit{cfg: cfg, logger: logging.NewNop()}
	kit.modules = defaultModules()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(kit); err != nil {
			return nil, err
		}
	}

	if err := kit.Bootstrap(ctx); err != nil {
		_ = kit.Close()
		return nil, err
	}
	return kit, nil
}

// Bootstrap runs the registered modules in order. Calling it again is a no-op.
func (k *Kit) Bootstrap(ctx context.Context) error {
	k.mu.Lock()
	if k.bootstrapped {
		k.mu.Unlock()
		return nil
	}
	modules := append([]Module(nil), k.modules...)
	k.mu.Unlock()

	for _, module := range modules {
		if module == nil {
			continue
		}
		if err := module.Provision(ctx, k); err != nil {
			name := module.Name()
			if name == "" {
				name = "<unnamed module>"
			}
			return fmt.Errorf("kit module %s: %w", name, err)
		}
	}

	k.mu.Lock()
	k.bootstrapped = true
	k.mu.Unlock()
	return nil
}

// RegisterModule appends a module to the bootstrapping sequence.
func (k *Kit) RegisterModule(module Module) error {
	if module == nil {
		return errors.New("kit module cannot be nil")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.modules = append(k.modules, module)
	k.bootstrapped = false
	return nil
}

// Modules returns the registered modules in order.
func (k *Kit) Modules() []Module {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]Module(nil), k.modules...)
}

func (k *Kit) Config() config.Config  { return k.cfg }
func (k *Kit) Logger() logging.Logger { return k.logger }

// Model returns the chat model shared by the loop, the gate and the tools.
func (k *Kit) Model() models.ChatModel {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.model
}

// CacheStore returns the completion cache, nil when caching is off.
func (k *Kit) CacheStore() cache.Store {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.store
}

func (k *Kit) Tools() []agent.Tool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]agent.Tool(nil), k.tools...)
}

func (k *Kit) Agent() *agent.Agent {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.agent
}

// Service returns the assembled service, nil before bootstrapping.
func (k *Kit) Service() *agent.Service {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.service
}

// Close releases backend connections in reverse order of acquisition.
func (k *Kit) Close() error {
	k.mu.Lock()
	closers := k.closers
	k.closers = nil
	k.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (k *Kit) addCloser(c io.Closer) {
	k.mu.Lock()
	k.closers = append(k.closers, c)
	k.mu.Unlock()
}
