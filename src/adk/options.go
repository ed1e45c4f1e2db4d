package adk

import (
	"errors"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/cache"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/logging"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/models"
)

// Option configures the Kit during construction.
type Option func(*Kit) error

// WithLogger sets the logger handed to every component.
func WithLogger(logger logging.Logger) Option {
	return func(kit *Kit) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		kit.logger = logger
		return nil
	}
}

// WithModel skips provider construction and uses model instead. The
// completion cache still wraps it.
func WithModel(model models.ChatModel) Option {
	return func(kit *Kit) error {
		if model == nil {
			return errors.New("model cannot be nil")
		}
		kit.model = model
		return nil
	}
}

// WithCacheStore replaces the configured cache backend.
func WithCacheStore(store cache.Store) Option {
	return func(kit *Kit) error {
		kit.store = store
		return nil
	}
}

// WithModule registers an extra module, run after the built-in ones.
func WithModule(module Module) Option {
	return func(kit *Kit) error {
		return kit.RegisterModule(module)
	}
}
