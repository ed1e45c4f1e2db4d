package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/models"
)

// StaticToolCatalog is the in-memory ToolCatalog. Tools are keyed by their
// lower-cased name and listed in registration order; each input schema is
// compiled once at registration.
type StaticToolCatalog struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	specs   map[string]ToolSpec
	schemas map[string]*gojsonschema.Schema
	order   []string
}

// NewStaticToolCatalog constructs a catalog and registers tools, failing on
// the first invalid or duplicate entry.
func NewStaticToolCatalog(tools ...Tool) (*StaticToolCatalog, error) {
	catalog := &StaticToolCatalog{
		tools:   make(map[string]Tool),
		specs:   make(map[string]ToolSpec),
		schemas: make(map[string]*gojsonschema.Schema),
	}
	for _, tool := range tools {
		if err := catalog.Register(tool); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// Register adds a tool. Duplicate names, unknown kinds and schemas that do
// not compile are rejected.
func (c *StaticToolCatalog) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	spec := tool.Spec()
	key := catalogKey(spec.Name)
	if key == "" {
		return fmt.Errorf("tool name is empty")
	}
	switch tool.Kind() {
	case KindChart, KindAnalysis:
	default:
		return fmt.Errorf("tool %s has unsupported kind %d", spec.Name, tool.Kind())
	}

	var schema *gojsonschema.Schema
	if len(spec.InputSchema) > 0 {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(spec.InputSchema))
		if err != nil {
			return fmt.Errorf("tool %s: compile input schema: %w", spec.Name, err)
		}
		schema = compiled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tools[key]; exists {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	c.tools[key] = tool
	c.specs[key] = spec
	c.schemas[key] = schema
	c.order = append(c.order, key)
	return nil
}

// Lookup returns the tool and its specification if present.
func (c *StaticToolCatalog) Lookup(name string) (Tool, ToolSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := catalogKey(name)
	tool, ok := c.tools[key]
	if !ok {
		return nil, ToolSpec{}, false
	}
	return tool, c.specs[key], true
}

// schema returns the compiled input schema for name, nil when the tool declares none.
func (c *StaticToolCatalog) schema(name string) *gojsonschema.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schemas[catalogKey(name)]
}

// Specs returns the tool specifications in registration order.
func (c *StaticToolCatalog) Specs() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	specs := make([]ToolSpec, 0, len(c.order))
	for _, key := range c.order {
		specs = append(specs, c.specs[key])
	}
	return specs
}

// Tools returns the registered tools in order.
func (c *StaticToolCatalog) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools := make([]Tool, 0, len(c.order))
	for _, key := range c.order {
		tools = append(tools, c.tools[key])
	}
	return tools
}

// toolDefinitions renders catalog specs for a model request.
func toolDefinitions(catalog ToolCatalog) []models.ToolDefinition {
	specs := catalog.Specs()
	defs := make([]models.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, models.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.InputSchema,
		})
	}
	return defs
}

func catalogKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
