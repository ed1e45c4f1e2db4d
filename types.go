package agent

import (
	"context"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/vegalite"
)

// ToolKind enumerates the tool families the agent knows how to prepare
// arguments for. Every registered tool declares exactly one kind.
type ToolKind int

const (
	KindChart ToolKind = iota + 1
	KindAnalysis
)

func (k ToolKind) String() string {
	switch k {
	case KindChart:
		return "chart"
	case KindAnalysis:
		return "analysis"
	default:
		return "unknown"
	}
}

// ToolSpec describes how the agent presents a tool to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Arguments is the validated, typed input handed to a tool. The concrete
// type matches the tool's kind: ChartArgs or AnalysisArgs.
type Arguments interface {
	Kind() ToolKind
}

// ChartArgs is the input of a chart tool.
type ChartArgs struct {
	UserQuery string
	Columns   []string
	Sample    []dataset.Row
}

func (ChartArgs) Kind() ToolKind { return KindChart }

// AnalysisArgs is the input of an analysis tool.
type AnalysisArgs struct {
	Query string
	Table *dataset.Snapshot
}

func (AnalysisArgs) Kind() ToolKind { return KindAnalysis }

// ToolResponse is a tool's result. Content is what the model sees; Chart is
// set by chart tools that produced a specification.
type ToolResponse struct {
	Content  string
	Chart    vegalite.Spec
	Metadata map[string]string
}

// Tool exposes metadata and an invocation handler over typed arguments.
type Tool interface {
	Spec() ToolSpec
	Kind() ToolKind
	Invoke(ctx context.Context, args Arguments) (ToolResponse, error)
}

// ToolCatalog is the registry consulted by the conversation loop.
type ToolCatalog interface {
	Register(tool Tool) error
	Lookup(name string) (Tool, ToolSpec, bool)
	Specs() []ToolSpec
	Tools() []Tool
}
