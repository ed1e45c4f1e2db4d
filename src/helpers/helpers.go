// Package helpers holds small formatting and flag parsing utilities shared by
// the commands and the kit.
package helpers

import (
	"strings"

	agent "github.com/Protocol-Lattice/go-dataviz-agent"
)

// ToolNames joins the catalog names of tools for log lines.
func ToolNames(tools []agent.Tool) string {
	if len(tools) == 0 {
		return "<none>"
	}
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		names = append(names, tool.Spec().Name)
	}
	return strings.Join(names, ", ")
}

// ParseCSVList splits a comma separated flag value, dropping blanks.
func ParseCSVList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
