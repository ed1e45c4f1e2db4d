package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// The text tool protocol lets models without native tool calling request a
// tool by writing a line of the form
//
//	tool:<name> <json arguments>
//
// Tool results are replayed to the model as tagged transcript entries.

var toolLineRe = regexp.MustCompile(`(?mi)^[ \t]*tool:[ \t]*([A-Za-z0-9_.\-]+)`)

// renderToolBlock formats tool definitions into a prompt-friendly block.
func renderToolBlock(tools []ToolDefinition) string {
	if len(tools) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
		if len(t.Parameters) > 0 {
			if schemaJSON, err := json.MarshalIndent(t.Parameters, "  ", "  "); err == nil {
				sb.WriteString("  Input schema: ")
				sb.Write(schemaJSON)
				sb.WriteString("\n")
			}
		}
	}
	sb.WriteString("Invoke a tool with: `tool:<name> <json arguments>` on its own line and nothing else.\n")
	sb.WriteString("When you have the answer, reply with plain text and no tool line.\n")
	return sb.String()
}

// renderTranscript flattens a conversation into a single prompt.
func renderTranscript(msgs []Message, tools []ToolDefinition) (system, prompt string) {
	system, rest := splitSystem(msgs)
	if block := renderToolBlock(tools); block != "" {
		if system != "" {
			system += "\n\n"
		}
		system += block
	}

	var sb strings.Builder
	for _, m := range rest {
		switch m.Role {
		case RoleAssistant:
			sb.WriteString("[assistant]\n")
			if c := strings.TrimSpace(m.Content); c != "" {
				sb.WriteString(c)
				sb.WriteString("\n")
			}
			for _, tc := range m.ToolCalls {
				sb.WriteString(fmt.Sprintf("tool:%s %s\n", tc.Name, strings.TrimSpace(tc.Arguments)))
			}
		case RoleTool:
			sb.WriteString(fmt.Sprintf("[tool_result %s id=%s]\n%s\n", m.Name, m.ToolCallID, strings.TrimSpace(m.Content)))
		default:
			sb.WriteString("[user]\n")
			sb.WriteString(strings.TrimSpace(m.Content))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("[assistant]\n")
	return system, sb.String()
}

// parseToolLines extracts tool requests from a reply. Text outside tool lines
// and their argument objects is returned as the reply content.
func parseToolLines(reply string) (string, []ToolCall) {
	locs := toolLineRe.FindAllStringSubmatchIndex(reply, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(reply), nil
	}

	var (
		calls []ToolCall
		text  strings.Builder
		prev  int
	)
	for i, loc := range locs {
		text.WriteString(reply[prev:loc[0]])
		name := reply[loc[2]:loc[3]]
		segEnd := len(reply)
		if i+1 < len(locs) {
			segEnd = locs[i+1][0]
		}
		segment := reply[loc[1]:segEnd]

		args, consumed := extractJSONObject(segment)
		if args == "" {
			line, _, _ := strings.Cut(segment, "\n")
			consumed = len(line)
			args = wrapInput(strings.TrimSpace(line))
		}
		calls = append(calls, ToolCall{ID: "call_" + uuid.NewString(), Name: name, Arguments: args})
		prev = loc[1] + consumed
	}
	text.WriteString(reply[prev:])
	return strings.TrimSpace(text.String()), calls
}

// extractJSONObject returns the first balanced JSON object in s and the
// offset just past it, skipping braces inside string literals.
func extractJSONObject(s string) (string, int) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", 0
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				obj := s[start : i+1]
				if !json.Valid([]byte(obj)) {
					return "", 0
				}
				return obj, i + 1
			}
		}
	}
	return "", 0
}

func wrapInput(raw string) string {
	if raw == "" {
		return "{}"
	}
	b, _ := json.Marshal(map[string]string{"input": raw})
	return string(b)
}
