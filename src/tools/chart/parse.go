package chart

import (
	"strings"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/vegalite"
)

// WantsScatter reports wording that asks to visualize data directly.
func WantsScatter(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(q, "visualize") || strings.Contains(q, "visualise")
}

// NotRelevant reports a refusal reply. Text that looks like a JSON object is
// never a refusal, even if a title mentions the phrase.
func NotRelevant(text string) bool {
	if strings.HasPrefix(strings.TrimSpace(text), "{") {
		return false
	}
	return strings.Contains(strings.ToLower(text), "not relevant")
}

// Unwrap removes one layer of wrapping from a model reply: a fenced code
// block or a pair of matching quote characters.
func Unwrap(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		body := strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(body[:nl]), "{") {
			body = body[nl+1:]
		}
		body = strings.TrimSpace(body)
		body = strings.TrimSuffix(body, "```")
		return strings.TrimSpace(body)
	}
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if first == last && (first == '\'' || first == '"' || first == '`') {
			return strings.TrimSpace(text[1 : len(text)-1])
		}
	}
	return text
}

// ParseLenient parses text as a spec, retrying once with single quotes turned
// into double quotes.
func ParseLenient(text string) (vegalite.Spec, error) {
	spec, err := vegalite.Parse(text)
	if err == nil {
		return spec, nil
	}
	if !strings.Contains(text, "'") {
		return nil, err
	}
	if spec, qerr := vegalite.Parse(strings.ReplaceAll(text, "'", `"`)); qerr == nil {
		return spec, nil
	}
	return nil, err
}
