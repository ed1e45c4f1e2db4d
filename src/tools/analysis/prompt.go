package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alpkeskin/gotoon"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
)

const previewRows = 5

const systemPrompt = "You write short Lua 5.1 programs that answer questions about a dataset. Reply with code only."

const codeTemplate = `Question: %s

The dataset is available as the global table df:
- df.columns: array of column names
- df.rows: array of rows; each row is a table keyed by column name (missing values are nil)
- df.n: number of sampled rows; df.total_rows: rows in the original file

Columns and types:
%s

First rows:
%s

Helpers (each accepts a column name or an array of values; missing values are skipped):
col(name), sum(x), mean(x), median(x), minimum(x), maximum(x), stddev(x), count(x), unique(x), round(value, places)

Rules:
- Use only the base, string, table and math libraries. There is no io, os or require.
- print every result with a short label, for example: print("average price:", round(mean("price"), 2))
- Reply with the Lua code only, without explanations or code fences.`

var fenceRe = regexp.MustCompile("(?s)^```[A-Za-z0-9_+-]*[ \t]*\n?(.*?)\n?```$")

// Sanitize strips whitespace, code fences and stray backticks from model code.
func Sanitize(code string) string {
	code = strings.TrimSpace(code)
	if m := fenceRe.FindStringSubmatch(code); m != nil {
		code = m[1]
	}
	code = strings.Trim(code, "`")
	code = strings.TrimSpace(code)
	if first, rest, ok := strings.Cut(code, "\n"); ok && strings.EqualFold(strings.TrimSpace(first), "lua") {
		code = rest
	}
	return strings.TrimSpace(code)
}

func buildPrompt(query string, snap *dataset.Snapshot) (string, error) {
	sample := snap.Sample()
	var types strings.Builder
	for _, c := range snap.Columns() {
		fmt.Fprintf(&types, "- %s (%s)\n", c, dataset.InferType(sample, c))
	}
	preview, err := gotoon.Encode(dataset.Records(sample[:min(previewRows, len(sample))]))
	if err != nil {
		return "", fmt.Errorf("encode preview: %w", err)
	}
	return fmt.Sprintf(codeTemplate, strings.TrimSpace(query), strings.TrimRight(types.String(), "\n"), preview), nil
}

// withRunError asks for a corrected program after a failed run.
func withRunError(prompt, code string, err error) string {
	return prompt + fmt.Sprintf("\n\nThe previous program failed.\nProgram:\n%s\nError: %v\nWrite a corrected program.", code, err)
}
