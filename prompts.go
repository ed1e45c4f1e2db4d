package agent

import (
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
)

// NoDatasetMessage is the answer to a question asked before any upload.
const NoDatasetMessage = "Please upload a CSV dataset first."

// SystemPrompt builds the loop's system message for a dataset snapshot.
func SystemPrompt(snap *dataset.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("You are a data analysis assistant working on a single uploaded CSV dataset.\n")
	if !snap.Empty() {
		fmt.Fprintf(&sb, "Columns: %s\n", strings.Join(snap.Columns(), ", "))
		fmt.Fprintf(&sb, "Rows in file: %d (sample of %d rows available to tools)\n", snap.TotalRows(), snap.Len())
		if q := dataset.QuantitativeColumns(snap.Columns(), snap.Sample()); len(q) > 0 {
			fmt.Fprintf(&sb, "Numeric columns: %s\n", strings.Join(q, ", "))
		}
	}
	sb.WriteString(`
Rules:
- For charts, plots or visualizations call create_chart with the user's request as user_query.
- For statistics, aggregates, counts or any computed value call analyze_data with a precise question as query.
- Do not invent numbers. Base every figure on a tool result.
- When a tool reports an error, fix the arguments and try again or explain the problem.
- After a chart is created, reply with one or two sentences describing what it shows.
- After an analysis, reply with the result in plain language.`)
	return sb.String()
}

// IrrelevantMessage explains why a question was not answered.
func IrrelevantMessage(query string, columns []string) string {
	return fmt.Sprintf(
		"The question '%s' is not relevant to the dataset, which contains the columns %s. It does not pertain to any data analysis or visualization task.",
		strings.TrimSpace(query), strings.Join(columns, ", "))
}
