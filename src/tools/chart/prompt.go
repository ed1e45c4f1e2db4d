package chart

import (
	"encoding/json"
	"fmt"
	"strings"

	agent "github.com/Protocol-Lattice/go-dataviz-agent"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/vegalite"
)

const systemPrompt = "You are a data visualization assistant specialized in creating Vega-Lite charts."

const describeSystemPrompt = "You are a helpful assistant that provides descriptions for data visualizations."

const specTemplate = `Dataset information:
- Columns: %s
- Sample rows (JSON): %s

User question: %q

Create a valid Vega-Lite v5 JSON specification that directly answers the user's question.
If the question does not relate to the columns above, reply with exactly:
The question '%s' is not relevant to the dataset.

Rules:
1. Never plot a column against itself. When the request names a single column, pair it with the most appropriate other column, preferring another quantitative column (for "visualize mpg" plot mpg against a column such as horsepower, not mpg against mpg).
2. Choose the chart type that fits the data and the question. If the question contains the word "visualize", the chart must be a scatter plot (mark "point").
3. Include a color encoding with a legend.
4. Give every axis a clear title and give the chart a title.
5. Every encoding channel needs a field and a type (quantitative, nominal, ordinal or temporal).
6. Do not include links, images or any text outside the specification.
7. Output the JSON object only: no surrounding quotes, no code fences, no explanation.

Example:
{"$schema": "https://vega.github.io/schema/vega-lite/v5.json", "title": "Population by city", "mark": "bar", "encoding": {"x": {"field": "city", "type": "nominal", "title": "City"}, "y": {"field": "population", "type": "quantitative", "title": "Population"}, "color": {"field": "city", "type": "nominal"}}}`

const describeTemplate = `User question: %q

Given the following Vega-Lite specification, write a short description (one or two sentences) of what the chart represents and any important insight.

Vega-Lite specification:
%s

Example descriptions:
- This line chart illustrates the growth of the world population over the years, highlighting a steady increase.
- This pie chart depicts the sales distribution among different products, allowing for easy comparison of their market shares.`

func buildPrompt(args agent.ChartArgs) (string, error) {
	rows, err := json.Marshal(dataset.Records(args.Sample))
	if err != nil {
		return "", fmt.Errorf("encode sample: %w", err)
	}
	return fmt.Sprintf(specTemplate, strings.Join(args.Columns, ", "), rows, args.UserQuery, args.UserQuery), nil
}

// withParseError appends the previous failure so the model can correct it.
func withParseError(prompt string, err error) string {
	return prompt + fmt.Sprintf("\n\nNote: There was a JSON parsing error: %v. Please correct the Vega-Lite specification.", err)
}

// describePrompt renders the chart without its inline rows.
func describePrompt(query string, spec vegalite.Spec) (string, error) {
	cp := spec.Clone()
	if data, ok := cp["data"].(map[string]any); ok {
		if values, ok := data["values"].([]any); ok {
			data["values"] = fmt.Sprintf("<%d rows>", len(values))
		}
	}
	body, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(describeTemplate, query, body), nil
}
