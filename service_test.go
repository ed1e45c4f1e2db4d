package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agent "github.com/Protocol-Lattice/go-dataviz-agent"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/models"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/tools/analysis"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/tools/chart"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/vegalite"
)

const carsCSV = `mpg,horsepower
18,130
15,165
31,65
26,46
`

const pricesCSV = `item,price
apple,10
pear,20
plum,30
`

func reply(s string) models.ChatResponse { return models.ChatResponse{Content: s} }

func call(name, args string) models.ChatResponse {
	return models.ChatResponse{ToolCalls: []models.ToolCall{{ID: "call_" + name, Name: name, Arguments: args}}}
}

func newService(t *testing.T, model models.ChatModel, opts ...func(*agent.ServiceOptions)) *agent.Service {
	t.Helper()
	chartTool, err := chart.New(chart.Options{Model: model})
	require.NoError(t, err)
	analysisTool, err := analysis.New(analysis.Options{Model: model})
	require.NoError(t, err)
	a, err := agent.New(agent.Options{Model: model, Tools: []agent.Tool{chartTool, analysisTool}})
	require.NoError(t, err)

	so := agent.ServiceOptions{
		Agent:     a,
		Gate:      agent.NewRelevanceGate(model, nil),
		Describer: chartTool,
	}
	for _, o := range opts {
		o(&so)
	}
	svc, err := agent.NewService(so)
	require.NoError(t, err)
	return svc
}

func upload(t *testing.T, svc *agent.Service, csv string) {
	t.Helper()
	snap, err := dataset.ReadCSV(strings.NewReader(csv), dataset.LoadOptions{})
	require.NoError(t, err)
	svc.Upload(snap)
}

func TestAskVisualizeProducesScatterWithoutSelfPairing(t *testing.T) {
	model := models.NewScriptedModel(
		reply("yes"),
		call(chart.Name, `{"user_query":"visualize mpg"}`),
		reply(`{"mark":"bar","encoding":{"x":{"field":"mpg","type":"quantitative"},"y":{"field":"mpg","type":"quantitative"}}}`),
		reply("A scatter plot of mpg against horsepower."),
	)
	svc := newService(t, model)
	upload(t, svc, carsCSV)

	ans, err := svc.Ask(context.Background(), "visualize mpg")
	require.NoError(t, err)
	require.Equal(t, agent.AnswerChart, ans.Kind)
	assert.Equal(t, vegalite.MarkPoint, ans.Chart.Mark())
	assert.Equal(t, "mpg", ans.Chart.Field("x"))
	assert.Equal(t, "horsepower", ans.Chart.Field("y"))
	assert.Equal(t, "A scatter plot of mpg against horsepower.", ans.Description)
	assert.Equal(t, 4, model.Calls())
}

func TestAskAverageRunsAnalysis(t *testing.T) {
	model := models.NewScriptedModel(
		reply("yes"),
		call(analysis.Name, `{"query":"average price"}`),
		reply(`print("average price:", mean("price"))`),
		reply("The average price is 20."),
	)
	svc := newService(t, model)
	upload(t, svc, pricesCSV)

	ans, err := svc.Ask(context.Background(), "average price")
	require.NoError(t, err)
	assert.Equal(t, agent.AnswerText, ans.Kind)
	assert.Contains(t, ans.Text, "20")

	require.NotNil(t, ans.Result)
	inv := ans.Result.LastInvocation
	require.NotNil(t, inv)
	assert.Equal(t, agent.KindAnalysis, inv.Kind)
	assert.Equal(t, "average price:\t20", inv.Response.Content)
}

func TestAskIrrelevantQuestionSkipsTools(t *testing.T) {
	model := models.NewScriptedModel(reply("No"))
	svc := newService(t, model)
	upload(t, svc, carsCSV)

	ans, err := svc.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, agent.AnswerIrrelevant, ans.Kind)
	assert.Contains(t, ans.Text, "'hi' is not relevant")
	assert.Contains(t, ans.Text, "mpg, horsepower")
	assert.Nil(t, ans.Result)
	assert.Equal(t, 1, model.Calls())
	assert.Empty(t, model.Requests()[0].Tools)
}

func TestAskWithoutDataset(t *testing.T) {
	model := models.NewScriptedModel(reply("yes"))
	svc := newService(t, model)

	_, err := svc.Ask(context.Background(), "visualize mpg")
	assert.ErrorIs(t, err, agent.ErrNoDataset)
	assert.Zero(t, model.Calls())

	_, err = svc.Ask(context.Background(), "  ")
	assert.ErrorIs(t, err, agent.ErrEmptyPrompt)
}

func TestAskDescribesChartWhenModelIsSilent(t *testing.T) {
	model := models.NewScriptedModel(
		reply("yes"),
		call(chart.Name, `{"user_query":"bar chart of horsepower by mpg"}`),
		reply(`{"mark":"bar","encoding":{"x":{"field":"mpg"},"y":{"field":"horsepower"}}}`),
		reply(""),
		reply("Bars of horsepower for each mpg value."),
	)
	svc := newService(t, model)
	upload(t, svc, carsCSV)

	ans, err := svc.Ask(context.Background(), "bar chart of horsepower by mpg")
	require.NoError(t, err)
	require.Equal(t, agent.AnswerChart, ans.Kind)
	assert.Equal(t, "bar", ans.Chart.Mark())
	assert.Equal(t, "Bars of horsepower for each mpg value.", ans.Description)
}

func TestAskDescriptionFailureFallsBack(t *testing.T) {
	model := models.NewScriptedModel(
		reply("yes"),
		call(chart.Name, `{"user_query":"bar chart"}`),
		reply(`{"mark":"bar","encoding":{"x":{"field":"mpg"},"y":{"field":"horsepower"}}}`),
		reply(""),
	).FailAt(4, errors.New("down"))
	svc := newService(t, model)
	upload(t, svc, carsCSV)

	ans, err := svc.Ask(context.Background(), "bar chart")
	require.NoError(t, err)
	assert.Equal(t, agent.DescriptionFailedMessage, ans.Description)
}

func TestAskIncompleteRun(t *testing.T) {
	model := models.NewScriptedModel(
		reply("yes"),
		call(analysis.Name, `{"query":"average mpg"}`),
	)
	chartTool, err := chart.New(chart.Options{Model: model})
	require.NoError(t, err)
	a, err := agent.New(agent.Options{Model: model, Tools: []agent.Tool{chartTool}, MaxIterations: 2})
	require.NoError(t, err)
	svc, err := agent.NewService(agent.ServiceOptions{Agent: a, Gate: agent.NewRelevanceGate(model, nil)})
	require.NoError(t, err)
	upload(t, svc, carsCSV)

	ans, err := svc.Ask(context.Background(), "average mpg")
	require.NoError(t, err)
	assert.Equal(t, agent.AnswerIncomplete, ans.Kind)
	assert.Equal(t, agent.ExhaustedMessage, ans.Text)
	assert.Equal(t, 3, model.Calls())
}

func TestAskSurfacesModelFailures(t *testing.T) {
	gateDown := models.NewScriptedModel().FailAt(0, errors.New("gate down"))
	svc := newService(t, gateDown)
	upload(t, svc, carsCSV)
	_, err := svc.Ask(context.Background(), "visualize mpg")
	var gerr *agent.GateError
	assert.ErrorAs(t, err, &gerr)

	loopDown := models.NewScriptedModel(reply("yes")).FailAt(1, errors.New("loop down"))
	svc = newService(t, loopDown)
	upload(t, svc, carsCSV)
	_, err = svc.Ask(context.Background(), "visualize mpg")
	var merr *agent.ModelServiceError
	assert.ErrorAs(t, err, &merr)
}

func TestAskChartModelFailureSurfaces(t *testing.T) {
	model := models.NewScriptedModel(
		reply("yes"),
		call(chart.Name, `{"user_query":"visualize mpg"}`),
		reply("unreachable"),
	).FailAt(2, errors.New("401 unauthorized"))
	svc := newService(t, model)
	upload(t, svc, carsCSV)

	_, err := svc.Ask(context.Background(), "visualize mpg")
	var merr *agent.ModelServiceError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "chart", merr.Op)
	assert.Contains(t, err.Error(), "401 unauthorized")
	assert.Equal(t, 3, model.Calls())
}

func TestAskWithoutGate(t *testing.T) {
	model := models.NewScriptedModel(reply("Two columns: mpg and horsepower."))
	svc := newService(t, model, func(o *agent.ServiceOptions) { o.Gate = nil })
	upload(t, svc, carsCSV)

	ans, err := svc.Ask(context.Background(), "which columns exist?")
	require.NoError(t, err)
	assert.Equal(t, agent.AnswerText, ans.Kind)
	assert.Equal(t, 1, model.Calls())
	assert.Contains(t, model.Requests()[0].Messages[0].Content, "Columns: mpg, horsepower")
}

func TestQuerySeesOneSnapshot(t *testing.T) {
	model := models.NewScriptedModel(reply("ok"))
	svc := newService(t, model, func(o *agent.ServiceOptions) { o.Gate = nil })
	upload(t, svc, carsCSV)
	first := svc.Store().Current()
	upload(t, svc, pricesCSV)

	assert.NotEqual(t, first.ID(), svc.Store().Current().ID())
	assert.Equal(t, []string{"mpg", "horsepower"}, first.Columns())
}
