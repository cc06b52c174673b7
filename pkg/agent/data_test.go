package agent_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
	"github.com/xhad/insight/internal/testutil"
	"github.com/xhad/insight/pkg/agent"
)

func dataset(t *testing.T, header []string, rows ...[]string) *models.TabularDataset {
	t.Helper()
	ds, err := models.NewTabularDataset("test", header, rows)
	require.NoError(t, err)
	return ds
}

func sales(t *testing.T) *models.TabularDataset {
	return dataset(t, []string{"region", "revenue"}, []string{"east", "100"}, []string{"west", "200"})
}

// phraser answers phrasing prompts with reply and query parsing prompts with
// parsed.
func phraser(reply, parsed string) *testutil.FakeLLM {
	return &testutil.FakeLLM{Reply: func(system, user string) (string, error) {
		if strings.Contains(system, "translate questions") {
			return parsed, nil
		}
		return reply, nil
	}}
}

func TestDataAgentTotalWithoutLLM(t *testing.T) {
	a := agent.NewDataAgent(agent.DataConfig{})

	resp, err := a.Answer(context.Background(), sales(t), "What is the total revenue?")
	require.NoError(t, err)

	assert.Equal(t, models.AgentData, resp.Agent)
	assert.Equal(t, models.ResponseText, resp.Kind)
	assert.Equal(t, models.IntentAggregate, resp.Intent)
	assert.Equal(t, "The total of revenue is 300.", resp.Message)
}

func TestDataAgentTotalWithLLM(t *testing.T) {
	fake := phraser("Total revenue across both regions is 300.", "")
	a := agent.NewDataAgent(agent.DataConfig{LLM: fake})

	resp, err := a.Answer(context.Background(), sales(t), "What is the total revenue?")
	require.NoError(t, err)

	assert.Equal(t, "Total revenue across both regions is 300.", resp.Message)
	assert.Empty(t, fake.CallsWith("translate questions"), "keywords resolve the query without parsing")
	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "Value: 300")
}

func TestDataAgentFallsBackToTemplate(t *testing.T) {
	fake := phraser("Revenue came to roughly three hundred.", "")
	a := agent.NewDataAgent(agent.DataConfig{LLM: fake})

	resp, err := a.Answer(context.Background(), sales(t), "total revenue")
	require.NoError(t, err)
	assert.Equal(t, "The total of revenue is 300.", resp.Message)
}

func TestDataAgentRejectsPhrasingWithOtherNumbers(t *testing.T) {
	ds := dataset(t, []string{"region", "revenue"}, []string{"east", "10"}, []string{"west", "20"})

	tests := []struct {
		name  string
		query string
		reply string
		want  string
	}{
		{"value as substring", "What is the total revenue?", "The total revenue is 300.", "The total of revenue is 30."},
		{"value as prefix", "What is the total revenue?", "The total revenue is 30.5.", "The total of revenue is 30."},
		{"extra number", "What is the total revenue?", "Revenue is 30, up from 25.", "The total of revenue is 30."},
		{"decimal comma", "What is the total revenue?", "Revenue is 3,0.", "The total of revenue is 30."},
		{"exact value", "What is the total revenue?", "Total revenue is 30.", "Total revenue is 30."},
		{"number from the question", "What was the total revenue in 2023?", "In 2023 the total revenue was 30.", "In 2023 the total revenue was 30."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := agent.NewDataAgent(agent.DataConfig{LLM: phraser(tt.reply, "")})

			resp, err := a.Answer(context.Background(), ds, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Message)
		})
	}
}

func TestDataAgentAcceptsGroupedThousands(t *testing.T) {
	ds := dataset(t, []string{"region", "revenue"}, []string{"east", "1,000"}, []string{"west", "234"})
	a := agent.NewDataAgent(agent.DataConfig{LLM: phraser("Total revenue is 1,234.", "")})

	resp, err := a.Answer(context.Background(), ds, "total revenue")
	require.NoError(t, err)
	assert.Equal(t, "Total revenue is 1,234.", resp.Message)
}

func TestDataAgentDecimalCommaIsNotANumber(t *testing.T) {
	ds := dataset(t, []string{"item", "price"}, []string{"a", "1,5"}, []string{"b", "2,5"})
	a := agent.NewDataAgent(agent.DataConfig{})

	_, err := a.Answer(context.Background(), ds, "What is the total price?")
	assert.Equal(t, errs.UnsupportedOperation, errs.KindOf(err), "got %v", err)
}

func TestDataAgentUnsupportedWordOutsideOperation(t *testing.T) {
	ds := dataset(t, []string{"region", "revenue", "channel"},
		[]string{"east", "10", "card"},
		[]string{"west", "20", "cash"})

	tests := []struct {
		query    string
		want     float64
		wantKind errs.Kind
	}{
		{"What is the total revenue for each payment mode?", 30, errs.Unknown},
		{"total revenue by mode", 30, errs.Unknown},
		{"average revenue for the skew promotion", 15, errs.Unknown},
		{"sum of revenue per std channel", 30, errs.Unknown},
		{"What is the median revenue?", 0, errs.UnsupportedOperation},
		{"median revenue", 0, errs.UnsupportedOperation},
		{"revenue median", 0, errs.UnsupportedOperation},
		{"calculate the variance of revenue", 0, errs.UnsupportedOperation},
		{"what's the mode of channel", 0, errs.UnsupportedOperation},
		{"does revenue correlate with region", 0, errs.UnsupportedOperation},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			a := agent.NewDataAgent(agent.DataConfig{})

			result, err := a.Compute(context.Background(), ds, tt.query)
			if tt.wantKind != errs.Unknown {
				assert.Equal(t, tt.wantKind, errs.KindOf(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Value)
		})
	}
}

func TestDataAgentSameValueAcrossPhrasings(t *testing.T) {
	a := agent.NewDataAgent(agent.DataConfig{})
	ds := sales(t)

	queries := []string{
		"What is the total revenue?",
		"sum of revenue",
		"What's the REVENUE total",
		"add up the revenues",
		"revenue please",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			result, err := a.Compute(context.Background(), ds, q)
			require.NoError(t, err)
			assert.Equal(t, agent.OpSum, result.Operation)
			assert.Equal(t, "revenue", result.Column)
			assert.Equal(t, 300.0, result.Value)
			assert.Equal(t, "300", result.Formatted())
		})
	}
}

func TestDataAgentResolveWithLLM(t *testing.T) {
	tests := []struct {
		name     string
		parsed   string
		want     float64
		wantKind errs.Kind
	}{
		{"valid", `{"operation": "sum", "column": "revenue"}`, 300, errs.Unknown},
		{"fenced", "```json\n{\"operation\": \"average\", \"column\": \"Revenue\"}\n```", 150, errs.Unknown},
		{"count rows", `{"operation": "count", "column": ""}`, 2, errs.Unknown},
		{"unknown column", `{"operation": "sum", "column": "profit"}`, 0, errs.ColumnNotFound},
		{"other operation", `{"operation": "other", "column": "revenue"}`, 0, errs.UnsupportedOperation},
		{"missing column", `{"operation": "max", "column": ""}`, 0, errs.ColumnNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := phraser("unused", tt.parsed)
			a := agent.NewDataAgent(agent.DataConfig{LLM: fake})

			result, err := a.Compute(context.Background(), sales(t), "How much money did we make?")
			if tt.wantKind != errs.Unknown {
				assert.Equal(t, tt.wantKind, errs.KindOf(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Value)
			assert.Len(t, fake.CallsWith("translate questions"), 1)
		})
	}
}

func TestDataAgentErrors(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantKind errs.Kind
	}{
		{"median", "What is the median revenue?", errs.UnsupportedOperation},
		{"standard deviation", "standard deviation of revenue", errs.UnsupportedOperation},
		{"unknown column", "total profit", errs.ColumnNotFound},
		{"blank", "   ", errs.InvalidQuery},
		{"text column", "sum of region", errs.UnsupportedOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := agent.NewDataAgent(agent.DataConfig{})

			_, err := a.Answer(context.Background(), sales(t), tt.query)
			assert.Equal(t, tt.wantKind, errs.KindOf(err), "got %v", err)
		})
	}
}

func TestDataAgentUnsupportedSkipsLLM(t *testing.T) {
	fake := phraser("unused", `{"operation": "sum", "column": "revenue"}`)
	a := agent.NewDataAgent(agent.DataConfig{LLM: fake})

	_, err := a.Answer(context.Background(), sales(t), "median revenue")
	assert.Equal(t, errs.UnsupportedOperation, errs.KindOf(err))
	assert.Zero(t, fake.CallCount())
}

func TestDataAgentPropagatesLLMError(t *testing.T) {
	fake := &testutil.FakeLLM{Reply: func(string, string) (string, error) {
		return "", errs.New(errs.LLMTimeout, "LLM request timed out")
	}}
	a := agent.NewDataAgent(agent.DataConfig{LLM: fake})

	_, err := a.Answer(context.Background(), sales(t), "total revenue")
	assert.Equal(t, errs.LLMTimeout, errs.KindOf(err))
}

func TestDataAgentCountRows(t *testing.T) {
	a := agent.NewDataAgent(agent.DataConfig{})

	resp, err := a.Answer(context.Background(), sales(t), "How many rows are there?")
	require.NoError(t, err)
	assert.Equal(t, "The count of rows is 2.", resp.Message)
}

func TestDataAgentColumnNamedLikeOperation(t *testing.T) {
	ds := dataset(t, []string{"item", "count"}, []string{"a", "2"}, []string{"b", "3"})
	a := agent.NewDataAgent(agent.DataConfig{})

	result, err := a.Compute(context.Background(), ds, "what is the total count")
	require.NoError(t, err)
	assert.Equal(t, agent.OpSum, result.Operation)
	assert.Equal(t, "count", result.Column)
	assert.Equal(t, 5.0, result.Value)
}

func TestDataAgentPrefersLongestColumn(t *testing.T) {
	ds := dataset(t, []string{"price", "unit_price"},
		[]string{"10", "1"},
		[]string{"20", "3"})
	a := agent.NewDataAgent(agent.DataConfig{})

	result, err := a.Compute(context.Background(), ds, "average unit price")
	require.NoError(t, err)
	assert.Equal(t, "unit_price", result.Column)
	assert.Equal(t, 2.0, result.Value)
}

func TestAggregate(t *testing.T) {
	ds := dataset(t, []string{"region", "revenue", "units"},
		[]string{"east", "100", "3"},
		[]string{"west", "200", ""},
		[]string{"north", "50.5", "4"})

	tests := []struct {
		op   agent.Operation
		col  int
		want float64
	}{
		{agent.OpSum, 1, 350.5},
		{agent.OpMean, 1, 350.5 / 3},
		{agent.OpMax, 1, 200},
		{agent.OpMin, 1, 50.5},
		{agent.OpCount, 2, 2},
		{agent.OpCount, -1, 3},
		{agent.OpMean, 2, 3.5},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			result, err := agent.Aggregate(ds, tt.op, tt.col)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Value)
			assert.Equal(t, 3, result.Rows)
		})
	}

	_, err := agent.Aggregate(ds, agent.OpSum, 0)
	assert.Equal(t, errs.UnsupportedOperation, errs.KindOf(err))

	_, err = agent.Aggregate(ds, agent.OpSum, -1)
	assert.Equal(t, errs.ColumnNotFound, errs.KindOf(err))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "300", agent.FormatValue(300))
	assert.Equal(t, "0.1", agent.FormatValue(0.1))
	assert.Equal(t, "1234567.25", agent.FormatValue(1234567.25))
	assert.Equal(t, "-2", agent.FormatValue(-2))
}
