package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
	"github.com/xhad/insight/internal/types"
)

type DataConfig struct {
	// LLM resolves queries the keyword classifier cannot and phrases answers.
	// Without it answers use a fixed template.
	LLM    types.Completer
	Logger *zap.Logger
}

// DataAgent answers questions about tabular data. Every number it reports is
// computed from the dataset; the LLM only parses queries and phrases answers.
type DataAgent struct {
	llm types.Completer
	log *zap.Logger
}

var _ types.DataAnswerer = (*DataAgent)(nil)

func NewDataAgent(config DataConfig) *DataAgent {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &DataAgent{llm: config.LLM, log: config.Logger}
}

// AggregateResult is an exactly computed aggregate. Column is empty for a row
// count.
type AggregateResult struct {
	Operation Operation `json:"operation"`
	Column    string    `json:"column"`
	Value     float64   `json:"value"`
	Rows      int       `json:"rows"`
}

// Formatted renders Value without exponent or trailing zeros.
func (r AggregateResult) Formatted() string {
	return FormatValue(r.Value)
}

// FormatValue renders v in the shortest exact decimal form, so 300 is "300".
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Answer answers query with either a text answer or a chart specification.
func (a *DataAgent) Answer(ctx context.Context, dataset *models.TabularDataset, query string) (models.AgentResponse, error) {
	if strings.TrimSpace(query) == "" {
		return models.AgentResponse{}, errs.New(errs.InvalidQuery, "query is empty")
	}
	if dataset == nil || len(dataset.Columns) == 0 {
		return models.AgentResponse{}, errs.New(errs.UnreadableFile, "dataset has no columns")
	}

	intent := ClassifyDataQuery(query)
	a.log.Debug("classified data query",
		zap.String("query", query),
		zap.String("intent", string(intent)))

	if intent == models.IntentPlot {
		chart, caption, err := BuildChart(dataset, query)
		if err != nil {
			return models.AgentResponse{}, err
		}
		return models.AgentResponse{
			Agent:   models.AgentData,
			Kind:    models.ResponseChartSpec,
			Intent:  models.IntentPlot,
			Chart:   chart,
			Caption: caption,
		}, nil
	}

	result, err := a.Compute(ctx, dataset, query)
	if err != nil {
		return models.AgentResponse{}, err
	}

	message, err := a.phrase(ctx, query, result)
	if err != nil {
		return models.AgentResponse{}, err
	}
	return models.TextResponse(models.AgentData, models.IntentAggregate, message), nil
}

// Compute resolves the operation and column a query asks for and evaluates
// the aggregate over the dataset.
func (a *DataAgent) Compute(ctx context.Context, dataset *models.TabularDataset, query string) (AggregateResult, error) {
	op, col, err := a.resolve(ctx, dataset, query)
	if err != nil {
		return AggregateResult{}, err
	}
	return Aggregate(dataset, op, col)
}

// resolve returns the operation and column index for query. Column is -1 for
// a row count.
func (a *DataAgent) resolve(ctx context.Context, dataset *models.TabularDataset, query string) (Operation, int, error) {
	tokens := tokenize(query)
	mentions := columnMentions(dataset, tokens)
	masked := maskMentions(tokens, mentions)

	if name := unsupportedOperation(masked); name != "" {
		return "", -1, errs.New(errs.UnsupportedOperation,
			"%s is not supported; supported operations are sum, mean, count, max and min", name)
	}

	op := Operation(firstPhrase(masked, operationWords))
	col := longestMention(mentions)

	resolved := op != "" && (col >= 0 || op == OpCount)
	if resolved {
		return op, col, nil
	}

	if a.llm == nil {
		if col < 0 {
			return "", -1, errs.New(errs.ColumnNotFound,
				"could not find any of the columns %s in the query", quoteColumns(dataset.Columns))
		}
		return OpSum, col, nil
	}

	parsed, err := a.parseWithLLM(ctx, dataset, query)
	if err != nil {
		return "", -1, err
	}
	if op == "" {
		var ok bool
		if op, ok = ParseOperation(parsed.Operation); !ok {
			return "", -1, errs.New(errs.UnsupportedOperation,
				"%q is not supported; supported operations are sum, mean, count, max and min", parsed.Operation)
		}
	}
	if name := strings.TrimSpace(parsed.Column); col < 0 && name != "" {
		if col = dataset.ColumnIndex(name); col < 0 {
			return "", -1, errs.New(errs.ColumnNotFound, "column %q does not exist", name)
		}
	}
	if col < 0 && op != OpCount {
		return "", -1, errs.New(errs.ColumnNotFound,
			"could not find any of the columns %s in the query", quoteColumns(dataset.Columns))
	}
	return op, col, nil
}

type parsedQuery struct {
	Operation string `json:"operation"`
	Column    string `json:"column"`
}

const parseSystemPrompt = `You translate questions about a table into a single aggregate operation.
Reply with JSON only, no prose: {"operation": "<sum|mean|count|max|min|other>", "column": "<column name or empty>"}.
The column must be copied exactly from the list of columns. Use "other" when the question needs any other computation.`

// parseWithLLM asks the LLM which operation and column the query refers to.
// The caller validates the answer against the dataset.
func (a *DataAgent) parseWithLLM(ctx context.Context, dataset *models.TabularDataset, query string) (parsedQuery, error) {
	user := fmt.Sprintf("Columns: %s\nQuestion: %s", quoteColumns(dataset.Columns), query)

	var parsed parsedQuery
	if err := a.llm.CompleteJSON(ctx, parseSystemPrompt, user, &parsed); err != nil {
		return parsedQuery{}, err
	}
	a.log.Debug("LLM parsed data query",
		zap.String("operation", parsed.Operation),
		zap.String("column", parsed.Column))
	return parsed, nil
}

// Aggregate evaluates op over column col of dataset. col -1 with OpCount
// counts rows. Only numeric cells take part in sum, mean, max and min.
func Aggregate(dataset *models.TabularDataset, op Operation, col int) (AggregateResult, error) {
	result := AggregateResult{Operation: op, Rows: len(dataset.Rows)}

	if col < 0 {
		if op != OpCount {
			return AggregateResult{}, errs.New(errs.ColumnNotFound, "%s needs a column", op)
		}
		result.Value = float64(len(dataset.Rows))
		return result, nil
	}
	if col >= len(dataset.Columns) {
		return AggregateResult{}, errs.New(errs.ColumnNotFound, "column %d does not exist", col)
	}
	result.Column = dataset.Columns[col]

	if op == OpCount {
		n := 0
		for _, row := range dataset.Rows {
			if row[col].Kind != models.CellEmpty {
				n++
			}
		}
		result.Value = float64(n)
		return result, nil
	}

	var (
		sum    float64
		lo, hi float64
		n      int
	)
	for _, row := range dataset.Rows {
		cell := row[col]
		if cell.Kind != models.CellNumber {
			continue
		}
		if n == 0 || cell.Number < lo {
			lo = cell.Number
		}
		if n == 0 || cell.Number > hi {
			hi = cell.Number
		}
		sum += cell.Number
		n++
	}
	if n == 0 {
		return AggregateResult{}, errs.New(errs.UnsupportedOperation,
			"column %q has no numeric values to %s", result.Column, op)
	}

	switch op {
	case OpSum:
		result.Value = sum
	case OpMean:
		result.Value = sum / float64(n)
	case OpMax:
		result.Value = hi
	case OpMin:
		result.Value = lo
	default:
		return AggregateResult{}, errs.New(errs.UnsupportedOperation, "%q is not supported", op)
	}
	return result, nil
}

// Template is the fixed phrasing used without an LLM.
func Template(result AggregateResult) string {
	column := result.Column
	if column == "" {
		column = "rows"
	}
	return fmt.Sprintf("The %s of %s is %s.", result.Operation.Label(), column, result.Formatted())
}

const phraseSystemPrompt = `You answer questions about a table in one short sentence.
The result has already been computed. Repeat the value exactly as given, digit for digit, and do not compute anything yourself.`

// phrase asks the LLM for a sentence and falls back to Template when the
// sentence does not carry the exact value.
func (a *DataAgent) phrase(ctx context.Context, query string, result AggregateResult) (string, error) {
	fallback := Template(result)
	if a.llm == nil {
		return fallback, nil
	}

	column := result.Column
	if column == "" {
		column = "(all rows)"
	}
	user := fmt.Sprintf("Question: %s\nOperation: %s\nColumn: %s\nValue: %s",
		query, result.Operation.Label(), column, result.Formatted())

	text, err := a.llm.Complete(ctx, phraseSystemPrompt, user)
	if err != nil {
		return "", err
	}
	if !statesOnly(text, result.Value, query+" "+column) {
		a.log.Warn("LLM phrasing does not state exactly the computed value; using template",
			zap.String("value", result.Formatted()))
		return fallback, nil
	}
	return strings.TrimSpace(text), nil
}

var numberToken = regexp.MustCompile(`-?\d+(?:[.,]\d+)*`)

// statesOnly reports whether text contains value as a whole number and every
// other number in text also appears in known.
func statesOnly(text string, value float64, known string) bool {
	allowed := map[float64]bool{value: true}
	for _, tok := range numberToken.FindAllString(known, -1) {
		if v, ok := models.ParseNumber(tok); ok {
			allowed[v] = true
		}
	}

	found := false
	for _, tok := range numberToken.FindAllString(text, -1) {
		v, ok := models.ParseNumber(tok)
		if !ok || !allowed[v] {
			return false
		}
		if v == value {
			found = true
		}
	}
	return found
}

func quoteColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = strconv.Quote(c)
	}
	return strings.Join(quoted, ", ")
}
