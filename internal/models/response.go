package models

// Intent is what a query asks an agent to do.
type Intent string

const (
	IntentAggregate       Intent = "aggregate"
	IntentPlot            Intent = "plot"
	IntentSummarize       Intent = "summarize"
	IntentExtractKeywords Intent = "extract-keywords"
	IntentQA              Intent = "qa"
)

// Query is a natural-language request with its inferred intent.
type Query struct {
	Text   string `json:"text"`
	Intent Intent `json:"intent"`
}

// AgentChoice names the agent that handles a request.
type AgentChoice string

const (
	AgentData     AgentChoice = "data"
	AgentResearch AgentChoice = "research"
)

// ResponseKind discriminates the AgentResponse payload.
type ResponseKind string

const (
	ResponseText        ResponseKind = "text"
	ResponseChartSpec   ResponseKind = "chart-spec"
	ResponseKeywordList ResponseKind = "keyword-list"
)

// AgentResponse is the structured result of an agent call.
// Exactly one of Message, Chart or Keywords is the payload, selected by Kind.
type AgentResponse struct {
	Agent    AgentChoice  `json:"agent" msgpack:"agent"`
	Kind     ResponseKind `json:"type" msgpack:"type"`
	Intent   Intent       `json:"intent" msgpack:"intent"`
	Message  string       `json:"message,omitempty" msgpack:"message,omitempty"`
	Chart    *ChartSpec   `json:"chart,omitempty" msgpack:"chart,omitempty"`
	Caption  string       `json:"caption,omitempty" msgpack:"caption,omitempty"`
	Keywords []string     `json:"keywords,omitempty" msgpack:"keywords,omitempty"`
}

// TextResponse builds a text response.
func TextResponse(agent AgentChoice, intent Intent, msg string) AgentResponse {
	return AgentResponse{Agent: agent, Kind: ResponseText, Intent: intent, Message: msg}
}

// ChartType is a declarative plot type.
type ChartType string

const (
	ChartBar       ChartType = "bar"
	ChartLine      ChartType = "line"
	ChartPie       ChartType = "pie"
	ChartScatter   ChartType = "scatter"
	ChartHistogram ChartType = "histogram"
)

// ChartSpec describes a plot independent of any rendering library.
type ChartSpec struct {
	Type        ChartType    `json:"chart_type" msgpack:"chart_type"`
	Title       string       `json:"title" msgpack:"title"`
	X           string       `json:"x" msgpack:"x"`
	Y           string       `json:"y,omitempty" msgpack:"y,omitempty"`
	Aggregation string       `json:"aggregation,omitempty" msgpack:"aggregation,omitempty"`
	Points      []ChartPoint `json:"points" msgpack:"points"`
}

// ChartPoint is one exactly-computed data point of a chart series.
type ChartPoint struct {
	Label string  `json:"label" msgpack:"label"`
	X     float64 `json:"x,omitempty" msgpack:"x,omitempty"`
	Value float64 `json:"value" msgpack:"value"`
}
