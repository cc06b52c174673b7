package agent

import (
	"sort"
	"strings"
	"unicode"

	"github.com/xhad/insight/internal/models"
)

// tokenize lower-cases s and splits it on anything that is not a letter or a
// digit. Underscores separate words and "tl;dr" becomes "tldr".
func tokenize(s string) []string {
	s = strings.ReplaceAll(strings.ToLower(s), "tl;dr", "tldr")
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenMatches treats a simple plural as the same word.
func tokenMatches(query, word string) bool {
	return query == word || query == word+"s" || query == word+"es"
}

// indexPhrase returns the position of the first occurrence of phrase in
// tokens, or -1.
func indexPhrase(tokens, phrase []string) int {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return -1
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, w := range phrase {
			if !tokenMatches(tokens[i+j], w) {
				continue outer
			}
		}
		return i
	}
	return -1
}

// firstPhrase returns the keyword of table whose phrase occurs earliest in
// tokens, or "" when none occurs.
func firstPhrase(tokens []string, table map[string]string) string {
	best, bestPos := "", len(tokens)+1
	phrases := make([]string, 0, len(table))
	for p := range table {
		phrases = append(phrases, p)
	}
	// Longer phrases first so that a multi-word phrase wins at the same position.
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i]) != len(phrases[j]) {
			return len(phrases[i]) > len(phrases[j])
		}
		return phrases[i] < phrases[j]
	})
	for _, p := range phrases {
		if pos := indexPhrase(tokens, strings.Fields(p)); pos >= 0 && pos < bestPos {
			best, bestPos = table[p], pos
		}
	}
	return best
}

func hasAny(tokens []string, phrases ...string) bool {
	for _, p := range phrases {
		if indexPhrase(tokens, strings.Fields(p)) >= 0 {
			return true
		}
	}
	return false
}

var plotWords = []string{
	"plot", "chart", "graph", "visualize", "visualise", "visualization", "draw",
	"histogram", "trend", "distribution", "pie", "scatter",
}

// ClassifyDataQuery returns IntentPlot for chart requests and IntentAggregate
// otherwise.
func ClassifyDataQuery(query string) models.Intent {
	if hasAny(tokenize(query), plotWords...) {
		return models.IntentPlot
	}
	return models.IntentAggregate
}

// ClassifyResearchQuery returns the intent of a document query. abstract is
// set when a summary of the abstract alone is requested.
func ClassifyResearchQuery(query string) (intent models.Intent, abstract bool) {
	tokens := tokenize(query)
	switch {
	case hasAny(tokens, "keyword", "key term", "key phrase", "tag", "key word"):
		return models.IntentExtractKeywords, false
	case hasAny(tokens, "abstract"):
		return models.IntentSummarize, true
	case hasAny(tokens, "summarize", "summarise", "summary", "overview", "main point",
		"tldr", "gist", "recap", "key takeaway"):
		return models.IntentSummarize, false
	}
	return models.IntentQA, false
}

// Operation is a supported aggregate.
type Operation string

const (
	OpSum   Operation = "sum"
	OpMean  Operation = "mean"
	OpCount Operation = "count"
	OpMax   Operation = "max"
	OpMin   Operation = "min"
)

// Label is the word used when phrasing a result.
func (o Operation) Label() string {
	switch o {
	case OpSum:
		return "total"
	case OpMean:
		return "average"
	case OpMax:
		return "maximum"
	case OpMin:
		return "minimum"
	}
	return string(o)
}

var operationWords = map[string]string{
	"total":     string(OpSum),
	"sum":       string(OpSum),
	"add up":    string(OpSum),
	"average":   string(OpMean),
	"mean":      string(OpMean),
	"avg":       string(OpMean),
	"count":     string(OpCount),
	"how many":  string(OpCount),
	"number of": string(OpCount),
	"max":       string(OpMax),
	"maximum":   string(OpMax),
	"highest":   string(OpMax),
	"largest":   string(OpMax),
	"biggest":   string(OpMax),
	"min":       string(OpMin),
	"minimum":   string(OpMin),
	"lowest":    string(OpMin),
	"smallest":  string(OpMin),
}

var unsupportedWords = map[string]string{
	"median":             "median",
	"mode":               "mode",
	"variance":           "variance",
	"standard deviation": "standard deviation",
	"std":                "standard deviation",
	"stddev":             "standard deviation",
	"stdev":              "standard deviation",
	"percentile":         "percentile",
	"quantile":           "quantile",
	"quartile":           "quartile",
	"correlation":        "correlation",
	"correlate":          "correlation",
	"skew":               "skewness",
	"skewness":           "skewness",
}

// operationLeads are the words a question puts right before the operation it
// asks for, as in "what is the median" or "calculate the variance".
var operationLeads = map[string]bool{
	"is": true, "s": true, "whats": true, "calculate": true, "compute": true,
	"find": true, "get": true, "show": true, "give": true, "me": true,
	"return": true, "tell": true,
}

// unsupportedOperation returns the unsupported aggregate requested in masked,
// or "". A word such as "mode" only counts in operation position: at the
// start, after a question lead (optionally followed by "the"), next to a
// column name, or before "of", and never right after "by", "per" or "each".
// "payment mode" in "total for each payment mode" is a plain word.
func unsupportedOperation(masked []string) string {
	phrases := make([]string, 0, len(unsupportedWords))
	for p := range unsupportedWords {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)

	best, bestPos := "", len(masked)
	for _, p := range phrases {
		words := strings.Fields(p)
		for start := 0; start+len(words) <= len(masked) && start < bestPos; start++ {
			if indexPhrase(masked[start:start+len(words)], words) != 0 {
				continue
			}
			if inOperationPosition(masked, start, start+len(words)) {
				best, bestPos = unsupportedWords[p], start
				break
			}
		}
	}
	return best
}

var groupingWords = map[string]bool{"by": true, "per": true, "each": true, "every": true}

func inOperationPosition(masked []string, start, end int) bool {
	if start > 0 && groupingWords[masked[start-1]] {
		return false
	}
	if end < len(masked) && (masked[end] == "of" || masked[end] == "") {
		return true
	}
	prev := start - 1
	if prev >= 0 && (masked[prev] == "the" || masked[prev] == "a") {
		prev--
	}
	switch {
	case prev < 0:
		return true
	case prev == start-1 && masked[prev] == "":
		return true
	}
	return operationLeads[masked[prev]]
}

// ParseOperation maps an operation name or synonym to an Operation.
func ParseOperation(s string) (Operation, bool) {
	op := firstPhrase(tokenize(s), operationWords)
	if op == "" {
		return "", false
	}
	return Operation(op), true
}

var chartTypeWords = map[string]string{
	"bar":          string(models.ChartBar),
	"column chart": string(models.ChartBar),
	"line":         string(models.ChartLine),
	"trend":        string(models.ChartLine),
	"over time":    string(models.ChartLine),
	"pie":          string(models.ChartPie),
	"share":        string(models.ChartPie),
	"proportion":   string(models.ChartPie),
	"scatter":      string(models.ChartScatter),
	"vs":           string(models.ChartScatter),
	"versus":       string(models.ChartScatter),
	"correlation":  string(models.ChartScatter),
	"histogram":    string(models.ChartHistogram),
	"distribution": string(models.ChartHistogram),
}

// chartTypeFor picks the chart type named earliest in tokens, bar by default.
func chartTypeFor(tokens []string) models.ChartType {
	if t := firstPhrase(tokens, chartTypeWords); t != "" {
		return models.ChartType(t)
	}
	return models.ChartBar
}

// mention is a column name found in a query at tokens[start:end].
type mention struct {
	column     int
	start, end int
}

// columnMentions finds the dataset columns named in tokens, in query order.
// Overlapping matches resolve to the longer column name.
func columnMentions(ds *models.TabularDataset, tokens []string) []mention {
	var found []mention
	for i, c := range ds.Columns {
		words := tokenize(c)
		if pos := indexPhrase(tokens, words); pos >= 0 {
			found = append(found, mention{column: i, start: pos, end: pos + len(words)})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		li, lj := found[i].end-found[i].start, found[j].end-found[j].start
		if li != lj {
			return li > lj
		}
		return found[i].start < found[j].start
	})

	taken := make([]bool, len(tokens))
	var kept []mention
	for _, m := range found {
		overlap := false
		for k := m.start; k < m.end; k++ {
			if taken[k] {
				overlap = true
				break
			}
		}
		if overlap {
			continue
		}
		for k := m.start; k < m.end; k++ {
			taken[k] = true
		}
		kept = append(kept, m)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })
	return kept
}

// longestMention returns the column with the longest name in mentions, the
// earliest one on ties, or -1.
func longestMention(mentions []mention) int {
	best := -1
	bestLen := 0
	for _, m := range mentions {
		if l := m.end - m.start; l > bestLen {
			best, bestLen = m.column, l
		}
	}
	return best
}

// maskMentions blanks the tokens that belong to column names so that a column
// called "count" is not read as an operation.
func maskMentions(tokens []string, mentions []mention) []string {
	masked := append([]string(nil), tokens...)
	for _, m := range mentions {
		for k := m.start; k < m.end; k++ {
			masked[k] = ""
		}
	}
	return masked
}
