package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/internal/models"
	"github.com/xhad/insight/internal/types"
	"github.com/xhad/insight/pkg/llm"
)

// ChunkRanker splits text into chunks and ranks chunks against a query.
type ChunkRanker interface {
	types.Chunker
	Rank(chunks []string, query string, limit int) []types.Chunk
}

type ResearchConfig struct {
	LLM       types.Completer
	Processor ChunkRanker
	// Retriever, when set, is asked for the chunks of an indexed document
	// before falling back to lexical ranking.
	Retriever types.Retriever

	ContextBudget  int // characters per LLM call
	MaxReduceDepth int
	Parallelism    int
	KeywordChunks  int
	RetrieveLimit  int
	Logger         *zap.Logger
}

// NotInDocument is the answer the LLM is told to give when the provided text
// does not answer a question.
const NotInDocument = "The document does not contain this information."

// ResearchAgent summarizes documents, extracts keywords and answers questions
// from document text.
type ResearchAgent struct {
	config ResearchConfig
	log    *zap.Logger
}

var _ types.DocumentAnswerer = (*ResearchAgent)(nil)

func NewResearchAgent(config ResearchConfig) (*ResearchAgent, error) {
	if config.LLM == nil {
		return nil, fmt.Errorf("research agent needs an LLM")
	}
	if config.Processor == nil {
		return nil, fmt.Errorf("research agent needs a text processor")
	}
	if config.ContextBudget <= 0 {
		config.ContextBudget = 12000
	}
	if config.MaxReduceDepth <= 0 {
		config.MaxReduceDepth = 3
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 4
	}
	if config.KeywordChunks <= 0 {
		config.KeywordChunks = 4
	}
	if config.RetrieveLimit <= 0 {
		config.RetrieveLimit = 4
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &ResearchAgent{config: config, log: config.Logger}, nil
}

// Answer handles a summary, keyword or question request about doc.
func (a *ResearchAgent) Answer(ctx context.Context, doc models.DocumentText, query string) (models.AgentResponse, error) {
	if doc.IsEmpty() {
		return models.AgentResponse{}, errs.New(errs.EmptyDocument, "the document contains no text")
	}
	if strings.TrimSpace(query) == "" {
		return models.AgentResponse{}, errs.New(errs.InvalidQuery, "query is empty")
	}

	chunks, err := a.config.Processor.Chunk(doc.Text)
	if err != nil {
		return models.AgentResponse{}, errs.Wrap(errs.UnreadableFile, err, "failed to chunk document")
	}
	if len(chunks) == 0 {
		return models.AgentResponse{}, errs.New(errs.EmptyDocument, "the document contains no text")
	}

	intent, abstract := ClassifyResearchQuery(query)
	a.log.Debug("classified research query",
		zap.String("query", query),
		zap.String("intent", string(intent)),
		zap.Bool("abstract", abstract),
		zap.Int("chunks", len(chunks)))

	switch intent {
	case models.IntentExtractKeywords:
		keywords, err := a.Keywords(ctx, chunks)
		if err != nil {
			return models.AgentResponse{}, err
		}
		return models.AgentResponse{
			Agent:    models.AgentResearch,
			Kind:     models.ResponseKeywordList,
			Intent:   intent,
			Message:  strings.Join(keywords, ", "),
			Keywords: keywords,
		}, nil
	case models.IntentSummarize:
		var summary string
		if abstract {
			summary, err = a.Abstract(ctx, chunks)
		} else {
			summary, err = a.Summarize(ctx, chunks)
		}
		if err != nil {
			return models.AgentResponse{}, err
		}
		return models.TextResponse(models.AgentResearch, intent, summary), nil
	default:
		answer, err := a.Ask(ctx, doc.SourceID, chunks, query)
		if err != nil {
			return models.AgentResponse{}, err
		}
		return models.TextResponse(models.AgentResearch, models.IntentQA, answer), nil
	}
}

const (
	summarySystemPrompt = `You are an expert summarizer. Write a concise summary of the text below.
Keep the key findings, figures and conclusions exactly as stated in the text. Do not add information.`

	combineSystemPrompt = `You are an expert summarizer. The text below is a sequence of partial summaries of one document, in order.
Combine them into a single concise summary that keeps the key findings, figures and conclusions. Do not add information.`

	abstractSystemPrompt = `You are an expert summarizer. Provide a detailed summary of the abstract from the following text.`

	keywordsSystemPrompt = `You are an expert at extracting keywords from a research paper.
Reply with a JSON array of the 5 to 10 most important keywords and terms in the text, and nothing else.`

	qaSystemPrompt = `You answer questions about a document using only the excerpts provided.
Do not use outside knowledge. If the excerpts do not contain the answer, reply exactly: ` + NotInDocument
)

// complete calls the LLM and rejects blank replies.
func (a *ResearchAgent) complete(ctx context.Context, system, user string) (string, error) {
	text, err := a.config.LLM.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.New(errs.LLMRequestFailed, "LLM returned an empty answer")
	}
	return text, nil
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Summarize summarizes the whole document. Text that does not fit the context
// budget is summarized in map-reduce rounds: chunks are packed into groups
// that fit, each group is summarized in parallel, and the partial summaries
// are combined. After MaxReduceDepth rounds the result must fit or the call
// fails with ContextTooLarge.
func (a *ResearchAgent) Summarize(ctx context.Context, chunks []string) (string, error) {
	budget := a.config.ContextBudget
	parts := chunks
	for round := 0; ; round++ {
		joined := strings.Join(parts, "\n\n")
		if runeLen(joined) <= budget {
			prompt := summarySystemPrompt
			if round > 0 {
				prompt = combineSystemPrompt
			}
			return a.complete(ctx, prompt, joined)
		}
		if round >= a.config.MaxReduceDepth {
			return "", errs.New(errs.ContextTooLarge,
				"document still exceeds the %d character budget after %d summarization rounds", budget, round)
		}

		groups, err := pack(parts, budget)
		if err != nil {
			return "", err
		}
		prompt := summarySystemPrompt
		if round > 0 {
			prompt = combineSystemPrompt
		}
		a.log.Debug("map-reduce round",
			zap.Int("round", round+1),
			zap.Int("parts", len(parts)),
			zap.Int("groups", len(groups)))

		parts, err = a.mapComplete(ctx, prompt, groups)
		if err != nil {
			return "", err
		}
	}
}

// pack joins consecutive parts into groups of at most budget characters,
// keeping order.
func pack(parts []string, budget int) ([]string, error) {
	var (
		groups  []string
		current strings.Builder
		size    int
	)
	for i, p := range parts {
		n := runeLen(p)
		if n > budget {
			return nil, errs.New(errs.ContextTooLarge,
				"chunk %d has %d characters, more than the %d character budget", i, n, budget)
		}
		if size > 0 && size+2+n > budget {
			groups = append(groups, current.String())
			current.Reset()
			size = 0
		}
		if size > 0 {
			current.WriteString("\n\n")
			size += 2
		}
		current.WriteString(p)
		size += n
	}
	if size > 0 {
		groups = append(groups, current.String())
	}
	return groups, nil
}

// mapComplete runs one completion per input with bounded parallelism and
// returns the replies in input order. The first failure cancels the rest.
func (a *ResearchAgent) mapComplete(ctx context.Context, system string, inputs []string) ([]string, error) {
	out := make([]string, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Parallelism)
	for i, in := range inputs {
		g.Go(func() error {
			text, err := a.complete(gctx, system, in)
			if err != nil {
				return err
			}
			out[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Abstract summarizes the first chunk, where an abstract usually is.
func (a *ResearchAgent) Abstract(ctx context.Context, chunks []string) (string, error) {
	first := chunks[0]
	if n := runeLen(first); n > a.config.ContextBudget {
		return "", errs.New(errs.ContextTooLarge,
			"first chunk has %d characters, more than the %d character budget", n, a.config.ContextBudget)
	}
	return a.complete(ctx, abstractSystemPrompt, "Text: "+first)
}

// Keywords extracts up to ten keywords from the leading chunks that fit the
// budget.
func (a *ResearchAgent) Keywords(ctx context.Context, chunks []string) ([]string, error) {
	limit := a.config.KeywordChunks
	if limit > len(chunks) {
		limit = len(chunks)
	}

	var (
		selected []string
		size     int
	)
	for _, c := range chunks[:limit] {
		n := runeLen(c)
		if size > 0 {
			n++
		}
		if size+n > a.config.ContextBudget {
			break
		}
		selected = append(selected, c)
		size += n
	}
	if len(selected) == 0 {
		return nil, errs.New(errs.ContextTooLarge,
			"first chunk is larger than the %d character budget", a.config.ContextBudget)
	}

	reply, err := a.complete(ctx, keywordsSystemPrompt,
		"Extract the most important keywords from the following text: "+strings.Join(selected, " "))
	if err != nil {
		return nil, err
	}

	keywords := ParseKeywords(reply)
	if len(keywords) == 0 {
		return nil, errs.New(errs.LLMRequestFailed, "LLM returned no keywords")
	}
	return keywords, nil
}

const maxKeywords = 10

// ParseKeywords reads a JSON array (or an object with a "keywords" array),
// falling back to a comma or line separated list. Keywords are trimmed,
// de-duplicated ignoring case and capped at ten.
func ParseKeywords(reply string) []string {
	var raw []string
	if err := llm.DecodeJSON(reply, &raw); err != nil {
		var wrapped struct {
			Keywords []string `json:"keywords"`
		}
		if err := llm.DecodeJSON(reply, &wrapped); err == nil && len(wrapped.Keywords) > 0 {
			raw = wrapped.Keywords
		} else {
			raw = strings.FieldsFunc(llm.StripCodeFences(reply), func(r rune) bool {
				return r == ',' || r == '\n' || r == ';'
			})
		}
	}

	seen := make(map[string]bool)
	var keywords []string
	for _, k := range raw {
		k = cleanKeyword(k)
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true
		keywords = append(keywords, k)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// cleanKeyword strips list markers, numbering and quotes.
func cleanKeyword(k string) string {
	k = strings.TrimSpace(k)
	k = strings.TrimLeft(k, "-*•# ")
	if i := strings.IndexAny(k, ".)"); i > 0 && i <= 3 && strings.Trim(k[:i], "0123456789") == "" {
		k = k[i+1:]
	}
	k = strings.Trim(strings.TrimSpace(k), `"'`+"`")
	return strings.TrimSpace(k)
}

// Ask answers question from the document. When the document fits the budget
// it is sent whole; otherwise the most relevant chunks are selected, packed up
// to the budget and sent in document order. The budget covers the whole
// prompt, question and excerpt markers included.
func (a *ResearchAgent) Ask(ctx context.Context, docID string, chunks []string, question string) (string, error) {
	budget := a.config.ContextBudget - runeLen(qaHeader) - runeLen(qaQuestion(question))
	if budget <= 0 {
		return "", errs.New(errs.ContextTooLarge,
			"the question leaves no room for the document in the %d character budget", a.config.ContextBudget)
	}

	var excerpts []string
	if joined := strings.Join(chunks, "\n\n"); runeLen(joined)+excerptOverhead(1) <= budget {
		excerpts = []string{joined}
	} else {
		selected, err := a.selectChunks(ctx, docID, chunks, question, budget)
		if err != nil {
			return "", err
		}
		for _, c := range selected {
			excerpts = append(excerpts, c.Content)
		}
	}

	var b strings.Builder
	b.WriteString(qaHeader)
	for i, e := range excerpts {
		fmt.Fprintf(&b, "[%d]\n%s\n\n", i+1, e)
	}
	b.WriteString(qaQuestion(question))

	return a.complete(ctx, qaSystemPrompt, b.String())
}

const qaHeader = "Document excerpts:\n\n"

func qaQuestion(question string) string {
	return "Question: " + question
}

// excerptOverhead is the size of the "[i]" marker line and the blank line
// around one excerpt when at most n excerpts are sent.
func excerptOverhead(n int) int {
	return len(fmt.Sprintf("[%d]\n\n\n", n))
}

// selectChunks ranks chunks for question and keeps as many of the best as fit
// budget, returned in document order.
func (a *ResearchAgent) selectChunks(ctx context.Context, docID string, chunks []string, question string, budget int) ([]types.Chunk, error) {
	var ranked []types.Chunk
	if a.config.Retriever != nil && docID != "" {
		retrieved, err := a.config.Retriever.Retrieve(ctx, docID, question, a.config.RetrieveLimit)
		if err != nil {
			a.log.Warn("vector retrieval failed; using lexical ranking",
				zap.String("doc_id", docID),
				zap.Error(err))
		}
		ranked = retrieved
	}
	if len(ranked) == 0 {
		ranked = a.config.Processor.Rank(chunks, question, 0)
	}

	overhead := excerptOverhead(len(ranked))
	var (
		selected []types.Chunk
		size     int
	)
	for _, c := range ranked {
		n := runeLen(c.Content) + overhead
		if size+n > budget {
			if len(selected) == 0 {
				return nil, errs.New(errs.ContextTooLarge,
					"the most relevant chunk is larger than the %d character budget", a.config.ContextBudget)
			}
			continue
		}
		selected = append(selected, c)
		size += n
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].Index < selected[j].Index })
	return selected, nil
}
