package processor

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/xhad/insight/internal/types"
)

type ProcessorConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	Separators      []string
	CustomStopwords []string
}

// Processor splits document text into chunks and ranks chunks against a query.
// Both operations are deterministic.
type Processor struct {
	config    ProcessorConfig
	splitter  textsplitter.RecursiveCharacter
	stopwords map[string]struct{}
}

func NewWithConfig(config ProcessorConfig) *Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 100
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 10
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", ". ", " ", ""}
	}

	stopwords := make(map[string]struct{})
	for _, w := range getStopwords() {
		stopwords[w] = struct{}{}
	}
	for _, w := range config.CustomStopwords {
		stopwords[strings.ToLower(w)] = struct{}{}
	}

	return &Processor{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
			textsplitter.WithSeparators(config.Separators),
		),
		stopwords: stopwords,
	}
}

// ChunkSize returns the configured maximum chunk length in characters.
func (p *Processor) ChunkSize() int {
	return p.config.ChunkSize
}

// Chunk normalizes whitespace and splits text into chunks of at most ChunkSize
// characters, in document order.
func (p *Processor) Chunk(text string) ([]string, error) {
	clean := p.cleanText(text)
	if clean == "" {
		return nil, nil
	}

	splits, err := p.splitter.SplitText(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]string, 0, len(splits))
	for _, s := range splits {
		s = strings.TrimSpace(s)
		if s != "" {
			chunks = append(chunks, s)
		}
	}
	return chunks, nil
}

// cleanText collapses runs of spaces within a line and keeps at most one blank
// line between paragraphs.
func (p *Processor) cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var b strings.Builder
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = b.Len() > 0
			continue
		}
		if b.Len() > 0 {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		b.WriteString(line)
		blank = false
	}
	return b.String()
}

// Rank scores chunks by query term frequency weighted by inverse chunk
// frequency and returns the best limit of them, highest score first. Ties keep
// document order. limit <= 0 returns every chunk.
func (p *Processor) Rank(chunks []string, query string, limit int) []types.Chunk {
	terms := uniqueTerms(p.Terms(query))

	tokenized := make([]map[string]int, len(chunks))
	df := make(map[string]int)
	for i, c := range chunks {
		counts := make(map[string]int)
		for _, tok := range p.Terms(c) {
			counts[tok]++
		}
		tokenized[i] = counts
		for _, term := range terms {
			if counts[term] > 0 {
				df[term]++
			}
		}
	}

	ranked := make([]types.Chunk, len(chunks))
	n := float64(len(chunks))
	for i, c := range chunks {
		score := 0.0
		for _, term := range terms {
			tf := tokenized[i][term]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + n/float64(df[term]))
			score += float64(tf) * idf
		}
		ranked[i] = types.Chunk{Index: i, Content: c, Score: score}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return ranked[a].Index < ranked[b].Index
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Terms lower-cases text, splits it on anything that is not a letter or digit
// and drops stopwords. Repeated terms are kept.
func (p *Processor) Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	filtered := words[:0]
	for _, w := range words {
		if _, stop := p.stopwords[w]; !stop {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

// uniqueTerms is Terms without repeats, in first-seen order.
func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Common English stopwords
func getStopwords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with",
		"what", "which", "who", "how", "does", "do", "did", "this",
		"about", "say", "says", "document", "tell", "me",
	}
}
