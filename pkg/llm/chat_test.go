package llm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/insight/internal/errs"
	"github.com/xhad/insight/pkg/llm"
)

type reply struct {
	text  string
	err   error
	delay time.Duration
}

// scriptedModel answers GenerateContent calls from a fixed script; the last
// entry repeats once the script runs out.
type scriptedModel struct {
	mu       sync.Mutex
	script   []reply
	calls    int
	messages [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	r := m.script[len(m.script)-1]
	if m.calls < len(m.script) {
		r = m.script[m.calls]
	}
	m.calls++
	m.messages = append(m.messages, msgs)
	m.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.delay):
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: r.text}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newEngine(t *testing.T, model llms.Model, cfg llm.ChatConfig) *llm.ChatEngine {
	t.Helper()
	cfg.RetryBackoff = time.Millisecond
	cfg.RateLimit = 1000
	engine, err := llm.NewWithModel(model, cfg)
	require.NoError(t, err)
	return engine
}

func TestNewWithConfig(t *testing.T) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    "ollama",
		Model:       "testmodel",
		Temperature: 0.5,
		MaxTokens:   1000,
		BaseURL:     "http://localhost:1234",
	})
	assert.NoError(t, err)
	assert.NotNil(t, engine)
	assert.Equal(t, "testmodel", engine.Model())
}

func TestNewWithConfigRequiresAPIKey(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{Provider: "openai"})
	assert.Error(t, err)

	engine, err := llm.NewWithConfig(llm.ChatConfig{Provider: "openai", APIKey: "gsk_test"})
	require.NoError(t, err)
	assert.Equal(t, "llama-3.1-8b-instant", engine.Model())
}

func TestNewWithConfigRejectsUnknownProvider(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	model := &scriptedModel{script: []reply{{text: "  The total is 300.  "}}}
	engine := newEngine(t, model, llm.ChatConfig{})

	text, err := engine.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "The total is 300.", text)

	require.Len(t, model.messages, 1)
	msgs := model.messages[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
}

func TestCompleteRetriesThenSucceeds(t *testing.T) {
	model := &scriptedModel{script: []reply{
		{err: errors.New("502 bad gateway")},
		{text: "ok"},
	}}
	engine := newEngine(t, model, llm.ChatConfig{MaxRetries: 2})

	text, err := engine.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, model.callCount())
}

func TestCompleteRequestFailedAfterRetries(t *testing.T) {
	model := &scriptedModel{script: []reply{{err: errors.New("401 unauthorized")}}}
	engine := newEngine(t, model, llm.ChatConfig{MaxRetries: 2})

	_, err := engine.Complete(context.Background(), "s", "u")
	assert.True(t, errs.Is(err, errs.LLMRequestFailed), "got %v", err)
	assert.Equal(t, 3, model.callCount())
}

func TestCompleteTimeout(t *testing.T) {
	model := &scriptedModel{script: []reply{{text: "too late", delay: time.Second}}}
	engine := newEngine(t, model, llm.ChatConfig{Timeout: 20 * time.Millisecond, MaxRetries: 1})

	start := time.Now()
	_, err := engine.Complete(context.Background(), "s", "u")
	assert.True(t, errs.Is(err, errs.LLMTimeout), "got %v", err)
	assert.Equal(t, 2, model.callCount())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCompleteEmptyReplyIsFailure(t *testing.T) {
	model := &scriptedModel{script: []reply{{text: "   "}}}
	engine := newEngine(t, model, llm.ChatConfig{})

	_, err := engine.Complete(context.Background(), "s", "u")
	assert.True(t, errs.Is(err, errs.LLMRequestFailed))
}

func TestCompleteStopsOnCanceledContext(t *testing.T) {
	model := &scriptedModel{script: []reply{{err: errors.New("boom")}}}
	engine := newEngine(t, model, llm.ChatConfig{MaxRetries: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Complete(ctx, "s", "u")
	assert.True(t, errs.Is(err, errs.LLMRequestFailed))
	assert.LessOrEqual(t, model.callCount(), 1)
}

func TestCompleteJSON(t *testing.T) {
	model := &scriptedModel{script: []reply{{text: "```json\n{\"operation\": \"sum\", \"column\": \"revenue\"}\n```"}}}
	engine := newEngine(t, model, llm.ChatConfig{})

	var out struct {
		Operation string `json:"operation"`
		Column    string `json:"column"`
	}
	require.NoError(t, engine.CompleteJSON(context.Background(), "s", "u", &out))
	assert.Equal(t, "sum", out.Operation)
	assert.Equal(t, "revenue", out.Column)
}

func TestCompleteJSONMalformed(t *testing.T) {
	model := &scriptedModel{script: []reply{{text: "I think you want the sum."}}}
	engine := newEngine(t, model, llm.ChatConfig{})

	var out map[string]any
	err := engine.CompleteJSON(context.Background(), "s", "u", &out)
	assert.True(t, errs.Is(err, errs.LLMRequestFailed))
}
