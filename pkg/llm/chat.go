package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/insight/internal/errs"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider     string // "openai" (any OpenAI-compatible endpoint) or "ollama"
	Model        string
	APIKey       string
	BaseURL      string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration // per attempt
	MaxRetries   int
	RetryBackoff time.Duration // first backoff, doubled per retry
	RateLimit    float64       // requests per second
	Logger       *zap.Logger
}

const maxBackoff = 8 * time.Second

// ChatEngine sends completion requests to an LLM with a per-attempt timeout,
// bounded retries and client-side rate limiting. It is safe for concurrent use.
type ChatEngine struct {
	config  ChatConfig
	llm     llms.Model
	limiter *rate.Limiter
	log     *zap.Logger
}

func applyDefaults(config *ChatConfig) error {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Model == "" {
		if config.Provider == "ollama" {
			config.Model = "mistral" // Default Ollama model
		} else {
			config.Model = "llama-3.1-8b-instant"
		}
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 5
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return nil
}

// NewWithConfig creates a new ChatEngine for the configured provider.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if err := applyDefaults(&config); err != nil {
		return nil, err
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("API key is required for provider %q", config.Provider)
		}
		if config.BaseURL == "" {
			config.BaseURL = "https://api.groq.com/openai/v1"
		}
		model, err = openai.New(
			openai.WithToken(config.APIKey),
			openai.WithModel(config.Model),
			openai.WithBaseURL(config.BaseURL),
		)
	case "ollama":
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		model, err = ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(model, config)
}

// NewWithModel creates a ChatEngine around an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if err := applyDefaults(&config); err != nil {
		return nil, err
	}
	return &ChatEngine{
		config:  config,
		llm:     model,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:     config.Logger,
	}, nil
}

// Complete sends a system and a user message and returns the model's reply.
// Failures are LLMTimeout or LLMRequestFailed; both are retried with
// exponential backoff up to MaxRetries times.
func (ce *ChatEngine) Complete(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	backoff := ce.config.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= ce.config.MaxRetries; attempt++ {
		if attempt > 0 {
			ce.log.Warn("retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", ce.contextError(ctx, lastErr)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := ce.limiter.Wait(ctx); err != nil {
			return "", ce.contextError(ctx, err)
		}

		text, err := ce.attempt(ctx, content)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ce.contextError(ctx, lastErr)
		}
	}
	return "", lastErr
}

func (ce *ChatEngine) attempt(ctx context.Context, content []llms.MessageContent) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	start := time.Now()
	response, err := ce.llm.GenerateContent(attemptCtx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return "", errs.Wrap(errs.LLMTimeout, err, "LLM did not respond within %s", ce.config.Timeout)
		}
		return "", errs.Wrap(errs.LLMRequestFailed, err, "LLM request failed")
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", errs.New(errs.LLMRequestFailed, "LLM returned no choices")
	}

	text := strings.TrimSpace(response.Choices[0].Content)
	if text == "" {
		return "", errs.New(errs.LLMRequestFailed, "LLM returned an empty completion")
	}

	ce.log.Debug("LLM completion",
		zap.String("model", ce.config.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(text)))
	return text, nil
}

func (ce *ChatEngine) contextError(ctx context.Context, cause error) error {
	if cause == nil {
		cause = ctx.Err()
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return errs.Wrap(errs.LLMRequestFailed, cause, "request canceled while waiting for the LLM")
	}
	return errs.Wrap(errs.LLMTimeout, cause, "request deadline exceeded while waiting for the LLM")
}

// CompleteJSON completes and decodes the reply as JSON into v.
func (ce *ChatEngine) CompleteJSON(ctx context.Context, system, user string, v any) error {
	text, err := ce.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	if err := DecodeJSON(text, v); err != nil {
		return errs.Wrap(errs.LLMRequestFailed, err, "LLM returned malformed JSON")
	}
	return nil
}

// Model returns the configured model name.
func (ce *ChatEngine) Model() string {
	return ce.config.Model
}
