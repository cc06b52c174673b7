package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/insight/internal/types"
	"github.com/xhad/insight/pkg/agent"
	"github.com/xhad/insight/pkg/config"
	"github.com/xhad/insight/pkg/llm"
	"github.com/xhad/insight/pkg/processor"
	"github.com/xhad/insight/pkg/session"
	"github.com/xhad/insight/pkg/store"
)

const indexDeleteTimeout = 10 * time.Second

// app holds the components shared by the serve and chat commands.
type app struct {
	config       *config.Config
	processor    *processor.Processor
	orchestrator *agent.Orchestrator
	// vectors is nil when no database is configured.
	vectors vectorIndex
}

// vectorIndex is the part of the vector store the commands use.
type vectorIndex interface {
	types.Indexer
	types.Retriever
	Close()
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		errList := make([]error, len(problems))
		for i, p := range problems {
			errList[i] = p
		}
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errList...))
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		RateLimit:   cfg.LLM.RateLimit,
		Logger:      log.Named("llm"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})

	a := &app{config: cfg, processor: proc}

	if cfg.Database.URL != "" {
		embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Model:   cfg.Embedder.Model,
			BaseURL: cfg.Embedder.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		vectors, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.TableName,
			VectorDim:  cfg.Database.VectorDim,
			BatchSize:  cfg.Database.BatchSize,
			Embedder:   embedder,
			Logger:     log.Named("store"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		a.vectors = vectors
	} else {
		log.Info("no database configured, documents are ranked lexically")
	}

	researchConfig := agent.ResearchConfig{
		LLM:           chatEngine,
		Processor:     proc,
		ContextBudget: cfg.LLM.ContextBudget,
		Logger:        log.Named("research"),
	}
	if a.vectors != nil {
		researchConfig.Retriever = a.vectors
	}
	research, err := agent.NewResearchAgent(researchConfig)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.orchestrator = agent.NewOrchestrator(agent.OrchestratorConfig{
		Data: agent.NewDataAgent(agent.DataConfig{
			LLM:    chatEngine,
			Logger: log.Named("data"),
		}),
		Research: research,
		Logger:   log.Named("orchestrator"),
	})
	return a, nil
}

// dropIndex deletes the vector index of an upload leaving a session store.
func (a *app) dropIndex(e session.Entry) {
	if a.vectors == nil || e.Loaded.Document == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), indexDeleteTimeout)
	defer cancel()
	if err := a.vectors.Delete(ctx, e.ID); err != nil {
		logger.Warn("failed to delete document index",
			zap.String("file_id", e.ID),
			zap.Error(err))
	}
}

func (a *app) Close() {
	if a.vectors != nil {
		a.vectors.Close()
	}
}
