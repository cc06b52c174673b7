package types

import (
	"context"

	"github.com/xhad/insight/internal/models"
)

// Core interfaces
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	CompleteJSON(ctx context.Context, system, user string, v any) error
}

type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunk is a retrieved piece of a document.
type Chunk struct {
	Index   int
	Content string
	Score   float64
}

type Retriever interface {
	Retrieve(ctx context.Context, docID, query string, limit int) ([]Chunk, error)
}

type Indexer interface {
	Index(ctx context.Context, docID string, chunks []string) error
	Delete(ctx context.Context, docID string) error
}

type DataAnswerer interface {
	Answer(ctx context.Context, dataset *models.TabularDataset, query string) (models.AgentResponse, error)
}

type DocumentAnswerer interface {
	Answer(ctx context.Context, doc models.DocumentText, query string) (models.AgentResponse, error)
}

type Chunker interface {
	Chunk(text string) ([]string, error)
}
