package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedding struct {
	dim int
	err error
}

func (f fakeEmbedding) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(len(text))
	}
	return out, nil
}

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := NewEmbedderWithConfig(EmbedderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text:latest", emb.config.Model)
	assert.Equal(t, "http://localhost:11434", emb.config.BaseURL)
}

func TestEmbedTexts(t *testing.T) {
	emb := &Embedder{embed: fakeEmbedding{dim: 4}}

	vectors, err := emb.EmbedTexts(context.Background(), []string{"first chunk", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 4)
	assert.Equal(t, float32(11), vectors[0][0])

	query, err := emb.EmbedQuery(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, float32(3), query[0])
}

func TestEmbedTextsError(t *testing.T) {
	emb := &Embedder{embed: fakeEmbedding{err: errors.New("connection refused")}}

	_, err := emb.EmbedTexts(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "connection refused")
}
