package store

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/xhad/insight/internal/types"
)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	BatchSize   int
	SearchLimit int
	Embedder    types.Embedder
	Logger      *zap.Logger
}

// VectorStore indexes document chunks in Postgres with pgvector and retrieves
// the chunks nearest to a query.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	log    *zap.Logger
}

var (
	_ types.Retriever = (*VectorStore)(nil)
	_ types.Indexer   = (*VectorStore)(nil)
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "document_chunks"
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}
	if config.Embedder == nil {
		return nil, fmt.Errorf("an embedder is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		log:    config.Logger,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err = vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createDocIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_doc_idx ON %s (doc_id, chunk_index)`,
		vs.config.TableName, vs.config.TableName)

	if _, err = vs.pool.Exec(ctx, createDocIndex); err != nil {
		return fmt.Errorf("failed to create doc index: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	if _, err = vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Index embeds chunks and replaces any rows previously stored for docID.
func (vs *VectorStore) Index(ctx context.Context, docID string, chunks []string) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", vs.config.TableName), docID); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, doc_id, chunk_index, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.config.TableName)

	for _, span := range batches(len(chunks), vs.config.BatchSize) {
		texts := make([]string, 0, span[1]-span[0])
		for _, c := range chunks[span[0]:span[1]] {
			texts = append(texts, sanitizeUTF8(c))
		}

		vectors, err := vs.config.Embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to create embeddings: %w", err)
		}

		batch := &pgx.Batch{}
		for i, text := range texts {
			idx := span[0] + i
			batch.Queue(stmt,
				fmt.Sprintf("%s_%d", docID, idx),
				docID,
				idx,
				text,
				pgvector.NewVector(vectors[i]),
				map[string]any{"chars": utf8.RuneCountInString(text)},
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	vs.log.Info("indexed document",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// Retrieve returns the chunks of docID closest to query by cosine distance.
// Equal distances are ordered by chunk index.
func (vs *VectorStore) Retrieve(ctx context.Context, docID, query string, limit int) ([]types.Chunk, error) {
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}

	embedding, err := vs.config.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sql := fmt.Sprintf(`
		SELECT chunk_index, content, embedding <=> $2 AS distance
		FROM %s
		WHERE doc_id = $1
		ORDER BY distance, chunk_index
		LIMIT $3`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, sql, docID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var (
			c        types.Chunk
			distance float64
		)
		if err := rows.Scan(&c.Index, &c.Content, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		c.Score = 1 - distance
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}

	return chunks, nil
}

// Delete removes every chunk stored for docID.
func (vs *VectorStore) Delete(ctx context.Context, docID string) error {
	_, err := vs.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", vs.config.TableName), docID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// batches splits n items into [start, end) spans of at most size items.
func batches(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var spans [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, [2]int{start, end})
	}
	return spans
}

// Postgres rejects invalid UTF-8 in TEXT columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
