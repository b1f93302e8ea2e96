package store

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/readaloud/internal/models"
	"github.com/xhad/readaloud/internal/types"
)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	SearchLimit int
}

// VectorStore indexes chunk text embeddings in Postgres so stored articles
// can be searched by meaning. It mirrors the filesystem store and is never
// the source of truth.
type VectorStore struct {
	config   VectorStoreConfig
	pool     *pgxpool.Pool
	embedder types.Embedder
}

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func NewWithConfig(ctx context.Context, config VectorStoreConfig, embedder types.Embedder) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "article_chunks"
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}
	if embedder == nil {
		return nil, fmt.Errorf("vector store requires an embedder")
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config:   config,
		pool:     pool,
		embedder: embedder,
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
			path TEXT NOT NULL,
			title TEXT,
			url TEXT,
			chunk_index INTEGER NOT NULL,
			content TEXT,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err = vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createPathIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_path_idx ON %s (path)`,
		vs.config.TableName, vs.config.TableName)
	if _, err = vs.pool.Exec(ctx, createPathIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	// Create vector index
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

// IndexArticle replaces every indexed chunk of the article.
func (vs *VectorStore) IndexArticle(ctx context.Context, article *models.Article) error {
	texts := make([]string, len(article.Chunks))
	for i, c := range article.Chunks {
		texts[i] = sanitizeUTF8(c.Text)
	}

	var embeddings [][]float32
	if len(texts) > 0 {
		var err error
		embeddings, err = vs.embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(embeddings) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(texts))
		}
	}

	// Begin transaction
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	deleteStmt := fmt.Sprintf(`DELETE FROM %s WHERE path = $1`, vs.config.TableName)
	if _, err := tx.Exec(ctx, deleteStmt, article.Path); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	insertStmt := fmt.Sprintf(`
		INSERT INTO %s (id, path, title, url, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		vs.config.TableName)

	cleanTitle := sanitizeUTF8(article.Title)
	for i, text := range texts {
		id := fmt.Sprintf("%s_%d", article.Path, i)
		_, err = tx.Exec(ctx, insertStmt,
			id,
			article.Path,
			cleanTitle,
			article.URL,
			i,
			text,
			pgvector.NewVector(embeddings[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Query returns the chunks closest to the embedding by cosine distance.
func (vs *VectorStore) Query(ctx context.Context, queryEmbedding []float32, limit int) ([]models.ChunkMatch, error) {
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT path, title, chunk_index, content, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	matches := []models.ChunkMatch{}
	for rows.Next() {
		var m models.ChunkMatch
		if err := rows.Scan(&m.Path, &m.Title, &m.ChunkIndex, &m.Text, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return matches, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

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
