package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/pkg/logging"
)

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	SearchLimit int
	Logger      *zap.Logger
}

// VectorStore is a pgvector-backed index. The pool is opened on first use
// and the schema is created on the first Store.
type VectorStore struct {
	config VectorStoreConfig
	logger *zap.Logger

	mu      sync.Mutex
	pool    *pgxpool.Pool
	created bool
}

func NewWithConfig(config VectorStoreConfig) (*VectorStore, error) {
	if config.ConnString == "" {
		return nil, errors.New("database connection string is required")
	}
	if config.TableName == "" {
		config.TableName = "documents"
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
	config.Logger = logging.OrNop(config.Logger)

	return &VectorStore{config: config, logger: config.Logger}, nil
}

func (vs *VectorStore) connect(ctx context.Context) (*pgxpool.Pool, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.pool != nil {
		return vs.pool, nil
	}

	pool, err := pgxpool.New(ctx, vs.config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	vs.pool = pool
	return pool, nil
}

func (vs *VectorStore) initialize(ctx context.Context, pool *pgxpool.Pool) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.created {
		return nil
	}

	// Enable pgvector extension
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT,
			content TEXT,
			chunk_index INTEGER,
			embedding vector(%d),
			metadata JSONB
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err := pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	vs.created = true
	vs.logger.Info("Vector index ready",
		zap.String("table", vs.config.TableName),
		zap.Int("dim", vs.config.VectorDim))
	return nil
}

// Store writes every chunk of every document in one transaction.
func (vs *VectorStore) Store(ctx context.Context, docs []models.ProcessedDocument) error {
	records, err := rows(docs)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	if got := len(records[0].embedding); got != vs.config.VectorDim {
		return fmt.Errorf("%w: got dimension %d, index has %d", ErrEmbeddingMismatch, got, vs.config.VectorDim)
	}

	pool, err := vs.connect(ctx)
	if err != nil {
		return err
	}
	if err := vs.initialize(ctx, pool); err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, url, title, content, chunk_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		vs.config.TableName)

	for _, r := range records {
		_, err = tx.Exec(ctx, stmt,
			r.id,
			r.documentID,
			r.url,
			r.title,
			r.content,
			r.index,
			pgvector.NewVector(r.embedding),
			r.metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d of %s: %w", r.index, r.url, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	vs.logger.Debug("Stored chunks", zap.Int("chunks", len(records)))
	return nil
}

// Query returns the limit nearest chunks with their cosine distance.
func (vs *VectorStore) Query(ctx context.Context, queryEmbedding []float32, limit int) ([]models.DocumentChunk, error) {
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}

	pool, err := vs.connect(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT content, embedding <=> $1 AS distance
		FROM %s
		ORDER BY distance
		LIMIT $2`,
		vs.config.TableName)

	rs, err := pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, vs.queryError(err)
	}
	defer rs.Close()

	var chunks []models.DocumentChunk
	for rs.Next() {
		var chunk models.DocumentChunk
		if err := rs.Scan(&chunk.Content, &chunk.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rs.Err(); err != nil {
		return nil, vs.queryError(err)
	}

	return chunks, nil
}

func (vs *VectorStore) queryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return ErrNoIndex
	}
	return fmt.Errorf("failed to query documents: %w", err)
}

func (vs *VectorStore) Close() {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.pool != nil {
		vs.pool.Close()
		vs.pool = nil
	}
}
