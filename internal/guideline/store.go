package guideline

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Store persists guideline chunks and answers nearest-neighbor queries
// over their embeddings. Safe for concurrent use.
type Store struct {
	db DB
}

// NewStore creates a Store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Add inserts a chunk with its embedding.
func (s *Store) Add(ctx context.Context, chunk *Chunk, embedding []float32) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO guideline_chunks (source, section, content, embedding)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		chunk.Source, chunk.Section, chunk.Content, pgvector.NewVector(embedding),
	).Scan(&chunk.ID)
	if err != nil {
		return fmt.Errorf("inserting guideline chunk: %w", err)
	}
	return nil
}

// Nearest returns the limit chunks closest to the query embedding by
// cosine distance, with cosine similarity attached.
func (s *Store) Nearest(ctx context.Context, embedding []float32, limit int) ([]Scored, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, source, section, content, 1 - (embedding <=> $1) AS similarity
		 FROM guideline_chunks
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("querying nearest chunks: %w", err)
	}
	defer rows.Close()

	var results []Scored
	for rows.Next() {
		var sc Scored
		if err := rows.Scan(&sc.ID, &sc.Source, &sc.Section, &sc.Content, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM guideline_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}
