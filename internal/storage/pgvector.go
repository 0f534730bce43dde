package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/corner-places/venue-engine/internal/observability"
)

// PGVectorStore keeps embeddings in a Postgres table with a pgvector column.
type PGVectorStore struct {
	db        *sql.DB
	dimension int
	available bool
	logger    *observability.Logger
}

// NewPGVectorStore checks for the vector extension and creates the embeddings
// table when it is present. A database without the extension yields a store
// whose operations return ErrVectorsUnavailable; place persistence is unaffected.
func NewPGVectorStore(ctx context.Context, db *Database, dimension int, logger *observability.Logger) (*PGVectorStore, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if db.Dialect != DialectPostgres {
		return nil, fmt.Errorf("pgvector requires postgres, got %s", db.Dialect)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dimension)
	}

	s := &PGVectorStore{db: db.DB, dimension: dimension, logger: logger.WithOperation("pgvector")}

	available, err := s.detectExtension(ctx)
	if err != nil {
		return nil, err
	}
	if !available {
		s.logger.Warn().Msg("pgvector extension not available; embeddings will not be stored")
		return s, nil
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS embeddings (
			id           BIGSERIAL PRIMARY KEY,
			place_id     BIGINT NOT NULL REFERENCES places(id) ON DELETE CASCADE,
			embedding    vector(%d) NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'combined',
			content_hash TEXT NOT NULL DEFAULT '',
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (place_id, content_type)
		)`, dimension)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create embeddings table: %w", err)
	}

	s.available = true
	return s, nil
}

// detectExtension reports whether the vector extension is installed, trying
// to install it once when missing.
func (s *PGVectorStore) detectExtension(ctx context.Context) (bool, error) {
	var installed bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&installed)
	if err != nil {
		return false, fmt.Errorf("check vector extension: %w", err)
	}
	if installed {
		return true, nil
	}

	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		s.logger.Warn().Err(err).Msg("Could not create vector extension")
		return false, nil
	}
	return true, nil
}

// Available reports whether the vector extension was found.
func (s *PGVectorStore) Available() bool {
	return s.available
}

func (s *PGVectorStore) unavailable(op string) error {
	s.logger.Warn().Str("op", op).Msg("Vector operation skipped: pgvector not available")
	return ErrVectorsUnavailable
}

// Upsert stores the embedding for one place.
func (s *PGVectorStore) Upsert(ctx context.Context, rec VectorRecord) error {
	if !s.available {
		return s.unavailable("upsert")
	}
	if len(rec.Vector) != s.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrVectorDimensionMismatch, s.dimension, len(rec.Vector))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (place_id, embedding, content_type, content_hash, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (place_id, content_type) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content_hash = EXCLUDED.content_hash,
			last_updated = EXCLUDED.last_updated
	`, rec.PlaceID, pgvector.NewVector(rec.Vector), contentTypeOrDefault(rec.ContentType), rec.ContentHash, rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert embedding for place %d: %w", rec.PlaceID, err)
	}
	return nil
}

// Search ranks embeddings by cosine similarity, optionally restricted to
// places whose neighborhood contains filter.Neighborhood.
func (s *PGVectorStore) Search(ctx context.Context, query []float32, contentType string, filter VectorFilter, limit int) ([]VectorMatch, error) {
	if !s.available {
		return nil, s.unavailable("search")
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVectorDimensionMismatch, s.dimension, len(query))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.place_id, 1 - (e.embedding <=> $1) AS similarity
		FROM embeddings e
		JOIN places p ON p.id = e.place_id
		WHERE e.content_type = $2
			AND ($3::text = '' OR p.neighborhood ILIKE '%' || $3::text || '%')
		ORDER BY e.embedding <=> $1
		LIMIT $4
	`, pgvector.NewVector(query), contentTypeOrDefault(contentType), filter.Neighborhood, limit)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	defer rows.Close()

	var matches []VectorMatch
	for rows.Next() {
		var m VectorMatch
		if err := rows.Scan(&m.PlaceID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan embedding match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// States returns freshness data for every stored embedding of contentType.
func (s *PGVectorStore) States(ctx context.Context, contentType string) (map[int64]VectorState, error) {
	if !s.available {
		return nil, s.unavailable("states")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT place_id, content_hash, last_updated FROM embeddings WHERE content_type = $1
	`, contentTypeOrDefault(contentType))
	if err != nil {
		return nil, fmt.Errorf("list embedding states: %w", err)
	}
	defer rows.Close()

	states := make(map[int64]VectorState)
	for rows.Next() {
		var id int64
		var st VectorState
		if err := rows.Scan(&id, &st.ContentHash, &st.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan embedding state: %w", err)
		}
		states[id] = st
	}
	return states, rows.Err()
}

// Count returns the number of stored embeddings.
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	if !s.available {
		return 0, s.unavailable("count")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// Close is a no-op; the connection pool belongs to the caller.
func (s *PGVectorStore) Close() error {
	return nil
}
