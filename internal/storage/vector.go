package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/corner-places/venue-engine/internal/config"
	"github.com/corner-places/venue-engine/internal/observability"
)

var (
	// ErrVectorsUnavailable is returned when the backend has no vector support.
	ErrVectorsUnavailable = errors.New("vector storage unavailable")
	// ErrVectorDimensionMismatch indicates a dimension mismatch.
	ErrVectorDimensionMismatch = errors.New("vector dimension mismatch")
)

// VectorStore persists one embedding per (place, content type) and answers
// similarity queries over them.
type VectorStore interface {
	// Available reports whether vector operations can succeed.
	Available() bool

	// Upsert stores or replaces the embedding for rec.PlaceID and rec.ContentType.
	Upsert(ctx context.Context, rec VectorRecord) error

	// Search returns up to limit matches ordered by descending similarity.
	Search(ctx context.Context, query []float32, contentType string, filter VectorFilter, limit int) ([]VectorMatch, error)

	// States returns the stored content hash and last update per place.
	States(ctx context.Context, contentType string) (map[int64]VectorState, error)

	// Count returns the number of stored embeddings.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// OpenVectorStore builds the configured vector store on top of db.
func OpenVectorStore(ctx context.Context, cfg config.VectorConfig, db *Database, logger *observability.Logger) (VectorStore, error) {
	switch cfg.Adapter {
	case "pgvector":
		return NewPGVectorStore(ctx, db, cfg.Dimension, logger)
	case "bolt":
		return NewBoltVectorStore(cfg.Bolt.Path, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported vector adapter: %s", cfg.Adapter)
	}
}

// cosineDistance returns 1 - dot for unit vectors, clamped to [0, 2].
func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 1.0
	}

	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}

	// Clamp to [-1, 1] range due to floating point errors
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}

	return 1 - dot
}

// normalizeVector returns a unit vector.
func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)

	if norm == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, x := range v {
		normalized[i] = float32(float64(x) / norm)
	}

	return normalized
}

func contentTypeOrDefault(contentType string) string {
	if contentType == "" {
		return DefaultContentType
	}
	return contentType
}
