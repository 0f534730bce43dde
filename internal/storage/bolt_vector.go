package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

var bucketEmbeddings = []byte("embeddings")

// BoltVectorStore keeps embeddings in a local bbolt file and searches them by
// brute-force cosine similarity. It backs SQLite deployments, which have no
// vector column type.
type BoltVectorStore struct {
	db        *bbolt.DB
	dimension int
}

// NewBoltVectorStore opens (or creates) the vector file at path.
func NewBoltVectorStore(path string, dimension int) (*BoltVectorStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dimension)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open vector file %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEmbeddings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create embeddings bucket: %w", err)
	}

	return &BoltVectorStore{db: db, dimension: dimension}, nil
}

func vectorKey(contentType string, placeID int64) []byte {
	return []byte(fmt.Sprintf("%s:%020d", contentTypeOrDefault(contentType), placeID))
}

func vectorPrefix(contentType string) []byte {
	return []byte(contentTypeOrDefault(contentType) + ":")
}

// Available always reports true.
func (s *BoltVectorStore) Available() bool {
	return true
}

// Upsert stores or replaces one embedding.
func (s *BoltVectorStore) Upsert(ctx context.Context, rec VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rec.Vector) != s.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrVectorDimensionMismatch, s.dimension, len(rec.Vector))
	}
	rec.ContentType = contentTypeOrDefault(rec.ContentType)

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(vectorKey(rec.ContentType, rec.PlaceID), data)
	})
}

// each calls fn for every record of contentType.
func (s *BoltVectorStore) each(contentType string, fn func(rec VectorRecord) error) error {
	prefix := vectorPrefix(contentType)
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEmbeddings).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec VectorRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode embedding %s: %w", k, err)
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search scans every embedding of contentType and returns the closest ones.
func (s *BoltVectorStore) Search(ctx context.Context, query []float32, contentType string, filter VectorFilter, limit int) ([]VectorMatch, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVectorDimensionMismatch, s.dimension, len(query))
	}

	q := normalizeVector(query)
	hood := strings.ToLower(strings.TrimSpace(filter.Neighborhood))

	var matches []VectorMatch
	err := s.each(contentType, func(rec VectorRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if hood != "" && !strings.Contains(strings.ToLower(rec.Neighborhood), hood) {
			return nil
		}
		dist := cosineDistance(q, normalizeVector(rec.Vector))
		matches = append(matches, VectorMatch{PlaceID: rec.PlaceID, Similarity: float64(1 - dist)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// States returns freshness data for every stored embedding of contentType.
func (s *BoltVectorStore) States(ctx context.Context, contentType string) (map[int64]VectorState, error) {
	states := make(map[int64]VectorState)
	err := s.each(contentType, func(rec VectorRecord) error {
		states[rec.PlaceID] = VectorState{ContentHash: rec.ContentHash, LastUpdated: rec.LastUpdated}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list embedding states: %w", err)
	}
	return states, nil
}

// Count returns the number of stored embeddings across content types.
func (s *BoltVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying file.
func (s *BoltVectorStore) Close() error {
	return s.db.Close()
}
