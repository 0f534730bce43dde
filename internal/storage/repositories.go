package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrInvalid  = errors.New("invalid record")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const placeColumns = `id, corner_place_id, google_id, name, neighborhood, website, instagram_handle,
	category, price_range, combined_description, tags, address, hours, attributes, metadata,
	created_at, updated_at`

// PlaceRepository handles place persistence.
type PlaceRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewPlaceRepository creates a new place repository.
func NewPlaceRepository(db *Database) *PlaceRepository {
	return &PlaceRepository{db: db.DB, dialect: db.Dialect, now: time.Now}
}

// Upsert inserts or updates a place by corner_place_id and replaces its
// reviews, all in one transaction. The place's ID and timestamps are filled
// in on success. metadata is left untouched on conflict.
func (r *PlaceRepository) Upsert(ctx context.Context, place *Place, reviews []Review) (int64, error) {
	if strings.TrimSpace(place.CornerPlaceID) == "" {
		return 0, fmt.Errorf("%w: missing corner_place_id", ErrInvalid)
	}
	if strings.TrimSpace(place.Name) == "" {
		return 0, fmt.Errorf("%w: place %s has no name", ErrInvalid, place.CornerPlaceID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now().UTC().Truncate(time.Microsecond)
	tags, err := encodeTags(r.dialect, place.Tags)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO places (corner_place_id, google_id, name, neighborhood, website, instagram_handle,
			category, price_range, combined_description, tags, address, hours, attributes,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (corner_place_id) DO UPDATE SET
			google_id = excluded.google_id,
			name = excluded.name,
			neighborhood = excluded.neighborhood,
			website = excluded.website,
			instagram_handle = excluded.instagram_handle,
			category = excluded.category,
			price_range = excluded.price_range,
			combined_description = excluded.combined_description,
			tags = excluded.tags,
			address = excluded.address,
			hours = excluded.hours,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		place.CornerPlaceID, place.GoogleID, place.Name, place.Neighborhood, place.Website,
		place.InstagramHandle, place.Category, place.PriceRange, place.CombinedDescription,
		tags, place.Address, jsonText(place.Hours), jsonText(place.Attributes), now, now,
	).Scan(&place.ID)
	if err != nil {
		return 0, fmt.Errorf("upsert place %s: %w", place.CornerPlaceID, err)
	}

	var createdAt time.Time
	if err := tx.QueryRowContext(ctx, `SELECT created_at FROM places WHERE id = $1`, place.ID).Scan(&createdAt); err != nil {
		return 0, fmt.Errorf("read place %s: %w", place.CornerPlaceID, err)
	}

	if err := replaceReviews(ctx, tx, r.dialect, place.ID, reviews, now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit place %s: %w", place.CornerPlaceID, err)
	}

	place.CreatedAt = createdAt
	place.UpdatedAt = now
	return place.ID, nil
}

func replaceReviews(ctx context.Context, tx *sql.Tx, dialect Dialect, placeID int64, reviews []Review, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE place_id = $1`, placeID); err != nil {
		return fmt.Errorf("delete reviews for place %d: %w", placeID, err)
	}

	var sourcesCol, texts []string
	var posted []time.Time
	for _, rv := range reviews {
		if strings.TrimSpace(rv.Text) == "" {
			continue
		}
		source := rv.Source
		if source == "" {
			source = "unknown"
		}
		postedAt := rv.PostedAt
		if postedAt.IsZero() {
			postedAt = now
		}
		sourcesCol = append(sourcesCol, source)
		texts = append(texts, rv.Text)
		posted = append(posted, postedAt.UTC())
	}
	if len(texts) == 0 {
		return nil
	}

	if dialect == DialectPostgres {
		stamps := make([]string, len(posted))
		for i, ts := range posted {
			stamps[i] = ts.Format(time.RFC3339Nano)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reviews (place_id, source, review_text, posted_at)
			SELECT $1, s, t, p FROM unnest($2::text[], $3::text[], $4::timestamptz[]) AS r(s, t, p)
		`, placeID, pq.Array(sourcesCol), pq.Array(texts), pq.Array(stamps))
		if err != nil {
			return fmt.Errorf("insert reviews for place %d: %w", placeID, err)
		}
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reviews (place_id, source, review_text, posted_at) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare review insert: %w", err)
	}
	defer stmt.Close()
	for i := range texts {
		if _, err := stmt.ExecContext(ctx, placeID, sourcesCol[i], texts[i], posted[i]); err != nil {
			return fmt.Errorf("insert review for place %d: %w", placeID, err)
		}
	}
	return nil
}

// GetByCornerPlaceID retrieves a place by its upstream identifier.
func (r *PlaceRepository) GetByCornerPlaceID(ctx context.Context, cornerPlaceID string) (*Place, error) {
	query := `SELECT ` + placeColumns + ` FROM places WHERE corner_place_id = $1`
	return r.scanPlace(r.db.QueryRowContext(ctx, query, cornerPlaceID))
}

// GetByID retrieves a place by its surrogate id.
func (r *PlaceRepository) GetByID(ctx context.Context, id int64) (*Place, error) {
	query := `SELECT ` + placeColumns + ` FROM places WHERE id = $1`
	return r.scanPlace(r.db.QueryRowContext(ctx, query, id))
}

// List returns places ordered by id. limit <= 0 returns every place.
func (r *PlaceRepository) List(ctx context.Context, limit, offset int) ([]*Place, error) {
	query := `SELECT ` + placeColumns + ` FROM places ORDER BY id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}
	defer rows.Close()

	var places []*Place
	for rows.Next() {
		p, err := r.scanPlace(rows)
		if err != nil {
			return nil, err
		}
		places = append(places, p)
	}
	return places, rows.Err()
}

// GetByIDs returns the places with the given ids keyed by id. Unknown ids are skipped.
func (r *PlaceRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*Place, error) {
	out := make(map[int64]*Place, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT ` + placeColumns + ` FROM places WHERE id IN (` + strings.Join(placeholders, ", ") + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get places by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := r.scanPlace(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// Count returns the number of stored places.
func (r *PlaceRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM places`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count places: %w", err)
	}
	return n, nil
}

// UpdateEmbeddingStatus records the outcome of an embedding attempt under
// metadata.embedding_status. updated_at is not changed.
func (r *PlaceRepository) UpdateEmbeddingStatus(ctx context.Context, placeID int64, status EmbeddingStatusKind, message string) error {
	doc, err := json.Marshal(EmbeddingStatus{
		Status:    status,
		Timestamp: r.now().UTC().Truncate(time.Microsecond),
		Message:   message,
	})
	if err != nil {
		return fmt.Errorf("encode embedding status: %w", err)
	}

	query := `UPDATE places SET metadata = json_set(metadata, '$.embedding_status', json($1)) WHERE id = $2`
	if r.dialect == DialectPostgres {
		query = `UPDATE places SET metadata = jsonb_set(metadata, '{embedding_status}', $1::jsonb, true) WHERE id = $2`
	}

	res, err := r.db.ExecContext(ctx, query, string(doc), placeID)
	if err != nil {
		return fmt.Errorf("update embedding status for place %d: %w", placeID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PlaceRepository) scanPlace(row rowScanner) (*Place, error) {
	p := &Place{}
	var hours, attributes, metadata []byte
	tags := newTagsScanner(r.dialect)

	err := row.Scan(
		&p.ID, &p.CornerPlaceID, &p.GoogleID, &p.Name, &p.Neighborhood, &p.Website,
		&p.InstagramHandle, &p.Category, &p.PriceRange, &p.CombinedDescription,
		tags, &p.Address, &hours, &attributes, &metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan place: %w", err)
	}

	p.Tags = tags.values()
	p.Hours = json.RawMessage(hours)
	p.Attributes = json.RawMessage(attributes)
	p.Metadata = json.RawMessage(metadata)
	return p, nil
}

// ReviewRepository handles review reads. Writes go through PlaceRepository.Upsert.
type ReviewRepository struct {
	db DB
}

// NewReviewRepository creates a new review repository.
func NewReviewRepository(db DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// ListByPlace returns a place's reviews in insertion order.
func (r *ReviewRepository) ListByPlace(ctx context.Context, placeID int64) ([]Review, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, place_id, source, review_text, posted_at
		FROM reviews WHERE place_id = $1 ORDER BY id
	`, placeID)
	if err != nil {
		return nil, fmt.Errorf("list reviews for place %d: %w", placeID, err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ID, &rv.PlaceID, &rv.Source, &rv.Text, &rv.PostedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}

// Repositories bundles all repositories.
type Repositories struct {
	Places  *PlaceRepository
	Reviews *ReviewRepository
}

// NewRepositories creates all repositories.
func NewRepositories(db *Database) *Repositories {
	return &Repositories{
		Places:  NewPlaceRepository(db),
		Reviews: NewReviewRepository(db.DB),
	}
}

// jsonText passes JSON documents as text so both drivers accept them.
func jsonText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func encodeTags(dialect Dialect, tags []string) (interface{}, error) {
	if tags == nil {
		tags = []string{}
	}
	if dialect == DialectPostgres {
		return pq.Array(tags), nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

// tagsScanner reads the tags column: a text[] on Postgres, a JSON array on SQLite.
type tagsScanner struct {
	dialect Dialect
	pg      pq.StringArray
	raw     []string
}

func newTagsScanner(dialect Dialect) *tagsScanner {
	return &tagsScanner{dialect: dialect}
}

func (t *tagsScanner) Scan(src interface{}) error {
	if t.dialect == DialectPostgres {
		return t.pg.Scan(src)
	}
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported tags column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &t.raw)
}

func (t *tagsScanner) values() []string {
	out := []string(t.pg)
	if t.dialect != DialectPostgres {
		out = t.raw
	}
	if out == nil {
		return []string{}
	}
	return out
}
