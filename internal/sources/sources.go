// Package sources loads the raw per-source scrape exports and exposes them as
// keyed lookups. A source only answers "record for this identifier, or none".
package sources

import (
	"strings"

	"github.com/corner-places/venue-engine/internal/normalize"
)

// Source names.
const (
	Base      = "base"
	Google    = "google"
	OpenTable = "opentable"
	OSM       = "osm"
	Website   = "website"
	Resy      = "resy"
)

// Provider looks up the raw record a source holds for an identifier.
type Provider interface {
	Name() string
	Lookup(id string) (normalize.Record, bool)
}

// Table is an in-memory Provider keyed by one column.
// The first row seen for a key wins.
type Table struct {
	name string
	key  string
	rows map[string]normalize.Record
}

// NewTable indexes records by the given key column. Rows without a key are skipped.
func NewTable(name, key string, records []normalize.Record) *Table {
	t := &Table{
		name: name,
		key:  key,
		rows: make(map[string]normalize.Record, len(records)),
	}
	for _, rec := range records {
		id := KeyOf(rec.Get(key))
		if id == "" {
			continue
		}
		if _, dup := t.rows[id]; dup {
			continue
		}
		t.rows[id] = rec
	}
	return t
}

// Empty returns a Provider that holds nothing.
func Empty(name string) *Table {
	return &Table{name: name, rows: map[string]normalize.Record{}}
}

// Name returns the source name.
func (t *Table) Name() string { return t.name }

// Key returns the join column.
func (t *Table) Key() string { return t.key }

// Len returns the number of indexed records.
func (t *Table) Len() int { return len(t.rows) }

// Lookup returns the record for id.
func (t *Table) Lookup(id string) (normalize.Record, bool) {
	if id == "" {
		return nil, false
	}
	rec, ok := t.rows[id]
	return rec, ok
}

// KeyOf renders an identifier value as a join key.
func KeyOf(v normalize.Value) string {
	if !v.Truthy() {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// Set groups every source consumed by one reconciliation run.
type Set struct {
	Base      []normalize.Record
	Google    Provider
	OpenTable Provider
	OSM       Provider
	Website   Provider
	Resy      Provider
}

// Providers returns the non-base providers, substituting Empty for nil ones.
func (s *Set) Providers() []Provider {
	pick := func(p Provider, name string) Provider {
		if p == nil {
			return Empty(name)
		}
		return p
	}
	return []Provider{
		pick(s.Google, Google),
		pick(s.OpenTable, OpenTable),
		pick(s.OSM, OSM),
		pick(s.Website, Website),
		pick(s.Resy, Resy),
	}
}

// Normalize fills nil providers with empty ones so lookups never need nil checks.
func (s *Set) Normalize() *Set {
	p := s.Providers()
	s.Google, s.OpenTable, s.OSM, s.Website, s.Resy = p[0], p[1], p[2], p[3], p[4]
	return s
}

// Ensure implementations satisfy interface.
var _ Provider = (*Table)(nil)
