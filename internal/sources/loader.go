package sources

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/corner-places/venue-engine/internal/config"
	"github.com/corner-places/venue-engine/internal/normalize"
	"github.com/corner-places/venue-engine/internal/observability"
)

// Join columns per source.
const (
	KeyCornerPlaceID = "corner_place_id"
	KeyGoogleID      = "google_id"
	KeyURL           = "url"
)

// ReadCSV reads a CSV export with a header row into records. Missing-value
// markers become Absent.
func ReadCSV(r io.Reader) ([]normalize.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var records []normalize.Record
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}

		rec := make(normalize.Record, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(fields) {
				rec[col] = normalize.Cell(fields[i])
			} else {
				rec[col] = normalize.Absent()
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

// ReadJSON reads a JSON array of objects into records.
func ReadJSON(r io.Reader) ([]normalize.Record, error) {
	var items []map[string]any
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	records := make([]normalize.Record, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rec := make(normalize.Record, len(item))
		for k, v := range item {
			rec[k] = normalize.Of(v)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Loader reads the source exports named in the inputs configuration.
type Loader struct {
	logger *observability.Logger
}

// NewLoader creates a new loader.
func NewLoader(logger *observability.Logger) *Loader {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Loader{logger: logger.WithOperation("load_sources")}
}

// LoadBase reads the base venue list. Failure here aborts the run.
func (l *Loader) LoadBase(path string) ([]normalize.Record, error) {
	records, err := readFile(path, ReadCSV)
	if err != nil {
		return nil, fmt.Errorf("load base venues %s: %w", path, err)
	}
	l.logger.Info().Str("path", path).Int("venues", len(records)).Msg("Loaded base venues")
	return records, nil
}

// LoadOptional reads an optional source. Missing or unreadable files yield an
// empty table and a warning.
func (l *Loader) LoadOptional(name, path, key string, read func(io.Reader) ([]normalize.Record, error), keep func(normalize.Record) bool) *Table {
	if path == "" {
		return Empty(name)
	}

	records, err := readFile(path, read)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Info().Str("source", name).Str("path", path).Msg("Source file not present, skipping")
		} else {
			l.logger.Warn().Err(err).Str("source", name).Str("path", path).Msg("Could not read source, skipping")
		}
		return Empty(name)
	}

	if keep != nil {
		filtered := records[:0]
		for _, rec := range records {
			if keep(rec) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	table := NewTable(name, key, records)
	l.logger.Info().
		Str("source", name).
		Int("rows", len(records)).
		Int("keys", table.Len()).
		Msg("Loaded source")
	return table
}

// Load reads every configured input.
func (l *Loader) Load(in config.InputsConfig) (*Set, error) {
	base, err := l.LoadBase(in.Base)
	if err != nil {
		return nil, err
	}

	set := &Set{
		Base:      base,
		Google:    l.LoadOptional(Google, in.Google, KeyGoogleID, ReadCSV, nil),
		OpenTable: l.LoadOptional(OpenTable, in.OpenTable, KeyCornerPlaceID, ReadCSV, Found),
		OSM:       l.LoadOptional(OSM, in.OSM, KeyCornerPlaceID, ReadCSV, nil),
		Website:   l.LoadOptional(Website, in.Website, KeyURL, ReadJSON, nil),
		Resy:      l.LoadOptional(Resy, in.Resy, KeyCornerPlaceID, ReadJSON, nil),
	}
	return set, nil
}

// Found keeps rows whose "found" flag is set. Rows without the column are kept.
func Found(rec normalize.Record) bool {
	v, ok := rec["found"]
	if !ok {
		return true
	}
	if s, isText := v.Str(); isText {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "false", "0", "no":
			return false
		}
	}
	return v.Truthy()
}

func readFile(path string, read func(io.Reader) ([]normalize.Record, error)) ([]normalize.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return read(f)
}
