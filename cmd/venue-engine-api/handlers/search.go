package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/corner-places/venue-engine/internal/observability"
	"github.com/corner-places/venue-engine/internal/retrieval"
)

// Searcher answers venue queries.
type Searcher interface {
	Search(ctx context.Context, q retrieval.Query) (*retrieval.Response, error)
}

// SearchHandler handles venue search requests.
type SearchHandler struct {
	logger   *observability.Logger
	searcher Searcher
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(logger *observability.Logger, searcher Searcher) *SearchHandler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &SearchHandler{
		logger:   logger,
		searcher: searcher,
	}
}

// Get handles GET /v1/search?q=...&neighborhood=...&limit=...&boost=...
func (h *SearchHandler) Get(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := retrieval.Query{
		Text:         params.Get("q"),
		Neighborhood: params.Get("neighborhood"),
	}

	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, h.logger, http.StatusBadRequest, "invalid limit", v)
			return
		}
		q.Limit = limit
	}
	if v := params.Get("boost"); v != "" {
		boost, err := strconv.ParseFloat(v, 64)
		if err != nil || boost < 0 {
			writeError(w, h.logger, http.StatusBadRequest, "invalid boost", v)
			return
		}
		q.Boost = boost
	}

	h.search(w, r, q)
}

// Post handles POST /v1/search with a JSON query body.
func (h *SearchHandler) Post(w http.ResponseWriter, r *http.Request) {
	var q retrieval.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if q.Limit < 0 || q.Boost < 0 {
		writeError(w, h.logger, http.StatusBadRequest, "limit and boost must not be negative", "")
		return
	}
	h.search(w, r, q)
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request, q retrieval.Query) {
	ctx := r.Context()
	resp, err := h.searcher.Search(ctx, q)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithContext(ctx).Error().Err(err).Str("query", q.Text).Msg("Search failed")
		}
		writeError(w, h.logger, status, "search failed", err.Error())
		return
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
