package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/pagination"
	"github.com/DukeRupert/marquee/internal/querycache"
	"github.com/DukeRupert/marquee/internal/service"
)

// searchResultsTarget is the element id htmx swaps on page and filter changes.
const searchResultsTarget = "search-results"

// SearchHandler serves the catalog search page.
type SearchHandler struct {
	search   service.SearchService
	catalog  service.CatalogService
	renderer TemplateRenderer
	logger   *slog.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(search service.SearchService, catalog service.CatalogService, renderer TemplateRenderer, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		search:   search,
		catalog:  catalog,
		renderer: renderer,
		logger:   logger,
	}
}

// SearchPageData is the data for the search page and its results partial.
type SearchPageData struct {
	PageData
	Params  domain.SearchParams
	Results *service.SearchPage
	Genres  []domain.Genre // for the genre filter
	BaseURL string
}

// =============================================================================
// GET /search
// =============================================================================

// Search renders the results grid with filters and the pagination window.
//
// Template: search (partial search_results when htmx targets #search-results)
//
// Query Parameters:
// - keyword: free text
// - type: name (default), actor or keyword
// - genres: comma-separated genre ids
// - rating: minimum vote average
// - release_year: four-digit year
// - page: 1-based page number; anything unparsable means page 1
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	params := parseSearchParams(r)

	results, err := h.search.Search(r.Context(), viewerKey(r), params)
	if err != nil {
		if handleSuperseded(w, r, err) {
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	data := SearchPageData{
		PageData: newPageData(r, "Search"),
		Params:   results.Params,
		Results:  results,
		BaseURL:  "/search",
	}

	if htmxTarget(r) == searchResultsTarget {
		h.renderer.RenderPartial(w, "search_results", data)
		return
	}

	// The filter form lists the genres; without them it still works
	genres, err := h.catalog.Genres(r.Context())
	if err != nil {
		h.logger.Warn("failed to load genres", "error", err)
	}
	data.Genres = genres

	h.renderer.RenderHTTP(w, "search", data)
}

// RegisterRoutes registers the search route on the provided ServeMux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", h.Search)
}

// parseSearchParams reads the search and filter parameters from the URL.
// Values are normalized by the service.
func parseSearchParams(r *http.Request) domain.SearchParams {
	q := r.URL.Query()
	return domain.SearchParams{
		Query:       q.Get("keyword"),
		Type:        domain.ParseSearchType(q.Get("type")),
		Genres:      q.Get("genres"),
		Rating:      q.Get("rating"),
		ReleaseYear: q.Get("release_year"),
		Page:        pagination.ParsePage(q.Get("page")),
	}
}

// handleSuperseded answers a request whose search was replaced by a newer one
// from the same viewer. htmx has already moved on, so it gets 204; a full page
// load is retried once by redirecting to itself.
func handleSuperseded(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, querycache.ErrSuperseded) {
		return false
	}
	if isHTMX(r) {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	if r.URL.Query().Get("retry") != "" {
		http.Error(w, "This search was replaced by a newer one.", http.StatusConflict)
		return true
	}
	q := r.URL.Query()
	q.Set("retry", "1")
	http.Redirect(w, r, r.URL.Path+"?"+q.Encode(), http.StatusSeeOther)
	return true
}
