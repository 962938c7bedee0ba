package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/DukeRupert/marquee/internal/auth"
	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/service"
)

// CatalogHandler serves the browsing pages: home, movie, person and genre.
type CatalogHandler struct {
	catalog     service.CatalogService
	search      service.SearchService
	collections service.CollectionService
	renderer    TemplateRenderer
	logger      *slog.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(
	catalog service.CatalogService,
	search service.SearchService,
	collections service.CollectionService,
	renderer TemplateRenderer,
	logger *slog.Logger,
) *CatalogHandler {
	return &CatalogHandler{
		catalog:     catalog,
		search:      search,
		collections: collections,
		renderer:    renderer,
		logger:      logger,
	}
}

// =============================================================================
// Template Data Types
// =============================================================================

// HomePageData is the data for the home page.
type HomePageData struct {
	PageData
	Trending []domain.Movie
	Upcoming []domain.Trailer
}

// MoviePageData is the data for a movie detail page.
type MoviePageData struct {
	PageData
	Movie   *domain.Movie
	Actions MovieActionsData
}

// MovieActionsData drives the favorite, watchlist and rating controls.
type MovieActionsData struct {
	MovieID   int
	State     service.MovieState
	CSRFToken string
	SignedIn  bool
}

// PersonPageData is the data for a person detail page.
type PersonPageData struct {
	PageData
	Person *domain.Person
}

// GenrePageData is the data for a genre listing.
type GenrePageData struct {
	PageData
	Genre   *domain.Genre
	Results *service.SearchPage
	BaseURL string
}

// =============================================================================
// GET / and GET /home
// =============================================================================

// Root redirects the bare domain to /home. Every other unmatched path is a 404.
func (h *CatalogHandler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFoundResponse(w, r, h.logger)
		return
	}
	http.Redirect(w, r, "/home", http.StatusFound)
}

// Home renders the trending carousel and the upcoming trailers.
//
// Template: home
//
// The trailers are optional: if they fail to load the page still renders.
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	data := HomePageData{PageData: newPageData(r, "Home")}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		movies, err := h.catalog.Trending(ctx)
		data.Trending = movies
		return err
	})
	g.Go(func() error {
		trailers, err := h.catalog.Upcoming(ctx)
		if err != nil {
			h.logger.Warn("failed to load upcoming trailers", "error", err)
			return nil
		}
		data.Upcoming = trailers
		return nil
	})
	if err := g.Wait(); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.renderer.RenderHTTP(w, "home", data)
}

// =============================================================================
// GET /movie/{movieID}
// =============================================================================

// Movie renders a movie detail page. Signed-in viewers also see their own
// favorite, watchlist and rating state.
//
// Template: movie
func (h *CatalogHandler) Movie(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "movieID")
	if !ok {
		NotFoundResponse(w, r, h.logger)
		return
	}

	data := MoviePageData{PageData: newPageData(r, "")}
	sess := auth.GetSession(r.Context())

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		movie, err := h.catalog.Movie(ctx, id)
		data.Movie = movie
		return err
	})
	if sess != nil {
		g.Go(func() error {
			state, err := h.collections.State(ctx, sess, id)
			if err != nil {
				h.logger.Warn("failed to load collection state", "movie_id", id, "error", err)
				return nil
			}
			data.Actions.State = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	data.Title = data.Movie.Title
	data.Actions.MovieID = id
	data.Actions.CSRFToken = data.CSRFToken
	data.Actions.SignedIn = sess != nil

	h.renderer.RenderHTTP(w, "movie", data)
}

// =============================================================================
// GET /person/{personID}
// =============================================================================

// Person renders a cast member with their filmography.
//
// Template: person
func (h *CatalogHandler) Person(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "personID")
	if !ok {
		NotFoundResponse(w, r, h.logger)
		return
	}

	person, err := h.catalog.Person(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	data := PersonPageData{PageData: newPageData(r, person.Name), Person: person}
	h.renderer.RenderHTTP(w, "person", data)
}

// =============================================================================
// GET /genre/{genreID}
// =============================================================================

// Genre lists the catalog filtered by one genre, paginated like search.
//
// Template: genre (partial search_results for htmx page changes)
func (h *CatalogHandler) Genre(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "genreID")
	if !ok {
		NotFoundResponse(w, r, h.logger)
		return
	}

	genre, err := h.catalog.Genre(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params := parseSearchParams(r)
	params.Query = ""
	params.Genres = strconv.Itoa(genre.ID)

	results, err := h.search.Search(r.Context(), viewerKey(r), params)
	if err != nil {
		if handleSuperseded(w, r, err) {
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	data := GenrePageData{
		PageData: newPageData(r, genre.Name),
		Genre:    genre,
		Results:  results,
		BaseURL:  r.URL.Path,
	}
	if htmxTarget(r) == searchResultsTarget {
		h.renderer.RenderPartial(w, "search_results", data)
		return
	}
	h.renderer.RenderHTTP(w, "genre", data)
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(r.PathValue(name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// RegisterRoutes registers the catalog routes on the provided ServeMux.
func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", h.Root)
	mux.HandleFunc("GET /home", h.Home)
	mux.HandleFunc("GET /movie/{movieID}", h.Movie)
	mux.HandleFunc("GET /person/{personID}", h.Person)
	mux.HandleFunc("GET /genre/{genreID}", h.Genre)
}
