package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/DukeRupert/marquee/internal/auth"
	"github.com/DukeRupert/marquee/internal/csrf"
	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/service"
)

// CollectionHandler serves the signed-in viewer's lists, recommendations and
// the favorite, watchlist and rating mutations. Every route requires a
// session; main.go wraps them with RequireUser.
type CollectionHandler struct {
	collections     service.CollectionService
	recommendations service.RecommendationService
	renderer        TemplateRenderer
	logger          *slog.Logger
}

// NewCollectionHandler creates a new CollectionHandler.
func NewCollectionHandler(
	collections service.CollectionService,
	recommendations service.RecommendationService,
	renderer TemplateRenderer,
	logger *slog.Logger,
) *CollectionHandler {
	return &CollectionHandler{
		collections:     collections,
		recommendations: recommendations,
		renderer:        renderer,
		logger:          logger,
	}
}

// =============================================================================
// Template Data Types
// =============================================================================

// CollectionPageData is the data for the favorites, watchlist and ratings
// pages.
type CollectionPageData struct {
	PageData
	Kind  domain.CollectionKind
	Items []domain.CollectionItem
	Empty string // message shown when Items is empty
}

// RecommendationsPageData is the data for the recommendations page.
type RecommendationsPageData struct {
	PageData
	Params  domain.SearchParams
	Results *service.SearchPage
	BaseURL string
}

var collectionPages = map[domain.CollectionKind]struct {
	title string
	empty string
}{
	domain.CollectionFavorites: {"Favorites", "You have no favorites yet."},
	domain.CollectionWatchlist: {"Watchlist", "Your watchlist is empty."},
	domain.CollectionRatings:   {"Ratings", "You have not rated any movies yet."},
}

// =============================================================================
// GET /user/{favorites,watchlist,ratings}
// =============================================================================

// List returns the handler for one collection page, newest first.
//
// Template: user/collection
func (h *CollectionHandler) List(kind domain.CollectionKind) http.HandlerFunc {
	page := collectionPages[kind]
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.collections.List(r.Context(), auth.GetSession(r.Context()), kind)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}

		sorted := make([]domain.CollectionItem, len(items))
		copy(sorted, items)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].AddedAt.After(sorted[j].AddedAt)
		})

		h.renderer.RenderHTTP(w, "user/collection", CollectionPageData{
			PageData: newPageData(r, page.title),
			Kind:     kind,
			Items:    sorted,
			Empty:    page.empty,
		})
	}
}

// =============================================================================
// GET /user/recommendations
// =============================================================================

// Recommendations renders the personalized titles with optional filters and
// the pagination window.
//
// Template: user/recommendations (partial search_results for htmx)
func (h *CollectionHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	results, err := h.recommendations.ForUser(r.Context(), auth.GetSession(r.Context()), parseSearchParams(r))
	if err != nil {
		if handleSuperseded(w, r, err) {
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	data := RecommendationsPageData{
		PageData: newPageData(r, "Recommended for you"),
		Params:   results.Params,
		Results:  results,
		BaseURL:  r.URL.Path,
	}
	if htmxTarget(r) == searchResultsTarget {
		h.renderer.RenderPartial(w, "search_results", data)
		return
	}
	h.renderer.RenderHTTP(w, "user/recommendations", data)
}

// =============================================================================
// POST mutations
// =============================================================================

// Mutate returns the handler that adds a movie to, or removes it from, the
// favorites or the watchlist.
//
// htmx requests receive the refreshed movie_actions partial with a toast;
// plain form posts are redirected back to the page they came from.
func (h *CollectionHandler) Mutate(kind domain.CollectionKind, add bool) http.HandlerFunc {
	label := collectionPages[kind].title
	success := "Added to " + strings.ToLower(label)
	if !add {
		success = "Removed from " + strings.ToLower(label)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "movieID")
		if !ok {
			h.fail(w, r, domain.Invalid("CollectionHandler.Mutate", "Invalid movie id"))
			return
		}

		sess := auth.GetSession(r.Context())
		var err error
		if add {
			err = h.collections.Add(r.Context(), sess, kind, id)
		} else {
			err = h.collections.Remove(r.Context(), sess, kind, id)
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}

		h.succeed(w, r, id, ToastData{Type: "success", Title: success})
	}
}

// Rate stores the viewer's star rating from the "rating" form field.
func (h *CollectionHandler) Rate(w http.ResponseWriter, r *http.Request) {
	const op = "CollectionHandler.Rate"

	id, ok := pathID(r, "movieID")
	if !ok {
		h.fail(w, r, domain.Invalid(op, "Invalid movie id"))
		return
	}
	rating, err := strconv.ParseFloat(r.FormValue("rating"), 64)
	if err != nil {
		h.fail(w, r, domain.NewValidationError(op, "rating", "Choose a rating"))
		return
	}

	if err := h.collections.Rate(r.Context(), auth.GetSession(r.Context()), id, rating); err != nil {
		h.fail(w, r, err)
		return
	}

	h.succeed(w, r, id, ToastData{
		Type:    "success",
		Title:   "Rating saved",
		Message: "You rated this movie " + strconv.FormatFloat(rating, 'f', -1, 64) + " stars.",
	})
}

func (h *CollectionHandler) succeed(w http.ResponseWriter, r *http.Request, movieID int, toast ToastData) {
	if !isHTMX(r) {
		http.Redirect(w, r, backTo(r, "/movie/"+strconv.Itoa(movieID)), http.StatusSeeOther)
		return
	}

	sess := auth.GetSession(r.Context())
	state, err := h.collections.State(r.Context(), sess, movieID)
	if err != nil {
		// The change went through; only the refreshed buttons are missing
		h.logger.Warn("failed to reload collection state", "movie_id", movieID, "error", err)
		h.renderer.RenderToast(w, toast)
		return
	}

	h.renderer.RenderHTTPWithToast(w, "partial/movie_actions", MovieActionsData{
		MovieID:   movieID,
		State:     state,
		CSRFToken: csrf.Token(r.Context()),
		SignedIn:  true,
	}, toast)
}

// fail reports a failed mutation: a destructive toast for htmx, the regular
// error response otherwise.
func (h *CollectionHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !isHTMX(r) {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			ValidationErrorResponse(w, r, h.logger, err)
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	message := domain.ErrorMessage(err)
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		message = firstFieldMessage(ve)
	}
	if code := domain.ErrorCode(err); code == domain.EINTERNAL || code == domain.EUNAVAILABLE || code == domain.EPARSE {
		h.logger.Error("collection change failed", "error", err, "path", r.URL.Path)
	}

	h.renderer.RenderToast(w, ToastData{Type: "error", Title: "Something went wrong", Message: message})
}

// firstFieldMessage returns a field message in a stable order.
func firstFieldMessage(ve *domain.ValidationError) string {
	fields := make([]string, 0, len(ve.Fields))
	for f := range ve.Fields {
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return "Please check your input and try again."
	}
	sort.Strings(fields)
	return ve.Fields[fields[0]]
}

// backTo returns the same-origin Referer path, or fallback.
func backTo(r *http.Request, fallback string) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return fallback
	}
	target := ref.Path
	if ref.RawQuery != "" {
		target += "?" + ref.RawQuery
	}
	if !isSafeRedirectURL(target) {
		return fallback
	}
	return target
}

// RegisterRoutes registers the collection routes. requireUser guards every
// route.
func (h *CollectionHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /user/favorites", requireUser(h.List(domain.CollectionFavorites)))
	mux.Handle("GET /user/watchlist", requireUser(h.List(domain.CollectionWatchlist)))
	mux.Handle("GET /user/ratings", requireUser(h.List(domain.CollectionRatings)))
	mux.Handle("GET /user/recommendations", requireUser(http.HandlerFunc(h.Recommendations)))

	mux.Handle("POST /user/favorites/{movieID}", requireUser(h.Mutate(domain.CollectionFavorites, true)))
	mux.Handle("POST /user/favorites/{movieID}/delete", requireUser(h.Mutate(domain.CollectionFavorites, false)))
	mux.Handle("POST /user/watchlist/{movieID}", requireUser(h.Mutate(domain.CollectionWatchlist, true)))
	mux.Handle("POST /user/watchlist/{movieID}/delete", requireUser(h.Mutate(domain.CollectionWatchlist, false)))
	mux.Handle("POST /user/ratings/{movieID}", requireUser(http.HandlerFunc(h.Rate)))
}
