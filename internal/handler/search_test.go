package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/marquee/internal/csrf"
	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/pagination"
	"github.com/DukeRupert/marquee/internal/querycache"
	"github.com/DukeRupert/marquee/internal/service"
)

func newTestSearchHandler(search *mockSearchService, catalog *mockCatalogService) (*SearchHandler, *fakeRenderer) {
	r := &fakeRenderer{}
	return NewSearchHandler(search, catalog, r, newTestLogger()), r
}

func TestParseSearchParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/search?keyword=alien&type=actor&genres=27,878&rating=7&release_year=1979&page=4", nil)
	p := parseSearchParams(req)

	assert.Equal(t, "alien", p.Query)
	assert.Equal(t, domain.SearchByActor, p.Type)
	assert.Equal(t, "27,878", p.Genres)
	assert.Equal(t, "7", p.Rating)
	assert.Equal(t, "1979", p.ReleaseYear)
	assert.Equal(t, 4, p.Page)
}

func TestParseSearchParams_BadPageMeansFirst(t *testing.T) {
	for _, raw := range []string{"", "zero", "0", "-3", "2.5"} {
		t.Run(raw, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/search?page="+raw, nil)
			assert.Equal(t, 1, parseSearchParams(req).Page)
		})
	}
}

func TestSearch_FullPage(t *testing.T) {
	search := &mockSearchService{
		SearchFn: func(ctx context.Context, viewer string, p domain.SearchParams) (*service.SearchPage, error) {
			return &service.SearchPage{
				Movies:     []domain.Movie{{ID: 348, Title: "Alien"}},
				Page:       p.Page,
				TotalPages: 12,
				Window:     pagination.Window(p.Page, 12, 3),
				Params:     p,
			}, nil
		},
	}
	catalog := &mockCatalogService{
		GenresFunc: func(ctx context.Context) ([]domain.Genre, error) {
			return []domain.Genre{{ID: 27, Name: "horror"}}, nil
		},
	}
	h, r := newTestSearchHandler(search, catalog)

	h.Search(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/search?keyword=alien&page=5", nil))

	require.Equal(t, "search", r.Name)
	data := r.Data.(SearchPageData)
	assert.Equal(t, "/search", data.BaseURL)
	assert.Equal(t, 5, data.Results.Page)
	assert.Equal(t, []int{4, 5, 6}, data.Results.Window.Pages)
	assert.Len(t, data.Genres, 1)
}

func TestSearch_HTMXRendersPartialWithoutGenres(t *testing.T) {
	catalog := &mockCatalogService{
		GenresFunc: func(ctx context.Context) ([]domain.Genre, error) {
			t.Fatal("genres are only needed for the full page")
			return nil, nil
		},
	}
	h, r := newTestSearchHandler(&mockSearchService{}, catalog)

	req := httptest.NewRequest(http.MethodGet, "/search?keyword=alien&page=2", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Target", "search-results")
	h.Search(httptest.NewRecorder(), req)

	assert.Equal(t, "partial/search_results", r.Name)
}

func TestSearch_GenreFailureStillRenders(t *testing.T) {
	catalog := &mockCatalogService{
		GenresFunc: func(ctx context.Context) ([]domain.Genre, error) {
			return nil, errors.New("boom")
		},
	}
	h, r := newTestSearchHandler(&mockSearchService{}, catalog)

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/search", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "search", r.Name)
}

func TestSearch_ViewerKey(t *testing.T) {
	sess := testSession()
	tests := []struct {
		name  string
		setup func(r *http.Request) *http.Request
		want  string
	}{
		{
			name:  "session",
			setup: func(r *http.Request) *http.Request { return withSession(r, sess, "tok") },
			want:  "session/" + sess.ID.String(),
		},
		{
			name: "browser token",
			setup: func(r *http.Request) *http.Request {
				return r.WithContext(csrf.WithToken(r.Context(), "abc123"))
			},
			want: "browser/abc123",
		},
		{
			name: "client address",
			setup: func(r *http.Request) *http.Request {
				r.RemoteAddr = "192.0.2.44:5555"
				return r
			},
			want: "ip/192.0.2.44",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search := &mockSearchService{}
			h, _ := newTestSearchHandler(search, &mockCatalogService{})
			h.Search(httptest.NewRecorder(), tt.setup(httptest.NewRequest(http.MethodGet, "/search", nil)))
			require.Len(t, search.viewers, 1)
			assert.Equal(t, tt.want, search.viewers[0])
		})
	}
}

func TestSearch_Superseded(t *testing.T) {
	superseded := &mockSearchService{
		SearchFn: func(ctx context.Context, viewer string, p domain.SearchParams) (*service.SearchPage, error) {
			return nil, fmt.Errorf("search: %w", querycache.ErrSuperseded)
		},
	}

	t.Run("htmx gets no content", func(t *testing.T) {
		h, r := newTestSearchHandler(superseded, &mockCatalogService{})
		req := httptest.NewRequest(http.MethodGet, "/search?keyword=al", nil)
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()
		h.Search(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, r.Name)
	})

	t.Run("full page retries once", func(t *testing.T) {
		h, _ := newTestSearchHandler(superseded, &mockCatalogService{})
		rec := httptest.NewRecorder()
		h.Search(rec, httptest.NewRequest(http.MethodGet, "/search?keyword=al&page=2", nil))

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/search?keyword=al&page=2&retry=1", rec.Header().Get("Location"))
	})

	t.Run("second supersession is a conflict", func(t *testing.T) {
		h, _ := newTestSearchHandler(superseded, &mockCatalogService{})
		rec := httptest.NewRecorder()
		h.Search(rec, httptest.NewRequest(http.MethodGet, "/search?keyword=al&retry=1", nil))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestSearch_UpstreamError(t *testing.T) {
	search := &mockSearchService{
		SearchFn: func(ctx context.Context, viewer string, p domain.SearchParams) (*service.SearchPage, error) {
			return nil, domain.Malformed(&domain.ParseError{Op: "api.SearchMovies", Err: errors.New("bad json")})
		},
	}
	h, _ := newTestSearchHandler(search, &mockCatalogService{})

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/search?keyword=x", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
