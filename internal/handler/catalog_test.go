package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/querycache"
	"github.com/DukeRupert/marquee/internal/service"
)

func newTestCatalogHandler(catalog *mockCatalogService, search *mockSearchService, collections *mockCollectionService) (*CatalogHandler, *fakeRenderer) {
	r := &fakeRenderer{}
	return NewCatalogHandler(catalog, search, collections, r, newTestLogger()), r
}

func TestRoot(t *testing.T) {
	h, _ := newTestCatalogHandler(&mockCatalogService{}, &mockSearchService{}, &mockCollectionService{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/no-such-page", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHome_UpcomingFailureStillRenders(t *testing.T) {
	catalog := &mockCatalogService{
		TrendingFunc: func(ctx context.Context) ([]domain.Movie, error) {
			return []domain.Movie{{ID: 603, Title: "The Matrix"}}, nil
		},
		UpcomingFunc: func(ctx context.Context) ([]domain.Trailer, error) {
			return nil, domain.Unavailable(errors.New("down"), "api.UpcomingTrailers")
		},
	}
	h, r := newTestCatalogHandler(catalog, &mockSearchService{}, &mockCollectionService{})

	rec := httptest.NewRecorder()
	h.Home(rec, httptest.NewRequest(http.MethodGet, "/home", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "home", r.Name)
	data := r.Data.(HomePageData)
	assert.Len(t, data.Trending, 1)
	assert.Empty(t, data.Upcoming)
}

func TestHome_TrendingFailureIsAnError(t *testing.T) {
	catalog := &mockCatalogService{
		TrendingFunc: func(ctx context.Context) ([]domain.Movie, error) {
			return nil, domain.Unavailable(errors.New("down"), "api.Trending")
		},
	}
	h, r := newTestCatalogHandler(catalog, &mockSearchService{}, &mockCollectionService{})

	rec := httptest.NewRecorder()
	h.Home(rec, httptest.NewRequest(http.MethodGet, "/home", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, r.Name)
}

func TestMovie_Anonymous(t *testing.T) {
	catalog := &mockCatalogService{
		MovieFunc: func(ctx context.Context, id int) (*domain.Movie, error) {
			return &domain.Movie{ID: id, Title: "The Matrix"}, nil
		},
	}
	collections := &mockCollectionService{
		StateFunc: func(ctx context.Context, sess *domain.Session, movieID int) (service.MovieState, error) {
			t.Fatal("state must not be loaded for anonymous viewers")
			return service.MovieState{}, nil
		},
	}
	h, r := newTestCatalogHandler(catalog, &mockSearchService{}, collections)

	req := httptest.NewRequest(http.MethodGet, "/movie/603", nil)
	req.SetPathValue("movieID", "603")
	h.Movie(httptest.NewRecorder(), req)

	require.Equal(t, "movie", r.Name)
	data := r.Data.(MoviePageData)
	assert.Equal(t, "The Matrix", data.Title)
	assert.Equal(t, 603, data.Actions.MovieID)
	assert.False(t, data.Actions.SignedIn)
}

func TestMovie_SignedInLoadsState(t *testing.T) {
	rating := 4.5
	catalog := &mockCatalogService{
		MovieFunc: func(ctx context.Context, id int) (*domain.Movie, error) {
			return &domain.Movie{ID: id, Title: "Alien"}, nil
		},
	}
	collections := &mockCollectionService{
		StateFunc: func(ctx context.Context, sess *domain.Session, movieID int) (service.MovieState, error) {
			return service.MovieState{Favorite: true, Rating: &rating}, nil
		},
	}
	h, r := newTestCatalogHandler(catalog, &mockSearchService{}, collections)

	req := withSession(httptest.NewRequest(http.MethodGet, "/movie/348", nil), testSession(), "tok")
	req.SetPathValue("movieID", "348")
	h.Movie(httptest.NewRecorder(), req)

	data := r.Data.(MoviePageData)
	assert.True(t, data.Actions.SignedIn)
	assert.True(t, data.Actions.State.Favorite)
	require.NotNil(t, data.Actions.State.Rating)
	assert.Equal(t, 4.5, *data.Actions.State.Rating)
}

func TestMovie_InvalidID(t *testing.T) {
	for _, id := range []string{"abc", "0", "-4"} {
		t.Run(id, func(t *testing.T) {
			h, _ := newTestCatalogHandler(&mockCatalogService{}, &mockSearchService{}, &mockCollectionService{})
			req := httptest.NewRequest(http.MethodGet, "/movie/"+id, nil)
			req.SetPathValue("movieID", id)
			rec := httptest.NewRecorder()
			h.Movie(rec, req)
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestPerson_NotFound(t *testing.T) {
	catalog := &mockCatalogService{
		PersonFunc: func(ctx context.Context, id int) (*domain.Person, error) {
			return nil, domain.NotFound("CatalogService.Person", "person", "9")
		},
	}
	h, _ := newTestCatalogHandler(catalog, &mockSearchService{}, &mockCollectionService{})

	req := httptest.NewRequest(http.MethodGet, "/person/9", nil)
	req.SetPathValue("personID", "9")
	rec := httptest.NewRecorder()
	h.Person(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenre_SearchesByGenre(t *testing.T) {
	catalog := &mockCatalogService{
		GenreFunc: func(ctx context.Context, id int) (*domain.Genre, error) {
			return &domain.Genre{ID: id, Name: "horror"}, nil
		},
	}
	search := &mockSearchService{}
	h, r := newTestCatalogHandler(catalog, search, &mockCollectionService{})

	req := httptest.NewRequest(http.MethodGet, "/genre/27?page=3&keyword=ignored", nil)
	req.SetPathValue("genreID", "27")
	h.Genre(httptest.NewRecorder(), req)

	require.Len(t, search.calls, 1)
	assert.Equal(t, "27", search.calls[0].Genres)
	assert.Empty(t, search.calls[0].Query)
	assert.Equal(t, 3, search.calls[0].Page)

	require.Equal(t, "genre", r.Name)
	data := r.Data.(GenrePageData)
	assert.Equal(t, "/genre/27", data.BaseURL)
	assert.Equal(t, "horror", data.Title)
}

func TestGenre_HTMXPageChangeRendersPartial(t *testing.T) {
	catalog := &mockCatalogService{
		GenreFunc: func(ctx context.Context, id int) (*domain.Genre, error) {
			return &domain.Genre{ID: id, Name: "horror"}, nil
		},
	}
	h, r := newTestCatalogHandler(catalog, &mockSearchService{}, &mockCollectionService{})

	req := httptest.NewRequest(http.MethodGet, "/genre/27?page=2", nil)
	req.SetPathValue("genreID", "27")
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Target", "search-results")
	h.Genre(httptest.NewRecorder(), req)

	assert.True(t, r.Partial)
	assert.Equal(t, "partial/search_results", r.Name)
}

func TestGenre_Superseded(t *testing.T) {
	catalog := &mockCatalogService{
		GenreFunc: func(ctx context.Context, id int) (*domain.Genre, error) {
			return &domain.Genre{ID: id, Name: "horror"}, nil
		},
	}
	search := &mockSearchService{
		SearchFn: func(ctx context.Context, viewer string, p domain.SearchParams) (*service.SearchPage, error) {
			return nil, querycache.ErrSuperseded
		},
	}
	h, r := newTestCatalogHandler(catalog, search, &mockCollectionService{})

	req := httptest.NewRequest(http.MethodGet, "/genre/27", nil)
	req.SetPathValue("genreID", "27")
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	h.Genre(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, r.Name)
}
