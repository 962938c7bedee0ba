package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/pagination"
	"github.com/DukeRupert/marquee/internal/querycache"
)

func newSearch(f *fakeAPI) SearchService {
	return NewSearchService(f, querycache.New(time.Minute), querycache.NewScope(), PagingConfig{PageSize: 20, WindowSize: 3}, testLogger())
}

func TestSearchService_Search(t *testing.T) {
	f := newFakeAPI()
	f.searchResult = domain.ResultPage{
		Movies:     []domain.Movie{{ID: 1, Title: "Alien"}},
		Page:       5,
		TotalPages: intPtr(10),
	}
	svc := newSearch(f)

	page, err := svc.Search(context.Background(), "viewer", domain.SearchParams{Query: " alien ", Page: 5})
	require.NoError(t, err)

	assert.Equal(t, 5, page.Page)
	assert.Equal(t, 10, page.TotalPages)
	assert.Equal(t, []int{4, 5, 6}, page.Window.Pages)
	assert.True(t, page.Window.ShowLeadingEllipsis)
	assert.True(t, page.Window.ShowTrailingEllipsis)
	assert.False(t, page.Empty())

	// Params reach the API normalized
	assert.Equal(t, "alien", f.lastSearch.Query)
	assert.Equal(t, domain.SearchByName, f.lastSearch.Type)
	assert.Equal(t, 20, f.lastSearch.Limit)
}

func TestSearchService_MissingTotalMeansNoPages(t *testing.T) {
	f := newFakeAPI()
	f.searchResult = domain.ResultPage{Movies: []domain.Movie{{ID: 1}}, Page: 1}
	svc := newSearch(f)

	page, err := svc.Search(context.Background(), "viewer", domain.SearchParams{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalPages)
	assert.Equal(t, pagination.VisibleWindow{}, page.Window)
}

func TestSearchService_EmptyQuerySkipsAPI(t *testing.T) {
	f := newFakeAPI()
	svc := newSearch(f)

	page, err := svc.Search(context.Background(), "viewer", domain.SearchParams{Query: "   "})
	require.NoError(t, err)
	assert.True(t, page.Empty())
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 0, f.count("SearchMovies"))
}

func TestSearchService_FilterOnlySearch(t *testing.T) {
	f := newFakeAPI()
	f.searchResult = domain.ResultPage{Movies: []domain.Movie{{ID: 1}}, TotalPages: intPtr(1)}
	svc := newSearch(f)

	_, err := svc.Search(context.Background(), "viewer", domain.SearchParams{Genres: "28"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("SearchMovies"))
	assert.Equal(t, "28", f.lastSearch.Genres)
}

func TestSearchService_CachesByParams(t *testing.T) {
	f := newFakeAPI()
	f.searchResult = domain.ResultPage{Movies: []domain.Movie{{ID: 1}}, TotalPages: intPtr(3)}
	svc := newSearch(f)
	ctx := context.Background()

	_, err := svc.Search(ctx, "a", domain.SearchParams{Query: "heat", Page: 1})
	require.NoError(t, err)
	_, err = svc.Search(ctx, "b", domain.SearchParams{Query: "heat", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("SearchMovies"))

	_, err = svc.Search(ctx, "a", domain.SearchParams{Query: "heat", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("SearchMovies"))
}

func TestSearchService_NewerSearchSupersedesOlder(t *testing.T) {
	f := newFakeAPI()
	f.searchResult = domain.ResultPage{Movies: []domain.Movie{{ID: 1}}, TotalPages: intPtr(1)}
	started := make(chan struct{})
	release := make(chan struct{})
	f.searchHook = func(ctx context.Context, p domain.SearchParams) error {
		if p.Query == "slow" {
			close(started)
			<-release
		}
		return nil
	}
	svc := newSearch(f)
	defer close(release)

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Search(context.Background(), "viewer", domain.SearchParams{Query: "slow"})
		errCh <- err
	}()
	<-started

	page, err := svc.Search(context.Background(), "viewer", domain.SearchParams{Query: "fast"})
	require.NoError(t, err)
	assert.Len(t, page.Movies, 1)

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, querycache.ErrSuperseded), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded search did not return")
	}
}

func TestSearchService_UpstreamError(t *testing.T) {
	f := newFakeAPI()
	f.searchErr = domain.Malformed(&domain.ParseError{Op: "api.SearchMovies", Field: "data"})
	svc := newSearch(f)

	_, err := svc.Search(context.Background(), "viewer", domain.SearchParams{Query: "x"})
	assert.Equal(t, domain.EPARSE, domain.ErrorCode(err))
}

func TestRecommendationService_ForUser(t *testing.T) {
	f := newFakeAPI()
	f.searchResult = domain.ResultPage{Movies: []domain.Movie{{ID: 7}}, Page: 1, TotalPages: intPtr(4)}
	svc := NewRecommendationService(f, querycache.New(time.Minute), querycache.NewScope(), PagingConfig{PageSize: 12}, testLogger())
	sess := testSession()

	page, err := svc.ForUser(context.Background(), sess, domain.SearchParams{Query: "ignored", Rating: "7"})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, []int{1, 2, 3}, page.Window.Pages)
	assert.Equal(t, "api-token", f.lastToken)
	assert.Equal(t, "", f.lastSearch.Query)
	assert.Equal(t, "7", f.lastSearch.Rating)
	assert.Equal(t, 12, f.lastSearch.Limit)

	_, err = svc.ForUser(context.Background(), nil, domain.SearchParams{})
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}
