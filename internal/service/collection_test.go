package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/querycache"
)

func newCollections(f *fakeAPI) CollectionService {
	return NewCollectionService(f, querycache.New(time.Minute), testLogger())
}

func TestCollectionService_AddInvalidatesList(t *testing.T) {
	f := newFakeAPI()
	svc := newCollections(f)
	sess := testSession()
	ctx := context.Background()

	items, err := svc.List(ctx, sess, domain.CollectionFavorites)
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, svc.Add(ctx, sess, domain.CollectionFavorites, 603))

	items, err = svc.List(ctx, sess, domain.CollectionFavorites)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 603, items[0].Movie.ID)
	assert.Equal(t, 2, f.count("Collection:favorites"))
	assert.Equal(t, "api-token", f.lastToken)
}

func TestCollectionService_Remove(t *testing.T) {
	f := newFakeAPI()
	f.collections[domain.CollectionWatchlist] = []domain.CollectionItem{{Movie: domain.Movie{ID: 1}}, {Movie: domain.Movie{ID: 2}}}
	svc := newCollections(f)
	sess := testSession()
	ctx := context.Background()

	require.NoError(t, svc.Remove(ctx, sess, domain.CollectionWatchlist, 1))

	items, err := svc.List(ctx, sess, domain.CollectionWatchlist)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Movie.ID)
}

func TestCollectionService_Validation(t *testing.T) {
	f := newFakeAPI()
	svc := newCollections(f)
	sess := testSession()
	ctx := context.Background()

	tests := []struct {
		name     string
		call     func() error
		wantCode string
	}{
		{"no session", func() error { return svc.Add(ctx, nil, domain.CollectionFavorites, 1) }, domain.EUNAUTHORIZED},
		{"bad movie id", func() error { return svc.Add(ctx, sess, domain.CollectionFavorites, 0) }, domain.EINVALID},
		{"ratings cannot be added to", func() error { return svc.Add(ctx, sess, domain.CollectionRatings, 1) }, domain.EINVALID},
		{"unknown collection", func() error { return svc.Remove(ctx, sess, "queue", 1) }, domain.EINVALID},
		{"list unknown collection", func() error { _, err := svc.List(ctx, sess, "queue"); return err }, domain.EINVALID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, domain.ErrorCode(tt.call()))
		})
	}
	assert.Equal(t, 0, f.count("Add:favorites"))
}

func TestCollectionService_Rate(t *testing.T) {
	f := newFakeAPI()
	svc := newCollections(f)
	sess := testSession()
	ctx := context.Background()

	t.Run("valid half star", func(t *testing.T) {
		require.NoError(t, svc.Rate(ctx, sess, 10, 3.5))
		assert.Equal(t, 3.5, f.ratings[10])
	})

	for _, bad := range []float64{0, 0.3, 5.5, -1, 2.25} {
		err := svc.Rate(ctx, sess, 10, bad)
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve, "rating %v", bad)
	}
	assert.Equal(t, 1, f.count("RateMovie"))
}

func TestCollectionService_MutationErrorKeepsCache(t *testing.T) {
	f := newFakeAPI()
	svc := newCollections(f)
	sess := testSession()
	ctx := context.Background()

	_, err := svc.List(ctx, sess, domain.CollectionFavorites)
	require.NoError(t, err)

	f.mutateErr = domain.Conflict("api.AddToCollection", "Already in favorites")
	err = svc.Add(ctx, sess, domain.CollectionFavorites, 1)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))

	_, err = svc.List(ctx, sess, domain.CollectionFavorites)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("Collection:favorites"))
}

func TestCollectionService_State(t *testing.T) {
	f := newFakeAPI()
	rating := 4.0
	f.collections[domain.CollectionFavorites] = []domain.CollectionItem{{Movie: domain.Movie{ID: 5}}}
	f.collections[domain.CollectionRatings] = []domain.CollectionItem{{Movie: domain.Movie{ID: 5}, Rating: &rating}}
	svc := newCollections(f)

	state, err := svc.State(context.Background(), testSession(), 5)
	require.NoError(t, err)
	assert.True(t, state.Favorite)
	assert.False(t, state.Watchlist)
	require.NotNil(t, state.Rating)
	assert.Equal(t, 4.0, *state.Rating)

	state, err = svc.State(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Equal(t, MovieState{}, state)
}
