package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/DukeRupert/marquee/internal/domain"
)

// collectionPaths maps a collection to its API resource.
var collectionPaths = map[domain.CollectionKind]string{
	domain.CollectionFavorites: "/api/v1/user/favorite-list",
	domain.CollectionWatchlist: "/api/v1/user/watch-list",
	domain.CollectionRatings:   "/api/v1/user/rating-list",
}

// Collection lists the viewer's movies in kind.
func (c *Client) Collection(ctx context.Context, token string, kind domain.CollectionKind) ([]domain.CollectionItem, error) {
	op := "api.Collection." + string(kind)
	path, ok := collectionPaths[kind]
	if !ok {
		return nil, domain.Invalid(op, "Unknown collection")
	}

	var out movieListSchema
	err := c.do(ctx, request{
		op:     op,
		method: http.MethodGet,
		path:   path,
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}

	items := make([]domain.CollectionItem, 0, len(out.Data))
	for _, m := range out.Data {
		items = append(items, m.toCollectionItem())
	}
	return items, nil
}

// AddToCollection adds a movie to the favorites or watchlist collection.
func (c *Client) AddToCollection(ctx context.Context, token string, kind domain.CollectionKind, movieID int) error {
	return c.mutateCollection(ctx, token, kind, movieID, http.MethodPost)
}

// RemoveFromCollection removes a movie from the favorites or watchlist collection.
func (c *Client) RemoveFromCollection(ctx context.Context, token string, kind domain.CollectionKind, movieID int) error {
	return c.mutateCollection(ctx, token, kind, movieID, http.MethodDelete)
}

func (c *Client) mutateCollection(ctx context.Context, token string, kind domain.CollectionKind, movieID int, method string) error {
	op := "api.Collection." + string(kind) + "." + method
	if kind == domain.CollectionRatings {
		return domain.Invalid(op, "Ratings are changed with RateMovie")
	}
	path, ok := collectionPaths[kind]
	if !ok {
		return domain.Invalid(op, "Unknown collection")
	}
	if err := domain.ValidateMovieID(op, movieID); err != nil {
		return err
	}

	return c.do(ctx, request{
		op:     op,
		method: method,
		path:   path + "/" + strconv.Itoa(movieID),
		token:  token,
	}, nil)
}

type ratingBody struct {
	Rating float64 `json:"rating"`
}

// RateMovie sets the viewer's star rating for a movie.
func (c *Client) RateMovie(ctx context.Context, token string, movieID int, rating float64) error {
	const op = "api.RateMovie"
	if err := domain.ValidateMovieID(op, movieID); err != nil {
		return err
	}
	if err := domain.ValidateRating(op, rating); err != nil {
		return err
	}

	return c.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   collectionPaths[domain.CollectionRatings] + "/" + strconv.Itoa(movieID),
		token:  token,
		body:   ratingBody{Rating: rating},
	}, nil)
}
