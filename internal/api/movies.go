package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/DukeRupert/marquee/internal/domain"
)

// Trending returns the trending titles for the home carousel.
func (c *Client) Trending(ctx context.Context) ([]domain.Movie, error) {
	var out movieListSchema
	err := c.do(ctx, request{
		op:     "api.Trending",
		method: http.MethodGet,
		path:   "/api/v1/movie/trending",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.movies(), nil
}

// Movie returns the detail record for a title, cast included.
func (c *Client) Movie(ctx context.Context, id int) (domain.Movie, error) {
	const op = "api.Movie"
	if err := domain.ValidateMovieID(op, id); err != nil {
		return domain.Movie{}, err
	}

	var out movieSchema
	err := c.do(ctx, request{
		op:     op,
		method: http.MethodGet,
		path:   "/api/v1/movie/" + strconv.Itoa(id),
	}, &out)
	if err != nil {
		return domain.Movie{}, err
	}
	return out.toDomain(), nil
}

// UpcomingTrailers returns the latest trailer list.
func (c *Client) UpcomingTrailers(ctx context.Context) ([]domain.Trailer, error) {
	var out trailerListSchema
	err := c.do(ctx, request{
		op:     "api.UpcomingTrailers",
		method: http.MethodGet,
		path:   "/api/v1/movie/upcoming",
	}, &out)
	if err != nil {
		return nil, err
	}

	trailers := make([]domain.Trailer, 0, len(out.Data))
	for _, t := range out.Data {
		trailers = append(trailers, domain.Trailer{
			MovieID:      t.TMDBID,
			Title:        t.Title,
			Key:          t.Key,
			Site:         t.Site,
			BackdropPath: t.BackdropPath,
			ReleaseDate:  parseDate(t.ReleaseDate),
		})
	}
	return trailers, nil
}

// RefreshUpcoming asks the API to rebuild its upcoming trailer list.
func (c *Client) RefreshUpcoming(ctx context.Context) error {
	return c.do(ctx, request{
		op:     "api.RefreshUpcoming",
		method: http.MethodGet,
		path:   "/api/v1/movie/upcoming/set",
	}, nil)
}

// Person returns a cast member with their filmography.
func (c *Client) Person(ctx context.Context, id int) (domain.Person, error) {
	const op = "api.Person"
	if id <= 0 {
		return domain.Person{}, domain.Invalid(op, "Invalid person id")
	}

	var out personSchema
	err := c.do(ctx, request{
		op:     op,
		method: http.MethodGet,
		path:   "/api/v1/cast/" + strconv.Itoa(id),
	}, &out)
	if err != nil {
		return domain.Person{}, err
	}
	return out.toDomain(), nil
}

// Genres returns the genre list used by the search filters.
func (c *Client) Genres(ctx context.Context) ([]domain.Genre, error) {
	var out genreListSchema
	err := c.do(ctx, request{
		op:     "api.Genres",
		method: http.MethodGet,
		path:   "/api/v1/genres",
	}, &out)
	if err != nil {
		return nil, err
	}

	genres := make([]domain.Genre, 0, len(out.Data))
	for _, g := range out.Data {
		genres = append(genres, domain.Genre{ID: g.ID, Name: g.Name})
	}
	return genres, nil
}
