package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/DukeRupert/marquee/internal/domain"
)

// SearchMovies runs a catalog search. p should already be normalized.
func (c *Client) SearchMovies(ctx context.Context, p domain.SearchParams) (domain.ResultPage, error) {
	q := filterQuery(p)
	q.Set("query", p.Query)
	q.Set("type", string(p.Type))

	var out movieListSchema
	err := c.do(ctx, request{
		op:     "api.SearchMovies",
		method: http.MethodGet,
		path:   "/api/v1/search/movie",
		query:  q,
	}, &out)
	if err != nil {
		return domain.ResultPage{}, err
	}
	return resultPage(out, p.Page), nil
}

// Recommend returns recommendations derived from the viewer's favorites.
func (c *Client) Recommend(ctx context.Context, token string, p domain.SearchParams) (domain.ResultPage, error) {
	var out movieListSchema
	err := c.do(ctx, request{
		op:     "api.Recommend",
		method: http.MethodGet,
		path:   "/api/v1/recommend/movie",
		query:  filterQuery(p),
		token:  token,
	}, &out)
	if err != nil {
		return domain.ResultPage{}, err
	}
	return resultPage(out, p.Page), nil
}

func filterQuery(p domain.SearchParams) url.Values {
	q := url.Values{}
	if p.Genres != "" {
		q.Set("genres", p.Genres)
	}
	if p.Rating != "" {
		q.Set("rating", p.Rating)
	}
	if p.ReleaseYear != "" {
		q.Set("release_year", p.ReleaseYear)
	}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("limit", strconv.Itoa(p.Limit))
	return q
}

// resultPage keeps TotalPages nil when the API omitted it.
func resultPage(out movieListSchema, requested int) domain.ResultPage {
	page := out.Page
	if page < 1 {
		page = requested
	}
	return domain.ResultPage{
		Movies:     out.movies(),
		Page:       page,
		TotalPages: out.TotalPage,
	}
}
