package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/metrics"
	"github.com/DukeRupert/marquee/internal/pagination"
	"github.com/DukeRupert/marquee/internal/querycache"
)

// SearchAPI is the part of the movie API that returns paged result lists.
type SearchAPI interface {
	SearchMovies(ctx context.Context, p domain.SearchParams) (domain.ResultPage, error)
	Recommend(ctx context.Context, token string, p domain.SearchParams) (domain.ResultPage, error)
}

// SearchPage is one rendered page of results with its pagination window.
type SearchPage struct {
	Movies     []domain.Movie
	Page       int
	TotalPages int
	Window     pagination.VisibleWindow
	Params     domain.SearchParams
}

// Empty reports whether the page has no results to show.
func (p *SearchPage) Empty() bool {
	return p == nil || len(p.Movies) == 0
}

// PagingConfig controls page sizes and the pagination window.
type PagingConfig struct {
	PageSize   int
	WindowSize int
}

func (c PagingConfig) normalize() PagingConfig {
	if c.PageSize < 1 {
		c.PageSize = 20
	}
	if c.WindowSize < 1 {
		c.WindowSize = pagination.DefaultWindowSize
	}
	return c
}

// SearchService runs catalog searches.
type SearchService interface {
	// Search returns one page of results for p. viewer identifies who is
	// searching (a session id or client address): a newer search from the
	// same viewer supersedes this one, which then returns
	// querycache.ErrSuperseded.
	Search(ctx context.Context, viewer string, p domain.SearchParams) (*SearchPage, error)
}

// searchService implements SearchService.
type searchService struct {
	api    SearchAPI
	cache  *querycache.Cache
	scope  *querycache.Scope
	config PagingConfig
	logger *slog.Logger
}

// NewSearchService creates a new SearchService.
func NewSearchService(api SearchAPI, cache *querycache.Cache, scope *querycache.Scope, config PagingConfig, logger *slog.Logger) SearchService {
	return &searchService{
		api:    api,
		cache:  cache,
		scope:  scope,
		config: config.normalize(),
		logger: logger,
	}
}

func (s *searchService) Search(ctx context.Context, viewer string, p domain.SearchParams) (*SearchPage, error) {
	p = p.Normalize(s.config.PageSize)

	// Nothing to search for yet
	if p.Query == "" && !p.HasFilters() {
		return &SearchPage{Page: p.Page, Params: p}, nil
	}

	metrics.SearchesTotal.WithLabelValues(string(p.Type)).Inc()

	key := pagedKey(querycache.NewKey("search"), p)
	result, err := querycache.Fetch(ctx, s.cache, s.scope, viewer+"/search", key, func(ctx context.Context) (domain.ResultPage, error) {
		return s.api.SearchMovies(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	return newSearchPage(result, p, s.config.WindowSize), nil
}

// RecommendationService lists titles recommended for the signed-in viewer.
type RecommendationService interface {
	// ForUser returns one page of recommendations, optionally filtered by p.
	ForUser(ctx context.Context, sess *domain.Session, p domain.SearchParams) (*SearchPage, error)
}

type recommendationService struct {
	api    SearchAPI
	cache  *querycache.Cache
	scope  *querycache.Scope
	config PagingConfig
	logger *slog.Logger
}

// NewRecommendationService creates a new RecommendationService.
func NewRecommendationService(api SearchAPI, cache *querycache.Cache, scope *querycache.Scope, config PagingConfig, logger *slog.Logger) RecommendationService {
	return &recommendationService{
		api:    api,
		cache:  cache,
		scope:  scope,
		config: config.normalize(),
		logger: logger,
	}
}

func (s *recommendationService) ForUser(ctx context.Context, sess *domain.Session, p domain.SearchParams) (*SearchPage, error) {
	const op = "RecommendationService.ForUser"
	if sess == nil {
		return nil, domain.Unauthorized(op, "Please sign in to see recommendations.")
	}

	p = p.Normalize(s.config.PageSize)
	p.Query = ""

	key := pagedKey(recommendKey(sess.User.ID), p)
	result, err := querycache.Fetch(ctx, s.cache, s.scope, sess.ID.String()+"/recommend", key, func(ctx context.Context) (domain.ResultPage, error) {
		return s.api.Recommend(ctx, sess.AccessToken, p)
	})
	if err != nil {
		return nil, err
	}

	return newSearchPage(result, p, s.config.WindowSize), nil
}

func recommendKey(userID string) querycache.Key {
	return querycache.NewKey("recommend", userID)
}

// pagedKey identifies one page of a result list under prefix.
func pagedKey(prefix querycache.Key, p domain.SearchParams) querycache.Key {
	v := p.Values()
	v.Set("type", string(p.Type))
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("limit", strconv.Itoa(p.Limit))
	return querycache.ValuesKey(prefix, v)
}

func newSearchPage(result domain.ResultPage, p domain.SearchParams, windowSize int) *SearchPage {
	page := p.Page
	if result.Page > 0 {
		page = result.Page
	}
	total := pagination.TotalPagesOf(result.TotalPages)
	return &SearchPage{
		Movies:     result.Movies,
		Page:       page,
		TotalPages: total,
		Window:     pagination.Of(pagination.PageState{CurrentPage: page, TotalPages: total}, windowSize),
		Params:     p,
	}
}
