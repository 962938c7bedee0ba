package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/querycache"
)

// CatalogAPI is the part of the movie API the catalog pages read.
type CatalogAPI interface {
	Trending(ctx context.Context) ([]domain.Movie, error)
	Movie(ctx context.Context, id int) (domain.Movie, error)
	UpcomingTrailers(ctx context.Context) ([]domain.Trailer, error)
	RefreshUpcoming(ctx context.Context) error
	Person(ctx context.Context, id int) (domain.Person, error)
	Genres(ctx context.Context) ([]domain.Genre, error)
}

// CatalogService defines the read-only catalog operations.
type CatalogService interface {
	// Trending returns the trending titles shown on the home page.
	Trending(ctx context.Context) ([]domain.Movie, error)

	// Movie returns the detail of one title.
	Movie(ctx context.Context, id int) (*domain.Movie, error)

	// Person returns a cast member with their filmography.
	Person(ctx context.Context, id int) (*domain.Person, error)

	// Upcoming returns the trailers of upcoming releases.
	Upcoming(ctx context.Context) ([]domain.Trailer, error)

	// Genres returns every catalog genre.
	Genres(ctx context.Context) ([]domain.Genre, error)

	// Genre looks up one genre by id.
	Genre(ctx context.Context, id int) (*domain.Genre, error)

	// WarmTrending reloads the trending list into the cache.
	WarmTrending(ctx context.Context) (int, error)

	// RefreshUpcoming asks the API to rebuild its upcoming list, then reloads
	// the trailers into the cache.
	RefreshUpcoming(ctx context.Context) (int, error)
}

var (
	trendingKey = querycache.NewKey("trending")
	upcomingKey = querycache.NewKey("upcoming")
	genresKey   = querycache.NewKey("genres")
)

// catalogService implements CatalogService.
type catalogService struct {
	api    CatalogAPI
	cache  *querycache.Cache
	logger *slog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(api CatalogAPI, cache *querycache.Cache, logger *slog.Logger) CatalogService {
	return &catalogService{
		api:    api,
		cache:  cache,
		logger: logger,
	}
}

func (s *catalogService) Trending(ctx context.Context) ([]domain.Movie, error) {
	return querycache.Do(ctx, s.cache, trendingKey, s.api.Trending)
}

func (s *catalogService) Movie(ctx context.Context, id int) (*domain.Movie, error) {
	const op = "CatalogService.Movie"
	if err := domain.ValidateMovieID(op, id); err != nil {
		return nil, err
	}

	movie, err := querycache.Do(ctx, s.cache, querycache.NewKey("movie", strconv.Itoa(id)), func(ctx context.Context) (domain.Movie, error) {
		return s.api.Movie(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

func (s *catalogService) Person(ctx context.Context, id int) (*domain.Person, error) {
	const op = "CatalogService.Person"
	if id <= 0 {
		return nil, domain.Invalid(op, "Invalid person id")
	}

	person, err := querycache.Do(ctx, s.cache, querycache.NewKey("person", strconv.Itoa(id)), func(ctx context.Context) (domain.Person, error) {
		return s.api.Person(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func (s *catalogService) Upcoming(ctx context.Context) ([]domain.Trailer, error) {
	return querycache.Do(ctx, s.cache, upcomingKey, s.api.UpcomingTrailers)
}

func (s *catalogService) Genres(ctx context.Context) ([]domain.Genre, error) {
	return querycache.Do(ctx, s.cache, genresKey, s.api.Genres)
}

func (s *catalogService) Genre(ctx context.Context, id int) (*domain.Genre, error) {
	const op = "CatalogService.Genre"

	genres, err := s.Genres(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range genres {
		if g.ID == id {
			return &g, nil
		}
	}
	return nil, domain.NotFound(op, "genre", strconv.Itoa(id))
}

func (s *catalogService) WarmTrending(ctx context.Context) (int, error) {
	s.cache.Invalidate(trendingKey)
	movies, err := s.Trending(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("trending cache warmed", "movies", len(movies))
	return len(movies), nil
}

func (s *catalogService) RefreshUpcoming(ctx context.Context) (int, error) {
	if err := s.api.RefreshUpcoming(ctx); err != nil {
		return 0, err
	}
	s.cache.Invalidate(upcomingKey)
	trailers, err := s.Upcoming(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("upcoming trailers refreshed", "trailers", len(trailers))
	return len(trailers), nil
}
