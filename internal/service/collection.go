package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/metrics"
	"github.com/DukeRupert/marquee/internal/querycache"
)

// CollectionAPI is the part of the movie API that manages the viewer's lists.
type CollectionAPI interface {
	Collection(ctx context.Context, token string, kind domain.CollectionKind) ([]domain.CollectionItem, error)
	AddToCollection(ctx context.Context, token string, kind domain.CollectionKind, movieID int) error
	RemoveFromCollection(ctx context.Context, token string, kind domain.CollectionKind, movieID int) error
	RateMovie(ctx context.Context, token string, movieID int, rating float64) error
}

// MovieState is the viewer's own state for one title.
type MovieState struct {
	Favorite  bool
	Watchlist bool
	Rating    *float64
}

// CollectionService manages the favorites, watchlist and ratings of the
// signed-in viewer.
type CollectionService interface {
	// List returns the items of one collection.
	List(ctx context.Context, sess *domain.Session, kind domain.CollectionKind) ([]domain.CollectionItem, error)

	// Add puts a movie in the favorites or the watchlist.
	Add(ctx context.Context, sess *domain.Session, kind domain.CollectionKind, movieID int) error

	// Remove takes a movie out of the favorites or the watchlist.
	Remove(ctx context.Context, sess *domain.Session, kind domain.CollectionKind, movieID int) error

	// Rate sets the viewer's star rating for a movie.
	Rate(ctx context.Context, sess *domain.Session, movieID int, rating float64) error

	// State returns the viewer's state for a movie across all collections.
	State(ctx context.Context, sess *domain.Session, movieID int) (MovieState, error)
}

// collectionService implements CollectionService.
type collectionService struct {
	api    CollectionAPI
	cache  *querycache.Cache
	logger *slog.Logger
}

// NewCollectionService creates a new CollectionService.
func NewCollectionService(api CollectionAPI, cache *querycache.Cache, logger *slog.Logger) CollectionService {
	return &collectionService{
		api:    api,
		cache:  cache,
		logger: logger,
	}
}

func collectionKey(userID string, kind domain.CollectionKind) querycache.Key {
	return querycache.NewKey("collection", userID, string(kind))
}

func (s *collectionService) List(ctx context.Context, sess *domain.Session, kind domain.CollectionKind) ([]domain.CollectionItem, error) {
	const op = "CollectionService.List"
	if err := requireSession(op, sess); err != nil {
		return nil, err
	}
	if err := validKind(op, kind, true); err != nil {
		return nil, err
	}

	return querycache.Do(ctx, s.cache, collectionKey(sess.User.ID, kind), func(ctx context.Context) ([]domain.CollectionItem, error) {
		return s.api.Collection(ctx, sess.AccessToken, kind)
	})
}

func (s *collectionService) Add(ctx context.Context, sess *domain.Session, kind domain.CollectionKind, movieID int) error {
	const op = "CollectionService.Add"
	if err := s.checkMutation(op, sess, kind, movieID); err != nil {
		return err
	}

	err := s.api.AddToCollection(ctx, sess.AccessToken, kind, movieID)
	s.recordChange(sess, kind, "add", movieID, err)
	return err
}

func (s *collectionService) Remove(ctx context.Context, sess *domain.Session, kind domain.CollectionKind, movieID int) error {
	const op = "CollectionService.Remove"
	if err := s.checkMutation(op, sess, kind, movieID); err != nil {
		return err
	}

	err := s.api.RemoveFromCollection(ctx, sess.AccessToken, kind, movieID)
	s.recordChange(sess, kind, "remove", movieID, err)
	return err
}

func (s *collectionService) Rate(ctx context.Context, sess *domain.Session, movieID int, rating float64) error {
	const op = "CollectionService.Rate"
	if err := requireSession(op, sess); err != nil {
		return err
	}
	if err := domain.ValidateMovieID(op, movieID); err != nil {
		return err
	}
	if err := domain.ValidateRating(op, rating); err != nil {
		return err
	}

	err := s.api.RateMovie(ctx, sess.AccessToken, movieID, rating)
	s.recordChange(sess, domain.CollectionRatings, "rate", movieID, err)
	return err
}

func (s *collectionService) State(ctx context.Context, sess *domain.Session, movieID int) (MovieState, error) {
	var state MovieState
	if sess == nil {
		return state, nil
	}

	for _, kind := range []domain.CollectionKind{domain.CollectionFavorites, domain.CollectionWatchlist, domain.CollectionRatings} {
		items, err := s.List(ctx, sess, kind)
		if err != nil {
			return MovieState{}, err
		}
		for _, item := range items {
			if item.Movie.ID != movieID {
				continue
			}
			switch kind {
			case domain.CollectionFavorites:
				state.Favorite = true
			case domain.CollectionWatchlist:
				state.Watchlist = true
			case domain.CollectionRatings:
				state.Rating = item.Rating
			}
		}
	}
	return state, nil
}

func (s *collectionService) checkMutation(op string, sess *domain.Session, kind domain.CollectionKind, movieID int) error {
	if err := requireSession(op, sess); err != nil {
		return err
	}
	if err := validKind(op, kind, false); err != nil {
		return err
	}
	return domain.ValidateMovieID(op, movieID)
}

// recordChange logs the mutation and drops the viewer's cached lists and
// recommendations once it succeeded.
func (s *collectionService) recordChange(sess *domain.Session, kind domain.CollectionKind, action string, movieID int, err error) {
	if err != nil {
		metrics.CollectionChanges.WithLabelValues(string(kind), action, "error").Inc()
		s.logger.Warn("collection change failed",
			"user_id", sess.User.ID,
			"collection", kind,
			"action", action,
			"movie_id", movieID,
			"error", err,
		)
		return
	}

	metrics.CollectionChanges.WithLabelValues(string(kind), action, "success").Inc()
	s.cache.Invalidate(querycache.NewKey("collection", sess.User.ID))
	s.cache.Invalidate(recommendKey(sess.User.ID))
	s.logger.Info("collection changed",
		"user_id", sess.User.ID,
		"collection", kind,
		"action", action,
		"movie_id", strconv.Itoa(movieID),
	)
}

func requireSession(op string, sess *domain.Session) error {
	if sess == nil {
		return domain.Unauthorized(op, "Please sign in to continue.")
	}
	return nil
}

// validKind rejects unknown collections. Ratings can be listed but not added
// to or removed from.
func validKind(op string, kind domain.CollectionKind, allowRatings bool) error {
	switch kind {
	case domain.CollectionFavorites, domain.CollectionWatchlist:
		return nil
	case domain.CollectionRatings:
		if allowRatings {
			return nil
		}
	}
	return domain.Invalid(op, "Unknown collection")
}
