package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/marquee/internal/api"
	"github.com/DukeRupert/marquee/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession() *domain.Session {
	return &domain.Session{
		ID:          uuid.New(),
		User:        domain.User{ID: "u-1", Email: "viewer@example.com", Name: "Viewer"},
		AccessToken: "api-token",
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func intPtr(n int) *int { return &n }

// fakeAPI implements every API interface the services depend on and counts
// calls per operation.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	trending []domain.Movie
	movies   map[int]domain.Movie
	trailers []domain.Trailer
	people   map[int]domain.Person
	genres   []domain.Genre

	searchResult domain.ResultPage
	searchErr    error
	lastSearch   domain.SearchParams
	lastToken    string
	searchHook   func(ctx context.Context, p domain.SearchParams) error

	collections map[domain.CollectionKind][]domain.CollectionItem
	mutateErr   error
	ratings     map[int]float64

	grant     api.Grant
	loginErr  error
	logoutErr error
	err       error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:       make(map[string]int),
		movies:      make(map[int]domain.Movie),
		people:      make(map[int]domain.Person),
		collections: make(map[domain.CollectionKind][]domain.CollectionItem),
		ratings:     make(map[int]float64),
	}
}

func (f *fakeAPI) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) Trending(ctx context.Context) ([]domain.Movie, error) {
	f.record("Trending")
	return f.trending, f.err
}

func (f *fakeAPI) Movie(ctx context.Context, id int) (domain.Movie, error) {
	f.record("Movie")
	m, ok := f.movies[id]
	if !ok {
		return domain.Movie{}, domain.NotFound("api.Movie", "movie", "x")
	}
	return m, nil
}

func (f *fakeAPI) UpcomingTrailers(ctx context.Context) ([]domain.Trailer, error) {
	f.record("UpcomingTrailers")
	return f.trailers, f.err
}

func (f *fakeAPI) RefreshUpcoming(ctx context.Context) error {
	f.record("RefreshUpcoming")
	return f.err
}

func (f *fakeAPI) Person(ctx context.Context, id int) (domain.Person, error) {
	f.record("Person")
	p, ok := f.people[id]
	if !ok {
		return domain.Person{}, domain.NotFound("api.Person", "person", "x")
	}
	return p, nil
}

func (f *fakeAPI) Genres(ctx context.Context) ([]domain.Genre, error) {
	f.record("Genres")
	return f.genres, f.err
}

func (f *fakeAPI) SearchMovies(ctx context.Context, p domain.SearchParams) (domain.ResultPage, error) {
	f.record("SearchMovies")
	f.mu.Lock()
	f.lastSearch = p
	hook := f.searchHook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, p); err != nil {
			return domain.ResultPage{}, err
		}
	}
	return f.searchResult, f.searchErr
}

func (f *fakeAPI) Recommend(ctx context.Context, token string, p domain.SearchParams) (domain.ResultPage, error) {
	f.record("Recommend")
	f.mu.Lock()
	f.lastSearch = p
	f.lastToken = token
	f.mu.Unlock()
	return f.searchResult, f.searchErr
}

func (f *fakeAPI) Collection(ctx context.Context, token string, kind domain.CollectionKind) ([]domain.CollectionItem, error) {
	f.record("Collection:" + string(kind))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = token
	return append([]domain.CollectionItem(nil), f.collections[kind]...), nil
}

func (f *fakeAPI) AddToCollection(ctx context.Context, token string, kind domain.CollectionKind, movieID int) error {
	f.record("Add:" + string(kind))
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[kind] = append(f.collections[kind], domain.CollectionItem{Movie: domain.Movie{ID: movieID}})
	return nil
}

func (f *fakeAPI) RemoveFromCollection(ctx context.Context, token string, kind domain.CollectionKind, movieID int) error {
	f.record("Remove:" + string(kind))
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.collections[kind][:0]
	for _, item := range f.collections[kind] {
		if item.Movie.ID != movieID {
			items = append(items, item)
		}
	}
	f.collections[kind] = items
	return nil
}

func (f *fakeAPI) RateMovie(ctx context.Context, token string, movieID int, rating float64) error {
	f.record("RateMovie")
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings[movieID] = rating
	r := rating
	f.collections[domain.CollectionRatings] = append(f.collections[domain.CollectionRatings], domain.CollectionItem{Movie: domain.Movie{ID: movieID}, Rating: &r})
	return nil
}

func (f *fakeAPI) Login(ctx context.Context, creds domain.Credentials) (api.Grant, error) {
	f.record("Login")
	return f.grant, f.loginErr
}

func (f *fakeAPI) Register(ctx context.Context, reg domain.Registration) error {
	f.record("Register")
	return f.err
}

func (f *fakeAPI) Verify(ctx context.Context, email, otp string) error {
	f.record("Verify")
	return f.err
}

func (f *fakeAPI) Logout(ctx context.Context, token string) error {
	f.record("Logout")
	f.mu.Lock()
	f.lastToken = token
	f.mu.Unlock()
	return f.logoutErr
}
