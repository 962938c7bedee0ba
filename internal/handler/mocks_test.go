package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/service"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Renderer
// =============================================================================

// fakeRenderer records what a handler asked to render instead of executing
// templates.
type fakeRenderer struct {
	Name    string
	Status  int
	Data    interface{}
	Toast   *ToastData
	Partial bool
}

func (f *fakeRenderer) RenderHTTP(w http.ResponseWriter, name string, data interface{}) {
	f.RenderHTTPStatus(w, http.StatusOK, name, data)
}

func (f *fakeRenderer) RenderHTTPStatus(w http.ResponseWriter, status int, name string, data interface{}) {
	f.Name, f.Status, f.Data = name, status, data
	w.WriteHeader(status)
}

func (f *fakeRenderer) RenderHTTPWithToast(w http.ResponseWriter, name string, data interface{}, toast ToastData) {
	f.Name, f.Status, f.Data, f.Toast = name, http.StatusOK, data, &toast
	w.WriteHeader(http.StatusOK)
}

func (f *fakeRenderer) RenderPartial(w http.ResponseWriter, name string, data interface{}) {
	f.Partial = true
	f.RenderHTTP(w, "partial/"+name, data)
}

func (f *fakeRenderer) RenderToast(w http.ResponseWriter, toast ToastData) {
	f.Toast = &toast
	w.Header().Set("HX-Reswap", "none")
	w.WriteHeader(http.StatusOK)
}

// =============================================================================
// Services
// =============================================================================

type mockAuthService struct {
	LoginFunc    func(ctx context.Context, creds domain.Credentials) (string, *domain.Session, error)
	RegisterFunc func(ctx context.Context, reg domain.Registration) error
	VerifyFunc   func(ctx context.Context, email, otp string) error
	LogoutFunc   func(ctx context.Context, token string, sess *domain.Session) error
	ResolveFunc  func(ctx context.Context, token string) (*domain.Session, error)
}

func (m *mockAuthService) Login(ctx context.Context, creds domain.Credentials) (string, *domain.Session, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, creds)
	}
	return "", nil, errors.New("LoginFunc not implemented")
}

func (m *mockAuthService) Register(ctx context.Context, reg domain.Registration) error {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, reg)
	}
	return errors.New("RegisterFunc not implemented")
}

func (m *mockAuthService) Verify(ctx context.Context, email, otp string) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, email, otp)
	}
	return errors.New("VerifyFunc not implemented")
}

func (m *mockAuthService) Logout(ctx context.Context, token string, sess *domain.Session) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token, sess)
	}
	return nil
}

func (m *mockAuthService) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, token)
	}
	return nil, errors.New("ResolveFunc not implemented")
}

type mockCatalogService struct {
	TrendingFunc func(ctx context.Context) ([]domain.Movie, error)
	MovieFunc    func(ctx context.Context, id int) (*domain.Movie, error)
	PersonFunc   func(ctx context.Context, id int) (*domain.Person, error)
	UpcomingFunc func(ctx context.Context) ([]domain.Trailer, error)
	GenresFunc   func(ctx context.Context) ([]domain.Genre, error)
	GenreFunc    func(ctx context.Context, id int) (*domain.Genre, error)
}

func (m *mockCatalogService) Trending(ctx context.Context) ([]domain.Movie, error) {
	if m.TrendingFunc != nil {
		return m.TrendingFunc(ctx)
	}
	return nil, nil
}

func (m *mockCatalogService) Movie(ctx context.Context, id int) (*domain.Movie, error) {
	if m.MovieFunc != nil {
		return m.MovieFunc(ctx, id)
	}
	return nil, errors.New("MovieFunc not implemented")
}

func (m *mockCatalogService) Person(ctx context.Context, id int) (*domain.Person, error) {
	if m.PersonFunc != nil {
		return m.PersonFunc(ctx, id)
	}
	return nil, errors.New("PersonFunc not implemented")
}

func (m *mockCatalogService) Upcoming(ctx context.Context) ([]domain.Trailer, error) {
	if m.UpcomingFunc != nil {
		return m.UpcomingFunc(ctx)
	}
	return nil, nil
}

func (m *mockCatalogService) Genres(ctx context.Context) ([]domain.Genre, error) {
	if m.GenresFunc != nil {
		return m.GenresFunc(ctx)
	}
	return nil, nil
}

func (m *mockCatalogService) Genre(ctx context.Context, id int) (*domain.Genre, error) {
	if m.GenreFunc != nil {
		return m.GenreFunc(ctx, id)
	}
	return nil, domain.NotFound("CatalogService.Genre", "genre", strconv.Itoa(id))
}

func (m *mockCatalogService) WarmTrending(ctx context.Context) (int, error) {
	return 0, nil
}

func (m *mockCatalogService) RefreshUpcoming(ctx context.Context) (int, error) {
	return 0, nil
}

type mockSearchService struct {
	mu       sync.Mutex
	calls    []domain.SearchParams
	viewers  []string
	SearchFn func(ctx context.Context, viewer string, p domain.SearchParams) (*service.SearchPage, error)
}

func (m *mockSearchService) Search(ctx context.Context, viewer string, p domain.SearchParams) (*service.SearchPage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, p)
	m.viewers = append(m.viewers, viewer)
	m.mu.Unlock()
	if m.SearchFn != nil {
		return m.SearchFn(ctx, viewer, p)
	}
	return &service.SearchPage{Page: 1, TotalPages: 1, Params: p}, nil
}

type mockRecommendationService struct {
	ForUserFunc func(ctx context.Context, sess *domain.Session, p domain.SearchParams) (*service.SearchPage, error)
}

func (m *mockRecommendationService) ForUser(ctx context.Context, sess *domain.Session, p domain.SearchParams) (*service.SearchPage, error) {
	if m.ForUserFunc != nil {
		return m.ForUserFunc(ctx, sess, p)
	}
	return &service.SearchPage{Page: 1, TotalPages: 1, Params: p}, nil
}

type mockCollectionService struct {
	ListFunc   func(ctx context.Context, sess *domain.Session, kind domain.CollectionKind) ([]domain.CollectionItem, error)
	AddFunc    func(ctx context.Context, sess *domain.Session, kind domain.CollectionKind, movieID int) error
	RemoveFunc func(ctx context.Context, sess *domain.Session, kind domain.CollectionKind, movieID int) error
	RateFunc   func(ctx context.Context, sess *domain.Session, movieID int, rating float64) error
	StateFunc  func(ctx context.Context, sess *domain.Session, movieID int) (service.MovieState, error)
}

func (m *mockCollectionService) List(ctx context.Context, sess *domain.Session, kind domain.CollectionKind) ([]domain.CollectionItem, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, sess, kind)
	}
	return nil, nil
}

func (m *mockCollectionService) Add(ctx context.Context, sess *domain.Session, kind domain.CollectionKind, movieID int) error {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, sess, kind, movieID)
	}
	return nil
}

func (m *mockCollectionService) Remove(ctx context.Context, sess *domain.Session, kind domain.CollectionKind, movieID int) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, sess, kind, movieID)
	}
	return nil
}

func (m *mockCollectionService) Rate(ctx context.Context, sess *domain.Session, movieID int, rating float64) error {
	if m.RateFunc != nil {
		return m.RateFunc(ctx, sess, movieID, rating)
	}
	return nil
}

func (m *mockCollectionService) State(ctx context.Context, sess *domain.Session, movieID int) (service.MovieState, error) {
	if m.StateFunc != nil {
		return m.StateFunc(ctx, sess, movieID)
	}
	return service.MovieState{}, nil
}

// mockThrottle records failed and reset sign-in attempts.
type mockThrottle struct {
	failed []string
	reset  []string
}

func (m *mockThrottle) RecordFailedLogin(ip string) { m.failed = append(m.failed, ip) }
func (m *mockThrottle) ResetLogin(ip string)        { m.reset = append(m.reset, ip) }
