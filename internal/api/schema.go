package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"

	"github.com/DukeRupert/marquee/internal/domain"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report wire names in field paths
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// decode unmarshals body into out and validates it. Failures are reported as
// *domain.ParseError wrapped in an EPARSE application error.
func decode(op string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return domain.Malformed(&domain.ParseError{Op: op, Err: err})
	}
	if err := validatorInstance().Struct(out); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return domain.Malformed(&domain.ParseError{
				Op:    op,
				Field: fieldPath(fe.Namespace()),
				Err:   errors.New("failed " + fe.Tag() + " check"),
			})
		}
		return domain.Malformed(&domain.ParseError{Op: op, Err: err})
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(timestampLayout, s)
	return t
}

// Wire schemas

type genreSchema struct {
	ID   int    `json:"id" validate:"gt=0"`
	Name string `json:"name" validate:"required"`
}

type castSchema struct {
	ID          int    `json:"id" validate:"gt=0"`
	Name        string `json:"name" validate:"required"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
	Order       int    `json:"order" validate:"gte=0"`
}

// movieSchema covers catalog entries and collection entries; the latter carry
// the viewer's rating and favorite flag.
type movieSchema struct {
	TMDBID       int           `json:"tmdb_id" validate:"required_without=ID,gte=0"`
	ID           int           `json:"id" validate:"gte=0"`
	Title        string        `json:"title" validate:"required"`
	Overview     string        `json:"overview"`
	Tagline      string        `json:"tagline"`
	PosterPath   string        `json:"poster_path"`
	BackdropPath string        `json:"backdrop_path"`
	Genres       []genreSchema `json:"genres" validate:"dive"`
	ReleaseDate  string        `json:"release_date" validate:"omitempty,datetime=2006-01-02"`
	Runtime      int           `json:"runtime" validate:"gte=0"`
	VoteAverage  float64       `json:"vote_average" validate:"gte=0,lte=10"`
	VoteCount    int           `json:"vote_count" validate:"gte=0"`
	Popularity   float64       `json:"popularity" validate:"gte=0"`
	Cast         []castSchema  `json:"cast" validate:"dive"`
	Rating       *float64      `json:"rating" validate:"omitempty,gte=0,lte=5"`
	IsFavorite   bool          `json:"isFavorite"`
	CreatedAt    string        `json:"created_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (m movieSchema) movieID() int {
	if m.TMDBID > 0 {
		return m.TMDBID
	}
	return m.ID
}

func (m movieSchema) toDomain() domain.Movie {
	movie := domain.Movie{
		ID:           m.movieID(),
		Title:        m.Title,
		Overview:     m.Overview,
		Tagline:      m.Tagline,
		PosterPath:   m.PosterPath,
		BackdropPath: m.BackdropPath,
		ReleaseDate:  parseDate(m.ReleaseDate),
		Runtime:      m.Runtime,
		VoteAverage:  m.VoteAverage,
		VoteCount:    m.VoteCount,
		Popularity:   m.Popularity,
	}
	for _, g := range m.Genres {
		movie.Genres = append(movie.Genres, domain.Genre{ID: g.ID, Name: g.Name})
	}
	for _, c := range m.Cast {
		movie.Cast = append(movie.Cast, domain.CastCredit{
			PersonID:    c.ID,
			Name:        c.Name,
			Character:   c.Character,
			ProfilePath: c.ProfilePath,
			Order:       c.Order,
		})
	}
	return movie
}

func (m movieSchema) toCollectionItem() domain.CollectionItem {
	return domain.CollectionItem{
		Movie:      m.toDomain(),
		Rating:     m.Rating,
		IsFavorite: m.IsFavorite,
		AddedAt:    parseTimestamp(m.CreatedAt),
	}
}

type movieListSchema struct {
	Data      []movieSchema `json:"data" validate:"dive"`
	Page      int           `json:"page" validate:"gte=0"`
	TotalPage *int          `json:"totalPage" validate:"omitempty,gte=0"`
}

func (l movieListSchema) movies() []domain.Movie {
	movies := make([]domain.Movie, 0, len(l.Data))
	for _, m := range l.Data {
		movies = append(movies, m.toDomain())
	}
	return movies
}

type trailerSchema struct {
	TMDBID       int    `json:"tmdb_id" validate:"gt=0"`
	Title        string `json:"title" validate:"required"`
	Key          string `json:"key" validate:"required"`
	Site         string `json:"site"`
	BackdropPath string `json:"backdrop_path"`
	ReleaseDate  string `json:"release_date" validate:"omitempty,datetime=2006-01-02"`
}

type trailerListSchema struct {
	Data []trailerSchema `json:"data" validate:"dive"`
}

type personSchema struct {
	ID                 int           `json:"id" validate:"gt=0"`
	Name               string        `json:"name" validate:"required"`
	Biography          string        `json:"biography"`
	Birthday           string        `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	Deathday           string        `json:"deathday" validate:"omitempty,datetime=2006-01-02"`
	PlaceOfBirth       string        `json:"place_of_birth"`
	ProfilePath        string        `json:"profile_path"`
	KnownForDepartment string        `json:"known_for_department"`
	Movies             []movieSchema `json:"movies" validate:"dive"`
}

func (p personSchema) toDomain() domain.Person {
	person := domain.Person{
		ID:                 p.ID,
		Name:               p.Name,
		Biography:          p.Biography,
		Birthday:           parseDate(p.Birthday),
		Deathday:           parseDate(p.Deathday),
		PlaceOfBirth:       p.PlaceOfBirth,
		ProfilePath:        p.ProfilePath,
		KnownForDepartment: p.KnownForDepartment,
	}
	for _, m := range p.Movies {
		person.Movies = append(person.Movies, m.toDomain())
	}
	return person
}

type genreListSchema struct {
	Data []genreSchema `json:"data" validate:"dive"`
}

type userSchema struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

type loginSchema struct {
	AccessToken string     `json:"access_token" validate:"required"`
	ExpiresIn   int        `json:"expires_in" validate:"gte=0"`
	User        userSchema `json:"user"`
}
