package domain

import (
	"fmt"
	"time"
)

// Genre is a catalog genre.
type Genre struct {
	ID   int
	Name string
}

// Movie is a catalog title as shown on cards, carousels and detail pages.
type Movie struct {
	ID           int // TMDB id
	Title        string
	Overview     string
	Tagline      string
	PosterPath   string
	BackdropPath string
	Genres       []Genre
	ReleaseDate  time.Time // zero when unknown
	Runtime      int       // minutes
	VoteAverage  float64   // 0..10
	VoteCount    int
	Popularity   float64
	Cast         []CastCredit
}

// Year returns the release year, or 0 when the release date is unknown.
func (m Movie) Year() int {
	if m.ReleaseDate.IsZero() {
		return 0
	}
	return m.ReleaseDate.Year()
}

// ScorePercent is the vote average as a 0..100 score for the rating circle.
func (m Movie) ScorePercent() int {
	if m.VoteAverage <= 0 {
		return 0
	}
	if m.VoteAverage >= 10 {
		return 100
	}
	return int(m.VoteAverage*10 + 0.5)
}

// RuntimeLabel formats the runtime as "2h 15m".
func (m Movie) RuntimeLabel() string {
	if m.Runtime <= 0 {
		return ""
	}
	h, mins := m.Runtime/60, m.Runtime%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", mins)
	case mins == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, mins)
	}
}

// CastCredit links a person to a movie.
type CastCredit struct {
	PersonID    int
	Name        string
	Character   string
	ProfilePath string
	Order       int
}

// Person is a cast or crew member detail page.
type Person struct {
	ID                 int
	Name               string
	Biography          string
	Birthday           time.Time
	Deathday           time.Time
	PlaceOfBirth       string
	ProfilePath        string
	KnownForDepartment string
	Movies             []Movie
}

// Trailer is an upcoming-movie trailer.
type Trailer struct {
	MovieID      int
	Title        string
	Key          string // video id on Site
	Site         string // e.g. "YouTube"
	BackdropPath string
	ReleaseDate  time.Time
}

// EmbedURL returns the player URL for supported video sites.
func (t Trailer) EmbedURL() string {
	if t.Site == "YouTube" && t.Key != "" {
		return "https://www.youtube.com/embed/" + t.Key
	}
	return ""
}
