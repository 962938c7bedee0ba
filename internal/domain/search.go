package domain

import (
	"net/url"
	"strconv"
	"strings"
)

// SearchType selects which field the catalog search matches against.
type SearchType string

const (
	SearchByName    SearchType = "name"
	SearchByActor   SearchType = "actor"
	SearchByKeyword SearchType = "keyword"
)

// ParseSearchType returns the search type for raw, defaulting to name search.
func ParseSearchType(raw string) SearchType {
	switch SearchType(strings.ToLower(strings.TrimSpace(raw))) {
	case SearchByActor:
		return SearchByActor
	case SearchByKeyword:
		return SearchByKeyword
	default:
		return SearchByName
	}
}

// SearchParams are the catalog query parameters carried in the URL.
// Genres, Rating and ReleaseYear are passed to the API as given once
// normalized; empty means "no filter".
type SearchParams struct {
	Query       string
	Type        SearchType
	Genres      string // comma-separated genre ids
	Rating      string // minimum vote average, e.g. "7"
	ReleaseYear string // four-digit year
	Page        int
	Limit       int
}

// Normalize trims the free-text fields, drops filters that cannot be valid and
// fills defaults. It never fails: bad filter input is ignored.
func (p SearchParams) Normalize(defaultLimit int) SearchParams {
	p.Query = strings.TrimSpace(p.Query)
	if p.Type == "" {
		p.Type = SearchByName
	}
	p.Genres = normalizeGenres(p.Genres)

	p.Rating = strings.TrimSpace(p.Rating)
	if f, err := strconv.ParseFloat(p.Rating, 64); err != nil || f < 0 || f > 10 {
		p.Rating = ""
	}

	p.ReleaseYear = strings.TrimSpace(p.ReleaseYear)
	if y, err := strconv.Atoi(p.ReleaseYear); err != nil || y < 1870 || y > 2200 {
		p.ReleaseYear = ""
	}

	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// HasFilters reports whether any filter beyond the query is set.
func (p SearchParams) HasFilters() bool {
	return p.Genres != "" || p.Rating != "" || p.ReleaseYear != ""
}

// Values encodes the params as the page's URL query, without the page number.
// Empty fields are omitted and the default search type is left implicit.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	if p.Query != "" {
		v.Set("keyword", p.Query)
	}
	if p.Type != "" && p.Type != SearchByName {
		v.Set("type", string(p.Type))
	}
	if p.Genres != "" {
		v.Set("genres", p.Genres)
	}
	if p.Rating != "" {
		v.Set("rating", p.Rating)
	}
	if p.ReleaseYear != "" {
		v.Set("release_year", p.ReleaseYear)
	}
	return v
}

func normalizeGenres(raw string) string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if n, err := strconv.Atoi(part); err == nil && n > 0 {
			ids = append(ids, part)
		}
	}
	return strings.Join(ids, ",")
}

// ResultPage is one page of catalog results. TotalPages is nil when the API
// did not report a total.
type ResultPage struct {
	Movies     []Movie
	Page       int
	TotalPages *int
}
