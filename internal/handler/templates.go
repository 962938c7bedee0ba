package handler

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/pagination"
	"github.com/DukeRupert/marquee/internal/service"
)

// TemplateFuncs returns a FuncMap with custom template functions
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		// Math functions
		"div": func(a, b int) int {
			if b == 0 {
				return 0
			}
			return a / b
		},
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"mul": func(a, b int) int {
			return a * b
		},
		"min": func(a, b int) int {
			if a < b {
				return a
			}
			return b
		},

		// Date/Time functions
		"year": func() int {
			return time.Now().Year()
		},
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006 3:04 PM")
		},
		"formatDateISO": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"timeAgo": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			now := time.Now()
			diff := now.Sub(t)

			switch {
			case diff < time.Minute:
				return "just now"
			case diff < time.Hour:
				mins := int(diff.Minutes())
				if mins == 1 {
					return "1 minute ago"
				}
				return fmt.Sprintf("%d minutes ago", mins)
			case diff < 24*time.Hour:
				hours := int(diff.Hours())
				if hours == 1 {
					return "1 hour ago"
				}
				return fmt.Sprintf("%d hours ago", hours)
			case diff < 7*24*time.Hour:
				days := int(diff.Hours() / 24)
				if days == 1 {
					return "yesterday"
				}
				return fmt.Sprintf("%d days ago", days)
			case diff < 30*24*time.Hour:
				weeks := int(diff.Hours() / 24 / 7)
				if weeks == 1 {
					return "1 week ago"
				}
				return fmt.Sprintf("%d weeks ago", weeks)
			default:
				return t.Format("Jan 2, 2006")
			}
		},

		// String functions
		"hasPrefix": func(s, prefix string) bool {
			return strings.HasPrefix(s, prefix)
		},
		"hasSuffix": func(s, suffix string) bool {
			return strings.HasSuffix(s, suffix)
		},
		"contains": func(s, substr string) bool {
			return strings.Contains(s, substr)
		},
		"lower": func(s string) string {
			return strings.ToLower(s)
		},
		"upper": func(s string) string {
			return strings.ToUpper(s)
		},
		"title": func(v interface{}) string {
			s := fmt.Sprint(v)
			return cases.Title(language.English).String(s)
		},
		"truncate": func(s string, length int) string {
			if len(s) <= length {
				return s
			}
			return s[:length] + "..."
		},
		// JSON encoding for safe JavaScript embedding
		"json": func(v interface{}) template.JS {
			b, err := json.Marshal(v)
			if err != nil {
				return template.JS(`""`)
			}
			return template.JS(b)
		},

		// Conditional/Logic functions
		"ternary": func(condition bool, trueVal, falseVal interface{}) interface{} {
			if condition {
				return trueVal
			}
			return falseVal
		},
		"default": func(defaultVal, val interface{}) interface{} {
			if val == nil || val == "" || val == 0 {
				return defaultVal
			}
			return val
		},
		"eq": func(a, b interface{}) bool {
			return a == b
		},
		"ne": func(a, b interface{}) bool {
			return a != b
		},

		// Collection functions
		"list": func(items ...interface{}) []interface{} {
			return items
		},
		"dict": func(values ...interface{}) map[string]interface{} {
			if len(values)%2 != 0 {
				return nil
			}
			dict := make(map[string]interface{}, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil
				}
				dict[key] = values[i+1]
			}
			return dict
		},
		"seq": func(start, end int) []int {
			var result []int
			for i := start; i <= end; i++ {
				result = append(result, i)
			}
			return result
		},

		// Form helpers
		"csrfField": func(token string) template.HTML {
			return template.HTML(fmt.Sprintf(`<input type="hidden" name="csrf_token" value="%s">`, template.HTMLEscapeString(token)))
		},

		// Movie helpers
		"posterURL":    posterURL,
		"profileURL":   profileURL,
		"backdropURL":  backdropURL,
		"ratingStars":  ratingStars,
		"scoreColor":   scoreColor,
		"pageNav":      pageNav,
		"genreNames":   genreNames,
		"isSearchType": func(p domain.SearchParams, t string) bool { return string(p.Type) == t },
	}
}

// Image sizes requested for each kind of artwork.
const (
	posterSize   = "w342"
	profileSize  = "w185"
	backdropSize = "w1280"
)

// placeholderPoster is served when a title has no artwork.
const placeholderPoster = "/static/img/no-poster.svg"

func imageURL(size, path string) string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return placeholderPoster
	}
	return "/img/" + size + "/" + path
}

func posterURL(path string) string   { return imageURL(posterSize, path) }
func profileURL(path string) string  { return imageURL(profileSize, path) }
func backdropURL(path string) string { return imageURL(backdropSize, path) }

// ratingStars returns the half-star steps of the scale with whether each is
// covered by rating, for the star input.
func ratingStars(rating *float64) []star {
	stars := make([]star, 0, int(domain.MaxRating/domain.RatingStep))
	for v := domain.MinRating; v <= domain.MaxRating; v += domain.RatingStep {
		stars = append(stars, star{
			Value:    v,
			Filled:   rating != nil && *rating >= v,
			Selected: rating != nil && *rating == v,
		})
	}
	return stars
}

type star struct {
	Value    float64
	Filled   bool
	Selected bool
}

// scoreColor picks the ring color of the score circle.
func scoreColor(percent int) string {
	switch {
	case percent >= 70:
		return "text-green-500"
	case percent >= 40:
		return "text-yellow-400"
	default:
		return "text-red-500"
	}
}

func genreNames(genres []domain.Genre) string {
	names := make([]string, 0, len(genres))
	for _, g := range genres {
		names = append(names, g.Name)
	}
	return strings.Join(names, ", ")
}

// pageNav renders the pagination bar of a result page linking to base.
func pageNav(page *service.SearchPage, base string) (template.HTML, error) {
	if page == nil {
		return "", nil
	}
	nav := pagination.Nav(page.Page, page.TotalPages, page.Window, pagination.Config{
		BaseURL: base,
		Query:   page.Params.Values(),
	})

	var buf bytes.Buffer
	if err := nav.Render(context.Background(), &buf); err != nil {
		return "", err
	}
	// The component escapes everything it writes
	return template.HTML(buf.String()), nil
}
