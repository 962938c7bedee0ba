package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/DukeRupert/marquee/internal/api"
	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/pagination"
	"github.com/DukeRupert/marquee/internal/querycache"
	"github.com/DukeRupert/marquee/internal/service"
)

type searchOptions struct {
	apiURL      string
	searchType  string
	genres      string
	rating      string
	releaseYear string
	page        int
	limit       int
	window      int
	timeout     time.Duration
}

func newSearchCmd() *cobra.Command {
	opts := searchOptions{}

	cmd := &cobra.Command{
		Use:   "search [keyword...]",
		Short: "Search the catalog and print one page of titles",
		Example: `  marqueectl search alien
  marqueectl search --type actor "sigourney weaver" --page 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			if opts.apiURL == "" {
				opts.apiURL = os.Getenv("API_BASE_URL")
			}
			if opts.apiURL == "" {
				return errors.New("the movie API url is required: pass --api or set API_BASE_URL")
			}

			client, err := api.New(api.DefaultConfig(opts.apiURL), nil, slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn})))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			params := domain.SearchParams{
				Query:       strings.Join(args, " "),
				Type:        domain.ParseSearchType(opts.searchType),
				Genres:      opts.genres,
				Rating:      opts.rating,
				ReleaseYear: opts.releaseYear,
				Page:        opts.page,
				Limit:       opts.limit,
			}
			page, err := runSearch(ctx, client, params, opts.window)
			if err != nil {
				return err
			}

			if asJSON {
				return writeSearchJSON(cmd.OutOrStdout(), page)
			}
			return writeSearchText(cmd.OutOrStdout(), page)
		},
	}

	cmd.Flags().StringVar(&opts.apiURL, "api", "", "movie API base url (default $API_BASE_URL)")
	cmd.Flags().StringVar(&opts.searchType, "type", "name", "match against name, actor or keyword")
	cmd.Flags().StringVar(&opts.genres, "genres", "", "comma-separated genre ids")
	cmd.Flags().StringVar(&opts.rating, "rating", "", "minimum vote average")
	cmd.Flags().StringVar(&opts.releaseYear, "year", "", "release year")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "page number")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "results per page")
	cmd.Flags().IntVar(&opts.window, "window", pagination.DefaultWindowSize, "pagination window size")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")
	return cmd
}

// runSearch goes through the same service the search page uses.
func runSearch(ctx context.Context, searcher service.SearchAPI, p domain.SearchParams, windowSize int) (*service.SearchPage, error) {
	svc := service.NewSearchService(searcher, querycache.New(0), querycache.NewScope(),
		service.PagingConfig{PageSize: p.Limit, WindowSize: windowSize},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc.Search(ctx, "cli", p)
}

func writeSearchText(out io.Writer, page *service.SearchPage) error {
	if page.Empty() {
		_, err := fmt.Fprintln(out, "No results")
		return err
	}
	for _, m := range page.Movies {
		year := ""
		if y := m.Year(); y > 0 {
			year = fmt.Sprintf(" (%d)", y)
		}
		if _, err := fmt.Fprintf(out, "%8d  %s%s\n", m.ID, m.Title, year); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "\npage %d of %d  %s\n", page.Page, page.TotalPages, formatWindow(page.Page, page.TotalPages, page.Window))
	return err
}

type searchOutput struct {
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
	Window     []int         `json:"window"`
	Movies     []movieOutput `json:"movies"`
}

type movieOutput struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Year  int     `json:"year,omitempty"`
	Score float64 `json:"vote_average"`
}

func writeSearchJSON(out io.Writer, page *service.SearchPage) error {
	res := searchOutput{
		Page:       page.Page,
		TotalPages: page.TotalPages,
		Window:     page.Window.Pages,
		Movies:     make([]movieOutput, 0, len(page.Movies)),
	}
	if res.Window == nil {
		res.Window = []int{}
	}
	for _, m := range page.Movies {
		res.Movies = append(res.Movies, movieOutput{ID: m.ID, Title: m.Title, Year: m.Year(), Score: m.VoteAverage})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
