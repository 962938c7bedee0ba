package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/DukeRupert/marquee/internal/pagination"
)

func newWindowCmd() *cobra.Command {
	var page, total, size, items, perPage int

	cmd := &cobra.Command{
		Use:   "window",
		Short: "Print the visible page window for a pagination state",
		Example: `  marqueectl window --page 5 --total 12
  marqueectl window --page 1 --total 40 --size 5 --json
  marqueectl window --page 3 --items 95 --per-page 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			if cmd.Flags().Changed("items") {
				total = pagination.FromTotal(items, perPage)
			}
			w := pagination.Window(page, total, size)
			if asJSON {
				return writeWindowJSON(cmd.OutOrStdout(), page, total, w)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), formatWindow(page, total, w))
			return err
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "current page (1-based)")
	cmd.Flags().IntVarP(&total, "total", "t", 0, "total number of pages")
	cmd.Flags().IntVarP(&size, "size", "s", pagination.DefaultWindowSize, "window size")
	cmd.Flags().IntVar(&items, "items", 0, "total number of items; derives --total with --per-page")
	cmd.Flags().IntVar(&perPage, "per-page", 20, "items per page, used with --items")
	cmd.MarkFlagsMutuallyExclusive("total", "items")
	return cmd
}

// formatWindow renders a window as a one-line pagination bar, e.g.
// "< ... 4 [5] 6 ... >". The current page is bracketed.
func formatWindow(current, total int, w pagination.VisibleWindow) string {
	if w.Empty() {
		return "(no pages)"
	}

	var parts []string
	if w.ShowPrevious {
		parts = append(parts, "<")
	}
	if w.ShowLeadingEllipsis {
		parts = append(parts, "...")
	}
	for _, p := range w.Pages {
		if p == current {
			parts = append(parts, "["+strconv.Itoa(p)+"]")
		} else {
			parts = append(parts, strconv.Itoa(p))
		}
	}
	if w.ShowTrailingEllipsis {
		parts = append(parts, "...")
	}
	if w.ShowNext {
		parts = append(parts, ">")
	}
	return strings.Join(parts, " ")
}

type windowOutput struct {
	Current              int   `json:"current"`
	Total                int   `json:"total"`
	Pages                []int `json:"pages"`
	ShowLeadingEllipsis  bool  `json:"show_leading_ellipsis"`
	ShowTrailingEllipsis bool  `json:"show_trailing_ellipsis"`
	ShowPrevious         bool  `json:"show_previous"`
	ShowNext             bool  `json:"show_next"`
	PreviousPage         int   `json:"previous_page"`
	NextPage             int   `json:"next_page"`
}

func writeWindowJSON(out io.Writer, current, total int, w pagination.VisibleWindow) error {
	pages := w.Pages
	if pages == nil {
		pages = []int{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(windowOutput{
		Current:              current,
		Total:                total,
		Pages:                pages,
		ShowLeadingEllipsis:  w.ShowLeadingEllipsis,
		ShowTrailingEllipsis: w.ShowTrailingEllipsis,
		ShowPrevious:         w.ShowPrevious,
		ShowNext:             w.ShowNext,
		PreviousPage:         pagination.PreviousPage(current, total),
		NextPage:             pagination.NextPage(current, total),
	})
}
