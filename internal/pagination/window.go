// Package pagination computes the visible page window shown under paged
// result lists and renders it as a navigation component.
package pagination

import (
	"strconv"
	"strings"
)

// DefaultWindowSize is the number of page buttons shown when the caller does
// not configure one.
const DefaultWindowSize = 3

// PageState is the caller-owned paging position, usually derived from the
// "page" query parameter and the total reported by the search API.
type PageState struct {
	CurrentPage int
	TotalPages  int
}

// VisibleWindow is the run of page numbers to display plus the flags that
// control the ellipses and the previous/next links.
type VisibleWindow struct {
	Pages                []int
	ShowLeadingEllipsis  bool
	ShowTrailingEllipsis bool
	ShowPrevious         bool
	ShowNext             bool
}

// Empty reports whether there is nothing to paginate.
func (w VisibleWindow) Empty() bool {
	return len(w.Pages) == 0
}

// First returns the lowest page in the window, or 0 when empty.
func (w VisibleWindow) First() int {
	if len(w.Pages) == 0 {
		return 0
	}
	return w.Pages[0]
}

// Last returns the highest page in the window, or 0 when empty.
func (w VisibleWindow) Last() int {
	if len(w.Pages) == 0 {
		return 0
	}
	return w.Pages[len(w.Pages)-1]
}

// Window returns the visible page window for the given state.
//
// The window holds min(windowSize, totalPages) pages centered on currentPage,
// shifted left near the end of the range so it never shrinks at the boundary.
// Out-of-range input is clamped: negative totals count as zero, a window size
// below one falls back to DefaultWindowSize, and a page below one is page one.
func Window(currentPage, totalPages, windowSize int) VisibleWindow {
	if totalPages < 0 {
		totalPages = 0
	}
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	if currentPage < 1 {
		currentPage = 1
	}
	if totalPages == 0 {
		return VisibleWindow{}
	}

	start := max(1, currentPage-windowSize/2)
	end := min(totalPages, start+windowSize-1)
	start = max(1, end-windowSize+1)

	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}

	return VisibleWindow{
		Pages:                pages,
		ShowLeadingEllipsis:  start > 1,
		ShowTrailingEllipsis: end < totalPages,
		ShowPrevious:         currentPage != 1,
		ShowNext:             currentPage != totalPages,
	}
}

// Of is Window applied to a PageState.
func Of(s PageState, windowSize int) VisibleWindow {
	return Window(s.CurrentPage, s.TotalPages, windowSize)
}

// PreviousPage returns the page the "previous" control navigates to.
// From page one it wraps around to the last page.
func PreviousPage(currentPage, totalPages int) int {
	if currentPage > 1 {
		return currentPage - 1
	}
	if totalPages < 1 {
		return 1
	}
	return totalPages
}

// NextPage returns the page the "next" control navigates to.
// From the last page (or beyond it) it wraps around to page one.
func NextPage(currentPage, totalPages int) int {
	if currentPage < 1 {
		return 1
	}
	if currentPage < totalPages {
		return currentPage + 1
	}
	return 1
}

// ParsePage converts a raw query value into a page number. Anything that is
// not a positive integer is page one.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// TotalPagesOf normalizes a total reported by the API. A nil total means the
// data has not loaded yet and is treated as no pages.
func TotalPagesOf(total *int) int {
	if total == nil || *total < 0 {
		return 0
	}
	return *total
}

// FromTotal returns the number of pages needed for totalItems at perPage.
func FromTotal(totalItems, perPage int) int {
	if totalItems <= 0 || perPage <= 0 {
		return 0
	}
	return (totalItems + perPage - 1) / perPage
}
