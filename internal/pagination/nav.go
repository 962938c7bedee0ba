package pagination

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	twmerge "github.com/Oudwins/tailwind-merge-go"
	"github.com/a-h/templ"
)

// Config allows customization of the rendered navigation.
type Config struct {
	BaseURL string     // e.g., "/search"
	Query   url.Values // current query; only "page" is replaced per link
	Class   string     // extra classes merged onto the <nav>
}

const (
	navClass      = "mx-auto my-6 flex w-full justify-center"
	listClass     = "flex flex-row items-center gap-1 rounded-md bg-foreground"
	linkClass     = "inline-flex h-9 min-w-9 items-center justify-center rounded-md px-3 text-sm text-background hover:bg-background/10"
	activeClass   = "border border-background/40 font-semibold"
	ellipsisClass = "flex h-9 w-9 items-center justify-center text-background"
)

// PageURL returns base with the "page" parameter set to page, keeping every
// other parameter of query.
func PageURL(base string, query url.Values, page int) string {
	params := url.Values{}
	for k, vs := range query {
		params[k] = append([]string(nil), vs...)
	}
	params.Set("page", strconv.Itoa(page))
	return base + "?" + params.Encode()
}

// Nav renders the window as an accessible pagination bar.
func Nav(current, total int, w VisibleWindow, cfg Config) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		if w.Empty() {
			return nil
		}
		bw := &errWriter{w: out}

		bw.printf(`<nav role="navigation" aria-label="pagination" class="%s"><ul class="%s">`,
			templ.EscapeString(twmerge.Merge(navClass, cfg.Class)),
			listClass)

		if w.ShowPrevious {
			bw.link(PageURL(cfg.BaseURL, cfg.Query, PreviousPage(current, total)), "Previous", linkClass, `aria-label="Go to previous page"`)
		}
		if w.ShowLeadingEllipsis {
			bw.ellipsis()
		}
		for _, p := range w.Pages {
			class := linkClass
			extra := ""
			if p == current {
				class = twmerge.Merge(linkClass, activeClass)
				extra = `aria-current="page"`
			}
			bw.link(PageURL(cfg.BaseURL, cfg.Query, p), strconv.Itoa(p), class, extra)
		}
		if w.ShowTrailingEllipsis {
			bw.ellipsis()
		}
		if w.ShowNext {
			bw.link(PageURL(cfg.BaseURL, cfg.Query, NextPage(current, total)), "Next", linkClass, `aria-label="Go to next page"`)
		}

		bw.printf(`</ul></nav>`)
		return bw.err
	})
}

// errWriter keeps the first write error so the component body stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *errWriter) link(href, label, class, extra string) {
	e.printf(`<li><a href="%s" class="%s" %s>%s</a></li>`,
		templ.EscapeString(string(templ.URL(href))),
		templ.EscapeString(class),
		extra,
		templ.EscapeString(label))
}

func (e *errWriter) ellipsis() {
	e.printf(`<li><span aria-hidden="true" class="%s">&hellip;</span><span class="sr-only">More pages</span></li>`, ellipsisClass)
}
