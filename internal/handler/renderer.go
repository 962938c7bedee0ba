package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
)

// Renderer manages template parsing and rendering with isolated template sets.
// It supports two layouts:
//   - "auth" layout for the sign-in, sign-up and verification pages
//   - "app" layout for every other page
//
// Templates are organized as:
//   - layouts/auth.html, layouts/app.html - base layouts
//   - components/*.html - reusable components (shared across layouts)
//   - partials/*.html - standalone fragments for htmx responses
//   - pages/auth/*.html - auth pages (use auth layout)
//   - pages/*.html and pages/user/*.html - app pages (use app layout)
type Renderer struct {
	templates map[string]*template.Template
	logger    *slog.Logger
	isDev     bool
	mu        sync.RWMutex

	fsys fs.FS
}

// RendererConfig holds configuration for the renderer.
type RendererConfig struct {
	TemplatesDir string
	Logger       *slog.Logger
	IsDev        bool
}

// nestedPageDirs are the app page directories below pages/.
var nestedPageDirs = []string{"user"}

// NewRenderer creates a new template renderer reading from TemplatesDir.
// In dev mode templates are re-read on every render.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[string]*template.Template),
		logger:    cfg.Logger,
		isDev:     cfg.IsDev,
		fsys:      os.DirFS(cfg.TemplatesDir),
	}

	if err := r.loadTemplates(); err != nil {
		return nil, err
	}

	return r, nil
}

// NewRendererFromFS creates a renderer from a filesystem laid out like
// web/templates.
func NewRendererFromFS(fsys fs.FS, logger *slog.Logger) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[string]*template.Template),
		logger:    logger,
		fsys:      fsys,
	}

	if err := r.loadTemplates(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Renderer) loadTemplates() error {
	templates, err := parseTemplates(r.fsys)
	if err != nil {
		return err
	}
	r.templates = templates
	r.logger.Debug("templates loaded", "count", len(templates))
	return nil
}

// parseTemplates builds every template set found in fsys.
func parseTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	// Get component templates (shared across layouts) - recursively from all subdirs
	var componentFiles []string
	err := fs.WalkDir(fsys, "components", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".html") {
			componentFiles = append(componentFiles, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to walk components dir: %w", err)
	}

	partialFiles, err := fs.Glob(fsys, "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to glob partials: %w", err)
	}

	// Each partial is parsed on its own, with the components it may use
	for _, partial := range partialFiles {
		files := append(append([]string{}, componentFiles...), partial)
		partialTmpl, err := template.New("").Funcs(TemplateFuncs()).ParseFS(fsys, files...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse partial %s: %w", partial, err)
		}
		// Store with base name as key (e.g., "flash" for "flash.html")
		templates["partial/"+baseName(partial)] = partialTmpl
	}

	shared := append(append([]string{}, componentFiles...), partialFiles...)

	authBase, err := parseLayout(fsys, "auth", shared)
	if err != nil {
		return nil, err
	}
	appBase, err := parseLayout(fsys, "app", shared)
	if err != nil {
		return nil, err
	}

	// Auth pages (login, signup, verify)
	if err := parsePages(fsys, authBase, "pages/auth/*.html", "auth/", templates); err != nil {
		return nil, err
	}

	// Root level pages use the app layout: "home", "search", ...
	if err := parsePages(fsys, appBase, "pages/*.html", "", templates); err != nil {
		return nil, err
	}

	// Nested app pages: "user/collection", ...
	for _, dir := range nestedPageDirs {
		if err := parsePages(fsys, appBase, path.Join("pages", dir, "*.html"), dir+"/", templates); err != nil {
			return nil, err
		}
	}

	return templates, nil
}

// parseLayout parses layouts/<name>.html together with the shared files.
func parseLayout(fsys fs.FS, name string, shared []string) (*template.Template, error) {
	files := append([]string{"layouts/" + name + ".html"}, shared...)
	tmpl, err := template.New(name).Funcs(TemplateFuncs()).ParseFS(fsys, files...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s layout: %w", name, err)
	}
	return tmpl, nil
}

// parsePages clones base for every page matching pattern and stores the
// result under prefix + the page's base name.
func parsePages(fsys fs.FS, base *template.Template, pattern, prefix string, into map[string]*template.Template) error {
	pages, err := fs.Glob(fsys, pattern)
	if err != nil {
		return fmt.Errorf("failed to glob %s: %w", pattern, err)
	}

	for _, page := range pages {
		pageTmpl, err := base.Clone()
		if err != nil {
			return fmt.Errorf("failed to clone layout for %s: %w", page, err)
		}

		pageTmpl, err = pageTmpl.ParseFS(fsys, page)
		if err != nil {
			return fmt.Errorf("failed to parse page %s: %w", page, err)
		}

		into[prefix+baseName(page)] = pageTmpl
	}
	return nil
}

func baseName(p string) string {
	name := path.Base(p)
	return strings.TrimSuffix(name, path.Ext(name))
}

// Reload re-reads all templates. Useful for development.
func (r *Renderer) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadTemplates()
}

// Render renders a template to an io.Writer.
func (r *Renderer) Render(w io.Writer, name string, data interface{}) error {
	if r.isDev {
		if err := r.Reload(); err != nil {
			return fmt.Errorf("template reload failed: %w", err)
		}
	}

	tmpl, err := r.lookup(name)
	if err != nil {
		return err
	}
	return tmpl.ExecuteTemplate(w, r.getBaseTemplateName(name), data)
}

// RenderHTTP renders a template directly to an http.ResponseWriter.
func (r *Renderer) RenderHTTP(w http.ResponseWriter, name string, data interface{}) {
	r.RenderHTTPStatus(w, http.StatusOK, name, data)
}

// RenderHTTPStatus renders a template with the given status code.
func (r *Renderer) RenderHTTPStatus(w http.ResponseWriter, status int, name string, data interface{}) {
	buf, ok := r.renderBuffer(w, name, data)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// RenderPartial renders a partial template (for htmx responses).
// The partial file should contain {{define "name"}}...{{end}} where name matches the file name.
func (r *Renderer) RenderPartial(w http.ResponseWriter, name string, data interface{}) {
	r.RenderHTTP(w, "partial/"+name, data)
}

// renderBuffer executes name into a buffer so errors surface before any
// header is written. On failure it writes a 500 and returns false.
func (r *Renderer) renderBuffer(w http.ResponseWriter, name string, data interface{}) (*bytes.Buffer, bool) {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data); err != nil {
		r.logger.Error("template execution failed", "name", name, "error", err)
		http.Error(w, "Template execution failed", http.StatusInternalServerError)
		return nil, false
	}
	return &buf, true
}

func (r *Renderer) lookup(name string) (*template.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tmpl, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %q not found", name)
	}
	return tmpl, nil
}

// getBaseTemplateName determines which base template to execute.
func (r *Renderer) getBaseTemplateName(name string) string {
	switch {
	case strings.HasPrefix(name, "auth/"):
		return "auth"
	case strings.HasPrefix(name, "partial/"):
		// Partials execute their own define block
		return strings.TrimPrefix(name, "partial/")
	default:
		return "app"
	}
}

// ListTemplates returns a list of all loaded template names.
// Useful for debugging.
func (r *Renderer) ListTemplates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}

// ToastData holds data for rendering a toast notification.
type ToastData struct {
	Type        string // success, error (destructive), warning, info
	Title       string // optional
	Message     string
	AutoDismiss int // seconds, default 5
}

// RenderHTTPWithToast renders a template and appends an OOB toast notification.
// This is useful for htmx responses that need to show feedback.
func (r *Renderer) RenderHTTPWithToast(w http.ResponseWriter, name string, data interface{}, toast ToastData) {
	buf, ok := r.renderBuffer(w, name, data)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
	_, _ = w.Write([]byte(r.renderToastOOB(toast)))
}

// RenderToast writes only an OOB toast and tells htmx not to swap the target.
// Used when a mutation fails and the current markup is still accurate.
func (r *Renderer) RenderToast(w http.ResponseWriter, toast ToastData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("HX-Reswap", "none")
	_, _ = w.Write([]byte(r.renderToastOOB(toast)))
}

// renderToastOOB generates the toast OOB HTML.
func (r *Renderer) renderToastOOB(toast ToastData) string {
	if toast.AutoDismiss == 0 {
		toast.AutoDismiss = 5
	}
	if toast.Type == "" {
		toast.Type = "info"
	}

	icon := r.getToastIcon(toast.Type)

	titleHTML := ""
	if toast.Title != "" {
		titleHTML = fmt.Sprintf(`<p class="text-sm font-medium text-[var(--color-text)]">%s</p>`, template.HTMLEscapeString(toast.Title))
	}

	messageClass := "text-sm text-[var(--color-text-secondary)]"
	if toast.Title != "" {
		messageClass = "mt-1 " + messageClass
	}

	return fmt.Sprintf(`<div hx-swap-oob="beforeend:#toast-container">
  <div x-data="{ show: true, init() { setTimeout(() => { this.show = false; setTimeout(() => this.$el.remove(), 300) }, %d000) } }"
       x-show="show"
       x-transition:enter="transition ease-out duration-300"
       x-transition:enter-start="opacity-0 translate-x-4"
       x-transition:enter-end="opacity-100 translate-x-0"
       x-transition:leave="transition ease-in duration-200"
       x-transition:leave-start="opacity-100 translate-x-0"
       x-transition:leave-end="opacity-0 translate-x-4"
       class="pointer-events-auto w-full max-w-sm overflow-hidden rounded-lg bg-white shadow-lg ring-1 ring-[var(--color-zinc-950)]/5">
    <div class="p-4">
      <div class="flex items-start">
        <div class="flex-shrink-0">
          %s
        </div>
        <div class="ml-3 w-0 flex-1 pt-0.5">
          %s
          <p class="%s">%s</p>
        </div>
        <div class="ml-4 flex flex-shrink-0">
          <button type="button"
                  @click="show = false; setTimeout(() => $el.closest('[x-data]').remove(), 300)"
                  class="inline-flex rounded-md text-[var(--color-text-tertiary)] hover:text-[var(--color-text-secondary)] focus:outline-none focus:ring-2 focus:ring-[var(--color-primary)] focus:ring-offset-2">
            <span class="sr-only">Close</span>
            <svg class="h-5 w-5" viewBox="0 0 20 20" fill="currentColor">
              <path d="M6.28 5.22a.75.75 0 00-1.06 1.06L8.94 10l-3.72 3.72a.75.75 0 101.06 1.06L10 11.06l3.72 3.72a.75.75 0 101.06-1.06L11.06 10l3.72-3.72a.75.75 0 00-1.06-1.06L10 8.94 6.28 5.22z" />
            </svg>
          </button>
        </div>
      </div>
    </div>
  </div>
</div>`, toast.AutoDismiss, icon, titleHTML, messageClass, template.HTMLEscapeString(toast.Message))
}

func (r *Renderer) getToastIcon(toastType string) string {
	switch toastType {
	case "success":
		return `<svg class="h-6 w-6 text-[var(--color-success)]" fill="none" viewBox="0 0 24 24" stroke-width="1.5" stroke="currentColor"><path stroke-linecap="round" stroke-linejoin="round" d="M9 12.75L11.25 15 15 9.75M21 12a9 9 0 11-18 0 9 9 0 0118 0z" /></svg>`
	case "error":
		return `<svg class="h-6 w-6 text-[var(--color-danger)]" fill="none" viewBox="0 0 24 24" stroke-width="1.5" stroke="currentColor"><path stroke-linecap="round" stroke-linejoin="round" d="M12 9v3.75m9-.75a9 9 0 11-18 0 9 9 0 0118 0zm-9 3.75h.008v.008H12v-.008z" /></svg>`
	case "warning":
		return `<svg class="h-6 w-6 text-[var(--color-warning)]" fill="none" viewBox="0 0 24 24" stroke-width="1.5" stroke="currentColor"><path stroke-linecap="round" stroke-linejoin="round" d="M12 9v3.75m-9.303 3.376c-.866 1.5.217 3.374 1.948 3.374h14.71c1.73 0 2.813-1.874 1.948-3.374L13.949 3.378c-.866-1.5-3.032-1.5-3.898 0L2.697 16.126zM12 15.75h.007v.008H12v-.008z" /></svg>`
	default: // info
		return `<svg class="h-6 w-6 text-[var(--color-info)]" fill="none" viewBox="0 0 24 24" stroke-width="1.5" stroke="currentColor"><path stroke-linecap="round" stroke-linejoin="round" d="M11.25 11.25l.041-.02a.75.75 0 011.063.852l-.708 2.836a.75.75 0 001.063.853l.041-.021M21 12a9 9 0 11-18 0 9 9 0 0118 0zm-9-3.75h.008v.008H12V8.25z" /></svg>`
	}
}
