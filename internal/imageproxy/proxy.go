// Package imageproxy serves poster, backdrop and profile images through the
// application's own storage. The first request for an image fetches it from
// the image host (resizing it for local renditions) and stores it; later
// requests are served from storage.
package imageproxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/metrics"
	"github.com/DukeRupert/marquee/internal/storage"
)

const (
	// MaxImageSize bounds a fetched image.
	MaxImageSize = 10 << 20

	// JPEGQuality is used when re-encoding resized images.
	JPEGQuality = 85

	// CacheControl is sent with every served image. Image files are
	// content-addressed upstream, so they never change.
	CacheControl = "public, max-age=2592000, immutable"

	// FetchTimeout bounds a shared fetch once its first caller has gone.
	FetchTimeout = 30 * time.Second
)

// rendition describes a servable size. Width and Height are zero for sizes
// the image host serves directly.
type rendition struct {
	source string
	width  int
	height int
}

func (r rendition) resized() bool {
	return r.width > 0 || r.height > 0
}

var renditions = map[string]rendition{
	"w92":                {source: "w92"},
	"w185":               {source: "w185"},
	"w220_and_h330_face": {source: "w220_and_h330_face"},
	"w342":               {source: "w342"},
	"w500":               {source: "w500"},
	"w780":               {source: "w780"},
	"w1280":              {source: "w1280"},
	"original":           {source: "original"},
	// Local renditions for the search grid and nav thumbnails
	"thumb": {source: "w185", width: 120, height: 180},
	"card":  {source: "w500", width: 300, height: 450},
}

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// IsValidSize reports whether size names a servable rendition.
func IsValidSize(size string) bool {
	_, ok := renditions[size]
	return ok
}

// Proxy fetches, stores and serves images.
type Proxy struct {
	store   storage.Storage
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	group   singleflight.Group
}

// New creates a Proxy fetching from baseURL, e.g. https://image.tmdb.org/t/p.
// client may be nil.
func New(store storage.Storage, baseURL string, client *http.Client, logger *slog.Logger) *Proxy {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger.With("component", "imageproxy"),
	}
}

// Image is a servable image.
type Image struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	ETag        string
}

// Open returns the image file at size, fetching and storing it on first use.
// Unknown sizes, bad file names and images missing upstream are ENOTFOUND.
func (p *Proxy) Open(ctx context.Context, size, file string) (*Image, error) {
	const op = "imageproxy.Open"

	rend, ok := renditions[size]
	if !ok || !allowedExtensions[strings.ToLower(path.Ext(file))] {
		return nil, notFound(op)
	}
	key, err := storage.ImageKey(size, file)
	if err != nil {
		return nil, notFound(op)
	}

	rc, info, err := p.store.Get(ctx, key)
	if err == nil {
		metrics.ImageProxyResults.WithLabelValues("stored").Inc()
		return &Image{Body: rc, ContentType: info.ContentType, Size: info.Size, ETag: info.ETag}, nil
	}
	if !storage.IsNotFound(err) {
		// Storage trouble should not take images down; go to the source
		p.logger.Warn("image storage read failed", "key", key, "error", err)
	}

	// The fetch is shared by every waiter, so it must not die with the
	// request that happened to start it.
	ch := p.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		return p.fetch(fetchCtx, op, key, rend, file)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	case res = <-ch:
	}

	v, err := res.Val, res.Err
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			metrics.ImageProxyResults.WithLabelValues("not_found").Inc()
		} else {
			metrics.ImageProxyResults.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.ImageProxyResults.WithLabelValues("fetched").Inc()

	f := v.(*fetched)
	return &Image{
		Body:        io.NopCloser(bytes.NewReader(f.data)),
		ContentType: f.contentType,
		Size:        int64(len(f.data)),
	}, nil
}

type fetched struct {
	data        []byte
	contentType string
}

func (p *Proxy) fetch(ctx context.Context, op, key string, rend rendition, file string) (*fetched, error) {
	src := p.baseURL + "/" + rend.source + "/" + file
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to build image request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, hostUnavailable(err, op)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, notFound(op)
	case resp.StatusCode != http.StatusOK:
		return nil, hostUnavailable(fmt.Errorf("image host status %d", resp.StatusCode), op)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return nil, hostUnavailable(err, op)
	}
	if len(data) > MaxImageSize {
		return nil, domain.Errorf(domain.ETOOLARGE, op, "Image is too large")
	}

	contentType := storage.DetectContentType("", "", bytes.NewReader(data))
	if !storage.IsAllowedImageType(contentType) {
		return nil, domain.Malformed(&domain.ParseError{Op: op, Err: fmt.Errorf("unexpected content type %q", contentType)})
	}

	if rend.resized() {
		data, err = resize(data, file, rend)
		if err != nil {
			return nil, domain.Malformed(&domain.ParseError{Op: op, Err: err})
		}
		contentType = storage.DetectContentType("", file, nil)
	}

	// Serve even when the write fails; the next request retries it
	err = p.store.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		ContentType:  contentType,
		MaxSize:      MaxImageSize,
		CacheControl: CacheControl,
	})
	if err != nil {
		p.logger.Warn("image storage write failed", "key", key, "error", err)
	}

	return &fetched{data: data, contentType: contentType}, nil
}

// resize fits the image inside the rendition box, preserving aspect ratio,
// and encodes it in the format named by file's extension.
func resize(data []byte, file string, rend rendition) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	format, err := imaging.FormatFromFilename(file)
	if err != nil {
		format = imaging.JPEG
	}

	out := imaging.Fit(img, rend.width, rend.height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, format, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func hostUnavailable(err error, op string) error {
	return &domain.Error{
		Code:    domain.EUNAVAILABLE,
		Op:      op,
		Message: "The image host is temporarily unavailable.",
		Err:     err,
	}
}

func notFound(op string) error {
	return &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "Image not found"}
}

// ServeHTTP serves GET /img/{size}/{file}.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	img, err := p.Open(r.Context(), r.PathValue("size"), r.PathValue("file"))
	if err != nil {
		if r.Context().Err() != nil {
			// The visitor left
			return
		}
		status := http.StatusBadGateway
		switch domain.ErrorCode(err) {
		case domain.ENOTFOUND:
			status = http.StatusNotFound
		case domain.EUNAVAILABLE:
			status = http.StatusServiceUnavailable
		}
		switch status {
		case http.StatusNotFound:
		case http.StatusServiceUnavailable:
			p.logger.Warn("image host unavailable", "path", r.URL.Path, "error", err)
		default:
			p.logger.Error("image proxy failed", "path", r.URL.Path, "error", err)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	defer img.Body.Close()

	if img.ETag != "" {
		w.Header().Set("ETag", img.ETag)
		if match := r.Header.Get("If-None-Match"); match != "" && match == img.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", CacheControl)
	if img.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprint(img.Size))
	}
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, img.Body); err != nil {
		p.logger.Debug("image write interrupted", "path", r.URL.Path, "error", err)
	}
}
