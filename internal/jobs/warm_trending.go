package jobs

import (
	"context"
	"log/slog"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/worker"
)

// TrendingWarmer reloads cached catalog lists.
type TrendingWarmer interface {
	WarmTrending(ctx context.Context) (int, error)
	Genres(ctx context.Context) ([]domain.Genre, error)
}

// WarmTrendingPayload is the optional payload of a warm_trending job.
type WarmTrendingPayload struct {
	// Genres also loads the genre list used by the search filters.
	Genres bool `json:"genres"`
}

// WarmTrendingHandler keeps the home page's trending list in the cache.
type WarmTrendingHandler struct {
	catalog TrendingWarmer
	logger  *slog.Logger
}

// NewWarmTrendingHandler creates a new handler for cache warming jobs.
func NewWarmTrendingHandler(catalog TrendingWarmer, logger *slog.Logger) *WarmTrendingHandler {
	return &WarmTrendingHandler{catalog: catalog, logger: logger}
}

// Type returns the job type identifier.
func (h *WarmTrendingHandler) Type() string {
	return worker.JobTypeWarmTrending
}

// Handle executes the warm-up.
func (h *WarmTrendingHandler) Handle(ctx context.Context, payload []byte) error {
	var p WarmTrendingPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}

	n, err := h.catalog.WarmTrending(ctx)
	if err != nil {
		return classify(err, "warm trending")
	}

	genres := 0
	if p.Genres {
		list, err := h.catalog.Genres(ctx)
		if err != nil {
			return classify(err, "warm genres")
		}
		genres = len(list)
	}

	h.logger.Info("Catalog cache warmed", "trending", n, "genres", genres)
	return nil
}
