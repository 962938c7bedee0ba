package jobs

import (
	"context"
	"log/slog"

	"github.com/DukeRupert/marquee/internal/worker"
)

// UpcomingRefresher rebuilds the upcoming trailer list.
type UpcomingRefresher interface {
	RefreshUpcoming(ctx context.Context) (int, error)
}

// RefreshUpcomingHandler asks the movie API to rebuild its upcoming releases
// and reloads the trailers shown on the home page.
type RefreshUpcomingHandler struct {
	catalog UpcomingRefresher
	logger  *slog.Logger
}

// NewRefreshUpcomingHandler creates a new handler for upcoming refresh jobs.
func NewRefreshUpcomingHandler(catalog UpcomingRefresher, logger *slog.Logger) *RefreshUpcomingHandler {
	return &RefreshUpcomingHandler{catalog: catalog, logger: logger}
}

// Type returns the job type identifier.
func (h *RefreshUpcomingHandler) Type() string {
	return worker.JobTypeRefreshUpcoming
}

// Handle executes the refresh.
func (h *RefreshUpcomingHandler) Handle(ctx context.Context, payload []byte) error {
	n, err := h.catalog.RefreshUpcoming(ctx)
	if err != nil {
		return classify(err, "refresh upcoming")
	}
	h.logger.Info("Upcoming trailers refreshed", "trailers", n)
	return nil
}
