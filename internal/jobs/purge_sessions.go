package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/marquee/internal/metrics"
	"github.com/DukeRupert/marquee/internal/worker"
)

// SessionPurger removes expired sessions.
type SessionPurger interface {
	Purge(ctx context.Context) (removed, remaining int64, err error)
}

// CacheSweeper drops expired cache entries.
type CacheSweeper interface {
	Sweep() int
}

// PurgeSessionsHandler deletes expired sessions and sweeps the query cache.
type PurgeSessionsHandler struct {
	sessions SessionPurger
	cache    CacheSweeper
	logger   *slog.Logger
}

// NewPurgeSessionsHandler creates a new handler for purge jobs. cache may be nil.
func NewPurgeSessionsHandler(sessions SessionPurger, cache CacheSweeper, logger *slog.Logger) *PurgeSessionsHandler {
	return &PurgeSessionsHandler{sessions: sessions, cache: cache, logger: logger}
}

// Type returns the job type identifier.
func (h *PurgeSessionsHandler) Type() string {
	return worker.JobTypePurgeSessions
}

// Handle executes the purge.
func (h *PurgeSessionsHandler) Handle(ctx context.Context, payload []byte) error {
	removed, remaining, err := h.sessions.Purge(ctx)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	metrics.ActiveSessions.Set(float64(remaining))

	swept := 0
	if h.cache != nil {
		swept = h.cache.Sweep()
	}

	h.logger.Info("Expired sessions purged",
		"removed", removed,
		"remaining", remaining,
		"cache_swept", swept,
	)
	return nil
}
