// Package jobs holds the background job handlers run by the worker.
package jobs

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/DukeRupert/marquee/internal/domain"
	"github.com/DukeRupert/marquee/internal/worker"
)

// decodePayload unmarshals an optional job payload. An empty payload leaves
// out at its zero value.
func decodePayload(payload []byte, out any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}
	return nil
}

// classify marks upstream failures that a retry cannot fix as permanent.
// Outages and rate limiting stay retryable.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	switch domain.ErrorCode(err) {
	case domain.EINVALID, domain.EUNAUTHORIZED, domain.EFORBIDDEN, domain.ENOTFOUND, domain.EPARSE:
		return worker.NewPermanentError(fmt.Errorf("%s: %w", what, err))
	}
	return fmt.Errorf("%s: %w", what, err)
}
