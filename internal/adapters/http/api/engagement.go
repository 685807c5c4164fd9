package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/blueskyer/internal/adapters/xrpc"
)

// EngagementHandler handles engagement ranking requests.
type EngagementHandler struct {
	ranker   EngagementRanker
	maxLimit int
}

// NewEngagementHandler creates a new engagement handler.
func NewEngagementHandler(ranker EngagementRanker, maxLimit int) *EngagementHandler {
	return &EngagementHandler{ranker: ranker, maxLimit: maxLimit}
}

// HandleGetEngagement handles GET /engagement/{actor}?limit=N requests. limit
// is optional and caps the number of returned profiles.
func (h *EngagementHandler) HandleGetEngagement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	actor := strings.TrimPrefix(r.URL.Path, "/engagement/")
	if actor == "" || strings.Contains(actor, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing actor", ErrBadRequest))
		return
	}

	limit := h.maxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", fmt.Errorf("%w: limit above %d", ErrBadRequest, h.maxLimit))
			return
		}
		limit = n
	}

	profiles, err := h.ranker.Engagements(r.Context(), actor)
	if err != nil {
		var fe *xrpc.FetchError
		switch {
		case errors.As(err, &fe):
			writeError(w, http.StatusBadGateway, "upstream_error", fmt.Errorf("%w: %w", ErrUpstream, err))
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "timeout", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}
	if len(profiles) > limit {
		profiles = profiles[:limit]
	}
	writeJSON(w, http.StatusOK, profiles)
}
