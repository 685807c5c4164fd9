// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/blueskyer/internal/domain/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxLimit caps ?limit= on /engagement.
const DefaultMaxLimit = 100

// EngagementRanker ranks the actors an account engages with most.
type EngagementRanker interface {
	Engagements(ctx context.Context, actor string) ([]model.ProfileViewDetailed, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	engagementHandler *EngagementHandler
}

// NewServer creates a new API server with all handlers. A maxLimit below one
// uses DefaultMaxLimit.
func NewServer(ranker EngagementRanker, statsProvider StatsProvider, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = DefaultMaxLimit
	}
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		engagementHandler: NewEngagementHandler(ranker, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/engagement/", MetricsMiddleware(s.engagementHandler.HandleGetEngagement, "engagement"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
