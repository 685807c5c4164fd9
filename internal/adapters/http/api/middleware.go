package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/blueskyer/pkg/logger"
	"github.com/okian/blueskyer/pkg/metrics"
)

// RequestIDHeader carries the per-request id. Incoming values are kept.
const RequestIDHeader = "X-Request-ID"

// MetricsMiddleware records request count, latency and error class for
// endpoint, tags the response with a request id and logs the outcome at debug.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(elapsed.Milliseconds()))
		if class := errorClass(rec.status); class != "" {
			metrics.RecordErrorByComponent("http_"+endpoint, class)
		}

		logger.GetOr(logger.Nop()).Debug(r.Context(), "http request",
			logger.String("request_id", id),
			logger.String("endpoint", endpoint),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Int("bytes", rec.written),
			logger.Duration("elapsed", elapsed))
	}
}

// errorClass buckets failing statuses; successful ones return "".
func errorClass(status int) string {
	switch {
	case status < http.StatusBadRequest:
		return ""
	case status == http.StatusBadGateway:
		return "upstream_error"
	case status == http.StatusGatewayTimeout:
		return "upstream_timeout"
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit"
	case status == http.StatusNotFound:
		return "not_found"
	default:
		return "client_error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.written += n
	return n, err
}
