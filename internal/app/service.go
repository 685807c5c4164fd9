// Package service wires the firehose client and the engagement collector into
// one process and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/okian/blueskyer/internal/adapters/firehose"
	"github.com/okian/blueskyer/internal/adapters/xrpc"
	"github.com/okian/blueskyer/internal/domain/model"
	"github.com/okian/blueskyer/internal/domain/scoring"
	"github.com/okian/blueskyer/internal/domain/social"
	"github.com/okian/blueskyer/pkg/logger"
	"github.com/okian/blueskyer/pkg/metrics"
)

const (
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
	stopTimeout               = 30 * time.Second
)

// Service owns the firehose subscription and the XRPC-backed collector.
type Service struct {
	mu sync.RWMutex

	// Core components
	firehose  *firehose.Client
	xrpc      *xrpc.Client
	collector *social.Collector

	// Firehose configuration
	firehoseURL     string
	connectFirehose bool
	workerCount     int
	queueSize       int
	dedupeSize      int
	cursor          int64
	handler         firehose.RepoHandler

	// XRPC configuration
	serviceURL  string
	appViewURL  string
	identifier  string
	password    string
	httpTimeout time.Duration

	// Scoring configuration
	replyScore   float64
	likeScore    float64
	topNodes     int
	profileBatch int
	limits       social.Limits

	started bool
	stopCh  chan struct{}

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		firehoseURL:     firehose.DefaultURL,
		connectFirehose: true,
		workerCount:     runtime.NumCPU() * 2,
		queueSize:       10_000,
		dedupeSize:      100_000,
		serviceURL:      xrpc.DefaultServiceURL,
		appViewURL:      xrpc.DefaultAppViewURL,
		httpTimeout:     10 * time.Second,
		replyScore:      scoring.DefaultReplyScore,
		likeScore:       scoring.DefaultLikeScore,
		topNodes:        scoring.DefaultTopNodes,
		profileBatch:    scoring.DefaultBatchSize,
		limits:          social.Limits{Feed: 1000, Likes: 100},
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and subscribes to the firehose. A failed dial
// is returned and leaves the service stopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting blueskyer service...")

	s.xrpc = xrpc.NewClient(
		xrpc.WithServiceURL(s.serviceURL),
		xrpc.WithAppViewURL(s.appViewURL),
		xrpc.WithHTTPClient(&http.Client{Timeout: s.httpTimeout}),
		xrpc.WithCredentials(s.identifier, s.password),
		xrpc.WithLogger(s.logger.Named("xrpc")),
	)
	s.collector = social.NewCollector(s.xrpc,
		social.WithProfileBatchSize(s.profileBatch),
		social.WithLogger(s.logger.Named("social")),
		social.WithScoringOptions(
			scoring.WithReplyScore(s.replyScore),
			scoring.WithLikeScore(s.likeScore),
			scoring.WithTopNodes(s.topNodes),
			scoring.WithBatchSize(s.profileBatch),
		),
	)

	s.firehose = firehose.NewClient(
		firehose.WithURL(s.firehoseURL),
		firehose.WithWorkerCount(s.workerCount),
		firehose.WithQueueSize(s.queueSize),
		firehose.WithDedupeSize(s.dedupeSize),
		firehose.WithCursor(s.cursor),
		firehose.WithLogger(s.logger.Named("firehose")),
	)
	handler := s.handler
	if handler == nil {
		handler = s.logRecord
	}
	s.firehose.SetRepoHandler(handler)

	if s.connectFirehose {
		if err := s.firehose.Connect(ctx); err != nil {
			_ = s.firehose.Close(ctx)
			return err
		}
	}

	s.stopCh = make(chan struct{})
	go s.runSystemMetrics(s.stopCh)

	s.started = true
	s.logger.Info(ctx, "blueskyer service started",
		logger.String("firehose", s.firehoseURL),
		logger.Bool("subscribed", s.connectFirehose),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop disconnects from the firehose and drains the frames already queued.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping blueskyer service...")
	if err := s.firehose.Close(ctx); err != nil {
		s.logger.Warn(ctx, "firehose drain incomplete", logger.Error(err))
	}
	close(s.stopCh)

	s.started = false
	s.logger.Info(ctx, "blueskyer service stopped")
}

// Engagements ranks the actors actor engages with most. When credentials are
// configured the XRPC session is created or refreshed first.
func (s *Service) Engagements(ctx context.Context, actor string) ([]model.ProfileViewDetailed, error) {
	s.mu.RLock()
	started, client, collector := s.started, s.xrpc, s.collector
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}

	if s.identifier != "" {
		if err := client.EnsureSession(ctx); err != nil {
			return nil, err
		}
	}
	return collector.Engagements(ctx, actor, s.limits)
}

// Firehose returns the firehose client, or nil before Start.
func (s *Service) Firehose() *firehose.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firehose
}

// GetStats returns service statistics for monitoring. Keys match the
// firehose client's Stats JSON.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"firehose":    s.firehoseURL,
		"workers":     s.workerCount,
		"queue_size":  s.queueSize,
		"dedupe_size": s.dedupeSize,
	}
	if s.firehose == nil {
		return stats
	}

	fs := s.firehose.Stats()
	stats["state"] = fs.State
	stats["cursor"] = fs.Cursor
	stats["queue_length"] = fs.QueueLength
	stats["queue_capacity"] = fs.QueueCapacity
	stats["frames_received"] = fs.FramesReceived
	stats["frames_dropped"] = fs.FramesDropped
	stats["frames_failed"] = fs.FramesFailed
	stats["records_dispatched"] = fs.RecordsDispatched

	metrics.UpdateQueueSize(fs.QueueLength)
	metrics.UpdateWorkerCount(fs.Workers)
	return stats
}

// logRecord is the default handler: records carrying a $type are logged.
func (s *Service) logRecord(ctx context.Context, rec model.Record) {
	if rec.Type == "" {
		return
	}
	s.logger.Debug(ctx, "record",
		logger.String("type", rec.Type),
		logger.String("repo", rec.Repo),
		logger.Int64("seq", rec.Seq),
		logger.String("action", rec.Action),
		logger.String("path", rec.Path),
	)
}

func (s *Service) runSystemMetrics(stop <-chan struct{}) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
