package service

import (
	"time"

	"github.com/okian/blueskyer/internal/adapters/firehose"
	"github.com/okian/blueskyer/internal/config"
	"github.com/okian/blueskyer/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig applies every setting of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		for _, opt := range []Option{
			WithFirehoseURL(cfg.FirehoseURL),
			WithWorkerCount(cfg.FirehoseWorkers),
			WithQueueSize(cfg.FirehoseQueueSize),
			WithDedupeSize(cfg.DedupeSize),
			WithXRPC(cfg.ServiceURL, cfg.AppViewURL),
			WithCredentials(cfg.Identifier, cfg.AppPassword),
			WithHTTPTimeout(cfg.HTTPTimeout()),
			WithScoreWeights(cfg.ScoreReply, cfg.ScoreLike),
			WithTopNodes(cfg.ThresholdNodes),
			WithProfileBatchSize(cfg.ProfileBatchSize),
			WithLimits(cfg.ThresholdFeed, cfg.ThresholdLike),
		} {
			opt(s)
		}
	}
}

// WithFirehoseURL sets the subscribeRepos endpoint.
func WithFirehoseURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.firehoseURL = url
		}
	}
}

// WithFirehose toggles subscribing to the firehose on Start.
func WithFirehose(enabled bool) Option {
	return func(s *Service) {
		s.connectFirehose = enabled
	}
}

// WithWorkerCount sets the number of frame decode workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the frame queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the replayed-commit filter. Zero or
// negative disables the filter.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		s.dedupeSize = size
	}
}

// WithCursor resumes the firehose after seq.
func WithCursor(seq int64) Option {
	return func(s *Service) {
		s.cursor = seq
	}
}

// WithRepoHandler sets the record handler. By default records with a $type
// are logged at debug level.
func WithRepoHandler(h firehose.RepoHandler) Option {
	return func(s *Service) {
		s.handler = h
	}
}

// WithXRPC sets the PDS and app view base URLs.
func WithXRPC(serviceURL, appViewURL string) Option {
	return func(s *Service) {
		if serviceURL != "" {
			s.serviceURL = serviceURL
		}
		if appViewURL != "" {
			s.appViewURL = appViewURL
		}
	}
}

// WithCredentials sets the account the XRPC session logs in as.
func WithCredentials(identifier, password string) Option {
	return func(s *Service) {
		s.identifier = identifier
		s.password = password
	}
}

// WithHTTPTimeout bounds each XRPC request.
func WithHTTPTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.httpTimeout = d
		}
	}
}

// WithScoreWeights sets the reply and like weights.
func WithScoreWeights(reply, like float64) Option {
	return func(s *Service) {
		s.replyScore = reply
		s.likeScore = like
	}
}

// WithTopNodes caps the ranked profile list. Zero yields empty rankings.
func WithTopNodes(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.topNodes = n
		}
	}
}

// WithProfileBatchSize sets the getProfiles batch size.
func WithProfileBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.profileBatch = n
		}
	}
}

// WithLimits caps the feed entries and like records read per ranking.
func WithLimits(feed, likes int) Option {
	return func(s *Service) {
		s.limits.Feed = feed
		s.limits.Likes = likes
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
