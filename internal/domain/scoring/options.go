package scoring

import "github.com/okian/blueskyer/pkg/logger"

// Option applies a configuration option to the EngagementScorer.
type Option func(*EngagementScorer)

// WithReplyScore sets the weight added per reply to an actor.
func WithReplyScore(v float64) Option {
	return func(s *EngagementScorer) {
		s.replyScore = v
	}
}

// WithLikeScore sets the weight added per like of an actor's post.
func WithLikeScore(v float64) Option {
	return func(s *EngagementScorer) {
		s.likeScore = v
	}
}

// WithTopNodes limits the ranking to the n highest scoring actors. Zero
// ranks nobody and skips the profile lookup; negative values are ignored.
func WithTopNodes(n int) Option {
	return func(s *EngagementScorer) {
		if n >= 0 {
			s.topNodes = n
		}
	}
}

// WithBatchSize sets how many DIDs go into one profile lookup.
func WithBatchSize(n int) Option {
	return func(s *EngagementScorer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the scorer logger.
func WithLogger(l logger.Logger) Option {
	return func(s *EngagementScorer) {
		if l != nil {
			s.logger = l
		}
	}
}
