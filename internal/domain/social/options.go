package social

import (
	"github.com/okian/blueskyer/internal/domain/scoring"
	"github.com/okian/blueskyer/pkg/logger"
)

// Option applies a configuration option to the Collector.
type Option func(*Collector)

// WithScorer sets the scorer used by Engagements. By default a scorer with
// default weights resolving profiles through the collector is used.
func WithScorer(s *scoring.EngagementScorer) Option {
	return func(c *Collector) {
		if s != nil {
			c.scorer = s
		}
	}
}

// WithScoringOptions configures the default scorer, which resolves profiles
// through the collector. Ignored when WithScorer is given.
func WithScoringOptions(opts ...scoring.Option) Option {
	return func(c *Collector) {
		c.scoringOpts = append(c.scoringOpts, opts...)
	}
}

// WithPageLimit sets the page size requested from paginated endpoints.
func WithPageLimit(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.pageLimit = n
		}
	}
}

// WithProfileBatchSize sets how many actors one getProfiles call resolves.
func WithProfileBatchSize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.profileBatch = n
		}
	}
}

// WithRelationshipBatchSize sets how many others one getRelationships call checks.
func WithRelationshipBatchSize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.relationshipBatch = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}
