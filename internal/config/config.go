// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and environment variables.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Default endpoints.
const (
	DefaultFirehoseURL = "wss://bsky.network/xrpc/com.atproto.sync.subscribeRepos"
	DefaultServiceURL  = "https://bsky.social"
	DefaultAppViewURL  = "https://api.bsky.app"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// FirehoseURL is the subscribeRepos websocket endpoint.
	FirehoseURL string `koanf:"firehose_url"`

	// FirehoseWorkers sets the number of concurrent frame decoders.
	FirehoseWorkers int `koanf:"firehose_workers"`

	// FirehoseQueueSize bounds the in-memory frame queue.
	FirehoseQueueSize int `koanf:"firehose_queue_size"`

	// DedupeSize bounds the replayed-commit filter. Zero or negative is unbounded.
	DedupeSize int `koanf:"dedupe_size"`

	// ServiceURL is the PDS used for sessions and repo listing.
	ServiceURL string `koanf:"service_url"`

	// AppViewURL serves app.bsky.* read endpoints.
	AppViewURL string `koanf:"appview_url"`

	// Identifier and AppPassword authenticate the XRPC session.
	Identifier  string `koanf:"identifier"`
	AppPassword string `koanf:"app_password"`

	// ScoreReply and ScoreLike weight the engagement signals.
	ScoreReply float64 `koanf:"score_reply"`
	ScoreLike  float64 `koanf:"score_like"`

	// ThresholdNodes caps the ranked profile list.
	ThresholdNodes int `koanf:"threshold_nodes"`

	// ThresholdFeed and ThresholdLike cap the fetched feed entries and like records.
	ThresholdFeed int `koanf:"threshold_feed"`
	ThresholdLike int `koanf:"threshold_like"`

	// ProfileBatchSize is the getProfiles batch size.
	ProfileBatchSize int `koanf:"profile_batch_size"`

	// HTTPTimeoutMS bounds each XRPC request.
	HTTPTimeoutMS int `koanf:"http_timeout_ms"`

	// MetricsInstance, when set, is attached to every metric as the
	// "instance" label.
	MetricsInstance string `koanf:"metrics_instance"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		FirehoseURL:       DefaultFirehoseURL,
		FirehoseWorkers:   runtime.NumCPU() * 2,
		FirehoseQueueSize: 10_000,
		DedupeSize:        100_000,
		ServiceURL:        DefaultServiceURL,
		AppViewURL:        DefaultAppViewURL,
		ScoreReply:        3,
		ScoreLike:         1,
		ThresholdNodes:    36,
		ThresholdFeed:     1000,
		ThresholdLike:     100,
		ProfileBatchSize:  25,
		HTTPTimeoutMS:     10_000,
	}
}

// HTTPTimeout returns HTTPTimeoutMS as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !strings.HasPrefix(c.FirehoseURL, "ws://") && !strings.HasPrefix(c.FirehoseURL, "wss://"):
		return fmt.Errorf("%w: firehose_url must be a ws:// or wss:// URL", ErrInvalidConfig)
	case c.FirehoseWorkers < 1:
		return fmt.Errorf("%w: firehose_workers must be positive", ErrInvalidConfig)
	case c.FirehoseQueueSize < 1:
		return fmt.Errorf("%w: firehose_queue_size must be positive", ErrInvalidConfig)
	case c.ThresholdNodes < 0 || c.ThresholdFeed < 0 || c.ThresholdLike < 0:
		return fmt.Errorf("%w: thresholds must not be negative", ErrInvalidConfig)
	case c.ProfileBatchSize < 1:
		return fmt.Errorf("%w: profile_batch_size must be positive", ErrInvalidConfig)
	case c.HTTPTimeoutMS < 1:
		return fmt.Errorf("%w: http_timeout_ms must be positive", ErrInvalidConfig)
	}
	return nil
}
