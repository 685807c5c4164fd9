package worker

import (
	"github.com/okian/blueskyer/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithStats shares a counter set between the workers of a pool.
func WithStats(s *Stats) Option {
	return func(w *InMemoryWorker) {
		if s != nil {
			w.stats = s
		}
	}
}
