package firehose

import (
	"github.com/gorilla/websocket"

	"github.com/okian/blueskyer/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithURL sets the subscribeRepos endpoint.
func WithURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWorkerCount sets the number of decode workers. One worker keeps
// records in arrival order.
func WithWorkerCount(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize bounds the number of frames waiting for a worker. Frames
// arriving while the queue is full are dropped.
func WithQueueSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithDedupeSize sets how many commit seqs are remembered to drop replays.
// n <= 0 disables replay filtering.
func WithDedupeSize(n int) Option {
	return func(c *Client) {
		c.dedupeSize = n
	}
}

// WithCursor asks the relay to replay from seq on every dial.
func WithCursor(seq int64) Option {
	return func(c *Client) {
		if seq > 0 {
			c.cursor = seq
		}
	}
}
