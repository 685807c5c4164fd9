package xrpc

import (
	"net/http"
	"strings"

	"github.com/okian/blueskyer/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithServiceURL sets the PDS base URL used for sessions and most reads.
func WithServiceURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.serviceURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAppViewURL sets the app view base URL used for getRelationships.
func WithAppViewURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.appViewURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCredentials sets the identifier and app password EnsureSession logs in with.
func WithCredentials(identifier, password string) Option {
	return func(c *Client) {
		c.identifier = identifier
		c.password = password
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
