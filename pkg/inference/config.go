package inference

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the detection service root, e.g. "http://192.168.1.20:8000".
	BaseURL string

	// Timeout bounds each request. It should be shorter than the tick
	// interval multiplied by a few ticks, otherwise skipped ticks pile up.
	Timeout time.Duration

	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client

	// RequestIDs adds an X-Request-ID header to every request.
	RequestIDs bool

	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL sets the service root.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithRequestIDs toggles the X-Request-ID header.
func WithRequestIDs(enabled bool) Option {
	return func(c *Config) { c.RequestIDs = enabled }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for a service on the local machine.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://127.0.0.1:8000",
		Timeout:    5 * time.Second,
		RequestIDs: true,
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("inference: base URL must be http(s): %q", c.BaseURL)
	}
	if c.Timeout <= 0 && c.HTTPClient == nil {
		return fmt.Errorf("inference: timeout must be positive")
	}
	return nil
}
