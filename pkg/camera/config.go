package camera

import "fmt"

// Upload defaults. The reference client captured at low quality, resized to
// 350px wide and recompressed at 0.4.
const (
	DefaultWidth   = 350
	DefaultQuality = 40
)

// Config controls frame encoding.
type Config struct {
	// Width is the output width in pixels. Height follows the aspect ratio.
	// Zero keeps the source size. Frames are never upscaled.
	Width int `json:"width"`

	// Quality is the JPEG quality, 1-100.
	Quality int `json:"quality"`
}

// DefaultConfig returns the upload settings used by the reference client.
func DefaultConfig() Config {
	return Config{
		Width:   DefaultWidth,
		Quality: DefaultQuality,
	}
}

// Option configures a Config.
type Option func(*Config)

// WithWidth sets the output width.
func WithWidth(w int) Option {
	return func(c *Config) {
		c.Width = w
	}
}

// WithQuality sets the JPEG quality.
func WithQuality(q int) Option {
	return func(c *Config) {
		c.Quality = q
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks if the config values are within valid ranges.
func (c Config) Validate() []string {
	var errs []string

	if c.Width < 0 {
		errs = append(errs, fmt.Sprintf("width must be >= 0, got %d", c.Width))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, fmt.Sprintf("quality must be 1-100, got %d", c.Quality))
	}

	return errs
}
