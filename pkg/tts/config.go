package tts

import (
	"log/slog"
	"time"
)

// Config holds TTS provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Provider credentials
	APIKey  string
	BaseURL string

	// Voices maps a locale ("es-MX") or bare language ("es") to a
	// provider voice name. Missing entries fall back to provider defaults.
	Voices map[string]string
	Model  string

	Timeout time.Duration
	Logger  *slog.Logger
}

// Option is a functional option for configuring TTS providers.
type Option func(*Config)

// WithAPIKey sets the API key for the provider.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithVoice sets the voice used for a locale or language.
func WithVoice(locale, voice string) Option {
	return func(c *Config) {
		if c.Voices == nil {
			c.Voices = make(map[string]string)
		}
		c.Voices[locale] = voice
	}
}

// WithModel sets the model ID.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout sets the synthesis timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Voices:  make(map[string]string),
		Timeout: 10 * time.Second,
		Logger:  slog.Default(),
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
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// voiceFor resolves a voice for locale: exact tag, then bare language,
// then the provider defaults.
func (c *Config) voiceFor(locale string, defaults map[string]string) string {
	lang := baseLanguage(locale)
	for _, m := range []map[string]string{c.Voices, defaults} {
		if v, ok := m[locale]; ok && v != "" {
			return v
		}
		if v, ok := m[lang]; ok && v != "" {
			return v
		}
	}
	return defaults[""]
}

func baseLanguage(locale string) string {
	for i := 0; i < len(locale); i++ {
		if locale[i] == '-' || locale[i] == '_' {
			return locale[:i]
		}
	}
	return locale
}
