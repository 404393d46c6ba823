// Package config provides configuration loading for go-lazarillo commands.
//
// Values are resolved in order: built-in defaults, an optional YAML file,
// a .env file, then LAZARILLO_* environment variables. Command-line flags are
// applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LAZARILLO_"

// Defaults mirrored from the reference client.
const (
	DefaultServerURL         = "http://127.0.0.1:8000"
	DefaultTickInterval      = 700 * time.Millisecond
	DefaultRequestTimeout    = 5 * time.Second
	DefaultMaxDistanceMeters = 10.0
	DefaultMaxCount          = 2
	DefaultDedupeWindow      = 2500 * time.Millisecond
	DefaultDoubleTapWindow   = 300 * time.Millisecond
	DefaultFrameWidth        = 350
	DefaultFrameQuality      = 40
	DefaultWebPort           = "8080"
)

// Config holds everything the lazarillo binary needs at startup.
type Config struct {
	// Inference service
	ServerURL      string        `yaml:"server_url"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Detection policy
	MaxDistanceMeters float64 `yaml:"max_distance_m"`
	MaxCount          int     `yaml:"max_count"`
	MinConfidence     float64 `yaml:"min_confidence"`

	// Alerts and gestures
	DedupeWindow    time.Duration `yaml:"dedupe_window"`
	DoubleTapWindow time.Duration `yaml:"double_tap_window"`

	// Initial user settings (in-memory only, never written back)
	Language           string `yaml:"language"`
	VibrationEnabled   bool   `yaml:"vibration_enabled"`
	VibrationIntensity int    `yaml:"vibration_intensity"`

	Camera   CameraConfig   `yaml:"camera"`
	Speech   SpeechConfig   `yaml:"speech"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Web      WebConfig      `yaml:"web"`

	LogLevel string `yaml:"log_level"`
}

// CameraConfig selects and tunes the frame source.
type CameraConfig struct {
	Source      string `yaml:"source"` // "webcam" or "dir"
	Device      int    `yaml:"device"`
	FrontDevice int    `yaml:"front_device"`
	Dir         string `yaml:"dir"`
	Width       int    `yaml:"width"`
	Quality     int    `yaml:"quality"`
}

// SpeechConfig selects the TTS backend and, when no handset is attached,
// where the audio is played.
type SpeechConfig struct {
	Provider  string `yaml:"provider"` // "edge", "openai", "log"
	OpenAIKey string `yaml:"openai_key"`
	Output    string `yaml:"output"` // "local" or "log"
}

// FeedbackConfig locates the companion handset that owns the speaker and
// the vibration motor. With URL set the client dials out to it; with Accept
// the dashboard serves /ws/device and handsets dial in. Neither means
// feedback is only logged.
type FeedbackConfig struct {
	URL    string `yaml:"url"`
	Accept bool   `yaml:"accept"`
}

// WebConfig controls the local dashboard.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		ServerURL:          DefaultServerURL,
		TickInterval:       DefaultTickInterval,
		RequestTimeout:     DefaultRequestTimeout,
		MaxDistanceMeters:  DefaultMaxDistanceMeters,
		MaxCount:           DefaultMaxCount,
		DedupeWindow:       DefaultDedupeWindow,
		DoubleTapWindow:    DefaultDoubleTapWindow,
		Language:           "es",
		VibrationEnabled:   true,
		VibrationIntensity: 4,
		Camera: CameraConfig{
			Source:      "webcam",
			FrontDevice: 1,
			Width:       DefaultFrameWidth,
			Quality:     DefaultFrameQuality,
		},
		Speech: SpeechConfig{
			Provider: "edge",
			Output:   "local",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    DefaultWebPort,
		},
		LogLevel: "info",
	}
}

// Load resolves the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// A missing .env is normal; real environment variables still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	envString("SERVER_URL", &c.ServerURL)
	envString("LANGUAGE", &c.Language)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("CAMERA_SOURCE", &c.Camera.Source)
	envString("CAMERA_DIR", &c.Camera.Dir)
	envString("SPEECH_PROVIDER", &c.Speech.Provider)
	envString("SPEECH_OUTPUT", &c.Speech.Output)
	envString("FEEDBACK_URL", &c.Feedback.URL)
	envString("WEB_PORT", &c.Web.Port)

	// The OpenAI key is also honoured under its conventional name.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Speech.OpenAIKey == "" {
		c.Speech.OpenAIKey = v
	}
	envString("OPENAI_KEY", &c.Speech.OpenAIKey)

	errs = append(errs,
		envDuration("TICK_INTERVAL", &c.TickInterval),
		envDuration("REQUEST_TIMEOUT", &c.RequestTimeout),
		envDuration("DEDUPE_WINDOW", &c.DedupeWindow),
		envDuration("DOUBLE_TAP_WINDOW", &c.DoubleTapWindow),
		envFloat("MAX_DISTANCE_M", &c.MaxDistanceMeters),
		envFloat("MIN_CONFIDENCE", &c.MinConfidence),
		envInt("MAX_COUNT", &c.MaxCount),
		envInt("VIBRATION_INTENSITY", &c.VibrationIntensity),
		envInt("CAMERA_DEVICE", &c.Camera.Device),
		envInt("CAMERA_FRONT_DEVICE", &c.Camera.FrontDevice),
		envInt("CAMERA_WIDTH", &c.Camera.Width),
		envInt("CAMERA_QUALITY", &c.Camera.Quality),
		envBool("VIBRATION_ENABLED", &c.VibrationEnabled),
		envBool("WEB_ENABLED", &c.Web.Enabled),
		envBool("FEEDBACK_ACCEPT", &c.Feedback.Accept),
	)

	return errors.Join(errs...)
}

// Validate checks that values are within usable ranges.
// Returns a list of problems, or nil if valid.
func (c *Config) Validate() []string {
	var problems []string

	if c.ServerURL == "" {
		problems = append(problems, "server_url is required")
	} else if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		problems = append(problems, "server_url must start with http:// or https://")
	}
	if c.TickInterval < 50*time.Millisecond {
		problems = append(problems, "tick_interval must be at least 50ms")
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if c.MaxDistanceMeters <= 0 {
		problems = append(problems, "max_distance_m must be positive")
	}
	if c.MaxCount < 1 {
		problems = append(problems, "max_count must be at least 1")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		problems = append(problems, "min_confidence must be between 0 and 1")
	}
	if c.DedupeWindow < 0 {
		problems = append(problems, "dedupe_window must not be negative")
	}
	if c.DoubleTapWindow <= 0 {
		problems = append(problems, "double_tap_window must be positive")
	}
	if c.Language != "es" && c.Language != "en" {
		problems = append(problems, "language must be es or en")
	}
	switch c.Camera.Source {
	case "webcam":
	case "dir":
		if c.Camera.Dir == "" {
			problems = append(problems, "camera.dir is required when camera.source is dir")
		}
	default:
		problems = append(problems, "camera.source must be webcam or dir")
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		problems = append(problems, "camera.quality must be between 1 and 100")
	}
	if c.Camera.Width < 0 {
		problems = append(problems, "camera.width must not be negative")
	}
	if c.Feedback.URL != "" && c.Feedback.Accept {
		problems = append(problems, "feedback.url and feedback.accept are mutually exclusive")
	}
	if c.Feedback.Accept && !c.Web.Enabled {
		problems = append(problems, "feedback.accept requires web.enabled")
	}
	switch c.Speech.Provider {
	case "edge", "log":
	case "openai":
		if c.Speech.OpenAIKey == "" {
			problems = append(problems, "speech.openai_key is required for the openai provider")
		}
	default:
		problems = append(problems, "speech.provider must be edge, openai or log")
	}
	if c.Speech.Output != "local" && c.Speech.Output != "log" {
		problems = append(problems, "speech.output must be local or log")
	}

	return problems
}

func envKey(name string) string {
	return EnvPrefix + name
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(envKey(name)); ok && v != "" {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) error {
	v, ok := os.LookupEnv(envKey(name))
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", envKey(name), err)
	}
	*dst = d
	return nil
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(envKey(name))
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", envKey(name), err)
	}
	*dst = n
	return nil
}

func envFloat(name string, dst *float64) error {
	v, ok := os.LookupEnv(envKey(name))
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", envKey(name), err)
	}
	*dst = f
	return nil
}

func envBool(name string, dst *bool) error {
	v, ok := os.LookupEnv(envKey(name))
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", envKey(name), err)
	}
	*dst = b
	return nil
}
