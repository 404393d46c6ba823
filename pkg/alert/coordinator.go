package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-lazarillo/pkg/events"
	"github.com/teslashibe/go-lazarillo/pkg/haptics"
	"github.com/teslashibe/go-lazarillo/pkg/inference"
	"github.com/teslashibe/go-lazarillo/pkg/settings"
	"github.com/teslashibe/go-lazarillo/pkg/speech"
)

// Config holds coordinator options.
type Config struct {
	DedupeWindow time.Duration
	Publisher    events.Publisher
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Option is a functional option for the coordinator.
type Option func(*Config)

// WithDedupeWindow overrides the speech dedupe window.
func WithDedupeWindow(d time.Duration) Option {
	return func(c *Config) { c.DedupeWindow = d }
}

// WithPublisher sets where alert events are published.
func WithPublisher(p events.Publisher) Option {
	return func(c *Config) { c.Publisher = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Clock = now }
}

// Spoken is the payload of alert events.
type Spoken struct {
	Sentence  string            `json:"sentence"`
	Language  settings.Language `json:"language"`
	Vibration time.Duration     `json:"vibration"`
}

// Coordinator applies decisions: it owns the dedupe state and drives the
// vibrator and the speaker.
type Coordinator struct {
	vibrator haptics.Vibrator
	speaker  speech.Speaker
	settings *settings.Store

	window    time.Duration
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	state State
}

// NewCoordinator creates a coordinator reading user settings from store.
func NewCoordinator(v haptics.Vibrator, s speech.Speaker, store *settings.Store, opts ...Option) *Coordinator {
	cfg := Config{
		DedupeWindow: DedupeWindow,
		Publisher:    events.Discard{},
		Logger:       slog.Default(),
		Clock:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Coordinator{
		vibrator:  v,
		speaker:   s,
		settings:  store,
		window:    cfg.DedupeWindow,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.With("component", "alert"),
		now:       cfg.Clock,
	}
}

// Handle runs one tick's worth of feedback for an already filtered set.
func (c *Coordinator) Handle(ctx context.Context, filtered []inference.DetectedObject) Decision {
	cfg := c.settings.Get()
	now := c.now()

	c.mu.Lock()
	d := decide(filtered, cfg, c.state, now, c.window)
	c.state = d.Next
	c.mu.Unlock()

	payload := Spoken{Sentence: d.Sentence, Language: cfg.Language, Vibration: d.Vibration}

	if d.Vibrate {
		if err := c.vibrator.Vibrate(ctx, d.Vibration); err != nil {
			c.logger.Warn("vibrate failed", "error", err)
		} else {
			c.publisher.Publish(events.TopicAlertVibrated, payload)
		}
	}

	switch {
	case d.Speak:
		if err := c.speaker.Say(ctx, d.Sentence, cfg.Language); err != nil {
			c.logger.Warn("speak failed", "sentence", d.Sentence, "error", err)
		}
		c.logger.Debug("alert spoken", "sentence", d.Sentence)
		c.publisher.Publish(events.TopicAlertSpoken, payload)
	case d.Suppressed:
		c.logger.Debug("alert suppressed", "sentence", d.Sentence)
		c.publisher.Publish(events.TopicAlertSuppressed, payload)
	}

	return d
}

// Reset forgets the last spoken sentence so the next alert always speaks.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{}
}

// Snapshot returns the current dedupe state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
