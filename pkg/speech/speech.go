// Package speech speaks alert sentences with barge-in: a new sentence always
// cuts off the one currently playing instead of queueing behind it.
package speech

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-lazarillo/pkg/settings"
	"github.com/teslashibe/go-lazarillo/pkg/tts"
)

// Speaker says one sentence at a time.
type Speaker interface {
	// Say interrupts any current utterance and starts speaking text.
	// It returns once playback has been started, not when it ends.
	Say(ctx context.Context, text string, lang settings.Language) error

	// Cancel stops the current utterance, if any.
	Cancel()
}

// Voice holds the speech parameters for one language.
type Voice struct {
	Locale string  // BCP 47 tag passed to the TTS engine
	Rate   float64 // 1.0 is normal speed
}

// DefaultVoices returns Mexican Spanish at 0.85 speed and US English at
// normal speed.
func DefaultVoices() map[settings.Language]Voice {
	return map[settings.Language]Voice{
		settings.Spanish: {Locale: "es-MX", Rate: 0.85},
		settings.English: {Locale: "en-US", Rate: 1.0},
	}
}

// Sink plays synthesized PCM audio.
type Sink interface {
	// Play blocks until the audio has been played or ctx ends.
	Play(ctx context.Context, audio *tts.AudioResult) error

	// Stop silences the output immediately.
	Stop() error
}

// Synth is a Speaker backed by a TTS provider and an audio sink.
type Synth struct {
	provider tts.Provider
	sink     Sink
	voices   map[settings.Language]Voice
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
	wg     sync.WaitGroup
}

// NewSynth creates a speaker. voices may be nil for the defaults.
func NewSynth(provider tts.Provider, sink Sink, voices map[settings.Language]Voice, logger *slog.Logger) *Synth {
	if voices == nil {
		voices = DefaultVoices()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synth{
		provider: provider,
		sink:     sink,
		voices:   voices,
		logger:   logger.With("component", "speech"),
	}
}

// Say implements Speaker. The utterance outlives ctx's cancellation so a
// short-lived caller context does not cut speech off; only Cancel or the
// next Say does.
func (s *Synth) Say(ctx context.Context, text string, lang settings.Language) error {
	if text == "" {
		return nil
	}
	voice, ok := s.voices[lang]
	if !ok {
		voice = DefaultVoices()[settings.Spanish]
	}

	s.mu.Lock()
	s.stopLocked()
	uctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.wg.Add(1)
	s.mu.Unlock()

	go s.speak(uctx, gen, text, voice)
	return nil
}

// Cancel implements Speaker.
func (s *Synth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Speaking reports whether an utterance is in progress.
func (s *Synth) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Wait blocks until every started utterance has finished or been cancelled.
func (s *Synth) Wait() {
	s.wg.Wait()
}

func (s *Synth) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	if err := s.sink.Stop(); err != nil {
		s.logger.Warn("stop playback failed", "error", err)
	}
}

func (s *Synth) speak(ctx context.Context, gen uint64, text string, voice Voice) {
	defer s.wg.Done()
	defer s.finish(gen)

	res, err := s.provider.Synthesize(ctx, tts.Request{Text: text, Locale: voice.Locale, Rate: voice.Rate})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("synthesis failed", "text", text, "error", err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	pcm, err := tts.ToPCM(res)
	if err != nil {
		s.logger.Warn("decode speech failed", "error", err)
		return
	}

	s.logger.Debug("speaking", "text", text, "locale", voice.Locale, "duration", pcm.Duration)
	if err := s.sink.Play(ctx, pcm); err != nil && ctx.Err() == nil {
		s.logger.Warn("playback failed", "error", err)
	}
}

func (s *Synth) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

var _ Speaker = (*Synth)(nil)
