package tts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wujunwei928/edge-tts-go/edge_tts"
)

const providerEdge = "edge"

// Edge voices used when no override is configured.
var edgeVoices = map[string]string{
	"":      "es-MX-DaliaNeural",
	"es":    "es-MX-DaliaNeural",
	"es-MX": "es-MX-DaliaNeural",
	"es-ES": "es-ES-ElviraNeural",
	"en":    "en-US-JennyNeural",
	"en-US": "en-US-JennyNeural",
	"en-GB": "en-GB-SoniaNeural",
}

// Edge implements Provider using Microsoft Edge's online neural voices.
// Output is 24kHz mono MP3.
type Edge struct {
	config *Config
	logger *slog.Logger
	closed atomic.Bool
}

// NewEdge creates an Edge provider. No API key is needed.
func NewEdge(opts ...Option) (*Edge, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Edge{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.edge"),
	}, nil
}

// Synthesize converts text to MP3 audio.
func (e *Edge) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	if e.closed.Load() {
		return nil, WrapError(providerEdge, ErrProviderUnavailable)
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, WrapError(providerEdge, ErrEmptyText)
	}

	voice := e.config.voiceFor(req.Locale, edgeVoices)
	rate := edgeRate(req.Rate)
	start := time.Now()

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	type output struct {
		audio []byte
		err   error
	}
	done := make(chan output, 1)

	// The edge client has no context support, so the call runs on its own
	// goroutine and is abandoned if ctx ends first.
	go func() {
		communicate, err := edge_tts.NewCommunicate(text,
			edge_tts.SetVoice(voice),
			edge_tts.SetRate(rate),
		)
		if err != nil {
			done <- output{err: fmt.Errorf("create communicator: %w", err)}
			return
		}

		audio, err := communicate.Stream()
		done <- output{audio: audio, err: err}
	}()

	var out output
	select {
	case <-ctx.Done():
		return nil, WrapError(providerEdge, ctx.Err())
	case out = <-done:
	}
	if out.err != nil {
		return nil, WrapError(providerEdge, out.err)
	}
	if len(out.audio) == 0 {
		return nil, WrapError(providerEdge, fmt.Errorf("no audio returned"))
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(out.audio),
		"latency_ms", latency,
		"voice", voice,
		"rate", rate,
	)

	return &AudioResult{
		Audio: out.audio,
		Format: AudioFormat{
			Encoding:   EncodingMP3,
			SampleRate: 24000,
			Channels:   1,
		},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// edgeRate converts a speed multiplier into the service's signed percent
// form: 0.85 is "-15%", 1.2 is "+20%". Zero and negative mean normal speed.
func edgeRate(r float64) string {
	if r <= 0 {
		return "+0%"
	}
	return fmt.Sprintf("%+d%%", int(math.Round((r-1)*100)))
}

// Health reports whether the provider is open. The service has no cheap
// probe endpoint.
func (e *Edge) Health(ctx context.Context) error {
	if e.closed.Load() {
		return WrapError(providerEdge, ErrProviderUnavailable)
	}
	return nil
}

// Close marks the provider closed.
func (e *Edge) Close() error {
	e.closed.Store(true)
	return nil
}

// Verify Edge implements Provider at compile time.
var _ Provider = (*Edge)(nil)
