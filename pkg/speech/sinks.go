package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-lazarillo/pkg/settings"
	"github.com/teslashibe/go-lazarillo/pkg/tts"
)

// LogSink pretends to play audio: it logs and waits for the audio's
// duration so interruptions behave as with a real speaker.
type LogSink struct {
	Logger *slog.Logger
}

// Play waits for the audio duration or ctx.
func (l LogSink) Play(ctx context.Context, audio *tts.AudioResult) error {
	l.logger().Info("play audio", "duration", audio.Duration, "sample_rate", audio.Format.SampleRate)
	if audio.Duration <= 0 {
		return nil
	}
	t := time.NewTimer(audio.Duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stop logs the interruption.
func (l LogSink) Stop() error {
	l.logger().Debug("stop audio")
	return nil
}

func (l LogSink) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// LogSpeaker is a Speaker that only logs sentences. Used when no TTS
// engine is configured.
type LogSpeaker struct {
	Logger *slog.Logger
}

// Say logs the sentence.
func (l LogSpeaker) Say(ctx context.Context, text string, lang settings.Language) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("say", "component", "speech", "text", text, "lang", lang)
	return nil
}

// Cancel does nothing.
func (LogSpeaker) Cancel() {}

// Utterance is one recorded Say call.
type Utterance struct {
	Text string
	Lang settings.Language
	At   time.Time
}

// Mock records Say and Cancel calls.
type Mock struct {
	// SayFunc overrides the default no-op.
	SayFunc func(ctx context.Context, text string, lang settings.Language) error

	mu       sync.Mutex
	said     []Utterance
	cancels  int
	sequence []string
}

// NewMock creates a mock speaker.
func NewMock() *Mock {
	return &Mock{}
}

// Say records the utterance.
func (m *Mock) Say(ctx context.Context, text string, lang settings.Language) error {
	m.mu.Lock()
	m.said = append(m.said, Utterance{Text: text, Lang: lang, At: time.Now()})
	m.sequence = append(m.sequence, "say:"+text)
	fn := m.SayFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, lang)
	}
	return nil
}

// Cancel records the call.
func (m *Mock) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	m.sequence = append(m.sequence, "cancel")
}

// Said returns every recorded utterance.
func (m *Mock) Said() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Utterance, len(m.said))
	copy(out, m.said)
	return out
}

// Texts returns the recorded sentences.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.said))
	for i, u := range m.said {
		out[i] = u.Text
	}
	return out
}

// Cancels returns how many times Cancel was called.
func (m *Mock) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// Sequence returns Say and Cancel calls in order, e.g. ["cancel", "say:hola"].
func (m *Mock) Sequence() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sequence))
	copy(out, m.sequence)
	return out
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.said = nil
	m.cancels = 0
	m.sequence = nil
}

var (
	_ Sink    = LogSink{}
	_ Speaker = LogSpeaker{}
	_ Speaker = (*Mock)(nil)
)
