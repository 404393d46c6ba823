package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-lazarillo/internal/log"
	"github.com/teslashibe/go-lazarillo/pkg/settings"
	"github.com/teslashibe/go-lazarillo/pkg/tts"
)

// blockingSink plays until cancelled and reports each start on started.
type blockingSink struct {
	started chan int

	mu        sync.Mutex
	plays     int
	cancelled int
	stops     int
}

func newBlockingSink() *blockingSink {
	return &blockingSink{started: make(chan int, 8)}
}

func (s *blockingSink) Play(ctx context.Context, audio *tts.AudioResult) error {
	s.mu.Lock()
	s.plays++
	s.mu.Unlock()
	s.started <- audio.CharCount

	<-ctx.Done()
	s.mu.Lock()
	s.cancelled++
	s.mu.Unlock()
	return ctx.Err()
}

func (s *blockingSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *blockingSink) counts() (plays, cancelled, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays, s.cancelled, s.stops
}

func waitStarted(t *testing.T, s *blockingSink) int {
	t.Helper()
	select {
	case n := <-s.started:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("playback never started")
		return 0
	}
}

func TestSayInterruptsCurrentUtterance(t *testing.T) {
	provider := tts.NewMock()
	sink := newBlockingSink()
	s := NewSynth(provider, sink, nil, log.Discard())

	ctx := context.Background()
	if err := s.Say(ctx, "persona izquierda", settings.Spanish); err != nil {
		t.Fatal(err)
	}
	if n := waitStarted(t, sink); n != len("persona izquierda") {
		t.Errorf("first playback chars = %d", n)
	}

	if err := s.Say(ctx, "silla", settings.Spanish); err != nil {
		t.Fatal(err)
	}
	if n := waitStarted(t, sink); n != len("silla") {
		t.Errorf("second playback chars = %d", n)
	}
	if !s.Speaking() {
		t.Error("should be speaking")
	}

	s.Cancel()
	s.Wait()

	plays, cancelled, stops := sink.counts()
	if plays != 2 || cancelled != 2 || stops != 2 {
		t.Errorf("plays=%d cancelled=%d stops=%d, want 2/2/2", plays, cancelled, stops)
	}
	if s.Speaking() {
		t.Error("should not be speaking after Cancel")
	}
}

func TestSayOutlivesCallerContext(t *testing.T) {
	sink := newBlockingSink()
	s := NewSynth(tts.NewMock(), sink, nil, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	s.Say(ctx, "frente", settings.Spanish)
	waitStarted(t, sink)
	cancel()

	time.Sleep(20 * time.Millisecond)
	if _, cancelled, _ := sink.counts(); cancelled != 0 {
		t.Error("caller cancellation cut speech off")
	}
	s.Cancel()
	s.Wait()
}

func TestVoiceSelection(t *testing.T) {
	provider := tts.NewMock()
	s := NewSynth(provider, LogSink{Logger: log.Discard()}, nil, log.Discard())

	s.Say(context.Background(), "chair left", settings.English)
	s.Wait()
	s.Say(context.Background(), "silla izquierda", settings.Spanish)
	s.Wait()
	s.Say(context.Background(), "chaise", "fr")
	s.Wait()

	calls := provider.Calls()
	if len(calls) != 3 {
		t.Fatalf("got %d calls", len(calls))
	}
	want := []string{"en-US", "es-MX", "es-MX"}
	for i, c := range calls {
		if c.Locale != want[i] {
			t.Errorf("call %d locale = %q, want %q", i, c.Locale, want[i])
		}
	}
}

func TestSayEmptyIsNoop(t *testing.T) {
	provider := tts.NewMock()
	s := NewSynth(provider, LogSink{}, nil, log.Discard())
	s.Say(context.Background(), "", settings.Spanish)
	s.Wait()
	if provider.CallCount("Synthesize") != 0 {
		t.Error("empty text should not be synthesized")
	}
}

func TestDefaultVoices(t *testing.T) {
	v := DefaultVoices()
	if v[settings.Spanish].Locale != "es-MX" || v[settings.Spanish].Rate != 0.85 {
		t.Errorf("spanish voice = %+v", v[settings.Spanish])
	}
}

func TestMockSequence(t *testing.T) {
	m := NewMock()
	m.Cancel()
	m.Say(context.Background(), "hola", settings.Spanish)

	seq := m.Sequence()
	if len(seq) != 2 || seq[0] != "cancel" || seq[1] != "say:hola" {
		t.Errorf("sequence = %v", seq)
	}
	if m.Cancels() != 1 || len(m.Texts()) != 1 {
		t.Errorf("counts off")
	}
}
