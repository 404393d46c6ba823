package haptics

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLogVibrate(t *testing.T) {
	var buf bytes.Buffer
	v := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	if err := v.Vibrate(context.Background(), 400*time.Millisecond); err != nil {
		t.Fatalf("Vibrate() error = %v", err)
	}
	if !strings.Contains(buf.String(), "duration_ms=400") {
		t.Errorf("log line missing duration: %q", buf.String())
	}
}

func TestMockRecordsPulses(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	_ = m.Vibrate(ctx, 100*time.Millisecond)
	_ = m.Vibrate(ctx, time.Second)

	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", m.Count())
	}
	pulses := m.Pulses()
	if pulses[0] != 100*time.Millisecond || pulses[1] != time.Second {
		t.Errorf("Pulses() = %v", pulses)
	}

	m.Reset()
	if m.Count() != 0 {
		t.Errorf("Count() after Reset = %d", m.Count())
	}
}

func TestMockVibrateFunc(t *testing.T) {
	want := errors.New("motor busy")
	m := NewMock()
	m.VibrateFunc = func(context.Context, time.Duration) error { return want }

	if err := m.Vibrate(context.Background(), time.Millisecond); !errors.Is(err, want) {
		t.Errorf("Vibrate() error = %v, want %v", err, want)
	}
	if m.Count() != 1 {
		t.Errorf("failed pulse should still be recorded")
	}
}
