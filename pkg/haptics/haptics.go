// Package haptics drives the vibration motor.
package haptics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Vibrator pulses the motor once for d.
type Vibrator interface {
	Vibrate(ctx context.Context, d time.Duration) error
}

// Log is a Vibrator for headless runs that only logs pulses.
type Log struct {
	Logger *slog.Logger
}

// Vibrate logs the pulse.
func (l Log) Vibrate(ctx context.Context, d time.Duration) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("vibrate", "component", "haptics", "duration_ms", d.Milliseconds())
	return nil
}

// Mock records every pulse.
type Mock struct {
	// VibrateFunc overrides the default no-op.
	VibrateFunc func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	pulses []time.Duration
}

// NewMock creates a mock vibrator.
func NewMock() *Mock {
	return &Mock{}
}

// Vibrate records d.
func (m *Mock) Vibrate(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.pulses = append(m.pulses, d)
	fn := m.VibrateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, d)
	}
	return nil
}

// Pulses returns the recorded durations.
func (m *Mock) Pulses() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.pulses))
	copy(out, m.pulses)
	return out
}

// Count returns the number of pulses.
func (m *Mock) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pulses)
}

// Reset clears recorded pulses.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulses = nil
}

var (
	_ Vibrator = Log{}
	_ Vibrator = (*Mock)(nil)
)
