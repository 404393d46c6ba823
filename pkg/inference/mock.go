package inference

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-lazarillo/pkg/camera"
)

// Mock implements Transport for testing.
type Mock struct {
	// SendFunc is called when Send is invoked. The default returns an
	// accepted result with no objects.
	SendFunc func(ctx context.Context, frame camera.Frame) (*Result, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Bytes  int
	Time   time.Time
}

// NewMock creates a new mock transport.
func NewMock() *Mock {
	return &Mock{}
}

// Send records the call and delegates to SendFunc.
func (m *Mock) Send(ctx context.Context, frame camera.Frame) (*Result, error) {
	m.record("Send", len(frame.Data))

	m.mu.Lock()
	fn := m.SendFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, frame)
	}
	return &Result{OK: true, Objects: []DetectedObject{}}, nil
}

// Respond makes every Send return the given objects.
func (m *Mock) Respond(objects ...DetectedObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendFunc = func(ctx context.Context, frame camera.Frame) (*Result, error) {
		out := make([]DetectedObject, len(objects))
		copy(out, objects)
		return &Result{OK: true, Objects: out}, nil
	}
}

func (m *Mock) record(method string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Bytes: n, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ Transport = (*Mock)(nil)
