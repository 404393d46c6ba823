package camera

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-lazarillo/pkg/settings"
)

// Mock is a test double for Capturer.
type Mock struct {
	mu sync.Mutex

	// CaptureFunc overrides Capture. By default a tiny fixed frame is returned.
	CaptureFunc func(ctx context.Context) (Frame, error)

	// PermissionFunc overrides RequestPermission. Nil grants access.
	PermissionFunc func(ctx context.Context) error

	captures    int
	permissions int
	facings     []settings.Facing
	closed      bool
}

// NewMock creates a mock capturer.
func NewMock() *Mock {
	return &Mock{}
}

// Capture returns CaptureFunc's result or a placeholder frame.
func (m *Mock) Capture(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	m.captures++
	fn := m.CaptureFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return Frame{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, CapturedAt: time.Now(), Width: 1, Height: 1}, nil
}

// RequestPermission returns PermissionFunc's result or nil.
func (m *Mock) RequestPermission(ctx context.Context) error {
	m.mu.Lock()
	m.permissions++
	fn := m.PermissionFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// SetFacing records the requested facing.
func (m *Mock) SetFacing(f settings.Facing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facings = append(m.facings, f)
	return nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CaptureCount returns how many times Capture was called.
func (m *Mock) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

// PermissionCount returns how many times RequestPermission was called.
func (m *Mock) PermissionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permissions
}

// Facings returns every facing passed to SetFacing.
func (m *Mock) Facings() []settings.Facing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]settings.Facing, len(m.facings))
	copy(out, m.facings)
	return out
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures = 0
	m.permissions = 0
	m.facings = nil
	m.closed = false
}

var (
	_ Capturer            = (*Mock)(nil)
	_ FacingSwitcher      = (*Mock)(nil)
	_ PermissionRequester = (*Mock)(nil)
	_ Capturer            = (*FileSource)(nil)
	_ PermissionRequester = (*FileSource)(nil)
)
