package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-lazarillo/internal/log"
	"github.com/teslashibe/go-lazarillo/pkg/camera"
	"github.com/teslashibe/go-lazarillo/pkg/events"
	"github.com/teslashibe/go-lazarillo/pkg/settings"
	"github.com/teslashibe/go-lazarillo/pkg/speech"
)

type mockScanner struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	interval time.Duration
	startErr error
	onStop   func()
}

func (s *mockScanner) Start(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	s.starts++
	s.interval = interval
	return nil
}

func (s *mockScanner) Stop() {
	s.mu.Lock()
	s.running = false
	s.stops++
	hook := s.onStop
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (s *mockScanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

type mockResetter struct{ n int }

func (r *mockResetter) Reset() { r.n++ }

// fakeClock advances only when told to.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	m       *Machine
	scanner *mockScanner
	alerts  *mockResetter
	speaker *speech.Mock
	cam     *camera.Mock
	clock   *fakeClock
	store   *settings.Store
	bus     *events.Bus
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		scanner: &mockScanner{},
		alerts:  &mockResetter{},
		speaker: speech.NewMock(),
		cam:     camera.NewMock(),
		clock:   &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		store:   settings.NewStore(settings.DefaultConfig()),
		bus:     events.New(),
	}
	base := []Option{
		WithInterval(700 * time.Millisecond),
		WithPermission(f.cam),
		WithPublisher(f.bus),
		WithLogger(log.Discard()),
		WithClock(f.clock.Now),
	}
	f.m = New(f.scanner, f.alerts, f.speaker, f.store, append(base, opts...)...)
	return f
}

func (f *fixture) doubleTap(t *testing.T) State {
	t.Helper()
	_, err := f.m.Tap(context.Background())
	require.NoError(t, err)
	f.clock.Advance(120 * time.Millisecond)
	state, err := f.m.Tap(context.Background())
	require.NoError(t, err)
	return state
}

func TestBeginSpeaksIdlePrompt(t *testing.T) {
	f := newFixture(t)
	f.m.Begin(context.Background())

	assert.Equal(t, Idle, f.m.State())
	assert.Equal(t, []string{"cancel", "say:" + Message(settings.Spanish, PromptIdle)}, f.speaker.Sequence())
	assert.False(t, f.scanner.Running())
}

func TestDoubleTapStartsScanning(t *testing.T) {
	f := newFixture(t)

	state := f.doubleTap(t)

	assert.Equal(t, Scanning, state)
	assert.True(t, f.scanner.Running())
	assert.Equal(t, 700*time.Millisecond, f.scanner.interval)
	assert.Equal(t, 1, f.alerts.n, "alert state reset on entry")
	assert.NotEmpty(t, f.m.Status().SessionID)
	assert.Contains(t, f.speaker.Texts(), Message(settings.Spanish, PromptScanning))
}

func TestSlowTapsDoNotStartScanning(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want State
	}{
		{"within window", 300 * time.Millisecond, Scanning},
		{"just outside window", 301 * time.Millisecond, Idle},
		{"far apart", 2 * time.Second, Idle},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.m.Tap(context.Background())
			require.NoError(t, err)
			f.clock.Advance(tc.gap)
			state, err := f.m.Tap(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, state)
			assert.Equal(t, tc.want == Scanning, f.scanner.Running())
		})
	}
}

func TestThirdSlowTapPairsWithSecond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.m.Tap(ctx)
	f.clock.Advance(time.Second)
	f.m.Tap(ctx)
	f.clock.Advance(100 * time.Millisecond)
	state, err := f.m.Tap(ctx)

	require.NoError(t, err)
	assert.Equal(t, Scanning, state)
}

func TestStopReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.doubleTap(t)
	f.speaker.Reset()

	require.NoError(t, f.m.Stop(context.Background()))

	assert.Equal(t, Idle, f.m.State())
	assert.False(t, f.scanner.Running(), "scanner runs only while scanning")
	assert.Equal(t, 2, f.alerts.n, "alert state reset on exit")
	assert.Empty(t, f.m.Status().SessionID)

	seq := f.speaker.Sequence()
	require.NotEmpty(t, seq)
	assert.Equal(t, "cancel", seq[0], "pending speech cancelled before the prompt")
	assert.Equal(t, "say:"+Message(settings.Spanish, PromptIdle), seq[len(seq)-1])
}

func TestStopRunsOnStopHook(t *testing.T) {
	called := 0
	f := newFixture(t, WithOnStop(func() { called++ }))
	f.doubleTap(t)
	require.NoError(t, f.m.Stop(context.Background()))
	assert.Equal(t, 1, called)
}

func TestStatusReadableWhileScannerStops(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, Scanning, f.doubleTap(t))

	var during Status
	f.scanner.onStop = func() { during = f.m.Status() }

	done := make(chan error, 1)
	go func() { done <- f.m.Stop(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked reading Status from the scanner")
	}
	assert.Equal(t, Scanning, during.State, "the transition lands after the scanner has stopped")
	assert.NotEmpty(t, during.SessionID)
	assert.Equal(t, Idle, f.m.Status().State)
	assert.Empty(t, f.m.Status().SessionID)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("stop while idle", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.m.Stop(ctx), ErrInvalidTransition)
	})

	t.Run("settings while scanning", func(t *testing.T) {
		f := newFixture(t)
		f.doubleTap(t)
		state, err := f.m.ToggleSettings(ctx)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, Scanning, state)
	})

	t.Run("tap while in settings", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.m.ToggleSettings(ctx)
		require.NoError(t, err)
		_, err = f.m.Tap(ctx)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("start while scanning", func(t *testing.T) {
		f := newFixture(t)
		f.doubleTap(t)
		assert.ErrorIs(t, f.m.StartScanning(ctx), ErrInvalidTransition)
		assert.Equal(t, 1, f.scanner.starts)
	})
}

func TestToggleSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.m.ToggleSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, Settings, state)
	assert.False(t, f.scanner.Running())

	f.speaker.Reset()
	state, err = f.m.ToggleSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, Idle, state)
	assert.Equal(t, []string{"cancel", "say:" + Message(settings.Spanish, PromptIdle)}, f.speaker.Sequence())
}

func TestPermissionDeniedStaysIdle(t *testing.T) {
	f := newFixture(t)
	f.cam.PermissionFunc = func(ctx context.Context) error { return camera.ErrPermissionDenied }

	_, err := f.m.Tap(context.Background())
	require.NoError(t, err)
	f.clock.Advance(50 * time.Millisecond)
	state, err := f.m.Tap(context.Background())

	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, err, camera.ErrPermissionDenied)
	assert.Equal(t, Idle, state)
	assert.True(t, f.m.PermissionDenied())
	assert.False(t, f.scanner.Running())
	assert.Contains(t, f.speaker.Texts(), Message(settings.Spanish, PromptPermission))

	// Access granted on retry.
	f.cam.PermissionFunc = nil
	require.NoError(t, f.m.RetryPermission(context.Background()))
	assert.Equal(t, Scanning, f.m.State())
	assert.False(t, f.m.PermissionDenied())
	assert.True(t, f.scanner.Running())
}

func TestAnnouncementsFollowLanguage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetLanguage(settings.English))

	f.doubleTap(t)

	said := f.speaker.Said()
	require.NotEmpty(t, said)
	last := said[len(said)-1]
	assert.Equal(t, "Scanning started.", last.Text)
	assert.Equal(t, settings.English, last.Lang)
}

func TestTransitionsPublished(t *testing.T) {
	f := newFixture(t)

	var got []Transition
	require.NoError(t, f.bus.Subscribe(events.TopicSessionState, func(e events.Event) {
		got = append(got, e.Data.(Transition))
		// Subscribers may read back the machine without deadlocking.
		_ = f.m.State()
	}))

	f.doubleTap(t)
	require.NoError(t, f.m.Stop(context.Background()))

	require.Len(t, got, 2)
	assert.Equal(t, Transition{From: Idle, To: Scanning, SessionID: got[0].SessionID, At: got[0].At}, got[0])
	assert.NotEmpty(t, got[0].SessionID)
	assert.Equal(t, Scanning, got[1].From)
	assert.Equal(t, Idle, got[1].To)
}

func TestNewSessionGetsNewID(t *testing.T) {
	f := newFixture(t)
	f.doubleTap(t)
	first := f.m.Status().SessionID
	require.NoError(t, f.m.Stop(context.Background()))

	f.clock.Advance(time.Second)
	f.doubleTap(t)
	assert.NotEqual(t, first, f.m.Status().SessionID)
	assert.Equal(t, 3, f.alerts.n)
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, Message(settings.Spanish, PromptIdle), Message(settings.Language("fr"), PromptIdle))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "scanning", Scanning.String())
	assert.Equal(t, "settings", Settings.String())
	assert.Equal(t, "state(9)", State(9).String())
}
