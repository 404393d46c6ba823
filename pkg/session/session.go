// Package session is the screen state machine that gates scanning.
//
// The machine has three states. Idle is the resting screen: a double tap
// starts Scanning, the settings action opens Settings. Scanning runs the
// scheduler until Stop. Every transition runs the exit actions of the old
// state and the entry actions of the new one, then publishes the change.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-lazarillo/pkg/camera"
	"github.com/teslashibe/go-lazarillo/pkg/events"
	"github.com/teslashibe/go-lazarillo/pkg/settings"
	"github.com/teslashibe/go-lazarillo/pkg/speech"
)

// State is the active screen.
type State int

const (
	Idle State = iota
	Scanning
	Settings
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Settings:
		return "settings"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DoubleTapWindow is the default maximum gap between the two taps.
const DoubleTapWindow = 300 * time.Millisecond

// Scanner is the periodic driver started while Scanning.
type Scanner interface {
	Start(interval time.Duration) error
	Stop()
}

// Resetter clears per-session state, e.g. the alert dedupe memory.
type Resetter interface {
	Reset()
}

// PermissionChecker asks for camera access.
type PermissionChecker = camera.PermissionRequester

// Transition is published on events.TopicSessionState.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// PromptEvent is published on events.TopicPrompt whenever the machine speaks.
type PromptEvent struct {
	Prompt Prompt            `json:"prompt"`
	Text   string            `json:"text"`
	Lang   settings.Language `json:"language"`
}

// Status is a snapshot for the dashboard.
type Status struct {
	State            State     `json:"state"`
	SessionID        string    `json:"session_id,omitempty"`
	PermissionDenied bool      `json:"permission_denied"`
	Since            time.Time `json:"since"`
}

// Config holds machine options.
type Config struct {
	Interval        time.Duration
	DoubleTapWindow time.Duration
	Permission      PermissionChecker
	Publisher       events.Publisher
	Logger          *slog.Logger
	Clock           func() time.Time
	OnStop          func()
}

// Option is a functional option for the machine.
type Option func(*Config)

// WithInterval sets the scheduler tick interval used on entry to Scanning.
func WithInterval(d time.Duration) Option {
	return func(c *Config) { c.Interval = d }
}

// WithDoubleTapWindow overrides the double-tap window.
func WithDoubleTapWindow(d time.Duration) Option {
	return func(c *Config) { c.DoubleTapWindow = d }
}

// WithPermission sets the camera permission checker. Without one access is
// assumed.
func WithPermission(p PermissionChecker) Option {
	return func(c *Config) { c.Permission = p }
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(c *Config) { c.Publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Clock = now }
}

// WithOnStop registers a callback run after leaving Scanning.
func WithOnStop(fn func()) Option {
	return func(c *Config) { c.OnStop = fn }
}

// Machine is the session state machine. All methods are safe for
// concurrent use.
type Machine struct {
	scanner Scanner
	alerts  Resetter
	speaker speech.Speaker
	store   *settings.Store
	cfg     Config
	logger  *slog.Logger

	// ops serializes actions. The scanner is started and stopped under ops
	// only, never under mu: Stop waits for in-flight result handlers, and
	// those read Status.
	ops     sync.Mutex
	lastTap time.Time

	// mu guards the snapshot. Fields are written only while ops is held.
	mu               sync.Mutex
	state            State
	since            time.Time
	sessionID        string
	permissionDenied bool
}

// New creates a machine in Idle. Call Begin to speak the first prompt.
func New(scanner Scanner, alerts Resetter, speaker speech.Speaker, store *settings.Store, opts ...Option) *Machine {
	cfg := Config{
		Interval:        700 * time.Millisecond,
		DoubleTapWindow: DoubleTapWindow,
		Publisher:       events.Discard{},
		Logger:          slog.Default(),
		Clock:           time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Machine{
		scanner: scanner,
		alerts:  alerts,
		speaker: speaker,
		store:   store,
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "session"),
		state:   Idle,
		since:   cfg.Clock(),
	}
}

// effects are collected while ops is held and run after it is released, so
// synchronous event subscribers may call back into the machine.
type effects struct {
	transitions []Transition
	prompts     []PromptEvent
}

func (m *Machine) flush(fx effects) {
	for _, p := range fx.prompts {
		m.cfg.Publisher.Publish(events.TopicPrompt, p)
	}
	for _, t := range fx.transitions {
		m.logger.Info("session transition", "from", t.From, "to", t.To, "session_id", t.SessionID)
		m.cfg.Publisher.Publish(events.TopicSessionState, t)
	}
}

// Begin runs the Idle entry actions for the initial state.
func (m *Machine) Begin(ctx context.Context) {
	m.ops.Lock()
	var fx effects
	if m.state == Idle {
		m.enterIdle(ctx, &fx)
	}
	m.ops.Unlock()
	m.flush(fx)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PermissionDenied reports whether the last attempt to scan was refused
// camera access.
func (m *Machine) PermissionDenied() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permissionDenied
}

// Status returns a snapshot. It never waits on a running action.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:            m.state,
		SessionID:        m.sessionID,
		PermissionDenied: m.permissionDenied,
		Since:            m.since,
	}
}

// Tap registers one tap on the Idle screen. The second tap within the
// double-tap window starts scanning. Taps in other states are rejected.
func (m *Machine) Tap(ctx context.Context) (State, error) {
	m.ops.Lock()
	var fx effects
	err := m.tap(ctx, &fx)
	state := m.state
	m.ops.Unlock()
	m.flush(fx)
	return state, err
}

func (m *Machine) tap(ctx context.Context, fx *effects) error {
	if m.state != Idle {
		return fmt.Errorf("%w: tap in %s", ErrInvalidTransition, m.state)
	}

	now := m.cfg.Clock()
	if m.lastTap.IsZero() || now.Sub(m.lastTap) > m.cfg.DoubleTapWindow {
		m.lastTap = now
		return nil
	}
	m.lastTap = time.Time{}

	return m.startScanning(ctx, fx)
}

// StartScanning enters Scanning directly, as a double tap would.
func (m *Machine) StartScanning(ctx context.Context) error {
	m.ops.Lock()
	var fx effects
	var err error
	if m.state != Idle {
		err = fmt.Errorf("%w: start in %s", ErrInvalidTransition, m.state)
	} else {
		err = m.startScanning(ctx, &fx)
	}
	m.ops.Unlock()
	m.flush(fx)
	return err
}

// RetryPermission requests camera access again after a denial and starts
// scanning when it is granted.
func (m *Machine) RetryPermission(ctx context.Context) error {
	m.ops.Lock()
	var fx effects
	var err error
	if m.state != Idle {
		err = fmt.Errorf("%w: retry in %s", ErrInvalidTransition, m.state)
	} else {
		err = m.startScanning(ctx, &fx)
	}
	m.ops.Unlock()
	m.flush(fx)
	return err
}

// Stop leaves Scanning for Idle.
func (m *Machine) Stop(ctx context.Context) error {
	m.ops.Lock()
	var fx effects
	var err error
	if m.state != Scanning {
		err = fmt.Errorf("%w: stop in %s", ErrInvalidTransition, m.state)
	} else {
		m.exitScanning()
		m.set(Idle, &fx)
		m.enterIdle(ctx, &fx)
	}
	m.ops.Unlock()

	if err == nil && m.cfg.OnStop != nil {
		m.cfg.OnStop()
	}
	m.flush(fx)
	return err
}

// ToggleSettings moves Idle to Settings and Settings back to Idle.
func (m *Machine) ToggleSettings(ctx context.Context) (State, error) {
	m.ops.Lock()
	var fx effects
	var err error
	switch m.state {
	case Idle:
		m.lastTap = time.Time{}
		m.set(Settings, &fx)
		m.say(ctx, PromptSettings, &fx)
	case Settings:
		m.set(Idle, &fx)
		m.enterIdle(ctx, &fx)
	default:
		err = fmt.Errorf("%w: settings in %s", ErrInvalidTransition, m.state)
	}
	state := m.state
	m.ops.Unlock()
	m.flush(fx)
	return state, err
}

func (m *Machine) startScanning(ctx context.Context, fx *effects) error {
	if m.cfg.Permission != nil {
		if err := m.cfg.Permission.RequestPermission(ctx); err != nil {
			m.setPermissionDenied(true)
			m.logger.Warn("camera permission denied", "error", err)
			m.say(ctx, PromptPermission, fx)
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
	}
	m.setPermissionDenied(false)

	m.alerts.Reset()
	if err := m.scanner.Start(m.cfg.Interval); err != nil {
		return fmt.Errorf("start scanner: %w", err)
	}

	m.mu.Lock()
	m.sessionID = uuid.NewString()
	m.mu.Unlock()
	m.set(Scanning, fx)
	m.say(ctx, PromptScanning, fx)
	return nil
}

// exitScanning stops the scanner first so no late result can refill the
// alert memory or the speech queue after they are cleared.
func (m *Machine) exitScanning() {
	m.scanner.Stop()
	m.alerts.Reset()
	m.speaker.Cancel()

	m.mu.Lock()
	m.sessionID = ""
	m.mu.Unlock()
}

func (m *Machine) enterIdle(ctx context.Context, fx *effects) {
	m.lastTap = time.Time{}
	m.speaker.Cancel()
	m.say(ctx, PromptIdle, fx)
}

func (m *Machine) setPermissionDenied(v bool) {
	m.mu.Lock()
	m.permissionDenied = v
	m.mu.Unlock()
}

func (m *Machine) set(to State, fx *effects) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.since = m.cfg.Clock()
	t := Transition{From: from, To: to, SessionID: m.sessionID, At: m.since}
	m.mu.Unlock()
	fx.transitions = append(fx.transitions, t)
}

func (m *Machine) say(ctx context.Context, p Prompt, fx *effects) {
	lang := m.store.Get().Language
	text := Message(lang, p)
	if err := m.speaker.Say(ctx, text, lang); err != nil {
		m.logger.Warn("prompt failed", "prompt", p, "error", err)
	}
	fx.prompts = append(fx.prompts, PromptEvent{Prompt: p, Text: text, Lang: lang})
}
