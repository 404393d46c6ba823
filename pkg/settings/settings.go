// Package settings holds the user-facing runtime settings: spoken language,
// whether the phone vibrates, and how long each vibration pulse lasts.
//
// Settings live in memory only. Every mutation goes through a Store setter,
// which validates or clamps the value before it becomes visible to readers.
package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Language is a supported speech locale.
type Language string

const (
	Spanish Language = "es"
	English Language = "en"
)

// Languages lists the supported locales in display order.
func Languages() []Language {
	return []Language{Spanish, English}
}

// ParseLanguage accepts "es", "en" and regional variants like "es-MX".
func ParseLanguage(s string) (Language, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_"); i > 0 {
		s = s[:i]
	}
	switch Language(s) {
	case Spanish, English:
		return Language(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
}

// Facing selects which camera captures frames.
type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

// Intensity bounds. Each step adds 100ms of vibration.
const (
	MinIntensity  = 1
	MaxIntensity  = 10
	IntensityStep = 100 * time.Millisecond
)

// Config is a snapshot of the user settings.
type Config struct {
	Language           Language `json:"language"`
	VibrationEnabled   bool     `json:"vibration_enabled"`
	VibrationIntensity int      `json:"vibration_intensity"`
	Facing             Facing   `json:"facing"`
}

// VibrationDuration is the pulse length for the configured intensity.
func (c Config) VibrationDuration() time.Duration {
	return time.Duration(ClampIntensity(c.VibrationIntensity)) * IntensityStep
}

// DefaultConfig returns the reference settings: Spanish, vibration on at 400ms.
func DefaultConfig() Config {
	return Config{
		Language:           Spanish,
		VibrationEnabled:   true,
		VibrationIntensity: 4,
		Facing:             FacingBack,
	}
}

// ClampIntensity forces an intensity into [MinIntensity, MaxIntensity].
func ClampIntensity(v int) int {
	if v < MinIntensity {
		return MinIntensity
	}
	if v > MaxIntensity {
		return MaxIntensity
	}
	return v
}

// Store holds the current settings and handles updates.
type Store struct {
	config Config
	mu     sync.RWMutex

	// OnChange is called with the new snapshot after every successful update.
	OnChange func(cfg Config)
}

// NewStore creates a store seeded with cfg. The intensity is clamped and an
// empty language or facing falls back to the default.
func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.Facing == "" {
		cfg.Facing = def.Facing
	}
	cfg.VibrationIntensity = ClampIntensity(cfg.VibrationIntensity)
	return &Store{config: cfg}
}

// Get returns the current settings.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// SetLanguage switches the speech locale.
func (s *Store) SetLanguage(lang Language) error {
	parsed, err := ParseLanguage(string(lang))
	if err != nil {
		return err
	}
	s.update(func(c *Config) { c.Language = parsed })
	return nil
}

// SetVibrationEnabled turns vibration on or off.
func (s *Store) SetVibrationEnabled(enabled bool) {
	s.update(func(c *Config) { c.VibrationEnabled = enabled })
}

// SetVibrationIntensity stores the intensity clamped to [1,10] and returns
// the value actually stored. Out-of-range input is clamped, not rejected.
func (s *Store) SetVibrationIntensity(v int) int {
	clamped := ClampIntensity(v)
	s.update(func(c *Config) { c.VibrationIntensity = clamped })
	return clamped
}

// SetFacing selects the camera.
func (s *Store) SetFacing(f Facing) error {
	if f != FacingBack && f != FacingFront {
		return fmt.Errorf("%w: %q", ErrUnknownFacing, f)
	}
	s.update(func(c *Config) { c.Facing = f })
	return nil
}

// ToggleFacing flips between back and front cameras and returns the new value.
func (s *Store) ToggleFacing() Facing {
	var next Facing
	s.update(func(c *Config) {
		if c.Facing == FacingFront {
			c.Facing = FacingBack
		} else {
			c.Facing = FacingFront
		}
		next = c.Facing
	})
	return next
}

// Patch is a partial update as received from the settings screen.
// Nil fields are left untouched.
type Patch struct {
	Language           *string `json:"language,omitempty"`
	VibrationEnabled   *bool   `json:"vibration_enabled,omitempty"`
	VibrationIntensity *int    `json:"vibration_intensity,omitempty"`
	Facing             *string `json:"facing,omitempty"`
}

// Apply validates the whole patch first and then applies it atomically,
// so a bad field leaves the settings unchanged.
func (s *Store) Apply(p Patch) (Config, error) {
	var (
		lang   Language
		facing Facing
	)
	if p.Language != nil {
		parsed, err := ParseLanguage(*p.Language)
		if err != nil {
			return s.Get(), err
		}
		lang = parsed
	}
	if p.Facing != nil {
		facing = Facing(strings.ToLower(*p.Facing))
		if facing != FacingBack && facing != FacingFront {
			return s.Get(), fmt.Errorf("%w: %q", ErrUnknownFacing, *p.Facing)
		}
	}

	var out Config
	s.update(func(c *Config) {
		if lang != "" {
			c.Language = lang
		}
		if p.VibrationEnabled != nil {
			c.VibrationEnabled = *p.VibrationEnabled
		}
		if p.VibrationIntensity != nil {
			c.VibrationIntensity = ClampIntensity(*p.VibrationIntensity)
		}
		if facing != "" {
			c.Facing = facing
		}
		out = *c
	})
	return out, nil
}

// View is the settings screen payload, with the derived pulse length.
type View struct {
	Config
	VibrationMs int64      `json:"vibration_ms"`
	Languages   []Language `json:"languages"`
}

// View returns the current settings with display-only fields filled in.
func (s *Store) View() View {
	cfg := s.Get()
	return View{
		Config:      cfg,
		VibrationMs: cfg.VibrationDuration().Milliseconds(),
		Languages:   Languages(),
	}
}

// MarshalJSON lets the store be rendered directly.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.View())
}

func (s *Store) update(fn func(*Config)) {
	s.mu.Lock()
	fn(&s.config)
	cfg := s.config
	callback := s.OnChange
	s.mu.Unlock()

	if callback != nil {
		callback(cfg)
	}
}
