package settings

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Language != Spanish {
		t.Errorf("Language = %q, want es", cfg.Language)
	}
	if !cfg.VibrationEnabled {
		t.Error("vibration should be on by default")
	}
	if got := cfg.VibrationDuration(); got != 400*time.Millisecond {
		t.Errorf("VibrationDuration = %v, want 400ms", got)
	}
}

func TestSetVibrationIntensityClamps(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-3, 1},
		{0, 1},
		{1, 1},
		{4, 4},
		{10, 10},
		{11, 10},
		{99, 10},
	}

	s := NewStore(DefaultConfig())
	for _, tc := range tests {
		if got := s.SetVibrationIntensity(tc.in); got != tc.want {
			t.Errorf("SetVibrationIntensity(%d) = %d, want %d", tc.in, got, tc.want)
		}
		if got := s.Get().VibrationIntensity; got != tc.want {
			t.Errorf("stored %d after %d, want %d", got, tc.in, tc.want)
		}
	}
}

func TestVibrationDurationTracksIntensity(t *testing.T) {
	s := NewStore(DefaultConfig())
	s.SetVibrationIntensity(7)
	if got := s.Get().VibrationDuration(); got != 700*time.Millisecond {
		t.Errorf("got %v, want 700ms", got)
	}
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    Language
		wantErr bool
	}{
		{"es", Spanish, false},
		{"es-MX", Spanish, false},
		{"EN", English, false},
		{"en_US", English, false},
		{"fr", "", true},
		{"", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLanguage(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownLanguage) {
					t.Fatalf("err = %v, want ErrUnknownLanguage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSetLanguageRejectsUnknown(t *testing.T) {
	s := NewStore(DefaultConfig())
	if err := s.SetLanguage("de"); err == nil {
		t.Fatal("expected error")
	}
	if s.Get().Language != Spanish {
		t.Error("language changed after rejected update")
	}
	if err := s.SetLanguage(English); err != nil {
		t.Fatal(err)
	}
	if s.Get().Language != English {
		t.Error("language not updated")
	}
}

func TestToggleFacing(t *testing.T) {
	s := NewStore(DefaultConfig())
	if got := s.ToggleFacing(); got != FacingFront {
		t.Errorf("first toggle = %q, want front", got)
	}
	if got := s.ToggleFacing(); got != FacingBack {
		t.Errorf("second toggle = %q, want back", got)
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	s := NewStore(DefaultConfig())

	lang := "en"
	intensity := 20
	bad := "sideways"
	if _, err := s.Apply(Patch{Language: &lang, VibrationIntensity: &intensity, Facing: &bad}); !errors.Is(err, ErrUnknownFacing) {
		t.Fatalf("err = %v, want ErrUnknownFacing", err)
	}
	if got := s.Get(); got != DefaultConfig() {
		t.Errorf("settings changed after failed patch: %+v", got)
	}

	off := false
	cfg, err := s.Apply(Patch{Language: &lang, VibrationIntensity: &intensity, VibrationEnabled: &off})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Language != English || cfg.VibrationIntensity != MaxIntensity || cfg.VibrationEnabled {
		t.Errorf("unexpected result %+v", cfg)
	}
}

func TestOnChange(t *testing.T) {
	s := NewStore(DefaultConfig())

	var got []Config
	s.OnChange = func(cfg Config) { got = append(got, cfg) }

	s.SetVibrationEnabled(false)
	s.SetVibrationIntensity(2)
	_ = s.SetLanguage("xx")

	if len(got) != 2 {
		t.Fatalf("OnChange called %d times, want 2", len(got))
	}
	if got[1].VibrationEnabled || got[1].VibrationIntensity != 2 {
		t.Errorf("last snapshot %+v", got[1])
	}
}

func TestNewStoreFillsGaps(t *testing.T) {
	s := NewStore(Config{VibrationIntensity: 50})
	cfg := s.Get()
	if cfg.Language != Spanish || cfg.Facing != FacingBack || cfg.VibrationIntensity != MaxIntensity {
		t.Errorf("unexpected %+v", cfg)
	}
}

func TestMarshalJSONIncludesDerivedMs(t *testing.T) {
	s := NewStore(DefaultConfig())
	s.SetVibrationIntensity(3)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatal(err)
	}
	if v["vibration_ms"] != float64(300) {
		t.Errorf("vibration_ms = %v, want 300", v["vibration_ms"])
	}
	if v["language"] != "es" {
		t.Errorf("language = %v", v["language"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.SetVibrationIntensity(n % 12)
		}(i)
		go func() {
			defer wg.Done()
			v := s.Get().VibrationIntensity
			if v < MinIntensity || v > MaxIntensity {
				t.Errorf("observed out-of-range intensity %d", v)
			}
		}()
	}
	wg.Wait()
}
