package reaper

import (
	"testing"
	"time"

	"classhub/internal/registry"
)

type nopTransport struct{}

func (nopTransport) WriteJSON(v interface{}) error { return nil }
func (nopTransport) Close() error                  { return nil }

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  bool
	}{
		{"defaults", DefaultSettings(), false},
		{"zero interval", Settings{Interval: 0, Threshold: time.Minute}, true},
		{"negative threshold", Settings{Interval: time.Minute, Threshold: -time.Second}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.settings.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestReaper_Sweep(t *testing.T) {
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	reg := registry.New()

	conns := map[string]time.Duration{
		"stale":  31 * time.Minute,
		"fresh":  10 * time.Minute,
		"edge":   30 * time.Minute,
		"active": 0,
	}
	for id, idle := range conns {
		last := now.Add(-idle)
		if err := reg.Register(&registry.Connection{ID: id, Transport: nopTransport{}, ConnectedAt: last, LastActivity: last}); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}

	r, err := New(DefaultSettings(), func() time.Time { return now })
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	expired := r.Sweep(reg)
	if len(expired) != 1 || expired[0] != "stale" {
		t.Errorf("Expected only [stale] to expire, got %v", expired)
	}

	// Sweep only reports; the registry is untouched.
	if reg.Len() != 4 {
		t.Errorf("Sweep must not mutate the registry, have %d connections", reg.Len())
	}
}

func TestReaper_Update(t *testing.T) {
	r, err := New(DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := r.Update(Settings{}); err != ErrInvalidSettings {
		t.Errorf("Expected ErrInvalidSettings, got %v", err)
	}
	if r.Settings() != DefaultSettings() {
		t.Error("Invalid update must keep the previous settings")
	}

	next := Settings{Interval: time.Second, Threshold: time.Minute}
	if err := r.Update(next); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if r.Settings() != next {
		t.Errorf("Expected %+v, got %+v", next, r.Settings())
	}
}

func TestNew_RejectsInvalidSettings(t *testing.T) {
	if _, err := New(Settings{Interval: time.Second}, nil); err != ErrInvalidSettings {
		t.Errorf("Expected ErrInvalidSettings, got %v", err)
	}
}
