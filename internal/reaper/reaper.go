package reaper

import (
	"errors"
	"time"

	"classhub/internal/registry"
)

// Defaults for the inactivity sweep.
const (
	DefaultInterval  = 5 * time.Minute
	DefaultThreshold = 30 * time.Minute
)

var ErrInvalidSettings = errors.New("reaper interval and threshold must be positive")

// Settings controls how often the reaper sweeps and how long a connection
// may stay silent.
type Settings struct {
	Interval  time.Duration
	Threshold time.Duration
}

// DefaultSettings returns a 5 minute sweep with a 30 minute threshold.
func DefaultSettings() Settings {
	return Settings{Interval: DefaultInterval, Threshold: DefaultThreshold}
}

// Validate checks that both durations are positive.
func (s Settings) Validate() error {
	if s.Interval <= 0 || s.Threshold <= 0 {
		return ErrInvalidSettings
	}
	return nil
}

// Reaper finds connections that have been silent for longer than the
// threshold. It holds no timer; the hub owns the ticker and calls Sweep on
// its own goroutine.
type Reaper struct {
	settings Settings
	now      func() time.Time
}

// New creates a reaper. A nil clock means time.Now.
func New(settings Settings, now func() time.Time) (*Reaper, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Reaper{settings: settings, now: now}, nil
}

// Settings returns the active settings.
func (r *Reaper) Settings() Settings {
	return r.settings
}

// Update replaces the settings. Invalid settings are rejected and the
// previous ones stay active.
func (r *Reaper) Update(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	r.settings = settings
	return nil
}

// Sweep returns the ids of connections whose last activity is older than
// the threshold.
func (r *Reaper) Sweep(reg *registry.Registry) []string {
	now := r.now()
	var expired []string
	for conn := range reg.All() {
		if r.Expired(conn, now) {
			expired = append(expired, conn.ID)
		}
	}
	return expired
}

// Expired reports whether conn has been silent longer than the threshold.
func (r *Reaper) Expired(conn *registry.Connection, now time.Time) bool {
	return now.Sub(conn.LastActivity) > r.settings.Threshold
}
