// Package preference persists user settings across restarts.
package preference

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// CameraMode selects the camera facing.
type CameraMode string

const (
	CameraUser        CameraMode = "user"
	CameraEnvironment CameraMode = "environment"
)

// DefaultCameraMode is used when nothing valid has been saved.
const DefaultCameraMode = CameraEnvironment

// ErrInvalidMode is returned for a camera mode other than user or environment.
var ErrInvalidMode = errors.New("preference: invalid camera mode")

// Valid reports whether m is a known mode.
func (m CameraMode) Valid() bool {
	return m == CameraUser || m == CameraEnvironment
}

// Flipped returns the other facing.
func (m CameraMode) Flipped() CameraMode {
	if m == CameraUser {
		return CameraEnvironment
	}
	return CameraUser
}

type document struct {
	CameraMode CameraMode `json:"camera_mode"`
}

// Preferences is the typed view over a Store. Safe for concurrent use.
type Preferences struct {
	store  Store
	logger *slog.Logger

	mu  sync.Mutex
	doc document
}

// Open loads preferences from store. A missing or unreadable document falls
// back to defaults; only a store read error is returned.
func Open(store Store, logger *slog.Logger) (*Preferences, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Preferences{
		store:  store,
		logger: logger.With("component", "preference"),
		doc:    document{CameraMode: DefaultCameraMode},
	}

	data, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("preference: load: %w", err)
	}
	if len(data) == 0 {
		return p, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		p.logger.Warn("ignoring unreadable preferences", "error", err)
		return p, nil
	}
	if doc.CameraMode.Valid() {
		p.doc.CameraMode = doc.CameraMode
	} else if doc.CameraMode != "" {
		p.logger.Warn("ignoring unknown camera mode", "mode", doc.CameraMode)
	}
	return p, nil
}

// CameraMode returns the saved facing.
func (p *Preferences) CameraMode() CameraMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.CameraMode
}

// SetCameraMode saves the facing.
func (p *Preferences) SetCameraMode(m CameraMode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, m)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.CameraMode = m
	return p.saveLocked()
}

func (p *Preferences) saveLocked() error {
	data, err := json.MarshalIndent(p.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("preference: encode: %w", err)
	}
	if err := p.store.Save(data); err != nil {
		return fmt.Errorf("preference: save: %w", err)
	}
	return nil
}

// Close closes the store.
func (p *Preferences) Close() error {
	return p.store.Close()
}
