package frame

import (
	"context"
	"log/slog"
	"sync"
)

// Switcher owns the active camera source. Every successful Open or Flip bumps
// the generation, and frames are stamped with the generation of the source that
// produced them so results from a replaced camera can be recognised as stale.
type Switcher struct {
	open   Opener
	logger *slog.Logger

	mu         sync.Mutex
	src        Source
	facing     Facing
	generation uint64
	switching  bool
}

// NewSwitcher creates a switcher that will open cameras through open.
func NewSwitcher(open Opener, facing Facing, logger *slog.Logger) *Switcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Switcher{
		open:   open,
		facing: facing,
		logger: logger.With("component", "frame.switcher"),
	}
}

// Open acquires the camera for the current facing mode if none is open.
func (s *Switcher) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.switching {
		s.mu.Unlock()
		return ErrSwitching
	}
	if s.src != nil {
		s.mu.Unlock()
		return nil
	}
	facing := s.facing
	s.mu.Unlock()

	src, err := s.open(ctx, facing)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src != nil {
		// Lost a race with a concurrent Open.
		go src.Close()
		return nil
	}
	s.src = src
	s.generation++
	s.logger.Info("camera source opened", "facing", facing, "generation", s.generation)
	return nil
}

// Flip switches to the opposite facing mode. The old source is closed in the
// background so a pending Next on it cannot block the caller. On failure the
// switcher is left without a source, still pointed at the new facing mode, so
// a later Open retries it. Open fails with ErrSwitching until Flip returns.
func (s *Switcher) Flip(ctx context.Context) (Facing, uint64, error) {
	s.mu.Lock()
	old := s.src
	s.src = nil
	s.facing = s.facing.Flip()
	s.generation++
	s.switching = true
	facing, gen := s.facing, s.generation
	s.mu.Unlock()

	if old != nil {
		go func() {
			if err := old.Close(); err != nil {
				s.logger.Debug("close previous source", "error", err)
			}
		}()
	}

	src, err := s.open(ctx, facing)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.switching = false
	if err != nil {
		return facing, gen, err
	}
	if s.generation != gen || s.src != nil {
		go src.Close()
		return s.facing, s.generation, nil
	}
	s.src = src
	s.logger.Info("camera flipped", "facing", facing, "generation", gen)
	return facing, gen, nil
}

// Next reads a frame from the active source and stamps its generation.
func (s *Switcher) Next(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	src, gen := s.src, s.generation
	s.mu.Unlock()

	if src == nil {
		return nil, ErrNoSource
	}
	f, err := src.Next(ctx)
	if err != nil {
		return nil, err
	}
	f.Generation = gen
	return f, nil
}

// Facing returns the current facing mode.
func (s *Switcher) Facing() Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// Generation returns the current source generation.
func (s *Switcher) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Ready reports whether a source is open.
func (s *Switcher) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src != nil
}

// Close closes the active source.
func (s *Switcher) Close() error {
	s.mu.Lock()
	src := s.src
	s.src = nil
	s.mu.Unlock()
	if src == nil {
		return nil
	}
	return src.Close()
}
