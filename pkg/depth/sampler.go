package depth

import (
	"context"
	"sync"

	"github.com/teslashibe/go-narrator/pkg/frame"
)

type frameKey struct {
	generation uint64
	seq        uint64
}

// CachedSampler estimates a map once per frame and serves every point query
// for that frame from it.
type CachedSampler struct {
	est Estimator

	mu  sync.Mutex
	key frameKey
	m   *Map
	err error
	ok  bool
}

// NewCachedSampler wraps est.
func NewCachedSampler(est Estimator) *CachedSampler {
	return &CachedSampler{est: est}
}

// SampleDepth returns the depth in meters at p.
func (s *CachedSampler) SampleDepth(ctx context.Context, f *frame.Frame, p Point) (float64, error) {
	if s == nil || s.est == nil || f == nil {
		return 0, ErrUnavailable
	}

	key := frameKey{generation: f.Generation, seq: f.Seq}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ok || s.key != key {
		s.m, s.err = s.est.Estimate(ctx, f)
		s.key, s.ok = key, true
	}
	if s.err != nil {
		return 0, s.err
	}
	return s.m.At(p)
}

// Close closes the estimator.
func (s *CachedSampler) Close() error {
	if s == nil || s.est == nil {
		return nil
	}
	return s.est.Close()
}

// StaticEstimator returns the same map for every frame. Used in tests and demos.
type StaticEstimator struct {
	Map *Map
	Err error

	mu    sync.Mutex
	calls int
}

// Estimate returns the configured map or error.
func (e *StaticEstimator) Estimate(ctx context.Context, f *frame.Frame) (*Map, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.Map, e.Err
}

// Calls returns how many times Estimate ran.
func (e *StaticEstimator) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Close is a no-op.
func (e *StaticEstimator) Close() error { return nil }

// Uniform builds a w×h map filled with meters.
func Uniform(w, h int, meters float32) *Map {
	m := &Map{Width: w, Height: h, Meters: make([]float32, w*h)}
	for i := range m.Meters {
		m.Meters[i] = meters
	}
	return m
}

var (
	_ Sampler   = (*CachedSampler)(nil)
	_ Estimator = (*StaticEstimator)(nil)
)
