// Package fakebackend provides a backend.Interface implementation used
// only by tests (spec.md §8's end-to-end scenarios), so the producer's
// state machine and backpressure behavior can be exercised without any
// vendor SDK.
package fakebackend

import (
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/xvii-vision/genicvbridge/internal/backend"
)

// Config controls a fake backend's simulated behavior.
type Config struct {
	// FailOpenTimes makes the first N calls to Open fail with
	// backend.ErrCaptureInUse before succeeding, simulating spec.md §8
	// scenario 4 ("camera-in-use recovery").
	FailOpenTimes int
	// FrameSize is the square dimension of the synthetic Mono8 frame
	// Retrieve fills in.
	FrameSize int
}

// State is shared across every backend instance a Register'd factory
// produces, because the façade calls backend.New fresh on every open
// attempt (internal/capture.Capture.Open) — FailOpenTimes needs to count
// attempts across those instances, not within one.
type State struct {
	cfg Config

	mu           sync.Mutex
	openAttempts int
	lastReleased bool
}

// WasReleased reports whether the most recently opened instance has had
// Release called on it, used by tests asserting teardown (spec.md §8
// scenario 5, "idle teardown").
func (s *State) WasReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReleased
}

// OpenAttempts reports how many times Open has been called so far.
func (s *State) OpenAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openAttempts
}

// Register installs a fakebackend factory under kind and returns the
// shared State tests can inspect across the producer's retries.
func Register(kind backend.Kind, cfg Config) *State {
	state := &State{cfg: cfg}
	backend.Register(kind, func(debayerEnabled bool, bufferTimeout *time.Duration) backend.Interface {
		return &Backend{
			Base:  backend.NewBase(debayerEnabled, bufferTimeout),
			state: state,
		}
	})
	return state
}

// Backend is a fake backend.Interface, driven entirely by the producer's
// single goroutine; only the shared State needs synchronization.
type Backend struct {
	backend.Base

	state   *State
	frame   int
	latched bool
}

func (b *Backend) Open(index int) error {
	if index < 0 {
		return &backend.InvalidArgumentError{What: "camera index must be non-negative"}
	}

	b.state.mu.Lock()
	b.state.openAttempts++
	attempt := b.state.openAttempts
	b.state.mu.Unlock()

	if attempt <= b.state.cfg.FailOpenTimes {
		return backend.ErrCaptureInUse
	}

	b.state.mu.Lock()
	b.state.lastReleased = false
	b.state.mu.Unlock()
	return nil
}

func (b *Backend) Release() {
	b.state.mu.Lock()
	b.state.lastReleased = true
	b.state.mu.Unlock()
	b.IsAcquiring = false
}

func (b *Backend) IsOpened() bool {
	return !b.state.WasReleased()
}

func (b *Backend) StartAcquisition() error {
	b.IsAcquiring = true
	return nil
}

func (b *Backend) StopAcquisition() error {
	b.IsAcquiring = false
	return nil
}

func (b *Backend) Grab() (bool, error) {
	if !b.IsAcquiring {
		b.IsAcquiring = true
	}
	b.frame++
	b.latched = true
	return true, nil
}

// Retrieve fills out with a deterministic synthetic Mono8 frame so
// multiple subscribers observe byte-identical payloads once encoded
// (spec.md §8 scenario 2, "fanout equality").
func (b *Backend) Retrieve(out *gocv.Mat) (bool, error) {
	if !b.latched {
		return false, nil
	}
	b.latched = false

	size := b.state.cfg.FrameSize
	if size <= 0 {
		size = 64
	}

	raw := make([]byte, size*size)
	fill := byte(b.frame % 256)
	for i := range raw {
		raw[i] = fill
	}

	src, err := gocv.NewMatFromBytes(size, size, gocv.MatTypeCV8U, raw)
	if err != nil {
		return false, err
	}
	defer src.Close()
	src.CopyTo(out)
	return true, nil
}

func (b *Backend) Get(id backend.PropertyID) (float64, error) {
	switch id {
	case backend.AutoExposure:
		return 1.0, nil
	case backend.Exposure:
		return 1000.0, nil
	case backend.FPS:
		return 3.0, nil
	case backend.Trigger:
		return 0.0, nil
	default:
		return 0, &backend.UnsupportedError{What: id.String() + " on fake backend"}
	}
}

func (b *Backend) Set(id backend.PropertyID, value float64) (bool, error) {
	switch id {
	case backend.AutoExposure, backend.Exposure, backend.FPS, backend.Trigger:
		return true, nil
	default:
		return false, &backend.UnsupportedError{What: id.String() + " on fake backend"}
	}
}
