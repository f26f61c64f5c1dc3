// Package backend defines the polymorphic contract every vendor camera SDK
// wrapper (Aravis, IDS Peak, Spinnaker) implements, and the selector used to
// pick one at runtime.
package backend

import (
	"time"

	"gocv.io/x/gocv"
)

// Kind names the vendor SDK backing a camera, or Any to mean "discover one".
type Kind int

const (
	Any Kind = iota
	Aravis
	IdsPeak
	Spinnaker
)

func (k Kind) String() string {
	switch k {
	case Aravis:
		return "Aravis"
	case IdsPeak:
		return "IDS-Peak"
	case Spinnaker:
		return "Spinnaker"
	default:
		return "Any"
	}
}

// PreferenceOrder is the fixed order OpenAnyCamera tries backends in.
var PreferenceOrder = []Kind{IdsPeak, Spinnaker, Aravis}

// PropertyID enumerates the device properties callers may Get/Set.
type PropertyID int

const (
	// AutoExposure: 1.0 iff the device's exposure-auto mode is Continuous.
	AutoExposure PropertyID = iota
	// Exposure: exposure time in microseconds.
	Exposure
	// FPS: acquisition frame-rate target.
	FPS
	// Trigger: 1.0 iff external trigger mode is enabled.
	Trigger
	// Line is Spinnaker-only: GPIO Line2 3.3V enable.
	Line
)

func (p PropertyID) String() string {
	switch p {
	case AutoExposure:
		return "AUTO_EXPOSURE"
	case Exposure:
		return "EXPOSURE"
	case FPS:
		return "FPS"
	case Trigger:
		return "TRIGGER"
	case Line:
		return "LINE"
	default:
		return "UNKNOWN"
	}
}

// Interface is the contract every vendor backend satisfies. See spec.md
// §4.1 for the full per-method guarantee table; the summary:
//
//   - Grab implicitly starts acquisition if not running.
//   - Set implicitly stops acquisition; callers must Grab again to resume.
//   - Retrieve without a prior successful Grab returns (false, nil).
//   - Release must be idempotent and must never panic.
type Interface interface {
	Open(index int) error
	Release()
	IsOpened() bool
	Grab() (bool, error)
	Retrieve(out *gocv.Mat) (bool, error)
	Get(id PropertyID) (float64, error)
	Set(id PropertyID, value float64) (bool, error)
	StartAcquisition() error
	StopAcquisition() error
}

// Factory constructs a fresh, unopened backend instance.
type Factory func(debayerEnabled bool, bufferTimeout *time.Duration) Interface

var registry = map[Kind]Factory{}

// Register is called from each backend subpackage's init() when that
// backend's vendor SDK was compiled in (see the package's build-tagged
// *_cgo.go / *_stub.go pair). A backend whose SDK was not compiled in
// registers nothing, so New reports an *UnsupportedError for it.
func Register(kind Kind, factory Factory) {
	registry[kind] = factory
}

// New constructs a backend instance of the requested kind, or an
// *UnsupportedError if that backend was not compiled into this build. kind
// must not be Any; the façade resolves Any via OpenAnyCamera, not New.
func New(kind Kind, debayerEnabled bool, bufferTimeout *time.Duration) (Interface, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, &UnsupportedError{What: kind.String() + " backend"}
	}
	return factory(debayerEnabled, bufferTimeout), nil
}

// Compiled reports whether kind's vendor SDK was compiled into this build.
func Compiled(kind Kind) bool {
	_, ok := registry[kind]
	return ok
}
