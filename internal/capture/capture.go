// Package capture implements the polymorphic, OpenCV-VideoCapture-style
// façade in front of the vendor backends in internal/backend.
package capture

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/xvii-vision/genicvbridge/internal/backend"
)

// Capture wraps a chosen backend.Interface, converting its errors into
// either thrown failures or boolean/zero fallbacks depending on
// ExceptionMode.
type Capture struct {
	backend       backend.Interface
	kind          backend.Kind
	exceptionMode bool
}

// New constructs an unopened façade. ExceptionMode defaults to true,
// matching cv::VideoCapture's default of throwing on error.
func New() *Capture {
	return &Capture{exceptionMode: true}
}

// SetExceptionMode toggles whether errors propagate as thrown failures
// (true) or degrade to boolean/zero returns (false), per spec.md §4.5/§7.
func (c *Capture) SetExceptionMode(enabled bool) {
	c.exceptionMode = enabled
}

// Open instantiates the requested backend kind and opens device index on
// it. kind must not be backend.Any; use OpenAnyCamera for discovery.
func (c *Capture) Open(index int, kind backend.Kind, debayerEnabled bool, bufferTimeout *time.Duration) error {
	return c.tryErr(func() error {
		if index < 0 {
			return &backend.InvalidArgumentError{What: "camera index must be non-negative"}
		}

		b, err := backend.New(kind, debayerEnabled, bufferTimeout)
		if err != nil {
			return err
		}

		if err := b.Open(index); err != nil {
			b.Release()
			return err
		}

		if c.backend != nil {
			c.backend.Release()
		}
		c.backend = b
		c.kind = kind
		return nil
	})
}

// OpenAnyCamera tries each backend in backend.PreferenceOrder against
// device 0, stopping at the first that opens successfully. Errors along the
// way are suppressed; if no backend opens device 0, a NotAvailableError is
// returned.
func OpenAnyCamera(debayerEnabled bool, bufferTimeout *time.Duration) (*Capture, error) {
	c := New()
	for _, kind := range backend.PreferenceOrder {
		if !backend.Compiled(kind) {
			continue
		}
		b, err := backend.New(kind, debayerEnabled, bufferTimeout)
		if err != nil {
			continue
		}
		if err := b.Open(0); err != nil {
			b.Release()
			continue
		}
		c.backend = b
		c.kind = kind
		return c, nil
	}
	return nil, &backend.NotAvailableError{What: "no backend opened device 0"}
}

// Kind reports which backend the façade is currently wrapping.
func (c *Capture) Kind() backend.Kind { return c.kind }

func (c *Capture) Release() {
	if c.backend == nil {
		return
	}
	c.backend.Release()
	c.backend = nil
}

func (c *Capture) IsOpened() bool {
	return c.backend != nil && c.backend.IsOpened()
}

func (c *Capture) Grab() (bool, error) {
	return c.tryBool(func() (bool, error) {
		if c.backend == nil {
			return false, &backend.BackendError{Message: "capture: no backend open"}
		}
		return c.backend.Grab()
	})
}

func (c *Capture) Retrieve(out *gocv.Mat) (bool, error) {
	return c.tryBool(func() (bool, error) {
		if c.backend == nil {
			return false, &backend.BackendError{Message: "capture: no backend open"}
		}
		return c.backend.Retrieve(out)
	})
}

// Read is the Grab+Retrieve convenience cv::VideoCapture callers expect.
func (c *Capture) Read(out *gocv.Mat) (bool, error) {
	return c.tryBool(func() (bool, error) {
		if c.backend == nil {
			return false, &backend.BackendError{Message: "capture: no backend open"}
		}
		if ok, err := c.backend.Grab(); err != nil || !ok {
			return ok, err
		}
		return c.backend.Retrieve(out)
	})
}

func (c *Capture) Get(id backend.PropertyID) (float64, error) {
	return c.tryFloat(func() (float64, error) {
		if c.backend == nil {
			return 0, &backend.BackendError{Message: "capture: no backend open"}
		}
		return c.backend.Get(id)
	})
}

func (c *Capture) Set(id backend.PropertyID, value float64) (bool, error) {
	return c.tryBool(func() (bool, error) {
		if c.backend == nil {
			return false, &backend.BackendError{Message: "capture: no backend open"}
		}
		return c.backend.Set(id, value)
	})
}

func (c *Capture) StartAcquisition() error {
	return c.tryErr(func() error {
		if c.backend == nil {
			return &backend.BackendError{Message: "capture: no backend open"}
		}
		return c.backend.StartAcquisition()
	})
}

func (c *Capture) StopAcquisition() error {
	return c.tryErr(func() error {
		if c.backend == nil {
			return &backend.BackendError{Message: "capture: no backend open"}
		}
		return c.backend.StopAcquisition()
	})
}

func (c *Capture) tryErr(fn func() error) error {
	err := fn()
	if err == nil || c.exceptionMode {
		return err
	}
	return nil
}

func (c *Capture) tryBool(fn func() (bool, error)) (bool, error) {
	ok, err := fn()
	if err == nil || c.exceptionMode {
		return ok, err
	}
	return false, nil
}

func (c *Capture) tryFloat(fn func() (float64, error)) (float64, error) {
	v, err := fn()
	if err == nil || c.exceptionMode {
		return v, err
	}
	return 0.0, nil
}
