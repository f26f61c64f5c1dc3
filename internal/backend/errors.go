package backend

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// InvalidArgumentError: a negative index, an out-of-range property value, or
// an unrecognized parameter.
type InvalidArgumentError struct {
	What string
}

func (e *InvalidArgumentError) Error() string { return "invalid argument: " + e.What }

// UnsupportedError: the requested property or backend is not available in
// this build.
type UnsupportedError struct {
	What string
}

func (e *UnsupportedError) Error() string { return "unsupported: " + e.What }

// NotAvailableError: no camera matched discovery (OpenAnyCamera).
type NotAvailableError struct {
	What string
}

func (e *NotAvailableError) Error() string { return "not available: " + e.What }

// BackendError carries a message reported by the underlying vendor SDK.
// A Timeout is reported as a BackendError with Timeout set, per spec.md §7
// ("Timeout — grab exceeded buffer_timeout_ms; classified as BackendError
// at the façade").
type BackendError struct {
	Message string
	Timeout bool
}

func (e *BackendError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("backend: timeout: %s", e.Message)
	}
	return fmt.Sprintf("backend: %s", e.Message)
}

// IsCaptureInUse reports whether err looks like the SDK refused to open a
// device because another process already holds it. Backends that can
// distinguish this case set a distinguishable message; the producer's
// state machine (spec.md §4.6) relies on this to choose
// ErrorCaptureInUse over ErrorUnknown. Backends wrap every SDK failure
// with github.com/pkg/errors.Wrap for the call-site stack trace, so this
// unwraps to the root cause before asserting the type.
func IsCaptureInUse(err error) bool {
	be, ok := pkgerrors.Cause(err).(*BackendError)
	if !ok {
		return false
	}
	return be.Message == captureInUseMessage
}

const captureInUseMessage = "device already in use"

// ErrCaptureInUse is the canonical BackendError a backend returns from Open
// when the device is held by another process/instance.
var ErrCaptureInUse = &BackendError{Message: captureInUseMessage}
