package backend

import (
	"time"

	"github.com/xvii-vision/genicvbridge/internal/pixelformat"
)

// Base carries the state every backend shares (spec.md §3 "Backend
// state"): the device's reported pixel format, whether acquisition is
// currently running, the debayer toggle, and the optional grab timeout.
// Backends embed Base and add their own device/stream handles and latched
// buffer, since those are SDK-specific types.
type Base struct {
	PixelFormat    pixelformat.PixelFormat
	IsAcquiring    bool
	DebayerEnabled bool
	BufferTimeout  *time.Duration
}

// NewBase builds the shared state a backend constructor embeds.
func NewBase(debayerEnabled bool, bufferTimeout *time.Duration) Base {
	return Base{
		PixelFormat:    pixelformat.Unknown,
		DebayerEnabled: debayerEnabled,
		BufferTimeout:  bufferTimeout,
	}
}

// TimeoutOr returns the configured buffer timeout, or fallback when none
// was configured (an "infinite" wait in the caller's terms).
func (b *Base) TimeoutOr(fallback time.Duration) time.Duration {
	if b.BufferTimeout == nil {
		return fallback
	}
	return *b.BufferTimeout
}
