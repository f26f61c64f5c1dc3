// Package pixelformat carries the small enumeration of sensor pixel layouts
// a backend can report, and the debayer helper every backend calls between
// grab and retrieve.
package pixelformat

import (
	"fmt"

	"gocv.io/x/gocv"
)

// PixelFormat is the sensor's raw pixel layout, as reported by the device's
// PixelFormat node.
type PixelFormat int

const (
	Unknown PixelFormat = iota
	Mono8
	BayerRG8
	BayerBG8
)

func (f PixelFormat) String() string {
	switch f {
	case Mono8:
		return "Mono8"
	case BayerRG8:
		return "BayerRG8"
	case BayerBG8:
		return "BayerBG8"
	default:
		return "Unknown"
	}
}

// ParseDevicePixelFormat maps a GenICam PixelFormat enumeration string to the
// internal representation. Unrecognized strings map to Unknown; callers are
// expected to log the raw string themselves before discarding it.
func ParseDevicePixelFormat(s string) PixelFormat {
	switch s {
	case "Mono8":
		return Mono8
	case "BayerRG8":
		return BayerRG8
	case "BayerBG8":
		return BayerBG8
	default:
		return Unknown
	}
}

// Debayer converts a raw single-channel buffer into the matrix a caller of
// Backend.Retrieve receives. When debayerEnabled is false, or the format is
// Mono8/Unknown, raw is copied through untouched as an 8-bit single-channel
// matrix. Otherwise the buffer is demosaiced into a 3-channel BGR matrix via
// the matching OpenCV Bayer-to-BGR conversion code.
//
// raw must hold at least height*width bytes of row-major 8-bit samples;
// bytes beyond the first height*width are ignored.
func Debayer(format PixelFormat, debayerEnabled bool, height, width int, raw []byte, out *gocv.Mat) error {
	if len(raw) < height*width {
		return fmt.Errorf("pixelformat: buffer too small: have %d bytes, need %d", len(raw), height*width)
	}

	src, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8U, raw[:height*width])
	if err != nil {
		return fmt.Errorf("pixelformat: building source matrix: %w", err)
	}
	defer src.Close()

	if !debayerEnabled || format == Unknown || format == Mono8 {
		src.CopyTo(out)
		return nil
	}

	var code gocv.ColorConversionCode
	switch format {
	case BayerRG8:
		code = gocv.ColorBayerRGToBGR
	case BayerBG8:
		code = gocv.ColorBayerBGToBGR
	default:
		return fmt.Errorf("pixelformat: unknown pixel format %v", format)
	}

	gocv.CvtColor(src, out, code)
	return nil
}
