//go:build aravis

package aravis

// #cgo pkg-config: aravis-0.8
// #include <arv.h>
// #include <stdlib.h>
//
// static gboolean xvii_arv_stream_valid(ArvStream *stream) { return ARV_IS_STREAM(stream); }
import "C"

import (
	"strings"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/xvii-vision/genicvbridge/internal/backend"
	"github.com/xvii-vision/genicvbridge/internal/pixelformat"
)

func init() {
	backend.Register(backend.Aravis, NewBackend)
}

// Backend wraps a single Aravis device, data stream, and the one buffer
// latched between Grab and Retrieve. See spec.md §4.2.
type Backend struct {
	backend.Base

	device *C.ArvDevice
	camera *C.ArvCamera
	stream *C.ArvStream

	latched *C.ArvBuffer
}

// NewBackend satisfies backend.Factory.
func NewBackend(debayerEnabled bool, bufferTimeout *time.Duration) backend.Interface {
	return &Backend{Base: backend.NewBase(debayerEnabled, bufferTimeout)}
}

func wrapGError(gerr *C.GError) error {
	if gerr == nil {
		return nil
	}
	defer C.g_error_free(gerr)
	msg := C.GoString((*C.char)(gerr.message))
	if isDeviceBusyMessage(msg) {
		return backend.ErrCaptureInUse
	}
	return &backend.BackendError{Message: msg}
}

// isDeviceBusyMessage recognizes Aravis's GLib error text for a device
// already under exclusive control by another process (ArvDeviceError's
// "busy"/"already controlled" wording varies by libaravis version, so this
// matches on substring rather than a specific GQuark/code pair).
func isDeviceBusyMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "busy") || strings.Contains(lower, "already") && strings.Contains(lower, "control")
}

// Open implements spec.md §4.2: refresh the device list, open the device
// by id, create a continuous-mode camera and stream, and push three empty
// buffers sized to the camera's payload into the stream's input queue.
func (b *Backend) Open(index int) error {
	if index < 0 {
		return &backend.InvalidArgumentError{What: "camera index must be non-negative"}
	}

	C.arv_update_device_list()
	nDevices := int(C.arv_get_n_devices())
	if index >= nDevices {
		return &backend.InvalidArgumentError{What: "camera index out of range"}
	}

	var gerr *C.GError

	deviceID := C.arv_get_device_id(C.guint(index))
	b.device = C.arv_open_device(deviceID, &gerr)
	if err := wrapGError(gerr); err != nil {
		return errors.Wrap(err, "aravis: open device")
	}
	if b.device == nil || C.ARV_IS_DEVICE(unsafe.Pointer(b.device)) == 0 {
		return &backend.BackendError{Message: "aravis: device handle invalid after open"}
	}

	b.camera = C.arv_camera_new_with_device(b.device, &gerr)
	if err := wrapGError(gerr); err != nil {
		b.release()
		return errors.Wrap(err, "aravis: create camera")
	}
	if b.camera == nil || C.ARV_IS_CAMERA(unsafe.Pointer(b.camera)) == 0 {
		b.release()
		return &backend.BackendError{Message: "aravis: camera handle invalid after creation"}
	}

	C.arv_camera_set_acquisition_mode(b.camera, C.ARV_ACQUISITION_MODE_CONTINUOUS, &gerr)
	if err := wrapGError(gerr); err != nil {
		b.release()
		return errors.Wrap(err, "aravis: set acquisition mode")
	}

	// Note the original C++ checked ARV_IS_STREAM(&_stream) (address-of the
	// pointer, not the pointee) — almost certainly a bug (spec.md §9). We
	// check the stream pointer itself.
	b.stream = C.arv_camera_create_stream(b.camera, nil, nil, &gerr)
	if err := wrapGError(gerr); err != nil {
		b.release()
		return errors.Wrap(err, "aravis: create stream")
	}
	if b.stream == nil || C.xvii_arv_stream_valid(b.stream) == 0 {
		b.release()
		return &backend.BackendError{Message: "aravis: stream handle invalid after creation"}
	}

	payload := C.arv_camera_get_payload(b.camera, &gerr)
	if err := wrapGError(gerr); err != nil {
		b.release()
		return errors.Wrap(err, "aravis: get payload size")
	}

	for i := 0; i < 3; i++ {
		buf := C.arv_buffer_new(C.size_t(payload), nil)
		C.arv_stream_push_buffer(b.stream, buf)
	}

	if pf, ok := mapPixelFormat(C.arv_camera_get_pixel_format(b.camera, &gerr)); ok {
		b.PixelFormat = pf
	}

	return nil
}

func mapPixelFormat(fmt C.ArvPixelFormat) (pixelformat.PixelFormat, bool) {
	switch fmt {
	case C.ARV_PIXEL_FORMAT_MONO_8:
		return pixelformat.Mono8, true
	case C.ARV_PIXEL_FORMAT_BAYER_RG_8:
		return pixelformat.BayerRG8, true
	case C.ARV_PIXEL_FORMAT_BAYER_BG_8:
		return pixelformat.BayerBG8, true
	default:
		return pixelformat.Unknown, false
	}
}

func (b *Backend) release() {
	if b.stream != nil {
		C.g_clear_object((*C.gpointer)(unsafe.Pointer(&b.stream)))
		b.stream = nil
	}
	if b.camera != nil {
		C.g_clear_object((*C.gpointer)(unsafe.Pointer(&b.camera)))
		b.camera = nil
	}
	if b.device != nil {
		C.g_clear_object((*C.gpointer)(unsafe.Pointer(&b.device)))
		b.device = nil
	}
}

// Release implements spec.md's idempotent, never-throwing release contract.
func (b *Backend) Release() {
	if b.IsAcquiring {
		_ = b.StopAcquisition()
	}
	b.release()
}

func (b *Backend) IsOpened() bool {
	return b.camera != nil && b.stream != nil
}

func (b *Backend) StartAcquisition() error {
	var gerr *C.GError
	C.arv_camera_start_acquisition(b.camera, &gerr)
	if err := wrapGError(gerr); err != nil {
		return errors.Wrap(err, "aravis: start acquisition")
	}
	b.IsAcquiring = true
	return nil
}

func (b *Backend) StopAcquisition() error {
	var gerr *C.GError
	C.arv_camera_stop_acquisition(b.camera, &gerr)
	b.IsAcquiring = false
	if err := wrapGError(gerr); err != nil {
		return errors.Wrap(err, "aravis: stop acquisition")
	}
	return nil
}

// Grab pops a buffer from the stream's output queue, blocking subject to
// the configured buffer timeout.
func (b *Backend) Grab() (bool, error) {
	if !b.IsAcquiring {
		if err := b.StartAcquisition(); err != nil {
			return false, err
		}
	}

	timeout := b.TimeoutOr(0)
	var buf *C.ArvBuffer
	if timeout > 0 {
		buf = C.arv_stream_timeout_pop_buffer(b.stream, C.guint64(timeout.Microseconds()))
		if buf == nil {
			return false, &backend.BackendError{Message: "aravis: grab timed out", Timeout: true}
		}
	} else {
		buf = C.arv_stream_pop_buffer(b.stream)
		if buf == nil {
			return false, &backend.BackendError{Message: "aravis: pop_buffer returned nil"}
		}
	}

	b.latched = buf
	return true, nil
}

// Retrieve debayers/copies the latched buffer and returns it to the
// stream's input queue before returning, per spec.md §4.1.
func (b *Backend) Retrieve(out *gocv.Mat) (bool, error) {
	if b.latched == nil {
		return false, nil
	}

	buf := b.latched
	b.latched = nil
	defer C.arv_stream_push_buffer(b.stream, buf)

	status := C.arv_buffer_get_status(buf)
	if status != C.ARV_BUFFER_STATUS_SUCCESS {
		return false, &backend.BackendError{Message: "aravis: buffer status not success"}
	}

	var size C.size_t
	data := C.arv_buffer_get_data(buf, &size)
	height := int(C.arv_buffer_get_image_height(buf))
	width := int(C.arv_buffer_get_image_width(buf))

	raw := C.GoBytes(unsafe.Pointer(data), C.int(size))
	if err := pixelformat.Debayer(b.PixelFormat, b.DebayerEnabled, height, width, raw, out); err != nil {
		return false, errors.Wrap(err, "aravis: debayer")
	}
	return true, nil
}

func (b *Backend) Get(id backend.PropertyID) (float64, error) {
	var gerr *C.GError
	defer func() { _ = wrapGError(gerr) }()

	switch id {
	case backend.AutoExposure:
		mode := C.GoString(C.arv_camera_get_string(b.camera, C.CString("ExposureAuto"), &gerr))
		if mode == "Continuous" {
			return 1.0, nil
		}
		return 0.0, nil
	case backend.Exposure:
		return float64(C.arv_camera_get_exposure_time(b.camera, &gerr)), nil
	case backend.FPS:
		return float64(C.arv_camera_get_frame_rate(b.camera, &gerr)), nil
	case backend.Trigger:
		src := C.GoString(C.arv_camera_get_string(b.camera, C.CString("TriggerMode"), &gerr))
		if src == "On" {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return 0, &backend.UnsupportedError{What: id.String() + " on Aravis backend"}
	}
}

func (b *Backend) Set(id backend.PropertyID, value float64) (bool, error) {
	if b.IsAcquiring {
		if err := b.StopAcquisition(); err != nil {
			return false, err
		}
	}

	var gerr *C.GError

	switch id {
	case backend.AutoExposure:
		mode := "Continuous"
		if value == 0.0 {
			mode = "Off"
		}
		C.arv_camera_set_string(b.camera, C.CString("ExposureAuto"), C.CString(mode), &gerr)
	case backend.Exposure:
		var min, max C.double
		C.arv_camera_get_exposure_time_bounds(b.camera, &min, &max, &gerr)
		clamped := clamp(value, float64(min), float64(max))
		C.arv_camera_set_exposure_time(b.camera, C.double(clamped), &gerr)
	case backend.FPS:
		var min, max C.double
		C.arv_camera_get_frame_rate_bounds(b.camera, &min, &max, &gerr)
		clamped := clamp(value, float64(min), float64(max))
		C.arv_camera_set_frame_rate(b.camera, C.double(clamped), &gerr)
	case backend.Trigger:
		if value == 0.0 {
			C.arv_camera_set_string(b.camera, C.CString("TriggerMode"), C.CString("Off"), &gerr)
		} else {
			C.arv_camera_set_string(b.camera, C.CString("TriggerSource"), C.CString("Line0"), &gerr)
			if err := wrapGError(gerr); err != nil {
				return false, errors.Wrap(err, "aravis: set trigger source")
			}
			C.arv_camera_set_string(b.camera, C.CString("TriggerActivation"), C.CString("RisingEdge"), &gerr)
			if err := wrapGError(gerr); err != nil {
				C.arv_camera_set_string(b.camera, C.CString("TriggerMode"), C.CString("Off"), nil)
				return false, errors.Wrap(err, "aravis: set trigger activation")
			}
			C.arv_camera_set_string(b.camera, C.CString("TriggerMode"), C.CString("On"), &gerr)
		}
	default:
		return false, &backend.UnsupportedError{What: id.String() + " on Aravis backend"}
	}

	if err := wrapGError(gerr); err != nil {
		return false, errors.Wrap(err, "aravis: set "+id.String())
	}
	return true, nil
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
