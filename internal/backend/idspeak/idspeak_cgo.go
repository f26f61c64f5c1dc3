//go:build idspeak

package idspeak

// #cgo pkg-config: ids_peak_comfort_c
// #include <ids_peak_comfort_c/pec.h>
// #include <stdlib.h>
import "C"

import (
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/xvii-vision/genicvbridge/internal/backend"
	"github.com/xvii-vision/genicvbridge/internal/pixelformat"
)

func init() {
	backend.Register(backend.IdsPeak, NewBackend)
}

// instanceCount ref-counts peak_Library_Init/peak_Library_Exit across live
// backends, per spec.md §3 "Global SDK lifecycle".
var (
	instanceMu    sync.Mutex
	instanceCount int
)

func acquireLibrary() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instanceCount == 0 {
		C.peak_Library_Init()
	}
	instanceCount++
}

func releaseLibrary() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instanceCount--
	if instanceCount == 0 {
		C.peak_Library_Exit()
	}
}

// Backend wraps one IDS Peak device, its first data stream, and the
// remote node map. See spec.md §4.3.
type Backend struct {
	backend.Base

	device     C.peak_device_handle
	dataStream C.peak_data_stream_handle
	nodeMap    C.peak_node_map_handle

	latched  C.peak_frame_handle
	released bool
}

// NewBackend satisfies backend.Factory.
func NewBackend(debayerEnabled bool, bufferTimeout *time.Duration) backend.Interface {
	acquireLibrary()
	return &Backend{Base: backend.NewBase(debayerEnabled, bufferTimeout)}
}

func statusErr(status C.peak_status, context string) error {
	if status == C.PEAK_STATUS_SUCCESS {
		return nil
	}
	return &backend.BackendError{Message: context}
}

// openStatusErr is statusErr specialized for peak_Device_Open: an access
// status of ACCESS_DENIED means another process already holds the device
// in Control or Exclusive mode, which the producer's state machine
// (spec.md §4.6) must distinguish from any other open failure.
func openStatusErr(status C.peak_status) error {
	if status == C.PEAK_STATUS_SUCCESS {
		return nil
	}
	if status == C.PEAK_STATUS_ACCESS_DENIED {
		return backend.ErrCaptureInUse
	}
	return &backend.BackendError{Message: "idspeak: open device"}
}

// Open implements spec.md §4.3: open the device in Control mode, open its
// first data stream, allocate and queue the driver's minimum-required
// buffer count, load the "Default" user set, and read pixel format.
func (b *Backend) Open(index int) error {
	if index < 0 {
		return &backend.InvalidArgumentError{What: "camera index must be non-negative"}
	}

	var hasChanged C.peak_bool
	C.peak_DeviceManager_Update(&hasChanged)

	var deviceCount C.size_t
	C.peak_DeviceManager_GetDevices(nil, &deviceCount)
	if C.size_t(index) >= deviceCount {
		return &backend.InvalidArgumentError{What: "camera index out of range"}
	}

	descriptors := make([]C.peak_device_descriptor_handle, deviceCount)
	C.peak_DeviceManager_GetDevices((*C.peak_device_descriptor_handle)(unsafe.Pointer(&descriptors[0])), &deviceCount)

	var status C.peak_status
	status = C.peak_Device_Open(descriptors[index], C.PEAK_DEVICE_ACCESS_TYPE_CONTROL, &b.device)
	if err := openStatusErr(status); err != nil {
		return err
	}

	var remoteNodeMap C.peak_node_map_handle
	status = C.peak_Device_GetRemoteDevice(b.device, &remoteNodeMap)
	if err := statusErr(status, "idspeak: get remote device node map"); err != nil {
		b.release()
		return err
	}
	b.nodeMap = remoteNodeMap

	var streamCount C.size_t
	C.peak_DataStream_GetDataStreams(b.device, nil, &streamCount)
	if streamCount == 0 {
		b.release()
		return &backend.BackendError{Message: "idspeak: no data streams for device"}
	}
	streamDescriptors := make([]C.peak_data_stream_descriptor_handle, streamCount)
	C.peak_DataStream_GetDataStreams(b.device, (*C.peak_data_stream_descriptor_handle)(unsafe.Pointer(&streamDescriptors[0])), &streamCount)

	status = C.peak_DataStream_Open(streamDescriptors[0], &b.dataStream)
	if err := statusErr(status, "idspeak: open data stream"); err != nil {
		b.release()
		return err
	}

	payloadSize, err := b.nodeInt("PayloadSize")
	if err != nil {
		b.release()
		return errors.Wrap(err, "idspeak: read PayloadSize")
	}

	C.peak_DataStream_Flush(b.dataStream, C.PEAK_DATA_STREAM_FLUSH_MODE_DISCARD_ALL)

	var minBuffers C.size_t
	C.peak_DataStream_GetNumBuffersAnnouncedMinRequired(b.dataStream, &minBuffers)
	for i := C.size_t(0); i < minBuffers; i++ {
		var buf C.peak_buffer_handle
		C.peak_DataStream_AllocAndAnnounceBuffer(b.dataStream, C.size_t(payloadSize), nil, &buf)
		C.peak_DataStream_QueueBuffer(b.dataStream, buf)
	}

	if err := b.loadDefaultUserSet(); err != nil {
		// non-fatal: a failed user-set load is ignored, not surfaced.
		_ = err
	}

	if pf, err := b.nodeCurrentEntry("PixelFormat"); err == nil {
		b.PixelFormat = pixelformat.ParseDevicePixelFormat(pf)
	}

	return nil
}

func (b *Backend) loadDefaultUserSet() error {
	if err := b.nodeSetCurrentEntry("UserSetSelector", "Default"); err != nil {
		return err
	}
	return b.nodeExecute("UserSetLoad")
}

func (b *Backend) release() {
	if b.dataStream != nil {
		C.peak_DataStream_Flush(b.dataStream, C.PEAK_DATA_STREAM_FLUSH_MODE_DISCARD_ALL)
		C.peak_DataStream_Close(b.dataStream)
		b.dataStream = nil
	}
	if b.device != nil {
		C.peak_Device_Close(b.device)
		b.device = nil
	}
	b.nodeMap = nil
}

// Release implements spec.md's idempotent, never-throwing release contract.
func (b *Backend) Release() {
	if b.released {
		return
	}
	b.released = true
	if b.IsAcquiring {
		_ = b.StopAcquisition()
	}
	b.release()
	releaseLibrary()
}

func (b *Backend) IsOpened() bool {
	return b.device != nil && b.nodeMap != nil && b.dataStream != nil
}

func (b *Backend) StartAcquisition() error {
	status := C.peak_DataStream_StartAcquisition(b.dataStream, C.PEAK_ACQUISITION_START_MODE_DEFAULT, C.PEAK_INFINITE_NUMBER)
	if err := statusErr(status, "idspeak: start data stream acquisition"); err != nil {
		return err
	}
	if err := b.nodeSetInt("TLParamsLocked", 1); err != nil {
		return err
	}
	if err := b.nodeExecute("AcquisitionStart"); err != nil {
		return err
	}
	b.IsAcquiring = true
	return nil
}

func (b *Backend) StopAcquisition() error {
	if b.nodeMap != nil {
		_ = b.nodeExecute("AcquisitionStop")
		_ = b.nodeSetInt("TLParamsLocked", 0)
	}
	b.IsAcquiring = false
	if b.dataStream != nil {
		C.peak_DataStream_StopAcquisition(b.dataStream, C.PEAK_ACQUISITION_STOP_MODE_DEFAULT)
	}
	return nil
}

func (b *Backend) Grab() (bool, error) {
	if !b.IsAcquiring {
		if err := b.StartAcquisition(); err != nil {
			return false, err
		}
	}

	timeoutMs := C.uint32_t(C.PEAK_INFINITE_TIMEOUT)
	if b.BufferTimeout != nil {
		timeoutMs = C.uint32_t(b.BufferTimeout.Milliseconds())
	}

	var buf C.peak_buffer_handle
	status := C.peak_DataStream_WaitForFinishedBuffer(b.dataStream, timeoutMs, &buf)
	if status == C.PEAK_STATUS_TIMEOUT {
		return false, &backend.BackendError{Message: "idspeak: grab timed out", Timeout: true}
	}
	if err := statusErr(status, "idspeak: wait for finished buffer"); err != nil {
		return false, err
	}

	b.latched = buf
	return true, nil
}

func (b *Backend) Retrieve(out *gocv.Mat) (bool, error) {
	if b.latched == nil {
		return false, nil
	}

	buf := b.latched
	b.latched = nil
	defer C.peak_DataStream_QueueBuffer(b.dataStream, buf)

	var height, width C.size_t
	C.peak_Buffer_GetHeight(buf, &height)
	C.peak_Buffer_GetWidth(buf, &width)

	var base *C.uint8_t
	var size C.size_t
	C.peak_Buffer_GetBasePtr(buf, &base)
	C.peak_Buffer_GetSize(buf, &size)

	raw := C.GoBytes(unsafe.Pointer(base), C.int(size))
	if err := pixelformat.Debayer(b.PixelFormat, b.DebayerEnabled, int(height), int(width), raw, out); err != nil {
		return false, errors.Wrap(err, "idspeak: debayer")
	}
	return true, nil
}

func (b *Backend) Get(id backend.PropertyID) (float64, error) {
	switch id {
	case backend.AutoExposure:
		entry, err := b.nodeCurrentEntry("ExposureAuto")
		if err != nil {
			return 0, nil
		}
		if entry == "Continuous" {
			return 1.0, nil
		}
		return 0.0, nil
	case backend.Exposure:
		v, err := b.nodeFloat("ExposureTime")
		if err != nil {
			return 0, nil
		}
		return v, nil
	case backend.FPS:
		name := "AcquisitionFrameRate"
		if !b.nodeExists("AcquisitionFrameRate") && b.nodeExists("AcquisitionFrameRateTarget") {
			name = "AcquisitionFrameRateTarget"
		}
		v, err := b.nodeFloat(name)
		if err != nil {
			return 0, nil
		}
		return v, nil
	case backend.Trigger:
		entry, err := b.nodeCurrentEntry("TriggerMode")
		if err != nil {
			return 0, nil
		}
		if entry == "On" {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return 0, &backend.UnsupportedError{What: id.String() + " on IDS Peak backend"}
	}
}

func (b *Backend) Set(id backend.PropertyID, value float64) (bool, error) {
	if b.IsAcquiring {
		if err := b.StopAcquisition(); err != nil {
			return false, err
		}
	}

	switch id {
	case backend.AutoExposure:
		entry := "Continuous"
		if value == 0.0 {
			entry = "Off"
		}
		if err := b.nodeSetCurrentEntry("ExposureAuto", entry); err != nil {
			return false, errors.Wrap(err, "idspeak: set ExposureAuto")
		}
	case backend.Exposure:
		min, max, inc, err := b.nodeFloatBounds("ExposureTime")
		if err != nil {
			return false, errors.Wrap(err, "idspeak: read ExposureTime bounds")
		}
		if err := b.nodeSetFloat("ExposureTime", snap(clampF(value, min, max), min, inc)); err != nil {
			return false, errors.Wrap(err, "idspeak: set ExposureTime")
		}
	case backend.FPS:
		if b.nodeExists("AcquisitionFrameRateTargetEnable") && b.nodeExists("AcquisitionFrameRateTarget") {
			if err := b.nodeSetBool("AcquisitionFrameRateTargetEnable", false); err != nil {
				return false, errors.Wrap(err, "idspeak: disable frame rate target")
			}
			min, max, inc, err := b.nodeFloatBounds("AcquisitionFrameRateTarget")
			if err != nil {
				return false, errors.Wrap(err, "idspeak: read AcquisitionFrameRateTarget bounds")
			}
			if err := b.nodeSetFloat("AcquisitionFrameRateTarget", snap(clampF(value, min, max), min, inc)); err != nil {
				return false, errors.Wrap(err, "idspeak: set AcquisitionFrameRateTarget")
			}
			if err := b.nodeSetBool("AcquisitionFrameRateTargetEnable", true); err != nil {
				return false, errors.Wrap(err, "idspeak: re-enable frame rate target")
			}
		} else if b.nodeExists("AcquisitionFrameRate") {
			min, max, inc, err := b.nodeFloatBounds("AcquisitionFrameRate")
			if err != nil {
				return false, errors.Wrap(err, "idspeak: read AcquisitionFrameRate bounds")
			}
			if err := b.nodeSetFloat("AcquisitionFrameRate", snap(clampF(value, min, max), min, inc)); err != nil {
				return false, errors.Wrap(err, "idspeak: set AcquisitionFrameRate")
			}
		} else {
			return false, &backend.InvalidArgumentError{What: "FPS is not supported on this device"}
		}
	case backend.Trigger:
		if value == 0.0 {
			if err := b.nodeSetCurrentEntry("TriggerMode", "Off"); err != nil {
				return false, errors.Wrap(err, "idspeak: disable trigger")
			}
			return true, nil
		}
		if err := b.nodeSetCurrentEntry("TriggerSource", "Line0"); err != nil {
			return false, errors.Wrap(err, "idspeak: set trigger source")
		}
		if err := b.nodeSetCurrentEntry("TriggerMode", "On"); err != nil {
			return false, errors.Wrap(err, "idspeak: enable trigger mode")
		}
		if err := b.nodeSetCurrentEntry("TriggerActivation", "RisingEdge"); err != nil {
			_ = b.nodeSetCurrentEntry("TriggerMode", "Off")
			return false, errors.Wrap(err, "idspeak: set trigger activation")
		}
	default:
		return false, &backend.UnsupportedError{What: id.String() + " on IDS Peak backend"}
	}

	return true, nil
}

func snap(value, min float64, increment float64) float64 {
	if increment <= 0 {
		return value
	}
	offset := value - min
	steps := float64(int64(offset / increment))
	return min + steps*increment
}

func clampF(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
