//go:build spinnaker

package spinnaker

// #cgo pkg-config: spinnaker_c
// #include <spinc/SpinnakerC.h>
// #include <stdlib.h>
import "C"

import (
	"sort"
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/xvii-vision/genicvbridge/internal/backend"
	"github.com/xvii-vision/genicvbridge/internal/pixelformat"
)

func init() {
	backend.Register(backend.Spinnaker, NewBackend)
}

var (
	systemMu      sync.Mutex
	instanceCount int
	system        C.spinSystem
)

func acquireSystem() error {
	systemMu.Lock()
	defer systemMu.Unlock()
	if instanceCount == 0 {
		if err := checkErr(C.spinSystemGetInstance(&system), "get system instance"); err != nil {
			return err
		}
	}
	instanceCount++
	return nil
}

func releaseSystem() {
	systemMu.Lock()
	defer systemMu.Unlock()
	instanceCount--
	if instanceCount == 0 {
		C.spinSystemReleaseInstance(system)
		system = nil
	}
}

func checkErr(ret C.spinError, context string) error {
	if ret == C.SPINNAKER_ERR_SUCCESS {
		return nil
	}
	return &backend.BackendError{Message: "spinnaker: " + context}
}

// checkInitErr is checkErr specialized for spinCameraInit: SpinnakerC
// reports SPINNAKER_ERR_RESOURCE_IN_USE when another process already has
// the camera open, which the producer's state machine (spec.md §4.6)
// treats as ErrorCaptureInUse rather than ErrorUnknown.
func checkInitErr(ret C.spinError) error {
	if ret == C.SPINNAKER_ERR_SUCCESS {
		return nil
	}
	if ret == C.SPINNAKER_ERR_RESOURCE_IN_USE {
		return backend.ErrCaptureInUse
	}
	return &backend.BackendError{Message: "spinnaker: init camera"}
}

// Backend wraps one Spinnaker camera handle and the single image latched
// between Grab and Retrieve. See spec.md §4.4.
type Backend struct {
	backend.Base

	cameraList C.spinCameraList
	camera     C.spinCamera
	nodeMap    C.spinNodeMapHandle

	latched  C.spinImage
	released bool
}

// NewBackend satisfies backend.Factory. Any failure to acquire the
// process-wide Spinnaker system instance is surfaced from Open, since
// Factory itself cannot return an error.
func NewBackend(debayerEnabled bool, bufferTimeout *time.Duration) backend.Interface {
	_ = acquireSystem()
	return &Backend{Base: backend.NewBase(debayerEnabled, bufferTimeout)}
}

// Open selects the camera at index after sorting device IDs, since
// Spinnaker's enumeration order is not stable across processes (spec.md
// §9 / original_source spinnaker.cpp comment).
func (b *Backend) Open(index int) error {
	if index < 0 {
		return &backend.InvalidArgumentError{What: "camera index must be non-negative"}
	}
	if system == nil {
		return &backend.BackendError{Message: "spinnaker: system instance unavailable"}
	}

	if err := checkErr(C.spinSystemGetCameras(system, &b.cameraList), "enumerate cameras"); err != nil {
		return err
	}

	var count C.size_t
	if err := checkErr(C.spinCameraListGetSize(b.cameraList, &count), "get camera count"); err != nil {
		return err
	}
	if C.size_t(index) >= count {
		return &backend.InvalidArgumentError{What: "camera index out of range"}
	}

	ids := make([]string, count)
	handles := make([]C.spinCamera, count)
	for i := C.size_t(0); i < count; i++ {
		var cam C.spinCamera
		if err := checkErr(C.spinCameraListGetByIndex(b.cameraList, C.size_t(i), &cam), "get camera by index"); err != nil {
			return err
		}
		handles[i] = cam

		var tlNodeMap C.spinNodeMapHandle
		C.spinCameraGetTLDeviceNodeMap(cam, &tlNodeMap)
		ids[i] = readStringNode(tlNodeMap, "DeviceID")
	}

	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return ids[order[i]] < ids[order[j]] })

	b.camera = handles[order[index]]

	if err := checkInitErr(C.spinCameraInit(b.camera)); err != nil {
		return err
	}

	if err := checkErr(C.spinCameraGetNodeMap(b.camera, &b.nodeMap), "get camera node map"); err != nil {
		b.release()
		return err
	}

	if err := b.setEnum("UserSetSelector", "Default"); err == nil {
		_ = b.execute("UserSetLoad")
	}

	pixfmt := b.currentEnumSymbol("PixelFormat")
	switch pixfmt {
	case "Mono8":
		b.PixelFormat = pixelformat.Mono8
	case "BayerRG8":
		// intentional: this SDK's BayerRG8 pixel layout is actually BayerBG8
		// once demosaiced by OpenCV's conventions (spec.md §9).
		b.PixelFormat = pixelformat.BayerBG8
	default:
		b.PixelFormat = pixelformat.Unknown
	}

	return nil
}

func (b *Backend) release() {
	if b.camera != nil {
		var initialized C.bool8_t
		C.spinCameraIsInitialized(b.camera, &initialized)
		if initialized != 0 {
			C.spinCameraDeInit(b.camera)
		}
		C.spinCameraRelease(b.camera)
		b.camera = nil
	}
	b.nodeMap = nil
	if b.cameraList != nil {
		C.spinCameraListClear(b.cameraList)
		C.spinCameraListDestroy(b.cameraList)
		b.cameraList = nil
	}
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
	releaseSystem()
}

func (b *Backend) IsOpened() bool {
	if b.camera == nil {
		return false
	}
	var valid C.bool8_t
	C.spinCameraIsInitialized(b.camera, &valid)
	return valid != 0
}

func (b *Backend) StartAcquisition() error {
	if err := checkErr(C.spinCameraBeginAcquisition(b.camera), "begin acquisition"); err != nil {
		return err
	}
	b.IsAcquiring = true
	return nil
}

func (b *Backend) StopAcquisition() error {
	err := checkErr(C.spinCameraEndAcquisition(b.camera), "end acquisition")
	b.IsAcquiring = false
	return err
}

func (b *Backend) Grab() (bool, error) {
	if !b.IsAcquiring {
		if err := b.StartAcquisition(); err != nil {
			return false, err
		}
	}

	timeoutMs := C.uint64_t(C.SPINNAKER_INFINITE)
	if b.BufferTimeout != nil {
		timeoutMs = C.uint64_t(b.BufferTimeout.Milliseconds())
	}

	var img C.spinImage
	ret := C.spinCameraGetNextImageEx(b.camera, timeoutMs, &img)
	if ret == C.SPINNAKER_ERR_TIMEOUT {
		return false, &backend.BackendError{Message: "spinnaker: grab timed out", Timeout: true}
	}
	if err := checkErr(ret, "get next image"); err != nil {
		return false, err
	}

	b.latched = img
	return true, nil
}

func (b *Backend) Retrieve(out *gocv.Mat) (bool, error) {
	if b.latched == nil {
		return false, nil
	}

	img := b.latched
	b.latched = nil
	defer C.spinImageRelease(img)

	var incomplete C.bool8_t
	C.spinImageIsIncomplete(img, &incomplete)
	if incomplete != 0 {
		return false, &backend.BackendError{Message: "spinnaker: image incomplete"}
	}

	var height, width C.size_t
	C.spinImageGetHeight(img, &height)
	C.spinImageGetWidth(img, &width)

	var data unsafe.Pointer
	C.spinImageGetData(img, &data)

	size := int(height) * int(width)
	raw := C.GoBytes(data, C.int(size))
	if err := pixelformat.Debayer(b.PixelFormat, b.DebayerEnabled, int(height), int(width), raw, out); err != nil {
		return false, errors.Wrap(err, "spinnaker: debayer")
	}
	return true, nil
}

func (b *Backend) Get(id backend.PropertyID) (float64, error) {
	switch id {
	case backend.AutoExposure:
		if b.currentEnumSymbol("ExposureAuto") == "Continuous" {
			return 1.0, nil
		}
		return 0.0, nil
	case backend.Exposure:
		return b.floatValue("ExposureTime"), nil
	case backend.FPS:
		return b.floatValue("AcquisitionFrameRate"), nil
	case backend.Trigger:
		if b.currentEnumSymbol("TriggerMode") == "On" {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return 0, &backend.UnsupportedError{What: id.String() + " on Spinnaker backend"}
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
		if err := b.setEnum("ExposureAuto", entry); err != nil {
			return false, errors.Wrap(err, "spinnaker: set ExposureAuto")
		}
	case backend.Exposure:
		min, max, inc := b.floatBounds("ExposureTime")
		if err := b.setFloat("ExposureTime", snap(clampF(value, min, max), min, inc)); err != nil {
			return false, errors.Wrap(err, "spinnaker: set ExposureTime")
		}
	case backend.FPS:
		min, max, inc := b.floatBounds("AcquisitionFrameRate")
		if err := b.setBool("AcquisitionFrameRateEnable", true); err != nil {
			return false, errors.Wrap(err, "spinnaker: enable AcquisitionFrameRate")
		}
		if err := b.setFloat("AcquisitionFrameRate", snap(clampF(value, min, max), min, inc)); err != nil {
			return false, errors.Wrap(err, "spinnaker: set AcquisitionFrameRate")
		}
	case backend.Trigger:
		// 0.0 always disables, matching spec.md §8's round-trip property
		// (set(TRIGGER,1); get==1; set(TRIGGER,0); get==0), which must hold
		// across every backend. A nonzero value enables and, on Spinnaker
		// only, numerically selects the physical line: 1..3 -> Line1..Line3;
		// anything else nonzero falls back to the Line0 default every other
		// backend uses.
		if value == 0.0 {
			if err := b.setEnum("TriggerMode", "Off"); err != nil {
				return false, errors.Wrap(err, "spinnaker: disable trigger")
			}
			return true, nil
		}
		source := "Line0"
		switch int(value) {
		case 1:
			source = "Line1"
		case 2:
			source = "Line2"
		case 3:
			source = "Line3"
		}
		if err := b.setEnum("TriggerSource", source); err != nil {
			return false, errors.Wrap(err, "spinnaker: set trigger source")
		}
		if err := b.setEnum("TriggerActivation", "RisingEdge"); err != nil {
			return false, errors.Wrap(err, "spinnaker: set trigger activation")
		}
		if err := b.setEnum("TriggerMode", "On"); err != nil {
			return false, errors.Wrap(err, "spinnaker: enable trigger mode")
		}
	case backend.Line:
		// Spinnaker-only GPIO line control, see spec.md §4.4 / §12.
		if err := b.setEnum("LineSelector", "Line2"); err != nil {
			return false, errors.Wrap(err, "spinnaker: select Line2")
		}
		if err := b.setBool("V3_3Enable", value != 0.0); err != nil {
			return false, errors.Wrap(err, "spinnaker: set V3_3Enable")
		}
	default:
		return false, &backend.UnsupportedError{What: id.String() + " on Spinnaker backend"}
	}

	return true, nil
}

func snap(value, min, increment float64) float64 {
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
