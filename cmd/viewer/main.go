// Command viewer is a local, headless diagnostic client for one camera,
// adapted from the original implementation's capture.cpp: it opens a
// camera directly (bypassing the streaming server), applies the requested
// exposure/trigger/framerate settings, and prints a running line of stats
// instead of opening a GUI window, since this is a server-side tool
// (SPEC_FULL.md §12).
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/xvii-vision/genicvbridge/internal/backend"
	"github.com/xvii-vision/genicvbridge/internal/capture"
	"github.com/xvii-vision/genicvbridge/internal/logging"

	// Blank-imported so each backend's init() registers itself with
	// internal/backend; see cmd/streamer/main.go for why this is required.
	_ "github.com/xvii-vision/genicvbridge/internal/backend/aravis"
	_ "github.com/xvii-vision/genicvbridge/internal/backend/idspeak"
	_ "github.com/xvii-vision/genicvbridge/internal/backend/spinnaker"
)

func main() {
	var (
		cameraIndex  = flag.Int("camera", 0, "camera index (ignored with -backend any, which opens device 0)")
		trigger      = flag.Bool("trigger", false, "enable external trigger (Line0; Line1 on the Spinnaker backend)")
		targetFPS    = flag.Float64("framerate", 5.0, "target fps")
		autoExposure = flag.Bool("auto-exposure", false, "enable auto exposure")
		exposureMs   = flag.Float64("exposure", -1, "exposure time in milliseconds (ignored if -auto-exposure)")
		backendFlag  = flag.String("backend", "any", "backend: any|ids|spinnaker|aravis")
	)
	flag.Parse()

	log, err := logging.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	vc, err := openCamera(*backendFlag, *cameraIndex)
	if err != nil {
		log.Error("can't open camera", zap.Error(err))
		os.Exit(1)
	}
	defer vc.Release()

	vc.SetExceptionMode(false)

	if ok, _ := vc.Set(backend.AutoExposure, boolToFloat(*autoExposure)); ok {
		log.Info("set auto exposure", zap.Bool("enabled", *autoExposure))
	}
	if !*autoExposure && *exposureMs >= 0 {
		if ok, _ := vc.Set(backend.Exposure, 1000.0**exposureMs); ok {
			log.Info("set exposure", zap.Float64("ms", *exposureMs))
		}
	}
	if ok, _ := vc.Set(backend.FPS, *targetFPS); ok {
		log.Info("set target framerate", zap.Float64("fps", *targetFPS))
	}
	if ok, _ := vc.Set(backend.Trigger, boolToFloat(*trigger)); ok {
		log.Info("set trigger", zap.Bool("enabled", *trigger))
	}

	vc.SetExceptionMode(true)

	runLoop(vc, log)
}

func openCamera(backendFlag string, index int) (*capture.Capture, error) {
	if backendFlag == "any" || backendFlag == "" {
		return capture.OpenAnyCamera(true, nil)
	}

	var kind backend.Kind
	switch backendFlag {
	case "ids":
		kind = backend.IdsPeak
	case "spinnaker":
		kind = backend.Spinnaker
	case "aravis":
		kind = backend.Aravis
	default:
		return nil, fmt.Errorf("viewer: unrecognized -backend %q", backendFlag)
	}

	vc := capture.New()
	if err := vc.Open(index, kind, true, nil); err != nil {
		return nil, err
	}
	return vc, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// runLoop mirrors the original capture.cpp polling loop, minus imshow:
// read a frame, print a running stats line. There is no keypress to poll
// for in a headless binary; exit with Ctrl-C.
func runLoop(vc *capture.Capture, log *zap.Logger) {
	var frames int
	tickFPSStart := time.Now()
	intervalFrames := 0

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		ok, err := vc.Read(&frame)
		if err != nil {
			log.Warn("read failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		frames++
		intervalFrames++

		exposureUs, _ := vc.Get(backend.Exposure)
		triggerOn, _ := vc.Get(backend.Trigger)

		if triggerOn == 0 {
			fps, _ := vc.Get(backend.FPS)
			fmt.Printf("\r[%d]\t%.3f ms\t%.3f FPS\t\t", frames, exposureUs/1000.0, fps)
		} else if time.Since(tickFPSStart) >= time.Second {
			fmt.Printf("\r[%d]\t%.3f ms\t%d FPS\t\t", frames, exposureUs/1000.0, intervalFrames)
			intervalFrames = 0
			tickFPSStart = time.Now()
		}
	}
}
