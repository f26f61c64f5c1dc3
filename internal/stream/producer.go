package stream

import (
	"strconv"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/xvii-vision/genicvbridge/internal/backend"
	"github.com/xvii-vision/genicvbridge/internal/capture"
	"github.com/xvii-vision/genicvbridge/internal/registry"
)

// ProducerConfig holds everything the producer needs to open and drive a
// camera, sourced from internal/config (spec.md §6 CLI surface).
type ProducerConfig struct {
	CamIndex       int
	Backend        backend.Kind
	CompressionExt string
	FPS            float64
	MaxQueue       int
	DebayerEnabled bool
	BufferTimeout  *time.Duration
	LineEnable     bool
	TriggerPin     *int

	// retryBackoff paces open() retries while ErrorCaptureInUse/ErrorUnknown;
	// not part of the CLI surface, kept small so tests converge quickly.
	retryBackoff time.Duration
}

// Producer is the single producer thread described in spec.md §4.6: it
// owns the camera exclusively, opens it only while subscribers exist, and
// fans out one encoding per frame to every subscriber.
type Producer struct {
	cfg      ProducerConfig
	registry *registry.Registry
	status   AtomicStatus
	log      *zap.Logger

	capture  *capture.Capture
	stopping chan struct{}
	done     chan struct{}
}

// NewProducer builds a producer bound to reg, not yet running.
func NewProducer(cfg ProducerConfig, reg *registry.Registry, log *zap.Logger) *Producer {
	if cfg.retryBackoff <= 0 {
		cfg.retryBackoff = 200 * time.Millisecond
	}
	return &Producer{
		cfg:      cfg,
		registry: reg,
		log:      log,
		capture:  capture.New(),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Status reports the current state-machine value; safe from any goroutine.
func (p *Producer) Status() Status { return p.status.Load() }

// StatusText renders the current status the way the control plane's
// "status" reply does: lowercase text, or "streaming to N subscribers"
// while Streaming (spec.md §4.6).
func (p *Producer) StatusText() string {
	s := p.status.Load()
	if s == Streaming {
		return "streaming to " + strconv.Itoa(p.registry.Len()) + " subscribers"
	}
	return s.String()
}

// Stop requests the producer loop exit and blocks until it has.
func (p *Producer) Stop() {
	select {
	case <-p.stopping:
	default:
		close(p.stopping)
	}
	p.registry.Stop()
	<-p.done
}

func (p *Producer) stopRequested() bool {
	select {
	case <-p.stopping:
		return true
	default:
		return false
	}
}

// Run drives the state machine described in spec.md §4.6 until Stop is
// called. Intended to run on its own goroutine.
func (p *Producer) Run() {
	defer close(p.done)
	defer p.releaseCapture()

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		if p.stopRequested() {
			return
		}

		if p.registry.Len() == 0 {
			p.transitionIdle()
			if !p.registry.Wait() {
				return // Stop was called while parked
			}
			continue
		}

		if !p.capture.IsOpened() {
			if err := p.openAndConfigure(); err != nil {
				if backend.IsCaptureInUse(err) {
					p.status.Store(ErrorCaptureInUse)
				} else {
					p.status.Store(ErrorUnknown)
					p.log.Warn("camera open failed", zap.Error(err))
				}
				time.Sleep(p.cfg.retryBackoff)
				continue
			}
			p.status.Store(Streaming)
		}

		p.tick(&mat)

		if p.cfg.FPS > 0 {
			time.Sleep(time.Duration(float64(time.Second) / p.cfg.FPS))
		}
	}
}

func (p *Producer) transitionIdle() {
	if p.status.Load() != Idle {
		p.releaseCapture()
		p.status.Store(Idle)
	}
}

func (p *Producer) releaseCapture() {
	if p.capture.IsOpened() {
		p.capture.Release()
	}
}

// openAndConfigure implements spec.md §4.6 per-tick step 1: open once,
// then apply FPS/auto-exposure (and, per the streamer's extended env-var
// surface, trigger/line) once; refusals are logged, not fatal.
func (p *Producer) openAndConfigure() error {
	if err := p.capture.Open(p.cfg.CamIndex, p.cfg.Backend, p.cfg.DebayerEnabled, p.cfg.BufferTimeout); err != nil {
		return err
	}

	if _, err := p.capture.Set(backend.FPS, p.cfg.FPS); err != nil {
		p.log.Info("camera refused FPS target", zap.Error(err))
	}
	if _, err := p.capture.Set(backend.AutoExposure, 1.0); err != nil {
		p.log.Info("camera refused auto-exposure", zap.Error(err))
	}
	if p.cfg.TriggerPin != nil {
		if _, err := p.capture.Set(backend.Trigger, float64(*p.cfg.TriggerPin)); err != nil {
			p.log.Info("camera refused trigger pin", zap.Error(err))
		}
	}
	if p.cfg.LineEnable {
		if _, err := p.capture.Set(backend.Line, 1.0); err != nil {
			p.log.Info("camera refused line enable", zap.Error(err))
		}
	}

	return nil
}

// tick implements spec.md §4.6 per-tick loop steps 2-5.
func (p *Producer) tick(mat *gocv.Mat) {
	ok, err := p.capture.Read(mat)
	if err != nil || !ok || mat.Empty() {
		return
	}

	buf, err := gocv.IMEncode(gocv.FileExt(p.cfg.CompressionExt), *mat)
	if err != nil {
		p.log.Warn("encode failed", zap.Error(err))
		return
	}
	defer buf.Close()
	payload := append([]byte(nil), buf.GetBytes()...)

	for _, sub := range p.registry.Snapshot() {
		if sub.QueueLen() > p.cfg.MaxQueue {
			sub.Close(1011, "queue full")
			p.registry.Remove(sub.ID())
			continue
		}
		if err := sub.Enqueue(payload); err != nil {
			p.registry.Remove(sub.ID())
		}
	}
}
