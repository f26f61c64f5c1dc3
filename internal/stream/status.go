package stream

import "sync/atomic"

// Status is the producer thread's state machine (spec.md §4.6).
type Status int32

const (
	Starting Status = iota
	Idle
	Streaming
	ErrorCaptureInUse
	ErrorUnknown
)

func (s Status) String() string {
	switch s {
	case Starting:
		return "starting"
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case ErrorCaptureInUse:
		return "capture in use"
	case ErrorUnknown:
		return "error"
	default:
		return "unknown"
	}
}

// AtomicStatus is a lock-free Status cell: written only by the producer,
// read by control handlers (spec.md §5).
type AtomicStatus struct {
	v int32
}

func (a *AtomicStatus) Load() Status        { return Status(atomic.LoadInt32(&a.v)) }
func (a *AtomicStatus) Store(s Status)      { atomic.StoreInt32(&a.v, int32(s)) }
