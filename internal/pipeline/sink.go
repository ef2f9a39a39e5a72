package pipeline

import (
	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/posture"
)

// Sink receives pipeline results. Calls arrive on the stream's worker
// goroutine and must not block for long. A depth.Result's intensity grid
// is only valid for the duration of the call; clone it to retain.
type Sink interface {
	DepthResult(res depth.Result)
	PoseResult(res posture.Result)
}

// MultiSink fans results out to every sink in order.
type MultiSink []Sink

func (m MultiSink) DepthResult(res depth.Result) {
	for _, s := range m {
		s.DepthResult(res)
	}
}

func (m MultiSink) PoseResult(res posture.Result) {
	for _, s := range m {
		s.PoseResult(res)
	}
}

// PoseSinkFunc adapts a function to a Sink that ignores depth results.
type PoseSinkFunc func(posture.Result)

func (f PoseSinkFunc) DepthResult(depth.Result)      {}
func (f PoseSinkFunc) PoseResult(res posture.Result) { f(res) }
