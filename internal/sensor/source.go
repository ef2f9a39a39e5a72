// Package sensor provides the frame sources feeding the pipeline: a
// synthetic scene for development and a recording that can be replayed.
package sensor

import (
	"context"

	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/monitoring"
	"github.com/banshee-data/posture.report/internal/skeleton"
)

var logf = monitoring.Prefixed("Sensor")

// Source delivers depth and skeleton frames until ctx is done or the
// source is exhausted. Callbacks run on the source's goroutine; handlers
// must hand frames off rather than process them inline.
type Source interface {
	Run(ctx context.Context, onDepth func(depth.Frame), onSkeleton func(skeleton.Frame)) error
}

// ColorSource is implemented by sources that also deliver colour frames.
// fn must be registered before Run; each colour frame is delivered ahead
// of the depth frame of the same tick and belongs to the callee.
type ColorSource interface {
	Source
	OnColor(fn func(*depth.ColorImage))
}
