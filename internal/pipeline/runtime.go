package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/posture.report/internal/alert"
	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/monitoring"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/skeleton"
	"github.com/banshee-data/posture.report/internal/timeutil"
)

var logf = monitoring.Prefixed("Pipeline")

// Envelope snapshot reasons.
const (
	ReasonCalibrationComplete = "calibration_complete"
	ReasonManual              = "manual"
)

// PoseStore persists pose results. Implemented by db.DB.
type PoseStore interface {
	InsertPoseEvent(sessionID string, at time.Time, r posture.Result) (string, error)
}

// Options wires a Runtime. Processor and Classifier are required.
type Options struct {
	SessionID  string
	Clock      timeutil.Clock
	Processor  *depth.Processor
	Classifier *posture.Classifier
	// Optional collaborators.
	Alerts    *alert.Monitor
	Poses     PoseStore
	Envelopes depth.EnvelopeStore
	Sink      Sink
	// LogInterval bounds how often a pose result is logged and persisted.
	LogInterval time.Duration
}

// Status is a point-in-time view of the runtime.
type Status struct {
	SessionID       string           `json:"session_id"`
	Depth           depth.Stats      `json:"depth"`
	DepthDropped    uint64           `json:"depth_dropped"`
	ColorDropped    uint64           `json:"color_dropped"`
	SkeletonDropped uint64           `json:"skeleton_dropped"`
	SkeletonFrames  uint64           `json:"skeleton_frames"`
	Classified      uint64           `json:"classified"`
	Poses           []posture.Result `json:"poses"`
	Alerts          *alert.Stats     `json:"alerts,omitempty"`
}

// Runtime runs the depth and skeleton workers.
type Runtime struct {
	opts Options

	depthIn    *Latest[depth.Frame]
	colorIn    *Latest[*depth.ColorImage]
	skeletonIn *Latest[skeleton.Frame]

	logThrottle     *monitoring.Throttle
	persistThrottle *monitoring.Throttle
	malformed       *monitoring.Throttle

	mu             sync.Mutex
	poses          []posture.Result
	skeletonFrames uint64
	classified     uint64
}

// NewRuntime validates opts and hooks envelope persistence into the
// processor.
func NewRuntime(opts Options) (*Runtime, error) {
	if opts.Processor == nil {
		return nil, errors.New("pipeline: processor is required")
	}
	if opts.Classifier == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	r := &Runtime{
		opts:            opts,
		depthIn:         NewLatest[depth.Frame](),
		colorIn:         NewLatest[*depth.ColorImage](),
		skeletonIn:      NewLatest[skeleton.Frame](),
		logThrottle:     monitoring.NewThrottle(opts.LogInterval, opts.Clock),
		persistThrottle: monitoring.NewThrottle(opts.LogInterval, opts.Clock),
		malformed:       monitoring.NewThrottle(5*time.Second, opts.Clock),
	}
	if opts.Envelopes != nil {
		opts.Processor.OnCalibrated(func(env *depth.Envelope) {
			if _, err := depth.PersistEnvelope(opts.Envelopes, opts.Clock, opts.SessionID, env, ReasonCalibrationComplete); err != nil {
				logf("failed to persist envelope: %v", err)
			}
		})
	}
	return r, nil
}

// OfferDepth queues f for the depth worker. It never blocks.
func (r *Runtime) OfferDepth(f depth.Frame) { r.depthIn.Offer(f) }

// OfferColor stores c as the colour frame masked by the next depth frame.
// The runtime owns c from then on. It never blocks.
func (r *Runtime) OfferColor(c *depth.ColorImage) { r.colorIn.Offer(c) }

// OfferSkeleton queues f for the skeleton worker. It never blocks.
func (r *Runtime) OfferSkeleton(f skeleton.Frame) { r.skeletonIn.Offer(f) }

// Run starts one worker per stream and blocks until ctx is done.
func (r *Runtime) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.depthIn.Run(ctx, r.HandleDepth)
	}()
	go func() {
		defer wg.Done()
		r.skeletonIn.Run(ctx, func(f skeleton.Frame) { r.HandleSkeleton(ctx, f) })
	}()
	wg.Wait()
	return ctx.Err()
}

// HandleDepth processes one depth frame synchronously, masking the colour
// frame offered since the previous depth frame, if any.
func (r *Runtime) HandleDepth(f depth.Frame) {
	color, _ := r.colorIn.tryTake()
	res, ready, err := r.opts.Processor.HandleFrame(f, color)
	if err != nil {
		if errors.Is(err, depth.ErrMalformedFrame) {
			r.malformed.Logf("[Pipeline] discarded depth frame %d: %v", f.Sequence, err)
			return
		}
		logf("depth frame %d: %v", f.Sequence, err)
		return
	}
	if ready && r.opts.Sink != nil {
		r.opts.Sink.DepthResult(res)
	}
}

// HandleSkeleton classifies every tracked skeleton of f synchronously.
func (r *Runtime) HandleSkeleton(ctx context.Context, f skeleton.Frame) {
	var poses []posture.Result
	for _, s := range f.TrackedSkeletons() {
		res, ok := r.opts.Classifier.Classify(s)
		if !ok {
			continue
		}
		poses = append(poses, res)
	}

	r.mu.Lock()
	r.skeletonFrames++
	r.classified += uint64(len(poses))
	if len(poses) > 0 {
		r.poses = poses
	}
	r.mu.Unlock()

	if len(poses) == 0 {
		return
	}
	at := f.Timestamp
	if at.IsZero() {
		at = r.opts.Clock.Now()
	}

	for _, res := range poses {
		r.logThrottle.Logf("[Classifier] skeleton %d: %s", res.TrackingID, res.String())
		if r.opts.Alerts != nil {
			r.opts.Alerts.Observe(ctx, res)
		}
		if r.opts.Sink != nil {
			r.opts.Sink.PoseResult(res)
		}
	}
	if r.opts.Poses != nil {
		if ok, _ := r.persistThrottle.Allow(); ok {
			for _, res := range poses {
				if _, err := r.opts.Poses.InsertPoseEvent(r.opts.SessionID, at, res); err != nil {
					logf("failed to persist pose event: %v", err)
				}
			}
		}
	}
}

// Recalibrate discards the learned envelope. It blocks until any
// in-flight depth frame is done.
func (r *Runtime) Recalibrate() {
	r.opts.Processor.Recalibrate()
}

// SnapshotEnvelope persists the active envelope on request.
func (r *Runtime) SnapshotEnvelope() (int64, error) {
	env := r.opts.Processor.Envelope()
	if env == nil {
		return 0, fmt.Errorf("no envelope: processor is %s", r.opts.Processor.State())
	}
	if r.opts.Envelopes == nil {
		return 0, errors.New("no envelope store configured")
	}
	return depth.PersistEnvelope(r.opts.Envelopes, r.opts.Clock, r.opts.SessionID, env, ReasonManual)
}

// Envelope returns a copy of the active envelope, or nil while training.
func (r *Runtime) Envelope() *depth.Envelope { return r.opts.Processor.Envelope() }

// Processor returns the depth processor.
func (r *Runtime) Processor() *depth.Processor { return r.opts.Processor }

// Status returns the current counters and the latest poses.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	st := Status{
		SessionID:      r.opts.SessionID,
		SkeletonFrames: r.skeletonFrames,
		Classified:     r.classified,
		Poses:          append([]posture.Result(nil), r.poses...),
	}
	r.mu.Unlock()
	st.Depth = r.opts.Processor.Stats()
	st.DepthDropped = r.depthIn.Dropped()
	st.ColorDropped = r.colorIn.Dropped()
	st.SkeletonDropped = r.skeletonIn.Dropped()
	if r.opts.Alerts != nil {
		as := r.opts.Alerts.Stats()
		st.Alerts = &as
	}
	return st
}
