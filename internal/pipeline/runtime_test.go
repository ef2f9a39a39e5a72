package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/posture.report/internal/alert"
	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/monitoring"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/skeleton"
	"github.com/banshee-data/posture.report/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

const testW, testH = 4, 3

func frame(seq uint64, pi uint8, d uint16) depth.Frame {
	data := make([]byte, testW*testH*2)
	for i := 0; i < testW*testH; i++ {
		data[2*i], data[2*i+1] = depth.EncodeSample(pi, d)
	}
	return depth.Frame{Width: testW, Height: testH, Data: data, Sequence: seq}
}

func person(id int) skeleton.Skeleton {
	s := skeleton.Skeleton{TrackingID: id, State: skeleton.Tracked}
	for j := skeleton.JointID(0); j < skeleton.JointCount; j++ {
		s.Set(j, r3.Vec{X: 0, Y: 0.1 * float64(j), Z: 2})
	}
	return s
}

type memEnvelopes struct {
	mu    sync.Mutex
	snaps []depth.EnvelopeSnapshot
}

func (m *memEnvelopes) InsertEnvelopeSnapshot(s *depth.EnvelopeSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, *s)
	return int64(len(m.snaps)), nil
}

func (m *memEnvelopes) LatestEnvelopeSnapshot(string) (*depth.EnvelopeSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snaps) == 0 {
		return nil, nil
	}
	s := m.snaps[len(m.snaps)-1]
	return &s, nil
}

func (m *memEnvelopes) reasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.snaps {
		out = append(out, s.Reason)
	}
	return out
}

type memPoses struct {
	mu     sync.Mutex
	events []posture.Result
}

func (m *memPoses) InsertPoseEvent(_ string, _ time.Time, r posture.Result) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, r)
	return "id", nil
}

func (m *memPoses) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type recordingSink struct {
	mu    sync.Mutex
	depth []depth.Result
	poses []posture.Result
}

func (s *recordingSink) DepthResult(r depth.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth = append(s.depth, r)
}

func (s *recordingSink) PoseResult(r posture.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poses = append(s.poses, r)
}

func newTestRuntime(t *testing.T, clock *timeutil.MockClock, opts Options) *Runtime {
	t.Helper()
	proc, err := depth.NewProcessor(depth.ProcessorConfig{Width: testW, Height: testH, Segmenter: depth.DefaultSegmenterConfig()}, nil)
	require.NoError(t, err)
	cls, err := posture.NewClassifier(posture.DefaultConfig())
	require.NoError(t, err)
	opts.Processor = proc
	opts.Classifier = cls
	opts.Clock = clock
	opts.SessionID = "s1"
	if opts.LogInterval == 0 {
		opts.LogInterval = time.Second
	}
	r, err := NewRuntime(opts)
	require.NoError(t, err)
	return r
}

func TestNewRuntime_RequiresCollaborators(t *testing.T) {
	_, err := NewRuntime(Options{})
	assert.Error(t, err)
}

func TestRuntime_DepthCalibratesThenSegments(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	envs := &memEnvelopes{}
	sink := &recordingSink{}
	r := newTestRuntime(t, clock, Options{Envelopes: envs, Sink: sink})

	for i := 0; i <= depth.CalibrationFrames; i++ {
		r.HandleDepth(frame(uint64(i), 0, 2000))
	}
	assert.Equal(t, depth.StateReady, r.Processor().State())
	assert.Equal(t, []string{ReasonCalibrationComplete}, envs.reasons())
	assert.Empty(t, sink.depth, "no results while training")

	r.HandleDepth(frame(200, 1, 2000))
	require.Len(t, sink.depth, 1)
	assert.True(t, sink.depth[0].Foreground)
	assert.Equal(t, testW*testH, sink.depth[0].ForegroundPixels)

	id, err := r.SnapshotEnvelope()
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
	assert.Equal(t, []string{ReasonCalibrationComplete, ReasonManual}, envs.reasons())

	r.Recalibrate()
	assert.Equal(t, depth.StateAwaitingSeed, r.Processor().State())
	_, err = r.SnapshotEnvelope()
	assert.Error(t, err)
}

func TestRuntime_MasksOfferedColorFrame(t *testing.T) {
	const colorW, colorH = 2 * testW, 2 * testH
	mapper := depth.LinearMapper{DepthWidth: testW, DepthHeight: testH, ColorWidth: colorW, ColorHeight: colorH}
	proc, err := depth.NewProcessor(depth.ProcessorConfig{Width: testW, Height: testH, Segmenter: depth.DefaultSegmenterConfig()}, mapper)
	require.NoError(t, err)
	cls, err := posture.NewClassifier(posture.DefaultConfig())
	require.NoError(t, err)
	sink := &recordingSink{}
	r, err := NewRuntime(Options{Processor: proc, Classifier: cls, Sink: sink, Clock: timeutil.NewMockClock(time.Unix(100, 0))})
	require.NoError(t, err)

	newColor := func() *depth.ColorImage {
		c := depth.NewColorImage(colorW, colorH, 4)
		for i := range c.Pix {
			c.Pix[i] = 0xAA
		}
		return c
	}

	// colour offered during training is consumed, not carried over
	for i := 0; i <= depth.CalibrationFrames; i++ {
		r.OfferColor(newColor())
		r.HandleDepth(frame(uint64(i), 0, 2000))
	}
	require.Equal(t, depth.StateReady, proc.State())

	// left half of the depth frame is a body, right half is background
	data := make([]byte, testW*testH*2)
	for y := 0; y < testH; y++ {
		for x := 0; x < testW; x++ {
			var pi uint8
			if x < testW/2 {
				pi = 1
			}
			k := y*testW + x
			data[2*k], data[2*k+1] = depth.EncodeSample(pi, 2000)
		}
	}
	live := depth.Frame{Width: testW, Height: testH, Data: data, Sequence: 500}

	r.OfferColor(newColor())
	r.OfferColor(newColor())
	r.HandleDepth(live)
	require.Len(t, sink.depth, 1)
	masked := sink.depth[0].Color
	require.NotNil(t, masked)
	assert.Equal(t, uint64(1), r.Status().ColorDropped)

	// background depth pixels map to colour x 4 and 6 on even rows, so
	// colour x 3..7 of those rows are blanked; odd rows are never mapped
	for y := 0; y < colorH; y++ {
		for x := 0; x < colorW; x++ {
			off := (y*colorW + x) * 4
			blank := y%2 == 0 && x >= 3
			for k := 0; k < 3; k++ {
				want := byte(0xAA)
				if blank {
					want = 0
				}
				assert.Equal(t, want, masked.Pix[off+k], "colour (%d,%d) channel %d", x, y, k)
			}
			assert.Equal(t, byte(0xAA), masked.Pix[off+3], "alpha at (%d,%d)", x, y)
		}
	}

	r.HandleDepth(live)
	require.Len(t, sink.depth, 2)
	assert.Nil(t, sink.depth[1].Color, "no colour frame offered since the last depth frame")
}

func TestRuntime_MalformedDepthFrameDiscarded(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	sink := &recordingSink{}
	r := newTestRuntime(t, clock, Options{Sink: sink})

	r.HandleDepth(depth.Frame{Width: testW, Height: testH, Data: []byte{1, 2, 3}})
	st := r.Status()
	assert.Equal(t, uint64(1), st.Depth.Malformed)
	assert.Equal(t, depth.StateAwaitingSeed.String(), st.Depth.State)
}

func TestRuntime_SkeletonClassifiesAndPersists(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	poses := &memPoses{}
	sink := &recordingSink{}
	r := newTestRuntime(t, clock, Options{Poses: poses, Sink: sink})

	untracked := skeleton.Skeleton{TrackingID: 9, State: skeleton.PositionOnly}
	f := skeleton.Frame{Sequence: 1, Skeletons: []skeleton.Skeleton{person(1), untracked, person(2)}}

	r.HandleSkeleton(context.Background(), f)
	require.Len(t, sink.poses, 2)
	assert.Equal(t, 1, sink.poses[0].TrackingID)
	assert.Equal(t, 2, sink.poses[1].TrackingID)
	assert.Equal(t, 2, poses.count())

	// within the log interval: published but not persisted again
	r.HandleSkeleton(context.Background(), f)
	assert.Len(t, sink.poses, 4)
	assert.Equal(t, 2, poses.count())

	clock.Advance(time.Second)
	r.HandleSkeleton(context.Background(), f)
	assert.Equal(t, 4, poses.count())

	st := r.Status()
	assert.Equal(t, uint64(3), st.SkeletonFrames)
	assert.Equal(t, uint64(6), st.Classified)
	assert.Len(t, st.Poses, 2)
	assert.Nil(t, st.Alerts)
}

func TestRuntime_EmptyFrameKeepsLastPoses(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	r := newTestRuntime(t, clock, Options{})

	r.HandleSkeleton(context.Background(), skeleton.Frame{Skeletons: []skeleton.Skeleton{person(5)}})
	r.HandleSkeleton(context.Background(), skeleton.Frame{})
	st := r.Status()
	require.Len(t, st.Poses, 1)
	assert.Equal(t, 5, st.Poses[0].TrackingID)
}

func TestRuntime_AlertsObserveEveryPose(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	mon := alert.NewMonitor(alert.Config{Threshold: 0, Cooldown: time.Hour}, alert.Options{Clock: clock})
	r := newTestRuntime(t, clock, Options{Alerts: mon})

	r.HandleSkeleton(context.Background(), skeleton.Frame{Skeletons: []skeleton.Skeleton{person(1)}})
	r.HandleSkeleton(context.Background(), skeleton.Frame{Skeletons: []skeleton.Skeleton{person(1)}})

	st := r.Status()
	require.NotNil(t, st.Alerts)
	assert.Equal(t, uint64(1), st.Alerts.Raised)
	assert.Equal(t, uint64(1), st.Alerts.Suppressed)
}

func TestRuntime_RunWorkers(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	sink := &recordingSink{}
	r := newTestRuntime(t, clock, Options{Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.OfferSkeleton(skeleton.Frame{Skeletons: []skeleton.Skeleton{person(1)}})
	r.OfferDepth(frame(0, 0, 2000))

	require.Eventually(t, func() bool {
		st := r.Status()
		return st.Classified == 1 && st.Depth.Frames == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	var fn []posture.Result
	m := MultiSink{a, b, PoseSinkFunc(func(r posture.Result) { fn = append(fn, r) })}
	m.PoseResult(posture.Result{Label: "x"})
	m.DepthResult(depth.Result{Sequence: 3})
	assert.Len(t, a.poses, 1)
	assert.Len(t, b.depth, 1)
	assert.Len(t, fn, 1)
}
