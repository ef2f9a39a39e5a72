package sensor

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/skeleton"
	"github.com/banshee-data/posture.report/internal/timeutil"
)

const (
	kindDepth    = 'd'
	kindSkeleton = 's'
)

// record is one entry of a recording. Kind selects which frame is set.
// OffsetNanos is measured from the first recorded frame.
type record struct {
	Kind        byte
	OffsetNanos int64
	Depth       *depth.Frame
	Skeleton    *skeleton.Frame
}

// Recorder writes frames to a gob stream.
type Recorder struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	w      *bufio.Writer
	closer io.Closer
	enc    *gob.Encoder
	start  time.Time
	frames uint64
	err    error
}

// NewRecorder records to w. A nil clock uses the real clock. If w is an
// io.Closer, Close closes it.
func NewRecorder(w io.Writer, clock timeutil.Clock) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	bw := bufio.NewWriter(w)
	r := &Recorder{clock: clock, w: bw, enc: gob.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// CreateRecorder records to a new file at path.
func CreateRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording %s: %w", path, err)
	}
	return NewRecorder(f, nil), nil
}

// RecordDepth appends a depth frame.
func (r *Recorder) RecordDepth(f depth.Frame) error {
	return r.write(record{Kind: kindDepth, Depth: &f})
}

// RecordSkeleton appends a skeleton frame.
func (r *Recorder) RecordSkeleton(f skeleton.Frame) error {
	return r.write(record{Kind: kindSkeleton, Skeleton: &f})
}

func (r *Recorder) write(rec record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	now := r.clock.Now()
	if r.start.IsZero() {
		r.start = now
	}
	rec.OffsetNanos = now.Sub(r.start).Nanoseconds()
	if err := r.enc.Encode(rec); err != nil {
		r.err = fmt.Errorf("failed to write recording: %w", err)
		return r.err
	}
	r.frames++
	return nil
}

// Frames returns how many frames were recorded.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Tap wraps a pair of frame handlers so every frame is recorded before it
// is passed on. Write errors are logged once and recording stops.
func (r *Recorder) Tap(onDepth func(depth.Frame), onSkeleton func(skeleton.Frame)) (func(depth.Frame), func(skeleton.Frame)) {
	var once sync.Once
	report := func(err error) {
		if err != nil {
			once.Do(func() { logf("recording stopped: %v", err) })
		}
	}
	return func(f depth.Frame) {
			report(r.RecordDepth(f))
			if onDepth != nil {
				onDepth(f)
			}
		}, func(f skeleton.Frame) {
			report(r.RecordSkeleton(f))
			if onSkeleton != nil {
				onSkeleton(f)
			}
		}
}

// Close flushes the stream and closes the underlying writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.w.Flush()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Replay plays back a recording. With Rate > 0 frames are paced at Rate
// times the recorded cadence; Rate 0 plays as fast as the handlers allow.
type Replay struct {
	Path  string
	Rate  float64
	Clock timeutil.Clock
	// Loop restarts the recording at EOF.
	Loop bool

	open func() (io.ReadCloser, error)
}

// NewReplay returns a real-time replay of the file at path.
func NewReplay(path string) *Replay {
	return &Replay{Path: path, Rate: 1, Clock: timeutil.RealClock{}}
}

// NewReplayReader replays from r once. Used by tests.
func NewReplayReader(r io.Reader, rate float64, clock timeutil.Clock) *Replay {
	return &Replay{
		Rate:  rate,
		Clock: clock,
		open:  func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
	}
}

// Run implements Source.
func (p *Replay) Run(ctx context.Context, onDepth func(depth.Frame), onSkeleton func(skeleton.Frame)) error {
	for {
		n, err := p.playOnce(ctx, onDepth, onSkeleton)
		if err != nil {
			return err
		}
		logf("replay finished after %d frames", n)
		if !p.Loop || n == 0 || p.open != nil {
			return nil
		}
	}
}

func (p *Replay) playOnce(ctx context.Context, onDepth func(depth.Frame), onSkeleton func(skeleton.Frame)) (int, error) {
	rc, err := p.reader()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	clock := p.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	dec := gob.NewDecoder(bufio.NewReader(rc))

	var lastOffset int64
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("failed to read recording frame %d: %w", n, err)
		}
		if p.Rate > 0 && rec.OffsetNanos > lastOffset {
			gap := time.Duration(float64(rec.OffsetNanos-lastOffset) / p.Rate)
			if err := clock.SleepContext(ctx, gap); err != nil {
				return n, err
			}
		}
		lastOffset = rec.OffsetNanos

		switch rec.Kind {
		case kindDepth:
			if onDepth != nil && rec.Depth != nil {
				onDepth(*rec.Depth)
			}
		case kindSkeleton:
			if onSkeleton != nil {
				var f skeleton.Frame
				if rec.Skeleton != nil {
					f = *rec.Skeleton
				}
				onSkeleton(f)
			}
		default:
			return n, fmt.Errorf("unknown record kind %q in frame %d", rec.Kind, n)
		}
		n++
	}
}

func (p *Replay) reader() (io.ReadCloser, error) {
	if p.open != nil {
		return p.open()
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording %s: %w", p.Path, err)
	}
	return f, nil
}
