package depth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/posture.report/internal/monitoring"
)

var logf = monitoring.Prefixed("DepthProcessor")

// State is the depth pipeline's calibration state.
type State int

const (
	// StateAwaitingSeed waits for the frame that seeds a new envelope.
	StateAwaitingSeed State = iota
	// StateTraining accumulates frames into the envelope.
	StateTraining
	// StateReady segments live frames.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAwaitingSeed:
		return "awaiting_seed"
	case StateTraining:
		return "training"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ProcessorConfig fixes the run's depth resolution and segmentation.
type ProcessorConfig struct {
	Width     int
	Height    int
	Segmenter SegmenterConfig
}

// Validate checks the configuration.
func (c ProcessorConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid depth resolution %dx%d", c.Width, c.Height)
	}
	return c.Segmenter.Validate()
}

// Stats counts frames by outcome since the processor was created.
type Stats struct {
	State          string `json:"state"`
	Frames         uint64 `json:"frames"`
	Malformed      uint64 `json:"malformed"`
	TrainingFrames int    `json:"training_frames"`
	Segmented      uint64 `json:"segmented"`
	NoForeground   uint64 `json:"no_foreground"`
	Calibrations   uint64 `json:"calibrations"`
}

// Processor routes depth frames through calibration and segmentation.
// HandleFrame and Recalibrate are serialized: a recalibration request
// waits for an in-flight segmentation pass to finish.
type Processor struct {
	mu    sync.Mutex
	cfg   ProcessorConfig
	cal   *Calibrator
	seg   *Segmenter
	env   *Envelope
	state State

	// double-buffered output grids, swapped every segmented frame
	grids [2]*IntensityGrid
	next  int

	lastCentroid Centroid
	hasCentroid  bool
	stats        Stats

	onCalibrated func(*Envelope)
}

// NewProcessor returns a processor awaiting its first seed frame.
func NewProcessor(cfg ProcessorConfig, mapper CoordinateMapper) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seg, err := NewSegmenter(cfg.Segmenter, mapper)
	if err != nil {
		return nil, err
	}
	return &Processor{
		cfg:   cfg,
		cal:   NewCalibrator(),
		seg:   seg,
		state: StateAwaitingSeed,
		grids: [2]*IntensityGrid{
			NewIntensityGrid(cfg.Width, cfg.Height),
			NewIntensityGrid(cfg.Width, cfg.Height),
		},
	}, nil
}

// OnCalibrated registers a callback receiving a copy of every completed
// envelope. It runs on the frame handler's goroutine after the lock is
// released.
func (p *Processor) OnCalibrated(fn func(*Envelope)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCalibrated = fn
}

// HandleFrame consumes one depth frame. ready is false while the envelope
// is still being learned; res is only meaningful when ready is true.
// Malformed frames are counted and returned as errors wrapping
// ErrMalformedFrame.
func (p *Processor) HandleFrame(f Frame, color *ColorImage) (res Result, ready bool, err error) {
	var completed *Envelope
	var callback func(*Envelope)

	res, ready, completed, err = p.handleLocked(f, color)
	if completed != nil {
		p.mu.Lock()
		callback = p.onCalibrated
		p.mu.Unlock()
		if callback != nil {
			callback(completed)
		}
	}
	return res, ready, err
}

func (p *Processor) handleLocked(f Frame, color *ColorImage) (Result, bool, *Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Frames++
	if f.Width != p.cfg.Width || f.Height != p.cfg.Height {
		p.stats.Malformed++
		return Result{}, false, nil, fmt.Errorf("%w: %dx%d frame on a %dx%d pipeline", ErrMalformedFrame, f.Width, f.Height, p.cfg.Width, p.cfg.Height)
	}
	if err := f.Validate(); err != nil {
		p.stats.Malformed++
		return Result{}, false, nil, err
	}

	switch p.state {
	case StateAwaitingSeed:
		if err := p.cal.Start(f); err != nil {
			return Result{}, false, nil, err
		}
		p.state = StateTraining
		logf("calibration seeded from frame %d", f.Sequence)
		return Result{}, false, nil, nil

	case StateTraining:
		if err := p.cal.Accumulate(f); err != nil {
			return Result{}, false, nil, err
		}
		if !p.cal.Ready() {
			return Result{}, false, nil, nil
		}
		p.env = p.cal.Envelope()
		p.state = StateReady
		p.stats.Calibrations++
		logf("calibration complete after %d frames (%dx%d)", p.cal.Frames(), p.env.Width, p.env.Height)
		return Result{}, false, p.env.Clone(), nil
	}

	dst := p.grids[p.next]
	p.next ^= 1
	res, err := p.seg.Segment(f, p.env, dst, color)
	if err != nil {
		if errors.Is(err, ErrMalformedFrame) {
			p.stats.Malformed++
		}
		return Result{}, false, nil, err
	}
	p.stats.Segmented++
	if res.Foreground {
		p.lastCentroid = res.Centroid
		p.hasCentroid = true
	} else {
		p.stats.NoForeground++
		res.Centroid = p.lastCentroid
		res.HasCentroid = p.hasCentroid
	}
	return res, true, nil, nil
}

// Recalibrate discards the current envelope. The next frame seeds a new
// calibration run. It blocks until any in-flight frame is done.
func (p *Processor) Recalibrate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cal.Reset()
	p.env = nil
	p.state = StateAwaitingSeed
	logf("recalibration requested")
}

// State returns the current calibration state.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Envelope returns a copy of the active envelope, or nil before the first
// calibration completes.
func (p *Processor) Envelope() *Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env.Clone()
}

// Stats returns a snapshot of the frame counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.State = p.state.String()
	s.TrainingFrames = p.cal.Frames()
	return s
}
