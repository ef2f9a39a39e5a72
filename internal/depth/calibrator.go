package depth

import (
	"errors"
	"fmt"
)

// CalibrationFrames is the number of frames accumulated after the seed
// frame before the envelope is considered learned.
const CalibrationFrames = 100

var (
	// ErrNotCalibrating is returned by Accumulate before Start.
	ErrNotCalibrating = errors.New("calibration not started")
	// ErrCalibrationComplete is returned by Accumulate once the envelope is
	// ready. Further frames belong to the segmenter.
	ErrCalibrationComplete = errors.New("calibration already complete")
	// ErrResolutionMismatch is returned when a frame does not match the
	// resolution the envelope was seeded with.
	ErrResolutionMismatch = errors.New("frame resolution does not match envelope")
)

// Envelope is the learned per-pixel background range.
type Envelope struct {
	Width  int
	Height int
	Min    []byte
	Max    []byte
}

// Clone returns a deep copy.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	c := &Envelope{
		Width:  e.Width,
		Height: e.Height,
		Min:    make([]byte, len(e.Min)),
		Max:    make([]byte, len(e.Max)),
	}
	copy(c.Min, e.Min)
	copy(c.Max, e.Max)
	return c
}

// Contains reports whether v lies within the envelope at pixel i widened
// by tolerance on both sides.
func (e *Envelope) Contains(i int, v byte, tolerance int) bool {
	lo := int(e.Min[i]) - tolerance
	hi := int(e.Max[i]) + tolerance
	iv := int(v)
	return iv > lo && iv < hi
}

func (e *Envelope) matches(f Frame) bool {
	return e.Width == f.Width && e.Height == f.Height
}

// Calibrator builds an Envelope from one seed frame followed by exactly
// CalibrationFrames accumulated frames. It is not safe for concurrent use;
// Processor serializes access.
type Calibrator struct {
	env      *Envelope
	scratch  IntensityGrid
	frames   int
	started  bool
	complete bool
}

// NewCalibrator returns an idle calibrator.
func NewCalibrator() *Calibrator {
	return &Calibrator{}
}

// Start discards any previous envelope and seeds a new one with the
// intensity map of seed.
func (c *Calibrator) Start(seed Frame) error {
	if err := IntensityMap(seed, &c.scratch); err != nil {
		return err
	}
	env := &Envelope{
		Width:  seed.Width,
		Height: seed.Height,
		Min:    make([]byte, len(c.scratch.Pix)),
		Max:    make([]byte, len(c.scratch.Pix)),
	}
	copy(env.Min, c.scratch.Pix)
	copy(env.Max, c.scratch.Pix)

	c.env = env
	c.frames = 0
	c.started = true
	c.complete = false
	return nil
}

// Accumulate widens the envelope with f. It returns ErrCalibrationComplete
// once CalibrationFrames frames have been accumulated.
func (c *Calibrator) Accumulate(f Frame) error {
	if !c.started {
		return ErrNotCalibrating
	}
	if c.complete {
		return ErrCalibrationComplete
	}
	if !c.env.matches(f) {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrResolutionMismatch, f.Width, f.Height, c.env.Width, c.env.Height)
	}
	if err := IntensityMap(f, &c.scratch); err != nil {
		return err
	}

	for i, v := range c.scratch.Pix {
		if v > c.env.Max[i] {
			c.env.Max[i] = v
		}
		if v < c.env.Min[i] {
			c.env.Min[i] = v
		}
	}

	c.frames++
	if c.frames >= CalibrationFrames {
		c.complete = true
	}
	return nil
}

// Ready reports whether the envelope has been fully learned.
func (c *Calibrator) Ready() bool {
	return c.complete
}

// Calibrating reports whether a run is in progress.
func (c *Calibrator) Calibrating() bool {
	return c.started && !c.complete
}

// Frames returns the number of frames accumulated in the current run,
// excluding the seed.
func (c *Calibrator) Frames() int {
	return c.frames
}

// Envelope returns a copy of the learned envelope, or nil until Ready.
func (c *Calibrator) Envelope() *Envelope {
	if !c.complete {
		return nil
	}
	return c.env.Clone()
}

// Reset drops the envelope and returns the calibrator to idle.
func (c *Calibrator) Reset() {
	c.env = nil
	c.frames = 0
	c.started = false
	c.complete = false
}
