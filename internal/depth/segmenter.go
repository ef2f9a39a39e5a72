package depth

import (
	"fmt"
	"strings"
)

// Mode selects how a pixel is classified as foreground.
type Mode int

const (
	// ModePlayerIndex trusts the sensor's per-pixel body index.
	ModePlayerIndex Mode = iota
	// ModeEnvelope compares intensity against the calibrated envelope.
	ModeEnvelope
	// ModeCombined requires both a body index and an out-of-envelope value.
	ModeCombined
)

func (m Mode) String() string {
	switch m {
	case ModePlayerIndex:
		return "player_index"
	case ModeEnvelope:
		return "envelope"
	case ModeCombined:
		return "combined"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts a config name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "player_index":
		return ModePlayerIndex, nil
	case "envelope":
		return ModeEnvelope, nil
	case "combined":
		return ModeCombined, nil
	}
	return ModePlayerIndex, fmt.Errorf("unknown segmentation mode %q", s)
}

// Saturated grid values written for classified pixels.
const (
	ForegroundValue byte = 255
	BackgroundValue byte = 0
)

// SegmenterConfig holds segmentation tunables.
type SegmenterConfig struct {
	Mode Mode
	// EnvelopeTolerance widens the calibrated range on both sides.
	EnvelopeTolerance int
	// ArtifactIntensity is the value above which a pixel is treated as a
	// transient artefact in envelope modes.
	ArtifactIntensity int
}

// DefaultSegmenterConfig returns the player-index configuration with the
// envelope thresholds used when an envelope mode is selected.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		Mode:              ModePlayerIndex,
		EnvelopeTolerance: 10,
		ArtifactIntensity: 250,
	}
}

// Validate checks the configuration.
func (c SegmenterConfig) Validate() error {
	if c.Mode < ModePlayerIndex || c.Mode > ModeCombined {
		return fmt.Errorf("invalid segmentation mode %d", int(c.Mode))
	}
	if c.EnvelopeTolerance < 0 || c.EnvelopeTolerance > 255 {
		return fmt.Errorf("envelope_tolerance must be in [0,255], got %d", c.EnvelopeTolerance)
	}
	if c.ArtifactIntensity < 0 || c.ArtifactIntensity > 255 {
		return fmt.Errorf("artifact_intensity must be in [0,255], got %d", c.ArtifactIntensity)
	}
	return nil
}

// Centroid is the mean foreground pixel position normalized to [0,1] on
// both axes, together with its projection into the colour image.
type Centroid struct {
	X, Y  float64
	Color ColorPoint
}

// Result is the outcome of segmenting one frame.
type Result struct {
	Sequence uint64
	// Intensity holds ForegroundValue/BackgroundValue per pixel. It is owned
	// by the producer and valid until the second following frame.
	Intensity *IntensityGrid
	// Foreground is false when no pixel was classified as foreground. In
	// that case Centroid carries the last known centroid, if any.
	Foreground       bool
	ForegroundPixels int
	Centroid         Centroid
	HasCentroid      bool
	// Color is the colour frame passed to Segment with its background
	// blanked, or nil when none was supplied.
	Color *ColorImage
}

// Segmenter classifies live frames against an optional envelope.
type Segmenter struct {
	cfg    SegmenterConfig
	mapper CoordinateMapper
}

// NewSegmenter returns a segmenter. mapper may be nil when no colour
// image is being masked; the centroid is then reported without a colour
// projection.
func NewSegmenter(cfg SegmenterConfig, mapper CoordinateMapper) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{cfg: cfg, mapper: mapper}, nil
}

// Config returns the active configuration.
func (s *Segmenter) Config() SegmenterConfig {
	return s.cfg
}

// Segment classifies every pixel of f, writes the saturated mask into dst
// and blanks background pixels of color when it is non-nil. env is
// required for the envelope modes.
func (s *Segmenter) Segment(f Frame, env *Envelope, dst *IntensityGrid, color *ColorImage) (Result, error) {
	if err := f.Validate(); err != nil {
		return Result{}, err
	}
	if s.cfg.Mode != ModePlayerIndex {
		if env == nil {
			return Result{}, fmt.Errorf("segmentation mode %s requires an envelope", s.cfg.Mode)
		}
		if !env.matches(f) {
			return Result{}, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrResolutionMismatch, f.Width, f.Height, env.Width, env.Height)
		}
	}
	dst.resize(f.Width, f.Height)

	masking := color != nil && s.mapper != nil
	var sumX, sumY, count int
	for i := 0; i < f.Pixels(); i++ {
		x := i % f.Width
		y := i / f.Width
		sample := DecodeSample(f.Data[2*i], f.Data[2*i+1])

		if s.isForeground(i, sample, env) {
			count++
			sumX += x
			sumY += y
			dst.Pix[i] = ForegroundValue
			continue
		}

		dst.Pix[i] = BackgroundValue
		if masking {
			cp := s.mapper.DepthToColor(DepthPoint{X: x, Y: y})
			color.blank(cp.X, cp.Y)
		}
	}

	res := Result{
		Sequence:         f.Sequence,
		Intensity:        dst,
		Foreground:       count > 0,
		ForegroundPixels: count,
		Color:            color,
	}
	if count > 0 {
		mx := float64(sumX) / float64(count)
		my := float64(sumY) / float64(count)
		res.Centroid = Centroid{X: mx / float64(f.Width), Y: my / float64(f.Height)}
		if s.mapper != nil {
			res.Centroid.Color = s.mapper.DepthToColor(DepthPoint{X: int(mx), Y: int(my)})
		}
		res.HasCentroid = true
	}
	return res, nil
}

func (s *Segmenter) isForeground(i int, sample Sample, env *Envelope) bool {
	switch s.cfg.Mode {
	case ModeEnvelope:
		return s.outsideEnvelope(i, sample, env)
	case ModeCombined:
		return sample.PlayerIndex > 0 && s.outsideEnvelope(i, sample, env)
	default:
		return sample.PlayerIndex > 0
	}
}

func (s *Segmenter) outsideEnvelope(i int, sample Sample, env *Envelope) bool {
	v := Intensity(sample.Distance)
	if int(v) > s.cfg.ArtifactIntensity {
		return false
	}
	return !env.Contains(i, v, s.cfg.EnvelopeTolerance)
}
