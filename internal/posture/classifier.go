// Package posture turns tracked skeletons into a discrete pose label and a
// heuristic fall score.
package posture

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/banshee-data/posture.report/internal/skeleton"
)

// Pose labels.
const (
	LabelLeftHandRaised   = "left hand raised"
	LabelRightHandRaised  = "right hand raised"
	LabelBothHandsRaised  = "both hands raised"
	LabelSleeping         = "Sleeping"
	LabelConcentrating    = "Concentrating"
	LabelNonConcentrating = "Non concentrating"
	LabelUndefinedSitting = "Undefined sitting pose"
	LabelSitting          = "Sitting pose"
	LabelStanding         = "Standing pose"
)

// Mode selects the label set used when no hand is raised.
type Mode int

const (
	// ModeActivity buckets the combined leg angle into activity labels.
	ModeActivity Mode = iota
	// ModeStance only distinguishes sitting from standing.
	ModeStance
)

func (m Mode) String() string {
	switch m {
	case ModeActivity:
		return "activity"
	case ModeStance:
		return "stance"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses a Mode name. The empty string selects ModeActivity.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "activity":
		return ModeActivity, nil
	case "stance":
		return ModeStance, nil
	}
	return 0, fmt.Errorf("unknown classifier mode %q", s)
}

// Config holds the classifier tunables.
type Config struct {
	ConfidenceAngle float64 // degrees
	// StandPoseFactor is reported but does not gate any branch.
	StandPoseFactor float64
	AutomaticChoice bool
	AngleShift      float64 // degrees
	Debug           bool
	Mode            Mode
	FloorThreshold  float64
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		ConfidenceAngle: 5,
		StandPoseFactor: 1.1,
		FloorThreshold:  skeleton.DefaultFloorThreshold,
	}
}

// Validate checks the tunables.
func (c Config) Validate() error {
	if c.ConfidenceAngle < 0 || math.IsNaN(c.ConfidenceAngle) {
		return fmt.Errorf("confidence angle must be non-negative, got %v", c.ConfidenceAngle)
	}
	if c.StandPoseFactor <= 0 {
		return fmt.Errorf("stand pose factor must be positive, got %v", c.StandPoseFactor)
	}
	if math.IsNaN(c.AngleShift) || math.IsInf(c.AngleShift, 0) {
		return fmt.Errorf("invalid angle shift %v", c.AngleShift)
	}
	if c.Mode != ModeActivity && c.Mode != ModeStance {
		return fmt.Errorf("invalid classifier mode %d", int(c.Mode))
	}
	return nil
}

// Metrics are the per-frame measurements behind a classification.
type Metrics struct {
	LeftAngle            float64 `json:"left_angle"`
	RightAngle           float64 `json:"right_angle"`
	BodyFloorAngle       float64 `json:"body_floor_angle"`
	HipsKneesHigh        float64 `json:"hips_knees_high"`
	HeadHigh             float64 `json:"head_high"`
	HeadDistance         float64 `json:"head_distance"`
	BaselineHeadDistance float64 `json:"baseline_head_distance"`
	BodyPercentage       float64 `json:"body_percentage"`
	TorsoTilt            float64 `json:"torso_tilt"`
	HipCenterX           float64 `json:"hip_center_x"`
	HipCenterY           float64 `json:"hip_center_y"`
	HipCenterZ           float64 `json:"hip_center_z"`
}

// Result is the classification of one skeleton.
type Result struct {
	TrackingID      int     `json:"tracking_id"`
	Label           string  `json:"label"`
	FallProbability float64 `json:"fall_probability"`
	Metrics         Metrics `json:"metrics"`
	debug           bool
}

// String renders the label and fall score, plus the metrics when the
// classifier runs in debug mode.
func (r Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Falling probability = %.0f%%.", r.Label, 100*r.FallProbability)
	if r.debug {
		m := r.Metrics
		fmt.Fprintf(&b, "  Angle L-R: %.3f-%.3f torso:X %.3f, Y %.3f, Z %.3f HeadDistance I/t: %.3f/ %.3f BodyFloorAngle=%.3f HipsKneesHigh=%.3f HeadHigh=%.3f",
			m.LeftAngle, m.RightAngle, m.HipCenterX, m.HipCenterY, m.HipCenterZ,
			m.BaselineHeadDistance, m.HeadDistance, m.BodyFloorAngle, m.HipsKneesHigh, m.HeadHigh)
	}
	return b.String()
}

// Raised reports whether the label is one of the hand-raise labels.
func (r Result) Raised() bool {
	switch r.Label {
	case LabelLeftHandRaised, LabelRightHandRaised, LabelBothHandsRaised:
		return true
	}
	return false
}

// Classifier labels skeletons. The head-distance baseline is latched on the
// first non-zero observation and kept for the classifier's lifetime.
type Classifier struct {
	cfg Config

	mu       sync.Mutex
	baseline float64
}

// NewClassifier validates cfg and returns a classifier.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

// Config returns the classifier's tunables.
func (c *Classifier) Config() Config { return c.cfg }

// BaselineHeadDistance returns the latched head norm, 0 until one is seen.
func (c *Classifier) BaselineHeadDistance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseline
}

// Classify labels s. It returns false, without reading any joint, when s is
// not tracked.
func (c *Classifier) Classify(s *skeleton.Skeleton) (Result, bool) {
	if !s.Tracked() {
		return Result{}, false
	}

	m := Measure(s, c.cfg.FloorThreshold)
	c.mu.Lock()
	if c.baseline == 0 {
		c.baseline = m.HeadDistance
	}
	m.BaselineHeadDistance = c.baseline
	c.mu.Unlock()

	res := Result{
		TrackingID:      s.TrackingID,
		Label:           c.label(s, m),
		FallProbability: FallProbability(m.HeadHigh, m.BodyPercentage, m.TorsoTilt),
		Metrics:         m,
		debug:           c.cfg.Debug,
	}
	return res, true
}

// Measure computes the metrics of s.
func Measure(s *skeleton.Skeleton, floorY float64) Metrics {
	hip := s.Pos(skeleton.HipCenter)
	return Metrics{
		LeftAngle:      skeleton.AngleBetween(s.Pos(skeleton.ShoulderRight), s.Pos(skeleton.HipLeft), s.Pos(skeleton.KneeLeft)),
		RightAngle:     skeleton.AngleBetween(s.Pos(skeleton.ShoulderLeft), s.Pos(skeleton.HipRight), s.Pos(skeleton.KneeRight)),
		BodyFloorAngle: skeleton.BodyFloorAngle(s),
		HipsKneesHigh:  skeleton.HipsKneesHigh(s),
		HeadHigh:       skeleton.HeadHigh(s),
		HeadDistance:   skeleton.VectorNorm(s.Pos(skeleton.Head)),
		BodyPercentage: skeleton.BodyPercentage(s, floorY),
		TorsoTilt:      skeleton.TorsoTilt(s),
		HipCenterX:     hip.X,
		HipCenterY:     hip.Y,
		HipCenterZ:     hip.Z,
	}
}

// Skeleton space is Y-up: a hand counts as raised when its Y is greater
// than the head's.
func (c *Classifier) label(s *skeleton.Skeleton, m Metrics) string {
	head := s.Pos(skeleton.Head).Y
	left := s.Pos(skeleton.HandLeft).Y > head
	right := s.Pos(skeleton.HandRight).Y > head
	switch {
	case left && right:
		return LabelBothHandsRaised
	case left:
		return LabelLeftHandRaised
	case right:
		return LabelRightHandRaised
	}

	if math.Abs(m.RightAngle-m.LeftAngle) >= c.cfg.ConfidenceAngle {
		if c.cfg.Mode == ModeStance {
			return LabelStanding
		}
		return LabelUndefinedSitting
	}
	if c.cfg.Mode == ModeStance {
		return LabelSitting
	}

	angle := (m.LeftAngle + m.RightAngle) / 2
	if c.cfg.AutomaticChoice {
		// nearer shoulder wins
		if skeleton.VectorNorm(s.Pos(skeleton.ShoulderLeft)) > skeleton.VectorNorm(s.Pos(skeleton.ShoulderRight)) {
			angle = m.RightAngle
		} else {
			angle = m.LeftAngle
		}
	}
	return Bucket(angle - c.cfg.AngleShift)
}

// Bucket maps a shifted leg angle to an activity label.
func Bucket(angle float64) string {
	switch {
	case angle < 40:
		return LabelSleeping
	case angle >= 80 && angle <= 100:
		return LabelConcentrating
	default:
		return LabelNonConcentrating
	}
}
