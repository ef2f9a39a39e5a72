package sensor

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/skeleton"
	"github.com/banshee-data/posture.report/internal/timeutil"
)

// Scene phases played in order by Synthetic once the room is empty for
// calibration.
const (
	PhaseEmpty = iota
	PhaseConcentrating
	PhaseRightHandRaised
	PhaseBothHandsRaised
	PhaseLeaningBack
	PhaseFallen
	phaseCount
)

// Synthetic generates a deterministic room: an empty scene long enough to
// calibrate, then one person cycling through seated poses and a fall.
type Synthetic struct {
	Width, Height int
	FrameRate     float64 // frames per second
	// PhaseFrames is how many frames each scripted pose lasts.
	PhaseFrames int
	// Frames stops the source after this many ticks. Zero runs until ctx
	// is done.
	Frames int
	Clock  timeutil.Clock
	// ColorWidth and ColorHeight size the colour frames. Colour is only
	// rendered once OnColor has registered a callback.
	ColorWidth, ColorHeight int

	onColor func(*depth.ColorImage)
}

// NewSynthetic returns a 30 fps scene at the given depth resolution.
func NewSynthetic(width, height int) *Synthetic {
	return &Synthetic{
		Width:       width,
		Height:      height,
		FrameRate:   30,
		PhaseFrames: 90,
		Clock:       timeutil.RealClock{},
		ColorWidth:  2 * width,
		ColorHeight: 2 * height,
	}
}

// OnColor implements ColorSource.
func (g *Synthetic) OnColor(fn func(*depth.ColorImage)) {
	g.onColor = fn
}

// Run implements Source.
func (g *Synthetic) Run(ctx context.Context, onDepth func(depth.Frame), onSkeleton func(skeleton.Frame)) error {
	clock := g.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	rate := g.FrameRate
	if rate <= 0 {
		rate = 30
	}
	ticker := clock.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	logf("synthetic scene %dx%d at %.0f fps", g.Width, g.Height, rate)
	for i := 0; g.Frames == 0 || i < g.Frames; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			if g.onColor != nil && g.ColorWidth > 0 && g.ColorHeight > 0 {
				g.onColor(g.ColorFrame(i))
			}
			if onDepth != nil {
				onDepth(g.DepthFrame(i))
			}
			if onSkeleton != nil {
				f := g.SkeletonFrame(i)
				f.Timestamp = now
				onSkeleton(f)
			}
		}
	}
	return nil
}

// Phase returns the scripted pose at frame i. The first
// depth.CalibrationFrames+1 frames are always empty.
func (g *Synthetic) Phase(i int) int {
	warmup := depth.CalibrationFrames + 1
	if i < warmup {
		return PhaseEmpty
	}
	per := g.PhaseFrames
	if per <= 0 {
		per = 90
	}
	return PhaseConcentrating + ((i-warmup)/per)%(phaseCount-PhaseConcentrating)
}

// DepthFrame renders frame i: a back wall, brighter towards the centre,
// and the person as a block of player index 1 drifting side to side.
func (g *Synthetic) DepthFrame(i int) depth.Frame {
	data := make([]byte, g.Width*g.Height*2)
	phase := g.Phase(i)

	bw, bh := g.Width/5, g.Height/2
	if phase == PhaseFallen {
		bw, bh = g.Height/2, g.Height/6
	}
	cx := g.Width/2 + int(float64(g.Width/8)*math.Sin(float64(i)/45))
	x0, y0 := cx-bw/2, g.Height-bh-g.Height/10

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			dist := uint16(3000 + 4*absInt(x-g.Width/2))
			var pi uint8
			if phase != PhaseEmpty && x >= x0 && x < x0+bw && y >= y0 && y < y0+bh {
				pi, dist = 1, 2000
			}
			k := y*g.Width + x
			data[2*k], data[2*k+1] = depth.EncodeSample(pi, dist)
		}
	}
	return depth.Frame{Width: g.Width, Height: g.Height, Data: data, Sequence: uint64(i)}
}

// ColorFrame renders the BGRA colour frame for frame i: a warm wall
// gradient with an opaque alpha channel. No pixel is black, so blanked
// background stands out.
func (g *Synthetic) ColorFrame(i int) *depth.ColorImage {
	c := depth.NewColorImage(g.ColorWidth, g.ColorHeight, 4)
	shade := byte(i % 32)
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			off := (y*c.Width + x) * 4
			c.Pix[off] = 40 + shade
			c.Pix[off+1] = byte(80 + 100*y/c.Height)
			c.Pix[off+2] = byte(120 + 100*x/c.Width)
			c.Pix[off+3] = 255
		}
	}
	return c
}

// SkeletonFrame returns the skeleton frame for frame i. The empty phase
// has no tracked body.
func (g *Synthetic) SkeletonFrame(i int) skeleton.Frame {
	f := skeleton.Frame{Sequence: uint64(i)}
	phase := g.Phase(i)
	if phase == PhaseEmpty {
		return f
	}
	f.Skeletons = []skeleton.Skeleton{Pose(phase)}
	return f
}

// Pose builds the skeleton of a scripted phase, seated two metres from
// the sensor. Resting hands lie in the lap, raised hands above the head.
func Pose(phase int) skeleton.Skeleton {
	s := skeleton.Skeleton{TrackingID: 1, State: skeleton.Tracked}
	const z = 2.0

	if phase == PhaseFallen {
		// lying along X on the floor
		floor := -0.9
		for j := skeleton.JointID(0); j < skeleton.JointCount; j++ {
			s.Set(j, r3.Vec{X: -0.8 + 0.08*float64(j), Y: floor, Z: z})
		}
		s.Set(skeleton.Spine, r3.Vec{X: 0.2, Y: floor, Z: z})
		s.Set(skeleton.HipCenter, r3.Vec{X: 0, Y: floor, Z: z})
		s.Set(skeleton.KneeLeft, r3.Vec{X: -0.45, Y: floor, Z: z - 0.05})
		s.Set(skeleton.KneeRight, r3.Vec{X: -0.45, Y: floor, Z: z + 0.05})
		s.Set(skeleton.Head, r3.Vec{X: 0.8, Y: floor, Z: z})
		s.Set(skeleton.HandLeft, r3.Vec{X: 0.3, Y: floor, Z: z - 0.3})
		s.Set(skeleton.HandRight, r3.Vec{X: 0.3, Y: floor, Z: z + 0.3})
		return s
	}

	hipY := -0.3
	lean := 0.0 // shoulder offset towards the sensor
	if phase == PhaseLeaningBack {
		lean = 0.25
	}
	head := r3.Vec{Y: hipY + 0.75, Z: z + lean}
	s.Set(skeleton.Head, head)
	s.Set(skeleton.ShoulderCenter, r3.Vec{Y: hipY + 0.55, Z: z + lean})
	s.Set(skeleton.Spine, r3.Vec{Y: hipY + 0.2, Z: z + lean/3})
	s.Set(skeleton.HipCenter, r3.Vec{Y: hipY, Z: z})

	for _, side := range []float64{-1, 1} {
		hip := r3.Vec{X: 0.15 * side, Y: hipY, Z: z}
		knee := r3.Vec{X: 0.15 * side, Y: hipY, Z: z - 0.45}
		ankle := r3.Vec{X: 0.15 * side, Y: hipY - 0.45, Z: z - 0.45}
		foot := r3.Vec{X: 0.15 * side, Y: hipY - 0.5, Z: z - 0.55}
		// leg angles pair a shoulder with the opposite hip
		shoulder := r3.Vec{X: -0.15 * side, Y: hipY + 0.55, Z: z + lean}
		if side < 0 {
			s.Set(skeleton.HipLeft, hip)
			s.Set(skeleton.KneeLeft, knee)
			s.Set(skeleton.AnkleLeft, ankle)
			s.Set(skeleton.FootLeft, foot)
			s.Set(skeleton.ShoulderRight, shoulder)
		} else {
			s.Set(skeleton.HipRight, hip)
			s.Set(skeleton.KneeRight, knee)
			s.Set(skeleton.AnkleRight, ankle)
			s.Set(skeleton.FootRight, foot)
			s.Set(skeleton.ShoulderLeft, shoulder)
		}
	}

	handY := func(raised bool) float64 {
		if raised {
			return head.Y + 0.3
		}
		return hipY + 0.1
	}
	right := phase == PhaseRightHandRaised || phase == PhaseBothHandsRaised
	left := phase == PhaseBothHandsRaised
	s.Set(skeleton.ElbowLeft, r3.Vec{X: 0.3, Y: hipY + 0.3, Z: z - 0.1})
	s.Set(skeleton.ElbowRight, r3.Vec{X: -0.3, Y: hipY + 0.3, Z: z - 0.1})
	s.Set(skeleton.WristLeft, r3.Vec{X: 0.3, Y: handY(left), Z: z - 0.25})
	s.Set(skeleton.WristRight, r3.Vec{X: -0.3, Y: handY(right), Z: z - 0.25})
	s.Set(skeleton.HandLeft, r3.Vec{X: 0.3, Y: handY(left), Z: z - 0.3})
	s.Set(skeleton.HandRight, r3.Vec{X: -0.3, Y: handY(right), Z: z - 0.3})
	return s
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
