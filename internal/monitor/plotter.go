package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/timeutil"
)

// PosePlotter records pose results over a run and renders them as PNG
// time series once the run is over. It is a pipeline.Sink.
type PosePlotter struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	enabled   bool
	outputDir string
	startTime time.Time

	// samples per tracking ID
	samples map[int][]PoseSample
}

// PoseSample is one recorded pose result.
type PoseSample struct {
	Offset          time.Duration
	Label           string
	FallProbability float64
	Metrics         posture.Metrics
}

// NewPosePlotter returns a disabled plotter. A nil clock uses the real clock.
func NewPosePlotter(clock timeutil.Clock) *PosePlotter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PosePlotter{clock: clock, samples: make(map[int][]PoseSample)}
}

// Start initializes the plotter for a new run writing into outputDir.
func (pp *PosePlotter) Start(outputDir string) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	pp.outputDir = outputDir
	pp.enabled = true
	pp.startTime = time.Time{}
	pp.samples = make(map[int][]PoseSample)
	return nil
}

// Stop disables sampling. Call GeneratePlots to produce output files.
func (pp *PosePlotter) Stop() {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.enabled = false
}

// Sample records one result if the plotter is enabled.
func (pp *PosePlotter) Sample(r posture.Result) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if !pp.enabled {
		return
	}
	now := pp.clock.Now()
	if pp.startTime.IsZero() {
		pp.startTime = now
	}
	pp.samples[r.TrackingID] = append(pp.samples[r.TrackingID], PoseSample{
		Offset:          now.Sub(pp.startTime),
		Label:           r.Label,
		FallProbability: r.FallProbability,
		Metrics:         r.Metrics,
	})
}

// DepthResult implements pipeline.Sink.
func (pp *PosePlotter) DepthResult(depth.Result) {}

// PoseResult implements pipeline.Sink.
func (pp *PosePlotter) PoseResult(r posture.Result) { pp.Sample(r) }

// SampleCount returns the total number of samples collected.
func (pp *PosePlotter) SampleCount() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	n := 0
	for _, s := range pp.samples {
		n += len(s)
	}
	return n
}

// OutputDir returns the current output directory.
func (pp *PosePlotter) OutputDir() string {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.outputDir
}

type poseSeries struct {
	name  string
	value func(PoseSample) float64
}

// GeneratePlots writes one PNG per tracking ID with a fall probability
// panel and an angles panel. It returns the number of files written.
func (pp *PosePlotter) GeneratePlots() (int, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	ids := make([]int, 0, len(pp.samples))
	for id := range pp.samples {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	written := 0
	for _, id := range ids {
		samples := pp.samples[id]
		if len(samples) == 0 {
			continue
		}
		fall := []poseSeries{{"fall probability (%)", func(s PoseSample) float64 { return 100 * s.FallProbability }}}
		angles := []poseSeries{
			{"left angle", func(s PoseSample) float64 { return s.Metrics.LeftAngle }},
			{"right angle", func(s PoseSample) float64 { return s.Metrics.RightAngle }},
			{"body floor angle", func(s PoseSample) float64 { return s.Metrics.BodyFloorAngle }},
			{"torso tilt", func(s PoseSample) float64 { return s.Metrics.TorsoTilt }},
		}
		if err := pp.savePlot(fmt.Sprintf("Skeleton %d - Fall Probability", id), "Probability (%)",
			fmt.Sprintf("skeleton_%02d_fall.png", id), samples, fall); err != nil {
			return written, fmt.Errorf("skeleton %d: %w", id, err)
		}
		written++
		if err := pp.savePlot(fmt.Sprintf("Skeleton %d - Angles", id), "Angle (deg)",
			fmt.Sprintf("skeleton_%02d_angles.png", id), samples, angles); err != nil {
			return written, fmt.Errorf("skeleton %d: %w", id, err)
		}
		written++
	}
	return written, nil
}

func (pp *PosePlotter) savePlot(title, yLabel, name string, samples []PoseSample, series []poseSeries) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = yLabel

	colors := generateColors(len(series))
	for i, s := range series {
		pts := make(plotter.XYs, len(samples))
		for j, sample := range samples {
			pts[j] = plotter.XY{X: sample.Offset.Seconds(), Y: s.value(sample)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(pp.outputDir, name)
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// generateColors creates a palette of n distinct colors.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255), uint8(hueToRGB(p, q, h) * 255), uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// MakePlotOutputDir returns a timestamped directory under baseDir. Replays
// are grouped by recording name: <base>/<recording>/<timestamp>, live runs
// go to <base>/live_<timestamp>.
func MakePlotOutputDir(baseDir, recording string, now time.Time) string {
	ts := now.Format("20060102_150405")
	if recording != "" {
		base := filepath.Base(recording)
		name := base[:len(base)-len(filepath.Ext(base))]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}
