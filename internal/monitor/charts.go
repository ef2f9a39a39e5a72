package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// gridPoints samples a row-major byte grid with the given stride. Row 0 is
// drawn at the top.
func gridPoints(width, height, stride int, at func(i int) byte) []opts.ScatterData {
	if stride < 1 {
		stride = 1
	}
	data := make([]opts.ScatterData, 0, (width/stride+1)*(height/stride+1))
	for y := 0; y < height; y += stride {
		for x := 0; x < width; x += stride {
			data = append(data, opts.ScatterData{Value: []interface{}{x, height - 1 - y, int(at(y*width + x))}})
		}
	}
	return data
}

func queryStride(r *http.Request, width int) int {
	// about 80 columns by default
	def := 1
	if s := width / 80; s > 1 {
		def = s
	}
	return httputil.QueryInt(r, "stride", def, 64)
}

func gridScatter(title, subtitle string, width, height int) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "960px", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: width, Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: height, Name: "y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        255,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	return scatter
}

func (ws *WebServer) render(w http.ResponseWriter, c components.Charter) {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(c)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleEnvelopeChart renders the calibrated envelope. Query params:
//   - bound: "max" (default) or "min"
//   - stride: pixel step on both axes
func (ws *WebServer) handleEnvelopeChart(w http.ResponseWriter, r *http.Request) {
	env := ws.runtime.Envelope()
	if env == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no envelope calibrated")
		return
	}
	values := env.Max
	bound := r.URL.Query().Get("bound")
	switch bound {
	case "", "max":
		bound = "max"
	case "min":
		values = env.Min
	default:
		httputil.WriteJSONError(w, http.StatusBadRequest, "bound must be min or max")
		return
	}

	stride := queryStride(r, env.Width)
	data := gridPoints(env.Width, env.Height, stride, func(i int) byte { return values[i] })
	scatter := gridScatter("Depth Envelope",
		fmt.Sprintf("bound=%s %dx%d stride=%d", bound, env.Width, env.Height, stride), env.Width, env.Height)
	scatter.AddSeries("envelope "+bound, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	ws.render(w, scatter)
}

// handleIntensityChart renders the most recent foreground mask with the
// person's centroid overlaid.
func (ws *WebServer) handleIntensityChart(w http.ResponseWriter, r *http.Request) {
	ws.mu.Lock()
	grid := ws.intensity
	centroid := ws.centroid
	ws.mu.Unlock()
	if grid == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no segmented frame yet")
		return
	}

	stride := queryStride(r, grid.Width)
	data := gridPoints(grid.Width, grid.Height, stride, func(i int) byte { return grid.Pix[i] })
	subtitle := fmt.Sprintf("%dx%d stride=%d", grid.Width, grid.Height, stride)
	if centroid != nil {
		subtitle += fmt.Sprintf(" centroid=(%.2f, %.2f)", centroid.X, centroid.Y)
	}
	scatter := gridScatter("Foreground Mask", subtitle, grid.Width, grid.Height)
	scatter.AddSeries("mask", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	if centroid != nil {
		scatter.AddSeries("centroid", []opts.ScatterData{{
			Value:      []interface{}{centroid.X * float64(grid.Width), float64(grid.Height) * (1 - centroid.Y), int(depth.ForegroundValue)},
			SymbolSize: 16,
			Symbol:     "diamond",
		}})
	}
	ws.render(w, scatter)
}

// handlePoseTimelineChart plots fall probability and torso angles for the
// recent pose results.
func (ws *WebServer) handlePoseTimelineChart(w http.ResponseWriter, r *http.Request) {
	points := ws.Timeline()
	if len(points) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no pose results yet")
		return
	}

	x := make([]string, len(points))
	fall := make([]opts.LineData, len(points))
	left := make([]opts.LineData, len(points))
	right := make([]opts.LineData, len(points))
	tilt := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = p.At.Format("15:04:05.000")
		fall[i] = opts.LineData{Value: 100 * p.Result.FallProbability, Name: p.Result.Label}
		left[i] = opts.LineData{Value: p.Result.Metrics.LeftAngle}
		right[i] = opts.LineData{Value: p.Result.Metrics.RightAngle}
		tilt[i] = opts.LineData{Value: p.Result.Metrics.TorsoTilt}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Pose Timeline", Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Pose Timeline", Subtitle: fmt.Sprintf("%d results since %s", len(points), points[0].At.Format(time.RFC3339))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "degrees / %"}),
	)
	line.SetXAxis(x).
		AddSeries("fall probability (%)", fall).
		AddSeries("left angle", left).
		AddSeries("right angle", right).
		AddSeries("torso tilt", tilt)
	ws.render(w, line)
}
