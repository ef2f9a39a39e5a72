// Package monitor serves the HTTP interface of the posture monitor: health
// and status endpoints, a live pose websocket and debug charts of the depth
// envelope and foreground mask.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/posture.report/internal/config"
	"github.com/banshee-data/posture.report/internal/db"
	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/httputil"
	"github.com/banshee-data/posture.report/internal/monitoring"
	"github.com/banshee-data/posture.report/internal/pipeline"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/timeutil"
	"github.com/banshee-data/posture.report/internal/version"
)

var logf = monitoring.Prefixed("HTTP")

// timelineCap bounds the in-memory pose history shown on the debug charts.
const timelineCap = 600

// Runtime is the part of pipeline.Runtime the web server drives.
type Runtime interface {
	Status() pipeline.Status
	Recalibrate()
	SnapshotEnvelope() (int64, error)
	Envelope() *depth.Envelope
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Runtime Runtime
	// DB is optional; without it the history endpoints return 503.
	DB    *db.DB
	Clock timeutil.Clock
	// Tuning is reported by /api/status when set.
	Tuning *config.TuningConfig
	// IntensityInterval bounds how often the live foreground mask is copied
	// for /debug/intensity.
	IntensityInterval time.Duration
}

// TimelinePoint is one pose result kept for the timeline chart.
type TimelinePoint struct {
	At     time.Time      `json:"at"`
	Result posture.Result `json:"result"`
}

// WebServer handles the HTTP interface. It is also a pipeline.Sink: pose
// results feed the websocket and the timeline, depth results the mask view.
type WebServer struct {
	address   string
	runtime   Runtime
	db        *db.DB
	tuning    *config.TuningConfig
	clock     timeutil.Clock
	hub       *Hub
	server    *http.Server
	startedAt time.Time

	intensityThrottle *monitoring.Throttle

	mu        sync.Mutex
	intensity *depth.IntensityGrid
	centroid  *depth.Centroid
	timeline  []TimelinePoint
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	if config.Runtime == nil {
		return nil, fmt.Errorf("monitor: runtime is required")
	}
	if config.Clock == nil {
		config.Clock = timeutil.RealClock{}
	}
	if config.IntensityInterval <= 0 {
		config.IntensityInterval = 200 * time.Millisecond
	}
	ws := &WebServer{
		address:           config.Address,
		runtime:           config.Runtime,
		db:                config.DB,
		tuning:            config.Tuning,
		clock:             config.Clock,
		hub:               NewHub(),
		startedAt:         config.Clock.Now(),
		intensityThrottle: monitoring.NewThrottle(config.IntensityInterval, config.Clock),
	}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws, nil
}

// Handler returns the configured routes.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Hub returns the websocket hub.
func (ws *WebServer) Hub() *Hub { return ws.hub }

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/recalibrate", ws.handleRecalibrate)
	mux.HandleFunc("/api/envelope/snapshot", ws.handleEnvelopeSnapshot)
	mux.HandleFunc("/api/poses", ws.handlePoses)
	mux.HandleFunc("/api/alerts", ws.handleAlerts)
	mux.Handle("/ws/pose", ws.hub)

	if ws.db != nil {
		// registers tsweb's /debug/ index along with tailsql and backup
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	} else {
		tsweb.Debugger(mux)
	}
	mux.HandleFunc("/debug/envelope", ws.handleEnvelopeChart)
	mux.HandleFunc("/debug/intensity", ws.handleIntensityChart)
	mux.HandleFunc("/debug/pose-timeline", ws.handlePoseTimelineChart)

	return mux, nil
}

// Start serves until ctx is done, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	logf("shutting down HTTP server...")
	ws.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}
	logf("HTTP server routine stopped")
	return nil
}

// DepthResult implements pipeline.Sink. The mask is copied at most once per
// IntensityInterval.
func (ws *WebServer) DepthResult(res depth.Result) {
	if ok, _ := ws.intensityThrottle.Allow(); !ok {
		return
	}
	grid := res.Intensity.Clone()
	var c *depth.Centroid
	if res.HasCentroid {
		cc := res.Centroid
		c = &cc
	}
	ws.mu.Lock()
	ws.intensity = grid
	ws.centroid = c
	ws.mu.Unlock()
}

// PoseResult implements pipeline.Sink.
func (ws *WebServer) PoseResult(res posture.Result) {
	p := TimelinePoint{At: ws.clock.Now(), Result: res}
	ws.mu.Lock()
	ws.timeline = append(ws.timeline, p)
	if len(ws.timeline) > timelineCap {
		ws.timeline = append(ws.timeline[:0:0], ws.timeline[len(ws.timeline)-timelineCap:]...)
	}
	ws.mu.Unlock()
	ws.hub.Broadcast(poseMessage{Type: "pose", At: p.At.UnixNano(), Result: res, Text: res.String()})
}

type poseMessage struct {
	Type   string         `json:"type"`
	At     int64          `json:"at_unix_nanos"`
	Result posture.Result `json:"result"`
	Text   string         `json:"text"`
}

// Timeline returns a copy of the recent pose results.
func (ws *WebServer) Timeline() []TimelinePoint {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]TimelinePoint(nil), ws.timeline...)
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "posture",
		"version":   version.Version,
		"git_sha":   version.Revision(),
		"timestamp": ws.clock.Now().UTC().Format(time.RFC3339),
	})
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		pipeline.Status
		Tuning           *config.TuningConfig `json:"tuning,omitempty"`
		Uptime           string               `json:"uptime"`
		WebsocketClients int                  `json:"websocket_clients"`
	}{
		Status:           ws.runtime.Status(),
		Tuning:           ws.tuning,
		Uptime:           ws.clock.Since(ws.startedAt).Round(time.Second).String(),
		WebsocketClients: ws.hub.Clients(),
	})
}

// handleRecalibrate blocks until any in-flight depth frame is done, then
// reports the new processor state.
func (ws *WebServer) handleRecalibrate(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	ws.runtime.Recalibrate()
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": ws.runtime.Status().Depth.State})
}

func (ws *WebServer) handleEnvelopeSnapshot(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	id, err := ws.runtime.SnapshotEnvelope()
	if err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"snapshot_id": id})
}

func (ws *WebServer) handlePoses(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	events, err := ws.db.RecentPoseEvents(ws.sessionID(r), httputil.QueryInt(r, "limit", 100, 10000))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("recent pose events: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (ws *WebServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	alerts, err := ws.db.RecentAlerts(ws.sessionID(r), httputil.QueryInt(r, "limit", 50, 10000))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("recent alerts: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alerts)
}

func (ws *WebServer) sessionID(r *http.Request) string {
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	return ws.runtime.Status().SessionID
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	ws.hub.Close()
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
