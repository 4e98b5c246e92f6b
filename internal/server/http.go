package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/livecaption/internal/caption"
	"github.com/skypro1111/livecaption/internal/config"
	"github.com/skypro1111/livecaption/internal/metrics"
	"github.com/skypro1111/livecaption/internal/stream"
	"github.com/skypro1111/livecaption/internal/vad"
)

const serviceName = "livecaption"

// PipelineStatser reports pipeline statistics
type PipelineStatser interface {
	GetStats() stream.PipelineStats
}

// Transcript gives read access to the transcript file
type Transcript interface {
	Contents() (string, error)
	GetStats() caption.SinkStats
}

// DetectorStatser reports voice activity detector statistics
type DetectorStatser interface {
	GetStats() vad.EnergyStats
}

// CaptionHub serves websocket subscribers
type CaptionHub interface {
	http.Handler
	Clients() int
}

// Deps are the components exposed over HTTP. Nil members are reported as
// absent.
type Deps struct {
	Config     *config.Config
	Pipeline   PipelineStatser
	Transcript Transcript
	Hub        CaptionHub
	Detector   DetectorStatser
	// SourceStats returns source specific statistics
	SourceStats func() any
	Gatherer    prometheus.Gatherer
}

// HTTPServer provides HTTP API endpoints for monitoring and caption access
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	deps    Deps
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, deps Deps, logger *slog.Logger, m *metrics.Metrics) *HTTPServer {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger,
		deps:      deps,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	// No WriteTimeout: websocket connections outlive any fixed deadline
	h.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Address, fmt.Sprint(cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/transcript", h.withMetrics("/transcript", h.handleTranscript))

	mux.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))

	// The upgrade needs the raw ResponseWriter, so no metrics wrapper
	if h.deps.Hub != nil {
		mux.Handle("/ws/captions", h.deps.Hub)
	}

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, fmt.Sprint(ww.statusCode), time.Since(startTime).Seconds())

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start listens in the background. Listen errors are returned; serve errors
// are logged.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "healthy"
	components := map[string]any{}

	if h.deps.Pipeline != nil {
		stats := h.deps.Pipeline.GetStats()
		components["pipeline"] = map[string]any{
			"running":      stats.Running,
			"state":        stats.Controller.State,
			"queue_length": stats.QueueLength,
		}
		if !stats.Running {
			status = "stopped"
		}
	}
	if h.deps.Hub != nil {
		components["captions_ws"] = map[string]any{"clients": h.deps.Hub.Clients()}
	}

	writeJSON(w, map[string]any{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
		"service":    serviceName,
		"components": components,
	})
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	}
	if h.deps.Pipeline != nil {
		stats["pipeline"] = h.deps.Pipeline.GetStats()
	}
	if h.deps.SourceStats != nil {
		stats["source"] = h.deps.SourceStats()
	}
	if h.deps.Detector != nil {
		stats["vad"] = h.deps.Detector.GetStats()
	}
	if h.deps.Transcript != nil {
		stats["transcript"] = h.deps.Transcript.GetStats()
	}
	if h.deps.Hub != nil {
		stats["captions_ws"] = map[string]any{"clients": h.deps.Hub.Clients()}
	}

	writeJSON(w, stats)
}

func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Config == nil {
		http.Error(w, "Configuration unavailable", http.StatusNotFound)
		return
	}

	writeJSON(w, h.deps.Config.Sanitized())
}

// handleTranscript returns the transcript file as plain text
func (h *HTTPServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Transcript == nil {
		http.Error(w, "Transcript unavailable", http.StatusNotFound)
		return
	}

	contents, err := h.deps.Transcript.Contents()
	if err != nil {
		h.logger.Warn("Failed to read transcript", slog.String("error", err.Error()))
		http.Error(w, "Failed to read transcript", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(contents))
}

func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]any{
		"service": serviceName,
		"endpoints": map[string]string{
			"GET /":            "API documentation",
			"GET /health":      "Service health check",
			"GET /stats":       "Pipeline, source, VAD and transcript statistics",
			"GET /config":      "Service configuration without secrets",
			"GET /transcript":  "Transcript written so far",
			"GET /metrics":     "Prometheus metrics",
			"GET /ws/captions": "Live caption events over websocket",
		},
		"timestamp": time.Now().UTC(),
	})
}
