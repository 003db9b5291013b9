package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agleyzer/shaderwarm/internal/config"
	"github.com/agleyzer/shaderwarm/internal/processor"
	"github.com/agleyzer/shaderwarm/internal/report"
	"github.com/agleyzer/shaderwarm/internal/strip"
)

// StripRequest is a batch of compiler variants of one snippet.
type StripRequest struct {
	Snippet  strip.Snippet           `json:"snippet"`
	Variants []strip.CompilerVariant `json:"variants"`
}

// StripResponse lists the variants the build should compile.
type StripResponse struct {
	Kept     []strip.CompilerVariant `json:"kept"`
	Stripped int                     `json:"stripped"`
}

// Server answers strip decisions for the host build and runs processing
// batches on request.
type Server struct {
	proc       *processor.Processor
	port       int
	logger     *slog.Logger
	httpServer *http.Server

	mu       sync.RWMutex
	stripper *strip.Stripper
	settings *config.Settings
	report   *report.Writer
	lastRun  *processor.Result
	runs     int
}

// New creates a new HTTP server
func New(proc *processor.Processor, port int, logger *slog.Logger) *Server {
	return &Server{
		proc:   proc,
		port:   port,
		logger: logger,
	}
}

// Reload rebuilds the strip decision service from the stored strip list.
func (s *Server) Reload() error {
	st, settings, err := s.proc.Stripper()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stripper = st
	s.settings = settings
	s.report = report.NewWriter(settings.ReportPath)

	s.logger.Info("loaded strip list", "entries", st.Len(), "stripping", settings.StrippingEnabled)
	return nil
}

// Handler returns the server's routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /strip", s.handleStrip)
	mux.HandleFunc("POST /process", s.handleProcess)
	mux.HandleFunc("POST /reload", s.handleReload)
	mux.HandleFunc("GET /warmup", s.handleWarmup)
	mux.HandleFunc("/health", s.handleHealth)

	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	if err := s.Reload(); err != nil {
		return fmt.Errorf("load strip list: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	// Start server in a goroutine
	go func() {
		s.logger.Info("starting HTTP server", "port", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// handleStrip filters a batch of compiler variants and appends a report
// line for every kept variant
func (s *Server) handleStrip(w http.ResponseWriter, r *http.Request) {
	var req StripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Snippet.Shader) == "" {
		writeError(w, http.StatusBadRequest, errors.New("snippet.shader is required"))
		return
	}

	s.mu.RLock()
	st, rep := s.stripper, s.report
	s.mu.RUnlock()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("strip list not loaded"))
		return
	}

	kept, lines := st.Filter(req.Snippet, req.Variants)
	if err := rep.Append(lines...); err != nil {
		s.logger.Error("failed to append compiled variant report", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, StripResponse{Kept: kept, Stripped: len(req.Variants) - len(kept)})
}

// handleProcess runs a processing batch and reloads the strip list
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	res, err := s.proc.Run(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrConfiguration) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}

	s.mu.Lock()
	s.lastRun = res
	s.runs++
	s.mu.Unlock()

	if err := s.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	summary := map[string]any{
		"run_id":         res.RunID,
		"lines":          res.Lines,
		"variants":       len(res.Catalog),
		"warmup":         len(res.Warmup.Variants),
		"skipped":        len(res.Warmup.Skipped),
		"malformed":      res.Malformed,
		"missingShaders": res.MissingShaders,
	}
	if res.Strip != nil {
		summary["stripEntries"] = len(res.Strip.Entries)
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleReload reloads the strip list from the settings file
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.handleHealth(w, r)
}

// handleWarmup serves the warm-up collection file
func (s *Server) handleWarmup(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	settings := s.settings
	s.mu.RUnlock()
	if settings == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("settings not loaded"))
		return
	}

	data, err := os.ReadFile(settings.WarmupListPath)
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, errors.New("warm-up list has not been built yet"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stats":  s.GetStats(),
	})
}

// GetStats returns current statistics about the server.
func (s *Server) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"loaded": s.stripper != nil,
		"runs":   s.runs,
	}
	if s.stripper != nil {
		stats["strip_entries"] = s.stripper.Len()
		stats["stripping_enabled"] = s.settings.StrippingEnabled
		stats["report_path"] = s.report.Path()
	}
	if s.lastRun != nil {
		stats["last_run_id"] = s.lastRun.RunID
	}
	return stats
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", duration,
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
