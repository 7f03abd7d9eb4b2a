// Package server exposes the recorder over HTTP: session control, status,
// device listing, and Prometheus metrics.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/dualcap/internal/config"
	"github.com/audiolibrelab/dualcap/internal/service"
)

// Server serves the control and status API for one service instance.
type Server struct {
	svc service.Service
	cfg *config.Config
}

// New creates a server around svc.
func New(svc service.Service, cfg *config.Config) *Server {
	return &Server{svc: svc, cfg: cfg}
}

// startRequest is the body of POST /record/start. All fields optional.
type startRequest struct {
	SessionID string `json:"session_id"`
}

// Start blocks serving HTTP until the listener fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/record/start", s.handleStart)
	mux.HandleFunc("/record/stop", s.handleStop)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Address, s.cfg.Server.Port)
	slog.Info("starting control server", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req startRequest
	if r.Body != nil {
		// An empty or absent body means an auto-generated session id.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := s.svc.StartRecording(req.SessionID); err != nil {
		slog.Error("start recording failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to start recording: %v", err))
		return
	}

	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"status":  s.svc.GetStatus(),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.svc.StopRecording(); err != nil {
		slog.Error("stop recording failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to stop recording: %v", err))
		return
	}

	s.sendJSON(w, map[string]interface{}{
		"success": true,
		"message": "recording stopped",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sendJSON(w, s.svc.GetStatus())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	devices, err := s.svc.ListDevices()
	if err != nil {
		slog.Error("device enumeration failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list devices: %v", err))
		return
	}
	s.sendJSON(w, devices)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}
