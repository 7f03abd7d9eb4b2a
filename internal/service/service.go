// Package service ties configuration, session naming, and the recorder
// together behind the interface the CLI and HTTP server share.
package service

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/audiolibrelab/dualcap/internal/audio"
	"github.com/audiolibrelab/dualcap/internal/config"
	"github.com/audiolibrelab/dualcap/internal/metrics"
	"github.com/audiolibrelab/dualcap/internal/recorder"
)

// Service is the control surface shared by the CLI commands and the HTTP
// server.
type Service interface {
	StartRecording(sessionID string) error
	StopRecording() error
	GetStatus() SessionStatus
	ListDevices() (audio.Devices, error)
	GetConfig() *config.Config
}

// SessionStatus describes the active session, if any.
type SessionStatus struct {
	recorder.Status
	SessionID string  `json:"session_id,omitempty"`
	MicLevel  float64 `json:"mic_level"`
	LoopLevel float64 `json:"loopback_level"`
}

type service struct {
	cfg *config.Config
	met *metrics.Metrics

	mutex     sync.Mutex
	rec       *recorder.Recorder
	sessionID string
	micLevel  float64
	loopLevel float64
}

// New creates a service. Collectors are registered on reg; pass
// prometheus.DefaultRegisterer for normal use.
func New(cfg *config.Config, reg prometheus.Registerer) Service {
	return &service{
		cfg: cfg,
		met: metrics.New(reg),
	}
}

// StartRecording begins a session. An empty sessionID gets a timestamp
// one, matching session_20060102_150405_audio.wav.
func (s *service) StartRecording(sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.rec != nil && s.rec.IsRecording() {
		return fmt.Errorf("a recording session is already active")
	}

	if sessionID == "" {
		sessionID = time.Now().Format("20060102_150405")
	}

	if err := os.MkdirAll(s.cfg.Output.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(s.cfg.Output.Directory, config.SessionFileName(sessionID))

	rec := recorder.New(recorder.Config{
		OutputPath:         outputPath,
		TargetSampleRate:   s.cfg.Audio.SampleRate,
		BitDepth:           s.cfg.Audio.BitDepth,
		BufferDuration:     s.cfg.Audio.BufferDuration(),
		LoopbackDeviceID:   s.cfg.Devices.Loopback,
		MicrophoneDeviceID: s.cfg.Devices.Microphone,
		Metrics:            s.met,
		OnError: func(err error) {
			slog.Error("session failed", "session", sessionID, "error", err)
		},
		OnLevel: s.onLevel,
	})
	if err := rec.Initialize(); err != nil {
		return err
	}
	if err := rec.Start(); err != nil {
		return err
	}

	s.rec = rec
	s.sessionID = sessionID
	slog.Info("session started", "session", sessionID, "output", outputPath)
	return nil
}

func (s *service) onLevel(micRMS, loopRMS float64) {
	s.mutex.Lock()
	s.micLevel = micRMS
	s.loopLevel = loopRMS
	s.mutex.Unlock()
}

// StopRecording ends the active session. Stopping with no session active
// is a no-op.
func (s *service) StopRecording() error {
	s.mutex.Lock()
	rec := s.rec
	sessionID := s.sessionID
	s.mutex.Unlock()

	if rec == nil {
		return nil
	}
	if err := rec.Stop(); err != nil {
		return err
	}

	s.mutex.Lock()
	s.micLevel = 0
	s.loopLevel = 0
	s.mutex.Unlock()

	slog.Info("session stopped", "session", sessionID)
	return nil
}

func (s *service) GetStatus() SessionStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	status := SessionStatus{
		Status:    recorder.Status{State: recorder.StateIdle},
		MicLevel:  s.micLevel,
		LoopLevel: s.loopLevel,
	}
	if s.rec != nil {
		status.Status = s.rec.Status()
		if status.State != recorder.StateIdle {
			status.SessionID = s.sessionID
		}
	}
	return status
}

func (s *service) ListDevices() (audio.Devices, error) {
	return audio.ListDevices()
}

func (s *service) GetConfig() *config.Config {
	return s.cfg
}
